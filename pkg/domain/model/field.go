package model

import (
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// CustomInputValue is submitted by a choice field when the user typed a
// custom value. The typed value arrives under Field.CustomValueKey().
const CustomInputValue = "custom-value-input-field"

// BlankChoiceLabel is shown for the empty option of choice fields with BlankValue set
const BlankChoiceLabel = "Not set"

// MaxLabelLength is counted in characters
const MaxLabelLength = 50

// AllowedSeparators lists the join separators of result fields
var AllowedSeparators = []string{"_", "-", "|", ""}

// DefaultSeparator joins result field parts when none is given
const DefaultSeparator = "_"

// Field is a closed tagged union over all field kinds. Kind selects which of
// the settings pointers are meaningful; Normalize clears the others.
type Field struct {
	ID        types.FieldID   `json:"id"`
	Kind      types.FieldKind `json:"kind"`
	Title     string          `json:"title"`
	FullTitle types.FullTitle `json:"full_title"`
	Label     string          `json:"label"`
	Owner     types.UserID    `json:"owner"`
	Comment   string          `json:"comment,omitempty"`

	Input    *InputSettings    `json:"input,omitempty"`
	Checkbox *CheckboxSettings `json:"checkbox,omitempty"`
	Choice   *ChoiceSettings   `json:"choice,omitempty"`
	Value    *ValueSettings    `json:"value,omitempty"`
	Result   *ResultSettings   `json:"result,omitempty"`
	Combined *CombinedSettings `json:"combined,omitempty"`
	Lookup   *LookupSettings   `json:"lookup,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InputSettings applies to InputText and InputInt
type InputSettings struct {
	Required    bool   `json:"required"`
	Initial     string `json:"initial,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Tooltip     string `json:"tooltip,omitempty"`
}

type CheckboxSettings struct {
	Initial bool `json:"initial"`
}

// ChoiceSettings applies to Radiobutton and Select. Choices maps label to value.
type ChoiceSettings struct {
	Choices     map[string]string `json:"choices"`
	Required    bool              `json:"required"`
	BlankValue  bool              `json:"blank_value"`
	CustomInput bool              `json:"custom_input"`
	Searchable  bool              `json:"searchable,omitempty"`
	Initial     string            `json:"initial,omitempty"`
}

// ResultSettings applies to Combined and LookupTable
type ResultSettings struct {
	Separator         string `json:"separator"`
	RemoveBlankValues bool   `json:"remove_blank_values"`
}

type CombinedSettings struct {
	BuildRule BuildRule `json:"build_rule"`
}

// LookupSettings selects a build rule by the computed value of DependsField.
// DefaultValue is used when DependsField is empty or no key matches.
type LookupSettings struct {
	DefaultValue BuildRule            `json:"default_value"`
	DependsField types.FullTitle      `json:"depends_field,omitempty"`
	LookupValues map[string]BuildRule `json:"lookup_values,omitempty"`
}

// Choice is a presentation ordered (value, label) pair
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// NewField returns a field of kind with default settings
func NewField(kind types.FieldKind, title, label string, owner types.UserID) *Field {
	f := &Field{
		Kind:  kind,
		Title: title,
		Label: label,
		Owner: owner,
	}
	f.Normalize()
	return f
}

// IsLeaf reports whether the field is a direct user input
func (f *Field) IsLeaf() bool {
	return f.Kind.IsLeaf()
}

// IsResult reports whether the field is computed from other fields
func (f *Field) IsResult() bool {
	return f.Kind.IsResult()
}

// Normalize fills kind specific defaults, clears settings the kind does not
// use, cleans build rules and derives FullTitle.
func (f *Field) Normalize() {
	f.Title = types.NormalizeTitle(f.Title)
	f.Label = strings.TrimSpace(f.Label)
	if f.Kind.IsValid() && f.Title != "" && f.Owner != "" {
		f.FullTitle = types.NewFieldFullTitle(f.Kind, f.Title, f.Owner)
	}

	input, checkbox, choice := f.Input, f.Checkbox, f.Choice
	value, result, combined, lookup := f.Value, f.Result, f.Combined, f.Lookup
	f.Input, f.Checkbox, f.Choice = nil, nil, nil
	f.Value, f.Result, f.Combined, f.Lookup = nil, nil, nil, nil

	switch f.Kind {
	case types.FieldKindInputText, types.FieldKindInputInt:
		f.Input = input
		if f.Input == nil {
			f.Input = &InputSettings{}
		}
		f.Input.Initial = strings.TrimSpace(f.Input.Initial)
		f.Input.Placeholder = strings.TrimSpace(f.Input.Placeholder)

	case types.FieldKindCheckbox:
		f.Checkbox = checkbox
		if f.Checkbox == nil {
			f.Checkbox = &CheckboxSettings{}
		}

	case types.FieldKindRadiobutton, types.FieldKindSelect:
		f.Choice = choice
		if f.Choice == nil {
			f.Choice = &ChoiceSettings{}
		}
		if f.Choice.Choices == nil {
			f.Choice.Choices = map[string]string{}
		}
		if f.Kind != types.FieldKindSelect {
			f.Choice.Searchable = false
		}
		f.Choice.Initial = strings.TrimSpace(f.Choice.Initial)
		if len(f.Choice.Choices) == 0 {
			f.Choice.Initial = ""
		}

	case types.FieldKindCombined:
		f.Combined = combined
		if f.Combined == nil {
			f.Combined = &CombinedSettings{}
		}
		f.Combined.BuildRule = f.Combined.BuildRule.Clean()

	case types.FieldKindLookupTable:
		f.Lookup = lookup
		if f.Lookup == nil {
			f.Lookup = &LookupSettings{}
		}
		f.Lookup.DefaultValue = f.Lookup.DefaultValue.Clean()
		if ref, ok := types.ParseReference(string(f.Lookup.DependsField)); ok {
			f.Lookup.DependsField = ref
		} else {
			f.Lookup.DependsField = types.FullTitle(strings.TrimSpace(string(f.Lookup.DependsField)))
		}
		if len(f.Lookup.LookupValues) > 0 {
			cleaned := make(map[string]BuildRule, len(f.Lookup.LookupValues))
			for key, rule := range f.Lookup.LookupValues {
				cleaned[strings.TrimSpace(key)] = rule.Clean()
			}
			f.Lookup.LookupValues = cleaned
		} else {
			f.Lookup.LookupValues = nil
		}
	}

	if f.Kind.HasValueSettings() {
		f.Value = value
		if f.Value == nil {
			f.Value = DefaultValueSettings()
		}
	}

	if f.Kind.IsResult() {
		f.Result = result
		if f.Result == nil {
			f.Result = &ResultSettings{Separator: DefaultSeparator, RemoveBlankValues: true}
		}
	}
}

// Validate checks rules that need nothing but the field itself. Reference
// existence and cycles are checked against the field graph by the caller.
func (f *Field) Validate() ValidationErrors {
	var errs ValidationErrors

	if !f.Kind.IsValid() {
		errs.Add("kind", ErrInvalidKind, "unknown field kind: "+f.Kind.String())
		return errs
	}
	if err := types.ValidateTitle(f.Title); err != nil {
		errs.Add("title", ErrInvalidTitle, err.Error())
	}
	if f.Owner == "" {
		errs.Add("owner", ErrValidation, "owner is required")
	}
	if f.Label == "" {
		errs.Add("label", ErrValidation, "label is required")
	} else if utf8.RuneCountInString(f.Label) > MaxLabelLength {
		errs.Add("label", ErrValidation, "label must be at most 50 characters")
	}

	if f.Value != nil {
		f.Value.validate(&errs)
	}

	switch f.Kind {
	case types.FieldKindInputInt:
		if !isInteger(f.Input.Initial) {
			errs.Add("initial", ErrInvalidSettings, "initial must be an integer")
		}
		if !isInteger(f.Input.Placeholder) {
			errs.Add("placeholder", ErrInvalidSettings, "placeholder must be an integer")
		}

	case types.FieldKindRadiobutton, types.FieldKindSelect:
		if f.Choice.Required && len(f.Choice.Choices) == 0 {
			errs.Add("choices", ErrInvalidSettings, "a required field must have at least one choice")
		}
		if f.Choice.Initial != "" && !slices.Contains(f.ChoiceValues(), f.Choice.Initial) {
			errs.Add("initial", ErrInvalidSettings, "initial value must be one of the choice values: "+f.Choice.Initial)
		}

	case types.FieldKindCombined:
		f.validateSelfReference(&errs, "build_rule", f.Combined.BuildRule)

	case types.FieldKindLookupTable:
		hasDepends := f.Lookup.DependsField != ""
		hasValues := len(f.Lookup.LookupValues) > 0
		if hasDepends != hasValues {
			errs.Add("lookup_values", ErrInvalidSettings, "depends_field and lookup_values must be either both set or both empty")
		}
		if hasDepends && f.Lookup.DependsField == f.FullTitle {
			errs.Add("depends_field", ErrCycleDetected, "lookup field cannot depend on itself")
		}
		f.validateSelfReference(&errs, "default_value", f.Lookup.DefaultValue)
		for _, key := range f.LookupKeys() {
			f.validateSelfReference(&errs, "lookup_values", f.Lookup.LookupValues[key])
		}
	}

	if f.Result != nil && !slices.Contains(AllowedSeparators, f.Result.Separator) {
		errs.Add("separator", ErrInvalidSettings, "separator must be one of '_', '-', '|' or empty")
	}

	return errs
}

func isInteger(s string) bool {
	if s == "" {
		return true
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func (f *Field) validateSelfReference(errs *ValidationErrors, name string, rule BuildRule) {
	if f.FullTitle != "" && rule.Contains(f.FullTitle) {
		errs.Add(name, ErrCycleDetected, "field cannot reference itself: "+f.FullTitle.Ref())
	}
}

// References returns every full title a result field reads, deduplicated in
// declaration order: build rule, then default value, depends field and lookup
// values ordered by key. Leaf fields reference nothing.
func (f *Field) References() []types.FullTitle {
	var refs []types.FullTitle
	seen := map[types.FullTitle]bool{}
	add := func(fts ...types.FullTitle) {
		for _, ft := range fts {
			if !seen[ft] {
				seen[ft] = true
				refs = append(refs, ft)
			}
		}
	}

	switch f.Kind {
	case types.FieldKindCombined:
		add(f.Combined.BuildRule.References()...)
	case types.FieldKindLookupTable:
		add(f.Lookup.DefaultValue.References()...)
		if f.Lookup.DependsField != "" {
			add(f.Lookup.DependsField)
		}
		for _, key := range f.LookupKeys() {
			add(f.Lookup.LookupValues[key].References()...)
		}
	}
	return refs
}

// ReferencedIn returns the input field names ("build_rule", "depends_field", ...)
// through which f refers to ft.
func (f *Field) ReferencedIn(ft types.FullTitle) []string {
	var where []string
	switch f.Kind {
	case types.FieldKindCombined:
		if f.Combined.BuildRule.Contains(ft) {
			where = append(where, "build_rule")
		}
	case types.FieldKindLookupTable:
		if f.Lookup.DefaultValue.Contains(ft) {
			where = append(where, "default_value")
		}
		if f.Lookup.DependsField == ft {
			where = append(where, "depends_field")
		}
		for _, rule := range f.Lookup.LookupValues {
			if rule.Contains(ft) {
				where = append(where, "lookup_values")
				break
			}
		}
	}
	return where
}

// RewriteReferences returns a copy of f with references to from replaced by
// to. The second value reports whether anything changed.
func (f *Field) RewriteReferences(from, to types.FullTitle) (*Field, bool) {
	out := f.Clone()
	var changed bool
	switch f.Kind {
	case types.FieldKindCombined:
		out.Combined.BuildRule, changed = f.Combined.BuildRule.Rewrite(from, to)
	case types.FieldKindLookupTable:
		var c bool
		out.Lookup.DefaultValue, c = f.Lookup.DefaultValue.Rewrite(from, to)
		changed = changed || c
		if f.Lookup.DependsField == from {
			out.Lookup.DependsField = to
			changed = true
		}
		for key, rule := range f.Lookup.LookupValues {
			out.Lookup.LookupValues[key], c = rule.Rewrite(from, to)
			changed = changed || c
		}
	}
	return out, changed
}

// LookupKeys returns lookup table keys in sorted order
func (f *Field) LookupKeys() []string {
	if f.Lookup == nil {
		return nil
	}
	keys := make([]string, 0, len(f.Lookup.LookupValues))
	for k := range f.Lookup.LookupValues {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ChoiceLabels returns choice labels in sorted order. Nil for kinds without choices.
func (f *Field) ChoiceLabels() []string {
	if f.Choice == nil {
		return nil
	}
	labels := make([]string, 0, len(f.Choice.Choices))
	for label := range f.Choice.Choices {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// ChoiceValues returns choice values ordered by label
func (f *Field) ChoiceValues() []string {
	labels := f.ChoiceLabels()
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = f.Choice.Choices[label]
	}
	return values
}

// OrderedChoices returns the options as presented: the blank option first
// when BlankValue is set, choices ordered by label, then the custom input
// option when CustomInput is set.
func (f *Field) OrderedChoices() []Choice {
	if f.Choice == nil {
		return nil
	}
	var choices []Choice
	if f.Choice.BlankValue {
		choices = append(choices, Choice{Value: "", Label: BlankChoiceLabel})
	}
	for _, label := range f.ChoiceLabels() {
		choices = append(choices, Choice{Value: f.Choice.Choices[label], Label: label})
	}
	if f.Choice.CustomInput {
		choices = append(choices, Choice{Value: CustomInputValue, Label: "Custom value"})
	}
	return choices
}

// CustomValueKey is the submitted value key holding a typed custom choice
func (f *Field) CustomValueKey() string {
	return "custom-" + string(f.ID)
}

// IsRequired reports whether the UI must demand a value
func (f *Field) IsRequired() bool {
	switch {
	case f.Input != nil:
		return f.Input.Required
	case f.Choice != nil:
		return f.Choice.Required
	default:
		return false
	}
}

// Clone returns a deep copy
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	out := *f
	if f.Input != nil {
		v := *f.Input
		out.Input = &v
	}
	if f.Checkbox != nil {
		v := *f.Checkbox
		out.Checkbox = &v
	}
	if f.Choice != nil {
		v := *f.Choice
		if f.Choice.Choices != nil {
			v.Choices = make(map[string]string, len(f.Choice.Choices))
			for k, val := range f.Choice.Choices {
				v.Choices[k] = val
			}
		}
		out.Choice = &v
	}
	if f.Value != nil {
		v := *f.Value
		out.Value = &v
	}
	if f.Result != nil {
		v := *f.Result
		out.Result = &v
	}
	if f.Combined != nil {
		out.Combined = &CombinedSettings{BuildRule: f.Combined.BuildRule.clone()}
	}
	if f.Lookup != nil {
		v := LookupSettings{
			DefaultValue: f.Lookup.DefaultValue.clone(),
			DependsField: f.Lookup.DependsField,
		}
		if f.Lookup.LookupValues != nil {
			v.LookupValues = make(map[string]BuildRule, len(f.Lookup.LookupValues))
			for k, rule := range f.Lookup.LookupValues {
				v.LookupValues[k] = rule.clone()
			}
		}
		out.Lookup = &v
	}
	return &out
}
