package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"gopkg.in/yaml.v3"
)

// Definition is a file describing fields, select dependencies and forms of
// one owner. References between entries use "$full_title" like the API.
type Definition struct {
	Fields       []FieldDefinition      `toml:"field" yaml:"fields"`
	Dependencies []DependencyDefinition `toml:"dependency" yaml:"dependencies"`
	Forms        []FormDefinition       `toml:"form" yaml:"forms"`
}

// FieldDefinition flattens the kind specific settings of a field. Settings
// not used by the kind are ignored.
type FieldDefinition struct {
	Kind    string `toml:"kind" yaml:"kind"`
	Title   string `toml:"title" yaml:"title"`
	Label   string `toml:"label" yaml:"label"`
	Comment string `toml:"comment" yaml:"comment"`

	Required    bool   `toml:"required" yaml:"required"`
	Initial     string `toml:"initial" yaml:"initial"`
	Checked     bool   `toml:"checked" yaml:"checked"`
	Placeholder string `toml:"placeholder" yaml:"placeholder"`
	Tooltip     string `toml:"tooltip" yaml:"tooltip"`

	Choices     map[string]string `toml:"choices" yaml:"choices"`
	BlankValue  bool              `toml:"blank_value" yaml:"blank_value"`
	CustomInput bool              `toml:"custom_input" yaml:"custom_input"`
	Searchable  bool              `toml:"searchable" yaml:"searchable"`

	BuildRule    []string            `toml:"build_rule" yaml:"build_rule"`
	DependsField string              `toml:"depends_field" yaml:"depends_field"`
	LookupValues map[string][]string `toml:"lookup_values" yaml:"lookup_values"`
	DefaultValue []string            `toml:"default_value" yaml:"default_value"`

	Separator       *string `toml:"separator" yaml:"separator"`
	KeepBlankValues bool    `toml:"keep_blank_values" yaml:"keep_blank_values"`

	Value *ValueDefinition `toml:"value" yaml:"value"`
}

type ValueDefinition struct {
	CleanValue       *bool   `toml:"clean_value" yaml:"clean_value"`
	DisableLowercase bool    `toml:"disable_lowercase" yaml:"disable_lowercase"`
	Chars            string  `toml:"chars" yaml:"chars"`
	AddHash          bool    `toml:"add_hash" yaml:"add_hash"`
	HashSeparator    *string `toml:"hash_separator" yaml:"hash_separator"`
}

type DependencyDefinition struct {
	Title   string              `toml:"title" yaml:"title"`
	Comment string              `toml:"comment" yaml:"comment"`
	Parent  string              `toml:"parent" yaml:"parent"`
	Child   string              `toml:"child" yaml:"child"`
	Values  map[string][]string `toml:"values" yaml:"values"`
}

// FormDefinition refers to select dependencies by title
type FormDefinition struct {
	Title              string     `toml:"title" yaml:"title"`
	Comment            string     `toml:"comment" yaml:"comment"`
	UI                 [][]string `toml:"ui" yaml:"ui"`
	MainResultField    string     `toml:"main_result_field" yaml:"main_result_field"`
	MainResultIsURL    bool       `toml:"main_result_is_url" yaml:"main_result_is_url"`
	ResultFields       []string   `toml:"result_fields" yaml:"result_fields"`
	SelectDependencies []string   `toml:"select_dependencies" yaml:"select_dependencies"`
	Grants             []string   `toml:"grants" yaml:"grants"`
}

// LoadDefinition reads a TOML or YAML definition file chosen by extension
func LoadDefinition(path string) (*Definition, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrConfigNotFound, "definition file not found", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read definition file", goerr.V(ConfigPathKey, path))
	}

	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &def); err != nil {
			return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML definition",
				goerr.V(ConfigPathKey, path), goerr.V("error", err.Error()))
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse YAML definition",
				goerr.V(ConfigPathKey, path), goerr.V("error", err.Error()))
		}
	default:
		return nil, goerr.Wrap(ErrUnsupportedFormat, "definition file must be .toml, .yaml or .yml",
			goerr.V(ConfigPathKey, path))
	}

	if err := def.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid definition", goerr.V(ConfigPathKey, path))
	}
	return &def, nil
}

// Validate checks what can be checked without the stored definitions: field
// kinds and title uniqueness inside the file
func (d *Definition) Validate() error {
	fieldTitles := make(map[string]bool)
	for i, f := range d.Fields {
		if _, err := types.ParseFieldKind(f.Kind); err != nil {
			return goerr.Wrap(ErrInvalidFieldType, "unknown field kind",
				goerr.V(FieldIndexKey, i), goerr.V(FieldTypeKey, f.Kind))
		}
		if strings.TrimSpace(f.Title) == "" {
			return goerr.Wrap(ErrMissingName, "field title is required", goerr.V(FieldIndexKey, i))
		}
		key := f.Kind + "-" + types.NormalizeTitle(f.Title)
		if fieldTitles[key] {
			return goerr.Wrap(ErrDuplicateTitle, "duplicate field", goerr.V(FieldIndexKey, i), goerr.V(TitleKey, f.Title))
		}
		fieldTitles[key] = true
	}

	depTitles := make(map[string]bool)
	for i, dep := range d.Dependencies {
		title := types.NormalizeTitle(dep.Title)
		if title == "" {
			return goerr.Wrap(ErrMissingName, "select dependency title is required", goerr.V(DependencyIndexKey, i))
		}
		if depTitles[title] {
			return goerr.Wrap(ErrDuplicateTitle, "duplicate select dependency", goerr.V(DependencyIndexKey, i), goerr.V(TitleKey, dep.Title))
		}
		depTitles[title] = true
	}

	formTitles := make(map[string]bool)
	for i, form := range d.Forms {
		title := types.NormalizeTitle(form.Title)
		if title == "" {
			return goerr.Wrap(ErrMissingName, "form title is required", goerr.V(FormIndexKey, i))
		}
		if formTitles[title] {
			return goerr.Wrap(ErrDuplicateTitle, "duplicate form", goerr.V(FormIndexKey, i), goerr.V(TitleKey, form.Title))
		}
		formTitles[title] = true
		for _, ref := range form.SelectDependencies {
			if !depTitles[types.NormalizeTitle(ref)] {
				return goerr.Wrap(ErrUnknownDependency, "form refers to a select dependency not in the file",
					goerr.V(FormIndexKey, i), goerr.V(TitleKey, ref))
			}
		}
	}
	return nil
}

// ToModel builds the field owned by owner
func (f *FieldDefinition) ToModel(owner types.UserID) *model.Field {
	kind := types.FieldKind(f.Kind)
	field := &model.Field{
		Kind:    kind,
		Title:   f.Title,
		Label:   f.Label,
		Owner:   owner,
		Comment: f.Comment,
		Input: &model.InputSettings{
			Required:    f.Required,
			Initial:     f.Initial,
			Placeholder: f.Placeholder,
			Tooltip:     f.Tooltip,
		},
		Checkbox: &model.CheckboxSettings{Initial: f.Checked},
		Choice: &model.ChoiceSettings{
			Choices:     f.Choices,
			Required:    f.Required,
			BlankValue:  f.BlankValue,
			CustomInput: f.CustomInput,
			Searchable:  f.Searchable,
			Initial:     f.Initial,
		},
		Combined: &model.CombinedSettings{BuildRule: f.BuildRule},
		Lookup: &model.LookupSettings{
			DefaultValue: f.DefaultValue,
			DependsField: types.FullTitle(f.DependsField),
		},
	}

	if len(f.LookupValues) > 0 {
		field.Lookup.LookupValues = make(map[string]model.BuildRule, len(f.LookupValues))
		for key, rule := range f.LookupValues {
			field.Lookup.LookupValues[key] = rule
		}
	}

	if kind.IsResult() {
		field.Result = &model.ResultSettings{
			Separator:         model.DefaultSeparator,
			RemoveBlankValues: !f.KeepBlankValues,
		}
		if f.Separator != nil {
			field.Result.Separator = *f.Separator
		}
	}

	if f.Value != nil {
		value := model.DefaultValueSettings()
		if f.Value.CleanValue != nil {
			value.CleanValue = *f.Value.CleanValue
		}
		value.DisableLowercase = f.Value.DisableLowercase
		if f.Value.Chars != "" {
			value.CharsSettings = types.CharsSettings(f.Value.Chars)
		}
		value.AddHash = f.Value.AddHash
		if f.Value.HashSeparator != nil {
			value.HashSeparator = *f.Value.HashSeparator
		}
		field.Value = value
	}

	field.Normalize()
	return field
}

// FullTitle is the identity the field will have once imported by owner
func (f *FieldDefinition) FullTitle(owner types.UserID) types.FullTitle {
	return types.NewFieldFullTitle(types.FieldKind(f.Kind), types.NormalizeTitle(f.Title), owner)
}

func (d *DependencyDefinition) ToModel(owner types.UserID) *model.SelectDependency {
	dep := &model.SelectDependency{
		Title:   d.Title,
		Owner:   owner,
		Comment: d.Comment,
		Parent:  types.FullTitle(d.Parent),
		Child:   types.FullTitle(d.Child),
		Values:  d.Values,
	}
	dep.Normalize()
	return dep
}

// ToModel builds the form. depIDs maps normalized dependency titles to the
// IDs they were stored under.
func (f *FormDefinition) ToModel(owner types.UserID, depIDs map[string]types.DependencyID) *model.Form {
	form := &model.Form{
		Title:           f.Title,
		Owner:           owner,
		Comment:         f.Comment,
		UI:              model.UIGrid(f.UI),
		MainResultField: types.FullTitle(f.MainResultField),
		MainResultIsURL: f.MainResultIsURL,
	}
	for _, ft := range f.ResultFields {
		form.ResultFields = append(form.ResultFields, types.FullTitle(ft))
	}
	for _, title := range f.SelectDependencies {
		if id, ok := depIDs[types.NormalizeTitle(title)]; ok {
			form.SelectDependencies = append(form.SelectDependencies, id)
		}
	}
	form.Normalize()
	return form
}

// SortedFields returns the fields of owner ordered so that every field comes
// after the fields of the file it references
func (d *Definition) SortedFields(owner types.UserID) ([]*model.Field, error) {
	fields := make([]*model.Field, len(d.Fields))
	index := make(map[types.FullTitle]int, len(d.Fields))
	for i := range d.Fields {
		fields[i] = d.Fields[i].ToModel(owner)
		index[fields[i].FullTitle] = i
	}

	// dependents[i] lists fields referencing fields[i]
	dependents := make([][]int, len(fields))
	pending := make([]int, len(fields))
	for i, f := range fields {
		seen := make(map[int]bool)
		for _, ref := range f.References() {
			j, ok := index[ref]
			if !ok || j == i || seen[j] {
				continue
			}
			seen[j] = true
			dependents[j] = append(dependents[j], i)
			pending[i]++
		}
	}

	var queue []int
	for i := range fields {
		if pending[i] == 0 {
			queue = append(queue, i)
		}
	}
	sorted := make([]*model.Field, 0, len(fields))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		sorted = append(sorted, fields[i])
		for _, j := range dependents[i] {
			pending[j]--
			if pending[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(sorted) != len(fields) {
		var cyclic []string
		for i, f := range fields {
			if pending[i] > 0 {
				cyclic = append(cyclic, f.FullTitle.Ref())
			}
		}
		return nil, goerr.Wrap(ErrDefinitionCycle, "cannot order fields", goerr.V("fields", cyclic))
	}
	return sorted, nil
}
