package firestore

import (
	"sort"
	"time"

	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// Firestore keeps user supplied map keys (choice labels, lookup keys, form
// data keys) as entry lists so that any string, including an empty one, can be stored.

type keyValue struct {
	Key   string `firestore:"key"`
	Value string `firestore:"value"`
}

type keyList struct {
	Key    string   `firestore:"key"`
	Values []string `firestore:"values"`
}

func toKeyValues(m map[string]string) []keyValue {
	out := make([]keyValue, 0, len(m))
	for k, v := range m {
		out = append(out, keyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func fromKeyValues(entries []keyValue) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out
}

func toKeyLists[V ~[]string](m map[string]V) []keyList {
	out := make([]keyList, 0, len(m))
	for k, v := range m {
		out = append(out, keyList{Key: k, Values: []string(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func fromKeyLists[V ~[]string](entries []keyList) map[string]V {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]V, len(entries))
	for _, e := range entries {
		out[e.Key] = V(e.Values)
	}
	return out
}

type choiceDoc struct {
	Choices     []keyValue `firestore:"choices"`
	Required    bool       `firestore:"required"`
	BlankValue  bool       `firestore:"blank_value"`
	CustomInput bool       `firestore:"custom_input"`
	Searchable  bool       `firestore:"searchable"`
	Initial     string     `firestore:"initial"`
}

type lookupDoc struct {
	DefaultValue []string  `firestore:"default_value"`
	DependsField string    `firestore:"depends_field"`
	LookupValues []keyList `firestore:"lookup_values"`
}

type fieldDoc struct {
	ID        string `firestore:"id"`
	Kind      string `firestore:"kind"`
	Title     string `firestore:"title"`
	FullTitle string `firestore:"full_title"`
	Label     string `firestore:"label"`
	Owner     string `firestore:"owner"`
	Comment   string `firestore:"comment"`

	Input     *model.InputSettings    `firestore:"input"`
	Checkbox  *model.CheckboxSettings `firestore:"checkbox"`
	Choice    *choiceDoc              `firestore:"choice"`
	Value     *model.ValueSettings    `firestore:"value"`
	Result    *model.ResultSettings   `firestore:"result"`
	BuildRule []string                `firestore:"build_rule"`
	Lookup    *lookupDoc              `firestore:"lookup"`

	Version   int64     `firestore:"version"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func newFieldDoc(f *model.Field) *fieldDoc {
	doc := &fieldDoc{
		ID:        string(f.ID),
		Kind:      string(f.Kind),
		Title:     f.Title,
		FullTitle: string(f.FullTitle),
		Label:     f.Label,
		Owner:     string(f.Owner),
		Comment:   f.Comment,
		Input:     f.Input,
		Checkbox:  f.Checkbox,
		Value:     f.Value,
		Result:    f.Result,
		Version:   f.Version,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
	if c := f.Choice; c != nil {
		doc.Choice = &choiceDoc{
			Choices:     toKeyValues(c.Choices),
			Required:    c.Required,
			BlankValue:  c.BlankValue,
			CustomInput: c.CustomInput,
			Searchable:  c.Searchable,
			Initial:     c.Initial,
		}
	}
	if f.Combined != nil {
		doc.BuildRule = f.Combined.BuildRule
	}
	if l := f.Lookup; l != nil {
		doc.Lookup = &lookupDoc{
			DefaultValue: l.DefaultValue,
			DependsField: string(l.DependsField),
			LookupValues: toKeyLists(l.LookupValues),
		}
	}
	return doc
}

func (d *fieldDoc) toModel() *model.Field {
	f := &model.Field{
		ID:        types.FieldID(d.ID),
		Kind:      types.FieldKind(d.Kind),
		Title:     d.Title,
		FullTitle: types.FullTitle(d.FullTitle),
		Label:     d.Label,
		Owner:     types.UserID(d.Owner),
		Comment:   d.Comment,
		Input:     d.Input,
		Checkbox:  d.Checkbox,
		Value:     d.Value,
		Result:    d.Result,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if c := d.Choice; c != nil {
		f.Choice = &model.ChoiceSettings{
			Choices:     fromKeyValues(c.Choices),
			Required:    c.Required,
			BlankValue:  c.BlankValue,
			CustomInput: c.CustomInput,
			Searchable:  c.Searchable,
			Initial:     c.Initial,
		}
	}
	if f.Kind == types.FieldKindCombined {
		f.Combined = &model.CombinedSettings{BuildRule: d.BuildRule}
	}
	if l := d.Lookup; l != nil {
		f.Lookup = &model.LookupSettings{
			DefaultValue: l.DefaultValue,
			DependsField: types.FullTitle(l.DependsField),
			LookupValues: fromKeyLists[model.BuildRule](l.LookupValues),
		}
	}
	return f
}

// uiRow wraps a row because Firestore cannot store nested arrays
type uiRow struct {
	Cells []string `firestore:"cells"`
}

type formDoc struct {
	ID                 string    `firestore:"id"`
	Title              string    `firestore:"title"`
	FullTitle          string    `firestore:"full_title"`
	Owner              string    `firestore:"owner"`
	Comment            string    `firestore:"comment"`
	UI                 []uiRow   `firestore:"ui"`
	MainResultField    string    `firestore:"main_result_field"`
	MainResultIsURL    bool      `firestore:"main_result_is_url"`
	ResultFields       []string  `firestore:"result_fields"`
	SelectDependencies []string  `firestore:"select_dependencies"`
	Version            int64     `firestore:"version"`
	CreatedAt          time.Time `firestore:"created_at"`
	UpdatedAt          time.Time `firestore:"updated_at"`
}

func newFormDoc(f *model.Form) *formDoc {
	doc := &formDoc{
		ID:              string(f.ID),
		Title:           f.Title,
		FullTitle:       string(f.FullTitle),
		Owner:           string(f.Owner),
		Comment:         f.Comment,
		MainResultField: string(f.MainResultField),
		MainResultIsURL: f.MainResultIsURL,
		Version:         f.Version,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
	for _, row := range f.UI {
		doc.UI = append(doc.UI, uiRow{Cells: row})
	}
	for _, ft := range f.ResultFields {
		doc.ResultFields = append(doc.ResultFields, string(ft))
	}
	for _, id := range f.SelectDependencies {
		doc.SelectDependencies = append(doc.SelectDependencies, string(id))
	}
	return doc
}

func (d *formDoc) toModel() *model.Form {
	f := &model.Form{
		ID:              types.FormID(d.ID),
		Title:           d.Title,
		FullTitle:       types.FullTitle(d.FullTitle),
		Owner:           types.UserID(d.Owner),
		Comment:         d.Comment,
		MainResultField: types.FullTitle(d.MainResultField),
		MainResultIsURL: d.MainResultIsURL,
		Version:         d.Version,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, row := range d.UI {
		f.UI = append(f.UI, row.Cells)
	}
	for _, ft := range d.ResultFields {
		f.ResultFields = append(f.ResultFields, types.FullTitle(ft))
	}
	for _, id := range d.SelectDependencies {
		f.SelectDependencies = append(f.SelectDependencies, types.DependencyID(id))
	}
	return f
}

type dependencyDoc struct {
	ID        string    `firestore:"id"`
	Title     string    `firestore:"title"`
	FullTitle string    `firestore:"full_title"`
	Owner     string    `firestore:"owner"`
	Comment   string    `firestore:"comment"`
	Parent    string    `firestore:"parent"`
	Child     string    `firestore:"child"`
	Values    []keyList `firestore:"values"`
	Version   int64     `firestore:"version"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func newDependencyDoc(d *model.SelectDependency) *dependencyDoc {
	return &dependencyDoc{
		ID:        string(d.ID),
		Title:     d.Title,
		FullTitle: string(d.FullTitle),
		Owner:     string(d.Owner),
		Comment:   d.Comment,
		Parent:    string(d.Parent),
		Child:     string(d.Child),
		Values:    toKeyLists(d.Values),
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d *dependencyDoc) toModel() *model.SelectDependency {
	values := fromKeyLists[[]string](d.Values)
	if values == nil {
		values = map[string][]string{}
	}
	return &model.SelectDependency{
		ID:        types.DependencyID(d.ID),
		Title:     d.Title,
		FullTitle: types.FullTitle(d.FullTitle),
		Owner:     types.UserID(d.Owner),
		Comment:   d.Comment,
		Parent:    types.FullTitle(d.Parent),
		Child:     types.FullTitle(d.Child),
		Values:    values,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type rawSubmissionDoc struct {
	Hashcode  string     `firestore:"hashcode"`
	FormID    string     `firestore:"form_id"`
	UserID    string     `firestore:"user_id"`
	Values    []keyValue `firestore:"values"`
	CreatedAt time.Time  `firestore:"created_at"`
}

func newRawSubmissionDoc(r *model.RawSubmission) *rawSubmissionDoc {
	return &rawSubmissionDoc{
		Hashcode:  string(r.Hashcode),
		FormID:    string(r.FormID),
		UserID:    string(r.UserID),
		Values:    toKeyValues(r.Values),
		CreatedAt: r.CreatedAt,
	}
}

func (d *rawSubmissionDoc) toModel() *model.RawSubmission {
	return &model.RawSubmission{
		Hashcode:  types.Hashcode(d.Hashcode),
		FormID:    types.FormID(d.FormID),
		UserID:    types.UserID(d.UserID),
		Values:    fromKeyValues(d.Values),
		CreatedAt: d.CreatedAt,
	}
}

type resultBlockDoc struct {
	Title   string `firestore:"title"`
	Label   string `firestore:"label"`
	Value   string `firestore:"value"`
	IsError bool   `firestore:"is_error"`
}

type computedResultDoc struct {
	Hashcode  string           `firestore:"hashcode"`
	FormID    string           `firestore:"form_id"`
	UserID    string           `firestore:"user_id"`
	MainValue string           `firestore:"main_value"`
	Main      *resultBlockDoc  `firestore:"main"`
	Blocks    []resultBlockDoc `firestore:"blocks"`
	CreatedAt time.Time        `firestore:"created_at"`
	UpdatedAt time.Time        `firestore:"updated_at"`
}

func newComputedResultDoc(r *model.ComputedResult) *computedResultDoc {
	doc := &computedResultDoc{
		Hashcode:  string(r.Hashcode),
		FormID:    string(r.FormID),
		UserID:    string(r.UserID),
		MainValue: r.MainValue,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Main != nil {
		main := resultBlockDoc(*r.Main)
		doc.Main = &main
	}
	for _, b := range r.Blocks {
		doc.Blocks = append(doc.Blocks, resultBlockDoc(b))
	}
	return doc
}

func (d *computedResultDoc) toModel() *model.ComputedResult {
	r := &model.ComputedResult{
		Hashcode:  types.Hashcode(d.Hashcode),
		FormID:    types.FormID(d.FormID),
		UserID:    types.UserID(d.UserID),
		MainValue: d.MainValue,
		Blocks:    []model.ResultBlock{},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Main != nil {
		main := model.ResultBlock(*d.Main)
		r.Main = &main
	}
	for _, b := range d.Blocks {
		r.Blocks = append(r.Blocks, model.ResultBlock(b))
	}
	return r
}
