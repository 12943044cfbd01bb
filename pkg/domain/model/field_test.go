package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

func TestField_Normalize(t *testing.T) {
	t.Run("derives full title and defaults", func(t *testing.T) {
		f := &model.Field{Kind: types.FieldKindCombined, Title: " Full_URL ", Label: "URL", Owner: "bob"}
		f.Normalize()

		gt.Value(t, f.Title).Equal("full_url")
		gt.Value(t, f.FullTitle).Equal(types.FullTitle("co-full_url-bob"))
		gt.Value(t, f.Result.Separator).Equal("_")
		gt.Bool(t, f.Result.RemoveBlankValues).True()
		gt.Value(t, f.Value.CharsSettings).Equal(types.CharsSettingsTransliterate)
		gt.Value(t, f.Input).Nil()
	})

	t.Run("clears settings the kind does not use", func(t *testing.T) {
		f := &model.Field{
			Kind:     types.FieldKindCheckbox,
			Title:    "use_https",
			Label:    "HTTPS",
			Owner:    "bob",
			Value:    model.DefaultValueSettings(),
			Combined: &model.CombinedSettings{BuildRule: model.BuildRule{"x"}},
		}
		f.Normalize()

		gt.Value(t, f.Value).Nil()
		gt.Value(t, f.Combined).Nil()
		gt.Value(t, f.Checkbox).NotNil()
	})

	t.Run("cleans build rules and lookup keys", func(t *testing.T) {
		f := &model.Field{
			Kind:  types.FieldKindLookupTable,
			Title: "medium",
			Label: "Medium",
			Owner: "bob",
			Lookup: &model.LookupSettings{
				DefaultValue: model.BuildRule{" cpc ", "", "$ it-a-bob"},
				DependsField: "$se-channel-bob",
				LookupValues: map[string]model.BuildRule{" email ": {"newsletter", "  "}},
			},
		}
		f.Normalize()

		gt.Value(t, f.Lookup.DefaultValue).Equal(model.BuildRule{"cpc", "$it-a-bob"})
		gt.Value(t, f.Lookup.DependsField).Equal(types.FullTitle("se-channel-bob"))
		gt.Value(t, f.Lookup.LookupValues["email"]).Equal(model.BuildRule{"newsletter"})
	})

	t.Run("choice initial is cleared without choices", func(t *testing.T) {
		f := &model.Field{
			Kind:   types.FieldKindSelect,
			Title:  "source",
			Label:  "Source",
			Owner:  "bob",
			Choice: &model.ChoiceSettings{Initial: "google"},
		}
		f.Normalize()
		gt.Value(t, f.Choice.Initial).Equal("")
	})
}

func TestField_Validate(t *testing.T) {
	newSelect := func() *model.Field {
		f := model.NewField(types.FieldKindSelect, "source", "Source", "bob")
		f.Choice.Choices = map[string]string{"Google": "google", "Yandex": "yandex"}
		return f
	}

	tests := []struct {
		name   string
		field  func() *model.Field
		target error
		input  string
	}{
		{
			name: "invalid title",
			field: func() *model.Field {
				return model.NewField(types.FieldKindInputText, "utm-source", "Source", "bob")
			},
			target: model.ErrInvalidTitle,
			input:  "title",
		},
		{
			name: "missing label",
			field: func() *model.Field {
				return model.NewField(types.FieldKindInputText, "utm_source", "", "bob")
			},
			target: model.ErrValidation,
			input:  "label",
		},
		{
			name: "initial not among choice values",
			field: func() *model.Field {
				f := newSelect()
				f.Choice.Initial = "bing"
				return f
			},
			target: model.ErrInvalidSettings,
			input:  "initial",
		},
		{
			name: "required choice field without choices",
			field: func() *model.Field {
				f := model.NewField(types.FieldKindRadiobutton, "medium", "Medium", "bob")
				f.Choice.Required = true
				return f
			},
			target: model.ErrInvalidSettings,
			input:  "choices",
		},
		{
			name: "input int initial must be integer",
			field: func() *model.Field {
				f := model.NewField(types.FieldKindInputInt, "age", "Age", "bob")
				f.Input.Initial = "ten"
				return f
			},
			target: model.ErrInvalidSettings,
			input:  "initial",
		},
		{
			name: "unsupported separator",
			field: func() *model.Field {
				f := model.NewField(types.FieldKindCombined, "full", "Full", "bob")
				f.Result.Separator = "+"
				return f
			},
			target: model.ErrInvalidSettings,
			input:  "separator",
		},
		{
			name: "hash separator too long",
			field: func() *model.Field {
				f := model.NewField(types.FieldKindCombined, "full", "Full", "bob")
				f.Value.HashSeparator = "~~~"
				return f
			},
			target: model.ErrInvalidSettings,
			input:  "hash_separator",
		},
		{
			name: "combined references itself",
			field: func() *model.Field {
				f := model.NewField(types.FieldKindCombined, "full", "Full", "bob")
				f.Combined.BuildRule = model.BuildRule{"$co-full-bob"}
				return f
			},
			target: model.ErrCycleDetected,
			input:  "build_rule",
		},
		{
			name: "lookup depends field without values",
			field: func() *model.Field {
				f := model.NewField(types.FieldKindLookupTable, "medium", "Medium", "bob")
				f.Lookup.DependsField = "se-source-bob"
				return f
			},
			target: model.ErrInvalidSettings,
			input:  "lookup_values",
		},
		{
			name: "lookup depends on itself",
			field: func() *model.Field {
				f := model.NewField(types.FieldKindLookupTable, "medium", "Medium", "bob")
				f.Lookup.DependsField = "lt-medium-bob"
				f.Lookup.LookupValues = map[string]model.BuildRule{"x": {"y"}}
				return f
			},
			target: model.ErrCycleDetected,
			input:  "depends_field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.field().Validate()
			gt.Array(t, errs.ByField(tt.input)).Length(1).Required()
			gt.Bool(t, errors.Is(errs.Err(), tt.target)).True()
			gt.Bool(t, errors.Is(errs.Err(), model.ErrValidation)).True()
		})
	}

	t.Run("valid select", func(t *testing.T) {
		f := newSelect()
		f.Choice.Initial = "yandex"
		gt.Array(t, f.Validate()).Length(0)
	})
}

func TestField_References(t *testing.T) {
	f := model.NewField(types.FieldKindLookupTable, "medium", "Medium", "bob")
	f.Lookup.DefaultValue = model.BuildRule{"$it-a-bob", "const"}
	f.Lookup.DependsField = "se-source-bob"
	f.Lookup.LookupValues = map[string]model.BuildRule{
		"yandex": {"$it-b-bob"},
		"google": {"$it-a-bob", "$co-c-bob"},
	}

	want := []types.FullTitle{"it-a-bob", "se-source-bob", "co-c-bob", "it-b-bob"}
	if diff := cmp.Diff(want, f.References()); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}

	leaf := model.NewField(types.FieldKindInputText, "a", "A", "bob")
	gt.Array(t, leaf.References()).Length(0)
}

func TestField_RewriteReferences(t *testing.T) {
	f := model.NewField(types.FieldKindLookupTable, "medium", "Medium", "bob")
	f.Lookup.DefaultValue = model.BuildRule{"$it-a-bob"}
	f.Lookup.DependsField = "it-a-bob"
	f.Lookup.LookupValues = map[string]model.BuildRule{"x": {"$it-a-bob", "$it-ab-bob"}}

	out, changed := f.RewriteReferences("it-a-bob", "it-z-bob")
	gt.Bool(t, changed).True()
	gt.Value(t, out.Lookup.DefaultValue).Equal(model.BuildRule{"$it-z-bob"})
	gt.Value(t, out.Lookup.DependsField).Equal(types.FullTitle("it-z-bob"))
	gt.Value(t, out.Lookup.LookupValues["x"]).Equal(model.BuildRule{"$it-z-bob", "$it-ab-bob"})

	// the original is untouched
	gt.Value(t, f.Lookup.DefaultValue).Equal(model.BuildRule{"$it-a-bob"})

	_, changed = f.RewriteReferences("it-other-bob", "it-z-bob")
	gt.Bool(t, changed).False()
}

func TestField_OrderedChoices(t *testing.T) {
	f := model.NewField(types.FieldKindSelect, "source", "Source", "bob")
	f.Choice.Choices = map[string]string{"Yandex": "yandex", "Google": "google"}
	f.Choice.BlankValue = true
	f.Choice.CustomInput = true
	f.ID = "f1"

	choices := f.OrderedChoices()
	gt.Array(t, choices).Length(4).Required()
	gt.Value(t, choices[0]).Equal(model.Choice{Value: "", Label: model.BlankChoiceLabel})
	gt.Value(t, choices[1].Value).Equal("google")
	gt.Value(t, choices[2].Value).Equal("yandex")
	gt.Value(t, choices[3].Value).Equal(model.CustomInputValue)
	gt.Value(t, f.CustomValueKey()).Equal("custom-f1")
}

func TestBuildRule_UnmarshalJSON(t *testing.T) {
	var r model.BuildRule
	gt.NoError(t, json.Unmarshal([]byte(`["$it-a-bob", "x"]`), &r))
	gt.Value(t, r).Equal(model.BuildRule{"$it-a-bob", "x"})

	err := json.Unmarshal([]byte(`"$it-a-bob"`), &r)
	gt.Bool(t, errors.Is(err, model.ErrMalformedBuildRule)).True()

	err = json.Unmarshal([]byte(`["x", 1]`), &r)
	gt.Bool(t, errors.Is(err, model.ErrMalformedBuildRule)).True()
}
