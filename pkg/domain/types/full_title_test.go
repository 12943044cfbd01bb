package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

func TestFullTitle(t *testing.T) {
	t.Run("field full title encodes kind, title and owner", func(t *testing.T) {
		ft := types.NewFieldFullTitle(types.FieldKindInputText, "campaign", "bob")
		gt.Value(t, ft).Equal(types.FullTitle("it-campaign-bob"))
		gt.Value(t, ft.Ref()).Equal("$it-campaign-bob")

		kind, ok := ft.Kind()
		gt.Bool(t, ok).True()
		gt.Value(t, kind).Equal(types.FieldKindInputText)
	})

	t.Run("owner may contain dashes", func(t *testing.T) {
		ft := types.NewFieldFullTitle(types.FieldKindSelect, "source", "jane-doe")
		kind, ok := ft.Kind()
		gt.Bool(t, ok).True()
		gt.Value(t, kind).Equal(types.FieldKindSelect)
	})

	t.Run("unknown type code", func(t *testing.T) {
		_, ok := types.FullTitle("zz-campaign-bob").Kind()
		gt.Bool(t, ok).False()

		_, ok = types.FullTitle("campaign").Kind()
		gt.Bool(t, ok).False()
	})

	t.Run("form full title has no kind", func(t *testing.T) {
		gt.Value(t, types.NewFullTitle("main", "bob")).Equal(types.FullTitle("main-bob"))
	})
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.FullTitle
		isRef bool
	}{
		{name: "reference", input: "$it-a-bob", want: "it-a-bob", isRef: true},
		{name: "surrounding spaces", input: "  $ it-a-bob ", want: "it-a-bob", isRef: true},
		{name: "literal", input: "utm_source", isRef: false},
		{name: "empty", input: "", isRef: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := types.ParseReference(tt.input)
			gt.Value(t, ok).Equal(tt.isRef)
			gt.Value(t, got).Equal(tt.want)
			gt.Value(t, types.IsReference(tt.input)).Equal(tt.isRef)
		})
	}
}

func TestValidateTitle(t *testing.T) {
	gt.NoError(t, types.ValidateTitle("utm_source_1"))
	gt.Value(t, types.ValidateTitle("")).NotNil()
	gt.Value(t, types.ValidateTitle("utm-source")).NotNil()
	gt.Value(t, types.ValidateTitle("имя")).NotNil()
	gt.Value(t, types.NormalizeTitle("  Utm_Source ")).Equal("utm_source")
}
