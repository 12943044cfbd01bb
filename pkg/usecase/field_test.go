package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
)

func TestFieldUseCase_CreateField(t *testing.T) {
	t.Run("derives identity from kind, title and owner", func(t *testing.T) {
		uc := newUseCases(t)
		input := inputField(" Campaign ")
		input.Owner = ""

		res, err := uc.Field.CreateField(context.Background(), alice, input)
		gt.NoError(t, err).Required()

		gt.Value(t, res.Field.FullTitle).Equal(types.FullTitle("it-campaign-alice"))
		gt.Value(t, res.Field.Owner).Equal(alice)
		gt.Number(t, res.Field.Version).Equal(1)
		gt.Value(t, res.Field.ID).NotEqual(types.FieldID(""))
		gt.Value(t, res.Rename).Nil()

		stored, err := uc.Field.GetField(context.Background(), res.Field.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, stored.FullTitle).Equal(res.Field.FullTitle)
	})

	t.Run("rejects duplicate full title", func(t *testing.T) {
		uc := newUseCases(t)
		mustCreateField(t, uc, inputField("source"))

		_, err := uc.Field.CreateField(context.Background(), alice, inputField("SOURCE"))
		gt.Bool(t, errors.Is(err, model.ErrValidation)).True()
		gt.Bool(t, hasValidation(err, model.ErrDuplicateTitle)).True()
	})

	t.Run("rejects unknown references", func(t *testing.T) {
		uc := newUseCases(t)

		_, err := uc.Field.CreateField(context.Background(), alice, combinedField("total", "$it-missing-alice", "x"))
		gt.Bool(t, hasValidation(err, model.ErrReferenceNotFound)).True()

		errs, ok := model.AsValidationErrors(err)
		gt.Bool(t, ok).True()
		gt.Array(t, errs.ByField("build_rule")).Length(1)

		fields, err := uc.Field.ListFields(context.Background(), alice)
		gt.NoError(t, err).Required()
		gt.Array(t, fields).Length(0)
	})

	t.Run("rejects self reference", func(t *testing.T) {
		uc := newUseCases(t)

		_, err := uc.Field.CreateField(context.Background(), alice, combinedField("loop", "$co-loop-alice"))
		gt.Bool(t, hasValidation(err, model.ErrCycleDetected)).True()
	})
}

func TestFieldUseCase_UpdateField(t *testing.T) {
	t.Run("reports the cycle chain", func(t *testing.T) {
		uc := newUseCases(t)
		ctx := context.Background()
		a := mustCreateField(t, uc, combinedField("a", "x"))
		mustCreateField(t, uc, combinedField("b", "$co-a-alice"))

		a.Combined.BuildRule = model.BuildRule{"$co-b-alice"}
		_, err := uc.Field.UpdateField(ctx, alice, a)
		gt.Bool(t, hasValidation(err, model.ErrCycleDetected)).True()

		errs, _ := model.AsValidationErrors(err)
		gt.Array(t, errs).Length(1).Required()
		gt.Value(t, errs[0].Field).Equal("build_rule")
		gt.Bool(t, strings.Contains(errs[0].Message, "$co-a-alice →️ $co-b-alice → ❗️$co-a-alice")).True()

		stored, err := uc.Field.GetField(ctx, a.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Combined.BuildRule).Equal(model.BuildRule{"x"})
	})

	t.Run("kind and owner cannot change", func(t *testing.T) {
		uc := newUseCases(t)
		f := mustCreateField(t, uc, inputField("source"))

		changed := f.Clone()
		changed.Kind = types.FieldKindInputInt
		changed.Owner = bob
		_, err := uc.Field.UpdateField(context.Background(), alice, changed)
		gt.Bool(t, hasValidation(err, model.ErrKindChange)).True()
		gt.Bool(t, hasValidation(err, model.ErrOwnerChange)).True()
	})

	t.Run("only the owner can edit", func(t *testing.T) {
		uc := newUseCases(t)
		f := mustCreateField(t, uc, inputField("source"))

		_, err := uc.Field.UpdateField(context.Background(), bob, f)
		gt.Bool(t, errors.Is(err, usecase.ErrAccessDenied)).True()
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		uc := newUseCases(t)
		ctx := context.Background()
		f := mustCreateField(t, uc, inputField("source"))

		first := f.Clone()
		first.Label = "first"
		_, err := uc.Field.UpdateField(ctx, alice, first)
		gt.NoError(t, err).Required()

		second := f.Clone()
		second.Label = "second"
		_, err = uc.Field.UpdateField(ctx, alice, second)
		gt.Bool(t, errors.Is(err, usecase.ErrVersionConflict)).True()
	})

	t.Run("result field used by a form keeps its inputs available", func(t *testing.T) {
		uc := newUseCases(t)
		mustCreateField(t, uc, inputField("source"))
		mustCreateField(t, uc, inputField("medium"))
		total := mustCreateField(t, uc, combinedField("total", "$it-source-alice"))
		mustCreateForm(t, uc, newForm("landing", model.UIGrid{{"$it-source-alice"}}, total.FullTitle))

		total.Combined.BuildRule = model.BuildRule{"$it-source-alice", "$it-medium-alice"}
		_, err := uc.Field.UpdateField(context.Background(), alice, total)
		gt.Bool(t, hasValidation(err, model.ErrMissingUIField)).True()
	})

	t.Run("select choices removal prunes dependencies", func(t *testing.T) {
		uc := newUseCases(t)
		ctx := context.Background()
		mustCreateField(t, uc, checkboxField("is_geo"))
		city := mustCreateField(t, uc, selectField("city", map[string]string{"Moscow": "msk", "Kazan": "kzn"}))
		dep, err := uc.Dependency.CreateDependency(ctx, alice, &model.SelectDependency{
			Title:  "geo",
			Parent: "$ch-is_geo-alice",
			Child:  "$se-city-alice",
			Values: map[string][]string{"on": {"Moscow", "Kazan"}},
		})
		gt.NoError(t, err).Required()

		city.Choice.Choices = map[string]string{"Moscow": "msk"}
		res, err := uc.Field.UpdateField(ctx, alice, city)
		gt.NoError(t, err).Required()
		gt.Array(t, res.PrunedDependencies).Length(1)

		pruned, err := uc.Dependency.GetDependency(ctx, dep.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, pruned.Values).Equal(map[string][]string{"on": {"Moscow"}})
		gt.Number(t, pruned.Version).Equal(2)
	})
}

func TestFieldUseCase_RenameField(t *testing.T) {
	t.Run("cascades into rules, forms and dependencies", func(t *testing.T) {
		uc := newUseCases(t)
		ctx := context.Background()
		mustCreateField(t, uc, inputField("source"))
		mustCreateField(t, uc, selectField("city", map[string]string{"Moscow": "msk"}))
		total := mustCreateField(t, uc, combinedField("total", "$it-source-alice", "x"))
		form := mustCreateForm(t, uc, newForm("landing",
			model.UIGrid{{"$it-source-alice", ""}, {"$se-city-alice"}}, total.FullTitle))
		_, err := uc.Dependency.CreateDependency(ctx, alice, &model.SelectDependency{
			Title:  "by_source",
			Parent: "$it-source-alice",
			Child:  "$se-city-alice",
			Values: map[string][]string{"google": {"Moscow"}},
		})
		gt.NoError(t, err).Required()

		res, err := uc.Field.RenameField(ctx, alice, "it-source-alice", "it-origin-alice")
		gt.NoError(t, err).Required()
		gt.Value(t, res.Field.FullTitle).Equal(types.FullTitle("it-origin-alice"))
		gt.Value(t, res.Rename).NotNil().Required()
		gt.Value(t, res.Rename.Fields).Equal([]types.FullTitle{"co-total-alice"})
		gt.Value(t, res.Rename.Forms).Equal([]types.FullTitle{"landing-alice"})
		gt.Value(t, res.Rename.Dependencies).Equal([]types.FullTitle{"by_source-alice"})
		gt.Array(t, res.Rename.BrokenForms).Length(0)

		renamed, err := uc.Field.GetField(ctx, total.ID)
		gt.NoError(t, err).Required()
		if diff := cmp.Diff(model.BuildRule{"$it-origin-alice", "x"}, renamed.Combined.BuildRule); diff != "" {
			t.Errorf("build rule mismatch (-want +got):\n%s", diff)
		}

		storedForm, err := uc.Form.GetForm(ctx, alice, form.ID)
		gt.NoError(t, err).Required()
		if diff := cmp.Diff(model.UIGrid{{"$it-origin-alice", ""}, {"$se-city-alice"}}, storedForm.UI); diff != "" {
			t.Errorf("form UI mismatch (-want +got):\n%s", diff)
		}

		_, err = uc.Field.RenameField(ctx, alice, "it-source-alice", "it-again-alice")
		gt.Bool(t, errors.Is(err, usecase.ErrFieldNotFound)).True()
	})

	t.Run("new full title must keep kind and owner", func(t *testing.T) {
		uc := newUseCases(t)
		mustCreateField(t, uc, inputField("source"))

		for _, to := range []types.FullTitle{"ii-origin-alice", "it-origin-bob", "it--alice"} {
			_, err := uc.Field.RenameField(context.Background(), alice, "it-source-alice", to)
			gt.Bool(t, hasValidation(err, model.ErrInvalidTitle)).True()
		}
	})
}

func TestFieldUseCase_DeleteField(t *testing.T) {
	t.Run("blocked while referenced", func(t *testing.T) {
		uc := newUseCases(t)
		ctx := context.Background()
		source := mustCreateField(t, uc, inputField("source"))
		total := mustCreateField(t, uc, combinedField("total", "$it-source-alice"))
		mustCreateForm(t, uc, newForm("landing", model.UIGrid{{"$it-source-alice"}}, total.FullTitle))

		err := uc.Field.DeleteField(ctx, alice, source.ID)
		gt.Bool(t, errors.Is(err, model.ErrDeletionBlocked)).True()
		usedIn, ok := goerr.Unwrap(err).Values()[usecase.UsedInKey].([]string)
		gt.Bool(t, ok).True()
		gt.Value(t, usedIn).Equal([]string{
			"field co-total-alice (build_rule)",
			"form landing-alice (ui)",
		})
	})

	t.Run("removes an unused field", func(t *testing.T) {
		uc := newUseCases(t)
		ctx := context.Background()
		source := mustCreateField(t, uc, inputField("source"))

		gt.Bool(t, errors.Is(uc.Field.DeleteField(ctx, bob, source.ID), usecase.ErrAccessDenied)).True()
		gt.NoError(t, uc.Field.DeleteField(ctx, alice, source.ID)).Required()

		_, err := uc.Field.GetField(ctx, source.ID)
		gt.Bool(t, errors.Is(err, usecase.ErrFieldNotFound)).True()
		gt.Bool(t, errors.Is(uc.Field.DeleteField(ctx, alice, source.ID), usecase.ErrFieldNotFound)).True()
	})
}

func TestFieldUseCase_ValidateField(t *testing.T) {
	uc := newUseCases(t)
	ctx := context.Background()

	errs, err := uc.Field.ValidateField(ctx, alice, lookupField("channel", "$it-missing-alice",
		map[string]model.BuildRule{"a": {"x"}}))
	gt.NoError(t, err).Required()
	gt.Array(t, errs.ByField("depends_field")).Length(1)

	errs, err = uc.Field.ValidateField(ctx, alice, inputField("source"))
	gt.NoError(t, err).Required()
	gt.Array(t, errs).Length(0)

	fields, err := uc.Field.ListFields(ctx, alice)
	gt.NoError(t, err).Required()
	gt.Array(t, fields).Length(0)
}
