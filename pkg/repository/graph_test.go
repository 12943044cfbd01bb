package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

func newTestField(kind types.FieldKind, title string, owner types.UserID) *model.Field {
	f := model.NewField(kind, title, title+" label", owner)
	f.ID = types.NewFieldID()
	f.Version = 1
	f.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	f.UpdatedAt = f.CreatedAt
	return f
}

func putInTx(t *testing.T, repo interfaces.Repository, fn func(ctx context.Context, tx interfaces.Transaction) error) {
	t.Helper()
	gt.NoError(t, repo.RunInTransaction(context.Background(), fn)).Required()
}

func runGraphRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("fields written in a transaction are readable", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		source := newTestField(types.FieldKindSelect, "source", "alice")
		source.Choice.Choices = map[string]string{"Google": "google", "Яндекс": "yandex"}
		source.Choice.Initial = "google"
		campaign := newTestField(types.FieldKindCombined, "campaign", "alice")
		campaign.Combined.BuildRule = model.BuildRule{source.FullTitle.Ref(), "x"}

		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			if err := tx.PutField(ctx, source); err != nil {
				return err
			}
			return tx.PutField(ctx, campaign)
		})

		got, err := repo.Field().Get(ctx, source.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.FullTitle).Equal(source.FullTitle)
		gt.Value(t, got.Choice.Choices["Яндекс"]).Equal("yandex")
		gt.Value(t, got.Choice.Initial).Equal("google")
		gt.Value(t, got.Value.CharsSettings).Equal(types.CharsSettingsTransliterate)
		gt.Bool(t, got.CreatedAt.Equal(source.CreatedAt)).True()

		byTitle, err := repo.Field().GetByFullTitle(ctx, campaign.FullTitle)
		gt.NoError(t, err).Required()
		gt.Value(t, byTitle.ID).Equal(campaign.ID)
		gt.Array(t, byTitle.Combined.BuildRule).Length(2)
		gt.Value(t, byTitle.Combined.BuildRule[0]).Equal(source.FullTitle.Ref())
		gt.Value(t, byTitle.Result.Separator).Equal("_")

		list, err := repo.Field().ListByOwner(ctx, "alice")
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(2).Required()
		gt.Value(t, list[0].FullTitle).Equal(campaign.FullTitle)
		gt.Value(t, list[1].FullTitle).Equal(source.FullTitle)

		others, err := repo.Field().ListByOwner(ctx, "bob")
		gt.NoError(t, err).Required()
		gt.Array(t, others).Length(0)
	})

	t.Run("lookup tables keep every key including an empty one", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		flag := newTestField(types.FieldKindCheckbox, "promo", "alice")
		lookup := newTestField(types.FieldKindLookupTable, "promo_code", "alice")
		lookup.Lookup.DefaultValue = model.BuildRule{"none"}
		lookup.Lookup.DependsField = flag.FullTitle
		lookup.Lookup.LookupValues = map[string]model.BuildRule{
			"on": {"promo", flag.FullTitle.Ref()},
			"":   {"blank"},
		}

		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			if err := tx.PutField(ctx, flag); err != nil {
				return err
			}
			return tx.PutField(ctx, lookup)
		})

		got, err := repo.Field().Get(ctx, lookup.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Lookup.DependsField).Equal(flag.FullTitle)
		gt.Array(t, got.Lookup.DefaultValue).Length(1)
		gt.Value(t, len(got.Lookup.LookupValues)).Equal(2)
		gt.Array(t, got.Lookup.LookupValues["on"]).Length(2)
		gt.Value(t, got.Lookup.LookupValues[""][0]).Equal("blank")
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		f := newTestField(types.FieldKindInputText, "medium", "alice")
		errAbort := errors.New("abort")
		err := repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
			if err := tx.PutField(ctx, f); err != nil {
				return err
			}
			return errAbort
		})
		gt.Bool(t, errors.Is(err, errAbort)).True()

		_, err = repo.Field().Get(ctx, f.ID)
		gt.Bool(t, isNotFound(err)).True()
	})

	t.Run("transaction lists committed graph", func(t *testing.T) {
		repo := newRepo(t)

		a := newTestField(types.FieldKindInputText, "a", "alice")
		b := newTestField(types.FieldKindInputInt, "b", "bob")
		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			if err := tx.PutField(ctx, a); err != nil {
				return err
			}
			return tx.PutField(ctx, b)
		})

		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			fields, err := tx.ListFields(ctx)
			gt.NoError(t, err).Required()
			gt.Array(t, fields).Length(2)

			forms, err := tx.ListForms(ctx)
			gt.NoError(t, err).Required()
			gt.Array(t, forms).Length(0)

			deps, err := tx.ListDependencies(ctx)
			gt.NoError(t, err).Required()
			gt.Array(t, deps).Length(0)
			return nil
		})
	})

	t.Run("delete removes field", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		f := newTestField(types.FieldKindInputText, "content", "alice")
		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			return tx.PutField(ctx, f)
		})
		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			return tx.DeleteField(ctx, f.ID)
		})

		_, err := repo.Field().Get(ctx, f.ID)
		gt.Bool(t, isNotFound(err)).True()
		_, err = repo.Field().GetByFullTitle(ctx, f.FullTitle)
		gt.Bool(t, isNotFound(err)).True()
	})

	t.Run("form keeps layout and references", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		src := newTestField(types.FieldKindInputText, "src", "alice")
		res := newTestField(types.FieldKindCombined, "res", "alice")
		res.Combined.BuildRule = model.BuildRule{src.FullTitle.Ref()}
		depID := types.NewDependencyID()

		form := &model.Form{
			ID:                 types.NewFormID(),
			Title:              "landing",
			Owner:              "alice",
			UI:                 model.UIGrid{{src.FullTitle.Ref(), ""}, {src.FullTitle.Ref()}},
			MainResultField:    res.FullTitle,
			MainResultIsURL:    true,
			ResultFields:       []types.FullTitle{res.FullTitle},
			SelectDependencies: []types.DependencyID{depID},
			Version:            1,
		}
		form.Normalize()

		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			return tx.PutForm(ctx, form)
		})

		got, err := repo.Form().Get(ctx, form.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.FullTitle).Equal(types.FullTitle("landing-alice"))
		gt.Array(t, got.UI).Length(2).Required()
		gt.Array(t, got.UI[0]).Length(2)
		gt.Value(t, got.UI[0][1]).Equal("")
		gt.Value(t, got.MainResultField).Equal(res.FullTitle)
		gt.Bool(t, got.MainResultIsURL).True()
		gt.Array(t, got.ResultFields).Length(1)
		gt.Value(t, got.SelectDependencies[0]).Equal(depID)

		list, err := repo.Form().ListByOwner(ctx, "alice")
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(1)

		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			return tx.DeleteForm(ctx, form.ID)
		})
		_, err = repo.Form().Get(ctx, form.ID)
		gt.Bool(t, isNotFound(err)).True()
	})

	t.Run("select dependencies are fetched in requested order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		newDep := func(title string) *model.SelectDependency {
			d := &model.SelectDependency{
				ID:     types.NewDependencyID(),
				Title:  title,
				Owner:  "alice",
				Parent: "se-country-alice",
				Child:  "se-city-alice",
				Values: map[string][]string{"ru": {"Moscow", "Kazan"}, "": {"Any"}},
			}
			d.Normalize()
			return d
		}
		d1, d2 := newDep("first"), newDep("second")
		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			if err := tx.PutDependency(ctx, d1); err != nil {
				return err
			}
			return tx.PutDependency(ctx, d2)
		})

		got, err := repo.Dependency().Get(ctx, d1.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, got.Values["ru"]).Length(2)
		gt.Value(t, got.Values[""][0]).Equal("Any")
		gt.Value(t, got.Parent).Equal(types.FullTitle("se-country-alice"))

		many, err := repo.Dependency().GetMany(ctx, []types.DependencyID{d2.ID, types.NewDependencyID(), d1.ID})
		gt.NoError(t, err).Required()
		gt.Array(t, many).Length(2).Required()
		gt.Value(t, many[0].ID).Equal(d2.ID)
		gt.Value(t, many[1].ID).Equal(d1.ID)

		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			return tx.DeleteDependency(ctx, d1.ID)
		})
		_, err = repo.Dependency().Get(ctx, d1.ID)
		gt.Bool(t, isNotFound(err)).True()
	})

	t.Run("get returns not found for unknown IDs", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Field().Get(ctx, types.NewFieldID())
		gt.Bool(t, isNotFound(err)).True()
		_, err = repo.Field().GetByFullTitle(ctx, "it-missing-alice")
		gt.Bool(t, isNotFound(err)).True()
		_, err = repo.Form().Get(ctx, types.NewFormID())
		gt.Bool(t, isNotFound(err)).True()
		_, err = repo.Dependency().Get(ctx, types.NewDependencyID())
		gt.Bool(t, isNotFound(err)).True()
	})
}

// runUniqueFullTitleTest covers backends that enforce full title uniqueness
// at storage level in addition to the check done while saving.
func runUniqueFullTitleTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("duplicated full title is rejected", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		f1 := newTestField(types.FieldKindInputText, "dup", "alice")
		f2 := newTestField(types.FieldKindInputText, "dup", "alice")
		putInTx(t, repo, func(ctx context.Context, tx interfaces.Transaction) error {
			return tx.PutField(ctx, f1)
		})

		err := repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
			return tx.PutField(ctx, f2)
		})
		gt.Bool(t, isConflict(err)).True()

		_, err = repo.Field().Get(ctx, f2.ID)
		gt.Bool(t, isNotFound(err)).True()
	})
}

func TestGraphRepository_Memory(t *testing.T) {
	runGraphRepositoryTest(t, newMemoryRepo)
	runUniqueFullTitleTest(t, newMemoryRepo)
}

func TestGraphRepository_SQLite(t *testing.T) {
	runGraphRepositoryTest(t, newSQLiteRepo)
	runUniqueFullTitleTest(t, newSQLiteRepo)
}

func TestGraphRepository_Firestore(t *testing.T) {
	runGraphRepositoryTest(t, newFirestoreFactory(t))
}
