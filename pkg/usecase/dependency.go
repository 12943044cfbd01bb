package usecase

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
)

type DependencyUseCase struct {
	repo interfaces.Repository
	now  func() time.Time
}

func NewDependencyUseCase(repo interfaces.Repository) *DependencyUseCase {
	return &DependencyUseCase{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (uc *DependencyUseCase) planDependencySave(ctx context.Context, g *definitionGraph, userID types.UserID, input *model.SelectDependency, create bool) (*model.SelectDependency, model.ValidationErrors, error) {
	d := input.Clone()
	var errs model.ValidationErrors
	now := uc.now()

	if create {
		if d.ID == "" {
			d.ID = types.NewDependencyID()
		}
		if _, exists := g.dependencies[d.ID]; exists {
			return nil, nil, goerr.Wrap(interfaces.ErrConflict, "select dependency ID already used", goerr.V(DependencyIDKey, d.ID))
		}
		d.Owner = userID
		d.Version = 1
		d.CreatedAt = now
	} else {
		prev := g.dependencies[d.ID]
		if prev == nil {
			return nil, nil, goerr.Wrap(ErrDependencyNotFound, "select dependency not found", goerr.V(DependencyIDKey, d.ID))
		}
		if prev.Owner != userID {
			return nil, nil, goerr.Wrap(ErrAccessDenied, "select dependency is owned by another user",
				goerr.V(DependencyIDKey, d.ID), goerr.V(UserIDKey, userID))
		}
		if d.Version != 0 && d.Version != prev.Version {
			return nil, nil, goerr.Wrap(ErrVersionConflict, "select dependency was modified",
				goerr.V(DependencyIDKey, d.ID), goerr.V("expected", d.Version), goerr.V("actual", prev.Version))
		}
		if d.Owner != "" && d.Owner != prev.Owner {
			errs.Add("owner", model.ErrOwnerChange, "owner cannot be changed, create a new dependency for the other user")
		}
		d.Owner = prev.Owner
		d.Version = prev.Version + 1
		d.CreatedAt = prev.CreatedAt
	}
	d.UpdatedAt = now

	d.Normalize()
	errs.Merge(d.Validate(g.fields[d.Parent], g.fields[d.Child]))
	for _, other := range g.dependencies {
		if other.ID != d.ID && other.FullTitle == d.FullTitle && d.FullTitle != "" {
			errs.Add("title", model.ErrDuplicateTitle, "select dependency already exists: "+string(d.FullTitle))
			break
		}
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}

	g.dependencies[d.ID] = d
	v := newValidator(g)
	for _, form := range g.sortedForms() {
		if !slices.Contains(form.SelectDependencies, d.ID) {
			continue
		}
		deps, _ := g.formDependencies(form)
		formErrs, err := v.checkAvailability(ctx, form, deps)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range formErrs {
			errs.Add("", e.Err, "form "+string(form.FullTitle)+": "+e.Message)
		}
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}
	return d, nil, nil
}

// ValidateDependency runs every save check without writing
func (uc *DependencyUseCase) ValidateDependency(ctx context.Context, userID types.UserID, dep *model.SelectDependency) (model.ValidationErrors, error) {
	var errs model.ValidationErrors
	err := uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		_, exists := g.dependencies[dep.ID]
		_, errs, err = uc.planDependencySave(ctx, g, userID, dep, dep.ID == "" || !exists)
		return err
	})
	if err != nil {
		return nil, err
	}
	return errs, nil
}

func (uc *DependencyUseCase) CreateDependency(ctx context.Context, userID types.UserID, dep *model.SelectDependency) (*model.SelectDependency, error) {
	return uc.save(ctx, userID, dep, true)
}

// UpdateDependency replaces a dependency. Forms using it are checked again.
func (uc *DependencyUseCase) UpdateDependency(ctx context.Context, userID types.UserID, dep *model.SelectDependency) (*model.SelectDependency, error) {
	return uc.save(ctx, userID, dep, false)
}

func (uc *DependencyUseCase) save(ctx context.Context, userID types.UserID, dep *model.SelectDependency, create bool) (*model.SelectDependency, error) {
	var saved *model.SelectDependency
	err := uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		d, errs, err := uc.planDependencySave(ctx, g, userID, dep, create)
		if err != nil {
			return err
		}
		if len(errs) > 0 {
			return wrapValidation(errs, "invalid select dependency",
				goerr.V(DependencyIDKey, dep.ID), goerr.V(UserIDKey, userID))
		}
		if err := tx.PutDependency(ctx, d); err != nil {
			return goerr.Wrap(err, "failed to put select dependency", goerr.V(DependencyIDKey, d.ID))
		}
		saved = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Info("select dependency saved",
		"dependency_id", saved.ID,
		"full_title", saved.FullTitle,
		"version", saved.Version,
	)
	return saved, nil
}

// DeleteDependency removes a dependency and detaches it from every form
func (uc *DependencyUseCase) DeleteDependency(ctx context.Context, userID types.UserID, id types.DependencyID) error {
	return uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		d := g.dependencies[id]
		if d == nil {
			return goerr.Wrap(ErrDependencyNotFound, "select dependency not found", goerr.V(DependencyIDKey, id))
		}
		if d.Owner != userID {
			return goerr.Wrap(ErrAccessDenied, "select dependency is owned by another user",
				goerr.V(DependencyIDKey, id), goerr.V(UserIDKey, userID))
		}

		now := uc.now()
		for _, form := range g.sortedForms() {
			if !slices.Contains(form.SelectDependencies, id) {
				continue
			}
			detached := form.Clone()
			detached.SelectDependencies = slices.DeleteFunc(detached.SelectDependencies, func(v types.DependencyID) bool {
				return v == id
			})
			detached.Version++
			detached.UpdatedAt = now
			if err := tx.PutForm(ctx, detached); err != nil {
				return goerr.Wrap(err, "failed to detach select dependency",
					goerr.V(DependencyIDKey, id), goerr.V(FormIDKey, form.ID))
			}
		}

		if err := tx.DeleteDependency(ctx, id); err != nil {
			return goerr.Wrap(err, "failed to delete select dependency", goerr.V(DependencyIDKey, id))
		}
		return nil
	})
}

func (uc *DependencyUseCase) GetDependency(ctx context.Context, id types.DependencyID) (*model.SelectDependency, error) {
	d, err := uc.repo.Dependency().Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrDependencyNotFound, "select dependency not found", goerr.V(DependencyIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get select dependency", goerr.V(DependencyIDKey, id))
	}
	return d, nil
}

// ListDependencies returns dependencies owned by owner ordered by full title
func (uc *DependencyUseCase) ListDependencies(ctx context.Context, owner types.UserID) ([]*model.SelectDependency, error) {
	var out []*model.SelectDependency
	err := uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		deps, err := tx.ListDependencies(ctx)
		if err != nil {
			return goerr.Wrap(err, "failed to list select dependencies")
		}
		out = out[:0]
		for _, d := range deps {
			if d.Owner == owner {
				out = append(out, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullTitle < out[j].FullTitle })
	return out, nil
}
