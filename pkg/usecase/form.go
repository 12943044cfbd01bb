package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
)

type FormUseCase struct {
	repo interfaces.Repository
	now  func() time.Time
}

func NewFormUseCase(repo interfaces.Repository) *FormUseCase {
	return &FormUseCase{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// planFormSave validates input against the graph. Validation problems are
// returned as ValidationErrors, anything else as error.
func (uc *FormUseCase) planFormSave(ctx context.Context, g *definitionGraph, userID types.UserID, input *model.Form, create bool) (*model.Form, model.ValidationErrors, error) {
	f := input.Clone()
	var errs model.ValidationErrors
	now := uc.now()

	if create {
		if f.ID == "" {
			f.ID = types.NewFormID()
		}
		if _, exists := g.forms[f.ID]; exists {
			return nil, nil, goerr.Wrap(interfaces.ErrConflict, "form ID already used", goerr.V(FormIDKey, f.ID))
		}
		f.Owner = userID
		f.Version = 1
		f.CreatedAt = now
	} else {
		prev := g.forms[f.ID]
		if prev == nil {
			return nil, nil, goerr.Wrap(ErrFormNotFound, "form not found", goerr.V(FormIDKey, f.ID))
		}
		if prev.Owner != userID {
			return nil, nil, goerr.Wrap(ErrAccessDenied, "form is owned by another user",
				goerr.V(FormIDKey, f.ID), goerr.V(UserIDKey, userID))
		}
		if f.Version != 0 && f.Version != prev.Version {
			return nil, nil, goerr.Wrap(ErrVersionConflict, "form was modified",
				goerr.V(FormIDKey, f.ID), goerr.V("expected", f.Version), goerr.V("actual", prev.Version))
		}
		if f.Owner != "" && f.Owner != prev.Owner {
			errs.Add("owner", model.ErrOwnerChange, "owner cannot be changed, create a new form for the other user")
		}
		f.Owner = prev.Owner
		f.Version = prev.Version + 1
		f.CreatedAt = prev.CreatedAt
	}
	f.UpdatedAt = now

	f.Normalize()
	if err := types.ValidateTitle(f.Title); err != nil {
		errs.Add("title", model.ErrInvalidTitle, err.Error())
	}
	for _, other := range g.forms {
		if other.ID != f.ID && other.FullTitle == f.FullTitle && f.FullTitle != "" {
			errs.Add("title", model.ErrDuplicateTitle, "form already exists: "+string(f.FullTitle))
			break
		}
	}

	ui, uiErrs := f.UI.Clean()
	f.UI = ui
	errs.Merge(uiErrs)
	for _, ft := range f.UI.FullTitles() {
		field := g.fields[ft]
		switch {
		case field == nil:
			errs.Add("ui", model.ErrReferenceNotFound, "field not found: "+ft.Ref())
		case !field.IsLeaf():
			errs.Add("ui", model.ErrInvalidUI, "only form fields can be placed in the UI: "+ft.Ref())
		}
	}

	requireResult := func(ft types.FullTitle, name string) {
		field := g.fields[ft]
		switch {
		case field == nil:
			errs.Add(name, model.ErrReferenceNotFound, "field not found: "+ft.Ref())
		case !field.IsResult():
			errs.Add(name, model.ErrInvalidSettings, "result field expected: "+ft.Ref())
		}
	}
	if f.MainResultField == "" {
		errs.Add("main_result_field", model.ErrValidation, "main result field is required")
	} else {
		requireResult(f.MainResultField, "main_result_field")
	}
	for _, ft := range f.ResultFields {
		requireResult(ft, "result_fields")
	}

	deps, missing := g.formDependencies(f)
	for _, id := range missing {
		errs.Add("select_dependencies", model.ErrReferenceNotFound, "select dependency not found: "+string(id))
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}

	availErrs, err := newValidator(g).checkAvailability(ctx, f, deps)
	if err != nil {
		return nil, nil, err
	}
	if len(availErrs) > 0 {
		return nil, availErrs, nil
	}
	return f, nil, nil
}

// ValidateForm runs every save check without writing
func (uc *FormUseCase) ValidateForm(ctx context.Context, userID types.UserID, form *model.Form) (model.ValidationErrors, error) {
	var errs model.ValidationErrors
	err := uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		_, exists := g.forms[form.ID]
		_, errs, err = uc.planFormSave(ctx, g, userID, form, form.ID == "" || !exists)
		return err
	})
	if err != nil {
		return nil, err
	}
	return errs, nil
}

func (uc *FormUseCase) CreateForm(ctx context.Context, userID types.UserID, form *model.Form) (*model.Form, error) {
	return uc.save(ctx, userID, form, true)
}

func (uc *FormUseCase) UpdateForm(ctx context.Context, userID types.UserID, form *model.Form) (*model.Form, error) {
	return uc.save(ctx, userID, form, false)
}

func (uc *FormUseCase) save(ctx context.Context, userID types.UserID, form *model.Form, create bool) (*model.Form, error) {
	var saved *model.Form
	err := uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		f, errs, err := uc.planFormSave(ctx, g, userID, form, create)
		if err != nil {
			return err
		}
		if len(errs) > 0 {
			return wrapValidation(errs, "invalid form",
				goerr.V(FormIDKey, form.ID), goerr.V(UserIDKey, userID))
		}
		if err := tx.PutForm(ctx, f); err != nil {
			return goerr.Wrap(err, "failed to put form", goerr.V(FormIDKey, f.ID))
		}
		saved = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Info("form saved",
		"form_id", saved.ID,
		"full_title", saved.FullTitle,
		"version", saved.Version,
	)
	return saved, nil
}

// DeleteForm removes a form. Stored submissions of the form are kept.
func (uc *FormUseCase) DeleteForm(ctx context.Context, userID types.UserID, id types.FormID) error {
	return uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		form := g.forms[id]
		if form == nil {
			return goerr.Wrap(ErrFormNotFound, "form not found", goerr.V(FormIDKey, id))
		}
		if form.Owner != userID {
			return goerr.Wrap(ErrAccessDenied, "form is owned by another user",
				goerr.V(FormIDKey, id), goerr.V(UserIDKey, userID))
		}
		if err := tx.DeleteForm(ctx, id); err != nil {
			return goerr.Wrap(err, "failed to delete form", goerr.V(FormIDKey, id))
		}
		return nil
	})
}

// GetForm returns a form the user owns or was granted
func (uc *FormUseCase) GetForm(ctx context.Context, userID types.UserID, id types.FormID) (*model.Form, error) {
	return usableForm(ctx, uc.repo, userID, id)
}

// ListForms returns forms owned by the user followed by granted forms
func (uc *FormUseCase) ListForms(ctx context.Context, userID types.UserID) ([]*model.Form, error) {
	owned, err := uc.repo.Form().ListByOwner(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list forms", goerr.V(UserIDKey, userID))
	}
	granted, err := uc.repo.Access().ListForms(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list granted forms", goerr.V(UserIDKey, userID))
	}

	forms := owned
	for _, id := range granted {
		form, err := uc.repo.Form().Get(ctx, id)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				continue
			}
			return nil, goerr.Wrap(err, "failed to get form", goerr.V(FormIDKey, id))
		}
		if form.Owner == userID {
			continue
		}
		forms = append(forms, form)
	}
	return forms, nil
}

// GrantAccess lets grantee evaluate and parse a form owned by ownerID
func (uc *FormUseCase) GrantAccess(ctx context.Context, ownerID types.UserID, formID types.FormID, grantee types.UserID) error {
	if _, err := uc.ownedForm(ctx, ownerID, formID); err != nil {
		return err
	}
	if err := uc.repo.Access().Grant(ctx, grantee, formID); err != nil {
		return goerr.Wrap(err, "failed to grant access",
			goerr.V(FormIDKey, formID), goerr.V(UserIDKey, grantee))
	}
	logging.From(ctx).Info("form access granted", "form_id", formID, "grantee", grantee)
	return nil
}

// RevokeAccess withdraws a grant made with GrantAccess
func (uc *FormUseCase) RevokeAccess(ctx context.Context, ownerID types.UserID, formID types.FormID, grantee types.UserID) error {
	if _, err := uc.ownedForm(ctx, ownerID, formID); err != nil {
		return err
	}
	if err := uc.repo.Access().Revoke(ctx, grantee, formID); err != nil {
		return goerr.Wrap(err, "failed to revoke access",
			goerr.V(FormIDKey, formID), goerr.V(UserIDKey, grantee))
	}
	return nil
}

func (uc *FormUseCase) ownedForm(ctx context.Context, ownerID types.UserID, formID types.FormID) (*model.Form, error) {
	form, err := uc.repo.Form().Get(ctx, formID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrFormNotFound, "form not found", goerr.V(FormIDKey, formID))
		}
		return nil, goerr.Wrap(err, "failed to get form", goerr.V(FormIDKey, formID))
	}
	if form.Owner != ownerID {
		return nil, goerr.Wrap(ErrAccessDenied, "form is owned by another user",
			goerr.V(FormIDKey, formID), goerr.V(UserIDKey, ownerID))
	}
	return form, nil
}
