package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
)

// FormIssue is a form whose UI no longer holds every field its results need
type FormIssue struct {
	FormID    types.FormID           `json:"form_id"`
	FullTitle types.FullTitle        `json:"full_title"`
	Errors    model.ValidationErrors `json:"errors"`
}

// RenameReport lists definitions rewritten by a full title change. Broken
// forms are advisory: the rename is saved anyway.
type RenameReport struct {
	From         types.FullTitle   `json:"from"`
	To           types.FullTitle   `json:"to"`
	Fields       []types.FullTitle `json:"fields,omitempty"`
	Forms        []types.FullTitle `json:"forms,omitempty"`
	Dependencies []types.FullTitle `json:"dependencies,omitempty"`
	BrokenForms  []FormIssue       `json:"broken_forms,omitempty"`
}

// FieldSaveResult is returned by CreateField, UpdateField and RenameField
type FieldSaveResult struct {
	Field *model.Field `json:"field"`
	// Rename is nil unless the full title changed
	Rename *RenameReport `json:"rename,omitempty"`
	// PrunedDependencies lost labels removed from the saved select field
	PrunedDependencies []types.FullTitle `json:"pruned_dependencies,omitempty"`
}

type FieldUseCase struct {
	repo interfaces.Repository
	now  func() time.Time
}

func NewFieldUseCase(repo interfaces.Repository) *FieldUseCase {
	return &FieldUseCase{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// fieldPlan is the set of writes a field save commits
type fieldPlan struct {
	field  *model.Field
	fields []*model.Field
	forms  []*model.Form
	deps   []*model.SelectDependency
	result *FieldSaveResult
}

func (p *fieldPlan) commit(ctx context.Context, tx interfaces.Transaction) error {
	if err := tx.PutField(ctx, p.field); err != nil {
		return goerr.Wrap(err, "failed to put field", goerr.V(FieldIDKey, p.field.ID))
	}
	for _, f := range p.fields {
		if err := tx.PutField(ctx, f); err != nil {
			return goerr.Wrap(err, "failed to put rewritten field", goerr.V(FieldIDKey, f.ID))
		}
	}
	for _, f := range p.forms {
		if err := tx.PutForm(ctx, f); err != nil {
			return goerr.Wrap(err, "failed to put rewritten form", goerr.V(FormIDKey, f.ID))
		}
	}
	for _, d := range p.deps {
		if err := tx.PutDependency(ctx, d); err != nil {
			return goerr.Wrap(err, "failed to put select dependency", goerr.V(DependencyIDKey, d.ID))
		}
	}
	return nil
}

// planFieldSave validates input against the graph and computes the cascade.
// Validation problems are returned as ValidationErrors, anything else as error.
func (uc *FieldUseCase) planFieldSave(ctx context.Context, g *definitionGraph, userID types.UserID, input *model.Field, create bool) (*fieldPlan, model.ValidationErrors, error) {
	f := input.Clone()
	var errs model.ValidationErrors
	now := uc.now()

	var prev *model.Field
	if create {
		if f.ID == "" {
			f.ID = types.NewFieldID()
		}
		if _, exists := g.fieldsByID[f.ID]; exists {
			return nil, nil, goerr.Wrap(interfaces.ErrConflict, "field ID already used", goerr.V(FieldIDKey, f.ID))
		}
		f.Owner = userID
		f.Version = 1
		f.CreatedAt = now
	} else {
		prev = g.fieldsByID[f.ID]
		if prev == nil {
			return nil, nil, goerr.Wrap(ErrFieldNotFound, "field not found", goerr.V(FieldIDKey, f.ID))
		}
		if prev.Owner != userID {
			return nil, nil, goerr.Wrap(ErrAccessDenied, "field is owned by another user",
				goerr.V(FieldIDKey, f.ID), goerr.V(UserIDKey, userID))
		}
		if f.Version != 0 && f.Version != prev.Version {
			return nil, nil, goerr.Wrap(ErrVersionConflict, "field was modified",
				goerr.V(FieldIDKey, f.ID), goerr.V("expected", f.Version), goerr.V("actual", prev.Version))
		}
		if f.Kind != prev.Kind {
			errs.Add("kind", model.ErrKindChange, "field kind cannot be changed after creation")
		}
		if f.Owner != "" && f.Owner != prev.Owner {
			errs.Add("owner", model.ErrOwnerChange, "owner cannot be changed, create a new field for the other user")
		}
		f.Owner = prev.Owner
		f.Kind = prev.Kind
		f.Version = prev.Version + 1
		f.CreatedAt = prev.CreatedAt
	}
	f.UpdatedAt = now

	f.Normalize()
	errs.Merge(f.Validate())
	if other, ok := g.fields[f.FullTitle]; ok && other.ID != f.ID {
		errs.Add("title", model.ErrDuplicateTitle, "field already exists: "+f.FullTitle.Ref())
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}

	plan := &fieldPlan{field: f, result: &FieldSaveResult{Field: f}}
	g.putField(f)

	if prev != nil && prev.FullTitle != f.FullTitle {
		plan.result.Rename = uc.cascadeRename(g, plan, prev.FullTitle, f.FullTitle, now)
	}

	v := newValidator(g)
	refErrs, err := v.checkReferences(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	errs.Merge(refErrs)
	cycleErrs, err := v.checkCycle(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	errs.Merge(cycleErrs)
	if len(errs) > 0 {
		return nil, errs, nil
	}

	if f.IsResult() {
		// Forms already using this result field must still provide every input
		for _, form := range g.formsUsing(f.FullTitle) {
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
	}

	if rename := plan.result.Rename; rename != nil {
		for _, form := range g.formsUsing(f.FullTitle) {
			deps, _ := g.formDependencies(form)
			formErrs, err := v.checkAvailability(ctx, form, deps)
			if err != nil {
				return nil, nil, err
			}
			if len(formErrs) > 0 {
				rename.BrokenForms = append(rename.BrokenForms, FormIssue{
					FormID:    form.ID,
					FullTitle: form.FullTitle,
					Errors:    formErrs,
				})
			}
		}
	}

	if f.Kind == types.FieldKindSelect && prev != nil {
		labels := f.ChoiceLabels()
		for _, d := range g.sortedDependencies() {
			if d.Child != f.FullTitle {
				continue
			}
			pruned := d.Clone()
			if !pruned.PruneLabels(labels) {
				continue
			}
			pruned.Version++
			pruned.UpdatedAt = now
			g.dependencies[pruned.ID] = pruned
			plan.setDependency(pruned)
			plan.result.PrunedDependencies = append(plan.result.PrunedDependencies, pruned.FullTitle)
		}
	}

	return plan, nil, nil
}

// setDependency records d, replacing an earlier write of the same dependency
func (p *fieldPlan) setDependency(d *model.SelectDependency) {
	for i, existing := range p.deps {
		if existing.ID == d.ID {
			p.deps[i] = d
			return
		}
	}
	p.deps = append(p.deps, d)
}

// cascadeRename rewrites every field, form and dependency referring to from
func (uc *FieldUseCase) cascadeRename(g *definitionGraph, plan *fieldPlan, from, to types.FullTitle, now time.Time) *RenameReport {
	report := &RenameReport{From: from, To: to}

	for _, other := range g.sortedFields() {
		if other.ID == plan.field.ID {
			continue
		}
		rewritten, changed := other.RewriteReferences(from, to)
		if !changed {
			continue
		}
		rewritten.Version++
		rewritten.UpdatedAt = now
		g.putField(rewritten)
		plan.fields = append(plan.fields, rewritten)
		report.Fields = append(report.Fields, rewritten.FullTitle)
	}

	for _, form := range g.sortedForms() {
		rewritten, changed := form.RewriteReferences(from, to)
		if !changed {
			continue
		}
		rewritten.Version++
		rewritten.UpdatedAt = now
		g.forms[rewritten.ID] = rewritten
		plan.forms = append(plan.forms, rewritten)
		report.Forms = append(report.Forms, rewritten.FullTitle)
	}

	for _, d := range g.sortedDependencies() {
		rewritten, changed := d.RewriteReferences(from, to)
		if !changed {
			continue
		}
		rewritten.Version++
		rewritten.UpdatedAt = now
		g.dependencies[rewritten.ID] = rewritten
		plan.setDependency(rewritten)
		report.Dependencies = append(report.Dependencies, rewritten.FullTitle)
	}

	return report
}

// ValidateField runs every save check without writing. The field is
// validated as a new one when its ID is empty or unknown.
func (uc *FieldUseCase) ValidateField(ctx context.Context, userID types.UserID, field *model.Field) (model.ValidationErrors, error) {
	var errs model.ValidationErrors
	err := uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		_, exists := g.fieldsByID[field.ID]
		_, errs, err = uc.planFieldSave(ctx, g, userID, field, field.ID == "" || !exists)
		return err
	})
	if err != nil {
		return nil, err
	}
	return errs, nil
}

// CreateField stores a new field owned by userID
func (uc *FieldUseCase) CreateField(ctx context.Context, userID types.UserID, field *model.Field) (*FieldSaveResult, error) {
	return uc.save(ctx, userID, field, true)
}

// UpdateField replaces a field owned by userID. A changed title is cascaded
// to every definition referring to the field.
func (uc *FieldUseCase) UpdateField(ctx context.Context, userID types.UserID, field *model.Field) (*FieldSaveResult, error) {
	return uc.save(ctx, userID, field, false)
}

func (uc *FieldUseCase) save(ctx context.Context, userID types.UserID, field *model.Field, create bool) (*FieldSaveResult, error) {
	var result *FieldSaveResult
	err := uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		plan, errs, err := uc.planFieldSave(ctx, g, userID, field, create)
		if err != nil {
			return err
		}
		if len(errs) > 0 {
			return wrapValidation(errs, "invalid field",
				goerr.V(FieldIDKey, field.ID), goerr.V(UserIDKey, userID))
		}
		if err := plan.commit(ctx, tx); err != nil {
			return err
		}
		result = plan.result
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := logging.From(ctx)
	logger.Info("field saved",
		"field_id", result.Field.ID,
		"full_title", result.Field.FullTitle,
		"version", result.Field.Version,
	)
	if result.Rename != nil {
		logger.Info("field renamed",
			"from", result.Rename.From,
			"to", result.Rename.To,
			"fields", len(result.Rename.Fields),
			"forms", len(result.Rename.Forms),
			"dependencies", len(result.Rename.Dependencies),
			"broken_forms", len(result.Rename.BrokenForms),
		)
	}
	return result, nil
}

// RenameField changes the title part of a full title. Kind code and owner
// suffix of to must match the field.
func (uc *FieldUseCase) RenameField(ctx context.Context, userID types.UserID, from, to types.FullTitle) (*FieldSaveResult, error) {
	field, err := uc.repo.Field().GetByFullTitle(ctx, from)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrFieldNotFound, "field not found", goerr.V(FullTitleKey, from))
		}
		return nil, goerr.Wrap(err, "failed to get field", goerr.V(FullTitleKey, from))
	}

	prefix := string(field.Kind) + "-"
	suffix := "-" + string(field.Owner)
	raw := string(to)
	if !strings.HasPrefix(raw, prefix) || !strings.HasSuffix(raw, suffix) || len(raw) <= len(prefix)+len(suffix) {
		var errs model.ValidationErrors
		errs.Add("full_title", model.ErrInvalidTitle,
			"new full title must look like "+prefix+"{title}"+suffix+": "+raw)
		return nil, wrapValidation(errs, "invalid rename", goerr.V(FullTitleKey, from))
	}

	renamed := field.Clone()
	renamed.Title = raw[len(prefix) : len(raw)-len(suffix)]
	return uc.UpdateField(ctx, userID, renamed)
}

// DeleteField removes a field nothing refers to
func (uc *FieldUseCase) DeleteField(ctx context.Context, userID types.UserID, id types.FieldID) error {
	return uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		f := g.fieldsByID[id]
		if f == nil {
			return goerr.Wrap(ErrFieldNotFound, "field not found", goerr.V(FieldIDKey, id))
		}
		if f.Owner != userID {
			return goerr.Wrap(ErrAccessDenied, "field is owned by another user",
				goerr.V(FieldIDKey, id), goerr.V(UserIDKey, userID))
		}

		if usedIn := g.usages(f); len(usedIn) > 0 {
			return goerr.Wrap(model.ErrDeletionBlocked, "field is still referenced",
				goerr.V(FieldIDKey, id),
				goerr.V(FullTitleKey, f.FullTitle),
				goerr.V(UsedInKey, usedIn))
		}

		if err := tx.DeleteField(ctx, id); err != nil {
			return goerr.Wrap(err, "failed to delete field", goerr.V(FieldIDKey, id))
		}
		return nil
	})
}

// usages describes every place referring to f as "kind full_title (input)"
func (g *definitionGraph) usages(f *model.Field) []string {
	var out []string
	for _, other := range g.sortedFields() {
		if other.ID == f.ID {
			continue
		}
		for _, where := range other.ReferencedIn(f.FullTitle) {
			out = append(out, "field "+string(other.FullTitle)+" ("+where+")")
		}
	}
	for _, form := range g.sortedForms() {
		for _, where := range form.ReferencedIn(f.FullTitle) {
			out = append(out, "form "+string(form.FullTitle)+" ("+where+")")
		}
	}
	for _, d := range g.sortedDependencies() {
		if d.Parent == f.FullTitle {
			out = append(out, "select dependency "+string(d.FullTitle)+" (parent)")
		}
		if d.Child == f.FullTitle {
			out = append(out, "select dependency "+string(d.FullTitle)+" (child)")
		}
	}
	return out
}

func (uc *FieldUseCase) GetField(ctx context.Context, id types.FieldID) (*model.Field, error) {
	f, err := uc.repo.Field().Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrFieldNotFound, "field not found", goerr.V(FieldIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get field", goerr.V(FieldIDKey, id))
	}
	return f, nil
}

// ListFields returns fields owned by owner ordered by full title
func (uc *FieldUseCase) ListFields(ctx context.Context, owner types.UserID) ([]*model.Field, error) {
	fields, err := uc.repo.Field().ListByOwner(ctx, owner)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list fields", goerr.V(UserIDKey, owner))
	}
	return fields, nil
}
