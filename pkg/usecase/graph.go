package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// fieldSource resolves a full title to a stored field. Unknown type codes and
// missing fields both yield model.ErrReferenceNotFound.
type fieldSource interface {
	resolve(ctx context.Context, ft types.FullTitle) (*model.Field, error)
}

// definitionGraph is a snapshot of every field, form and dependency loaded
// inside a transaction. Save operations validate and rewrite against it.
type definitionGraph struct {
	fields       map[types.FullTitle]*model.Field
	fieldsByID   map[types.FieldID]*model.Field
	forms        map[types.FormID]*model.Form
	dependencies map[types.DependencyID]*model.SelectDependency
}

func loadGraph(ctx context.Context, tx interfaces.Transaction) (*definitionGraph, error) {
	fields, err := tx.ListFields(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list fields")
	}
	forms, err := tx.ListForms(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list forms")
	}
	deps, err := tx.ListDependencies(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list select dependencies")
	}

	g := &definitionGraph{
		fields:       make(map[types.FullTitle]*model.Field, len(fields)),
		fieldsByID:   make(map[types.FieldID]*model.Field, len(fields)),
		forms:        make(map[types.FormID]*model.Form, len(forms)),
		dependencies: make(map[types.DependencyID]*model.SelectDependency, len(deps)),
	}
	for _, f := range fields {
		g.putField(f)
	}
	for _, f := range forms {
		g.forms[f.ID] = f
	}
	for _, d := range deps {
		g.dependencies[d.ID] = d
	}
	return g, nil
}

func (g *definitionGraph) resolve(ctx context.Context, ft types.FullTitle) (*model.Field, error) {
	if _, ok := ft.Kind(); !ok {
		return nil, goerr.Wrap(model.ErrReferenceNotFound, "unknown field type code", goerr.V(model.FullTitleKey, ft))
	}
	f, ok := g.fields[ft]
	if !ok {
		return nil, goerr.Wrap(model.ErrReferenceNotFound, "field not found", goerr.V(model.FullTitleKey, ft))
	}
	return f, nil
}

// putField replaces the field with the same ID, dropping its previous full title
func (g *definitionGraph) putField(f *model.Field) {
	if prev, ok := g.fieldsByID[f.ID]; ok {
		delete(g.fields, prev.FullTitle)
	}
	g.fields[f.FullTitle] = f
	g.fieldsByID[f.ID] = f
}

func (g *definitionGraph) removeField(id types.FieldID) {
	if prev, ok := g.fieldsByID[id]; ok {
		delete(g.fields, prev.FullTitle)
		delete(g.fieldsByID, id)
	}
}

// sortedFields returns fields ordered by full title for deterministic reports
func (g *definitionGraph) sortedFields() []*model.Field {
	out := make([]*model.Field, 0, len(g.fields))
	for _, f := range g.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullTitle < out[j].FullTitle })
	return out
}

func (g *definitionGraph) sortedForms() []*model.Form {
	out := make([]*model.Form, 0, len(g.forms))
	for _, f := range g.forms {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullTitle < out[j].FullTitle })
	return out
}

func (g *definitionGraph) sortedDependencies() []*model.SelectDependency {
	out := make([]*model.SelectDependency, 0, len(g.dependencies))
	for _, d := range g.dependencies {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullTitle < out[j].FullTitle })
	return out
}

// registry resolves fields from the repository and caches them for the
// lifetime of one evaluation run.
type registry struct {
	repo  interfaces.Repository
	mu    sync.Mutex
	cache map[types.FullTitle]*model.Field
}

func newRegistry(repo interfaces.Repository) *registry {
	return &registry{
		repo:  repo,
		cache: make(map[types.FullTitle]*model.Field),
	}
}

func (r *registry) resolve(ctx context.Context, ft types.FullTitle) (*model.Field, error) {
	if _, ok := ft.Kind(); !ok {
		return nil, goerr.Wrap(model.ErrReferenceNotFound, "unknown field type code", goerr.V(model.FullTitleKey, ft))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.cache[ft]; ok {
		return f, nil
	}
	f, err := r.repo.Field().GetByFullTitle(ctx, ft)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(model.ErrReferenceNotFound, "field not found", goerr.V(model.FullTitleKey, ft))
		}
		return nil, goerr.Wrap(err, "failed to resolve field", goerr.V(model.FullTitleKey, ft))
	}
	r.cache[ft] = f
	return f, nil
}

// dependents returns ft and every result field that reads it, directly or
// through other result fields.
func (g *definitionGraph) dependents(ft types.FullTitle) map[types.FullTitle]bool {
	found := map[types.FullTitle]bool{ft: true}
	queue := []types.FullTitle{ft}
	for len(queue) > 0 {
		target := queue[0]
		queue = queue[1:]
		for _, f := range g.fields {
			if found[f.FullTitle] || !f.IsResult() {
				continue
			}
			if len(f.ReferencedIn(target)) > 0 {
				found[f.FullTitle] = true
				queue = append(queue, f.FullTitle)
			}
		}
	}
	return found
}

// formDependencies resolves the select dependencies of a form. IDs that do
// not resolve are returned separately.
func (g *definitionGraph) formDependencies(form *model.Form) ([]*model.SelectDependency, []types.DependencyID) {
	var deps []*model.SelectDependency
	var missing []types.DependencyID
	for _, id := range form.SelectDependencies {
		d, ok := g.dependencies[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		deps = append(deps, d)
	}
	return deps, missing
}

// formsUsing returns forms that place ft in their UI, use it as a result or
// use a result field reading it, in full title order.
func (g *definitionGraph) formsUsing(ft types.FullTitle) []*model.Form {
	users := g.dependents(ft)
	var out []*model.Form
	for _, form := range g.sortedForms() {
		if form.UI.Contains(ft) {
			out = append(out, form)
			continue
		}
		for user := range users {
			if form.UsesResultField(user) {
				out = append(out, form)
				break
			}
		}
	}
	return out
}
