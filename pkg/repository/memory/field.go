package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

type fieldRepository struct {
	graph *graphStore
}

func (r *fieldRepository) Get(ctx context.Context, id types.FieldID) (*model.Field, error) {
	r.graph.mu.RLock()
	defer r.graph.mu.RUnlock()

	f, exists := r.graph.fields[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "field not found", goerr.V("id", id))
	}
	return f.Clone(), nil
}

func (r *fieldRepository) GetByFullTitle(ctx context.Context, fullTitle types.FullTitle) (*model.Field, error) {
	r.graph.mu.RLock()
	defer r.graph.mu.RUnlock()

	for _, f := range r.graph.fields {
		if f.FullTitle == fullTitle {
			return f.Clone(), nil
		}
	}
	return nil, goerr.Wrap(ErrNotFound, "field not found", goerr.V("full_title", fullTitle))
}

func (r *fieldRepository) ListByOwner(ctx context.Context, owner types.UserID) ([]*model.Field, error) {
	r.graph.mu.RLock()
	defer r.graph.mu.RUnlock()

	result := []*model.Field{}
	for _, f := range r.graph.fields {
		if f.Owner == owner {
			result = append(result, f.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullTitle < result[j].FullTitle
	})
	return result, nil
}

type formRepository struct {
	graph *graphStore
}

func (r *formRepository) Get(ctx context.Context, id types.FormID) (*model.Form, error) {
	r.graph.mu.RLock()
	defer r.graph.mu.RUnlock()

	f, exists := r.graph.forms[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "form not found", goerr.V("id", id))
	}
	return f.Clone(), nil
}

func (r *formRepository) ListByOwner(ctx context.Context, owner types.UserID) ([]*model.Form, error) {
	r.graph.mu.RLock()
	defer r.graph.mu.RUnlock()

	result := []*model.Form{}
	for _, f := range r.graph.forms {
		if f.Owner == owner {
			result = append(result, f.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullTitle < result[j].FullTitle
	})
	return result, nil
}

type dependencyRepository struct {
	graph *graphStore
}

func (r *dependencyRepository) Get(ctx context.Context, id types.DependencyID) (*model.SelectDependency, error) {
	r.graph.mu.RLock()
	defer r.graph.mu.RUnlock()

	d, exists := r.graph.dependencies[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "select dependency not found", goerr.V("id", id))
	}
	return d.Clone(), nil
}

func (r *dependencyRepository) GetMany(ctx context.Context, ids []types.DependencyID) ([]*model.SelectDependency, error) {
	r.graph.mu.RLock()
	defer r.graph.mu.RUnlock()

	result := make([]*model.SelectDependency, 0, len(ids))
	for _, id := range ids {
		if d, exists := r.graph.dependencies[id]; exists {
			result = append(result, d.Clone())
		}
	}
	return result, nil
}
