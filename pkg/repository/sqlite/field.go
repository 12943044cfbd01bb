package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

type fieldRepository struct {
	db *sql.DB
}

func (r *fieldRepository) Get(ctx context.Context, id types.FieldID) (*model.Field, error) {
	f, err := getDocument[model.Field](ctx, r.db, `SELECT data FROM fields WHERE id = ?`, string(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "field not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get field", goerr.V("id", id))
	}
	return f, nil
}

func (r *fieldRepository) GetByFullTitle(ctx context.Context, fullTitle types.FullTitle) (*model.Field, error) {
	f, err := getDocument[model.Field](ctx, r.db, `SELECT data FROM fields WHERE full_title = ?`, string(fullTitle))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "field not found", goerr.V("full_title", fullTitle))
		}
		return nil, goerr.Wrap(err, "failed to get field", goerr.V("full_title", fullTitle))
	}
	return f, nil
}

func (r *fieldRepository) ListByOwner(ctx context.Context, owner types.UserID) ([]*model.Field, error) {
	fields, err := listDocuments[model.Field](ctx, r.db,
		`SELECT data FROM fields WHERE owner = ? ORDER BY full_title`, string(owner))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list fields", goerr.V("owner", owner))
	}
	return fields, nil
}

type formRepository struct {
	db *sql.DB
}

func (r *formRepository) Get(ctx context.Context, id types.FormID) (*model.Form, error) {
	f, err := getDocument[model.Form](ctx, r.db, `SELECT data FROM forms WHERE id = ?`, string(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "form not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get form", goerr.V("id", id))
	}
	return f, nil
}

func (r *formRepository) ListByOwner(ctx context.Context, owner types.UserID) ([]*model.Form, error) {
	forms, err := listDocuments[model.Form](ctx, r.db,
		`SELECT data FROM forms WHERE owner = ? ORDER BY full_title`, string(owner))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list forms", goerr.V("owner", owner))
	}
	return forms, nil
}

type dependencyRepository struct {
	db *sql.DB
}

func (r *dependencyRepository) Get(ctx context.Context, id types.DependencyID) (*model.SelectDependency, error) {
	d, err := getDocument[model.SelectDependency](ctx, r.db, `SELECT data FROM select_dependencies WHERE id = ?`, string(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "select dependency not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get select dependency", goerr.V("id", id))
	}
	return d, nil
}

func (r *dependencyRepository) GetMany(ctx context.Context, ids []types.DependencyID) ([]*model.SelectDependency, error) {
	result := make([]*model.SelectDependency, 0, len(ids))
	for _, id := range ids {
		d, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}
