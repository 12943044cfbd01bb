package sqlite

import (
	"context"
	"database/sql"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

type transaction struct {
	tx *sql.Tx
}

var _ interfaces.Transaction = &transaction{}

func (t *transaction) ListFields(ctx context.Context) ([]*model.Field, error) {
	return listDocuments[model.Field](ctx, t.tx, `SELECT data FROM fields`)
}

func (t *transaction) ListForms(ctx context.Context) ([]*model.Form, error) {
	return listDocuments[model.Form](ctx, t.tx, `SELECT data FROM forms`)
}

func (t *transaction) ListDependencies(ctx context.Context) ([]*model.SelectDependency, error) {
	return listDocuments[model.SelectDependency](ctx, t.tx, `SELECT data FROM select_dependencies`)
}

func (t *transaction) PutField(ctx context.Context, f *model.Field) error {
	data, err := encode(f)
	if err != nil {
		return goerr.Wrap(err, "failed to encode field", goerr.V("id", f.ID))
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO fields (id, full_title, owner, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_title = excluded.full_title, owner = excluded.owner, data = excluded.data`,
		string(f.ID), string(f.FullTitle), string(f.Owner), data)
	if err != nil {
		return goerr.Wrap(wrapConstraint(err), "failed to put field", goerr.V("id", f.ID), goerr.V("full_title", f.FullTitle))
	}
	return nil
}

func (t *transaction) DeleteField(ctx context.Context, id types.FieldID) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM fields WHERE id = ?`, string(id)); err != nil {
		return goerr.Wrap(err, "failed to delete field", goerr.V("id", id))
	}
	return nil
}

func (t *transaction) PutForm(ctx context.Context, f *model.Form) error {
	data, err := encode(f)
	if err != nil {
		return goerr.Wrap(err, "failed to encode form", goerr.V("id", f.ID))
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO forms (id, full_title, owner, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_title = excluded.full_title, owner = excluded.owner, data = excluded.data`,
		string(f.ID), string(f.FullTitle), string(f.Owner), data)
	if err != nil {
		return goerr.Wrap(err, "failed to put form", goerr.V("id", f.ID))
	}
	return nil
}

func (t *transaction) DeleteForm(ctx context.Context, id types.FormID) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM forms WHERE id = ?`, string(id)); err != nil {
		return goerr.Wrap(err, "failed to delete form", goerr.V("id", id))
	}
	return nil
}

func (t *transaction) PutDependency(ctx context.Context, d *model.SelectDependency) error {
	data, err := encode(d)
	if err != nil {
		return goerr.Wrap(err, "failed to encode select dependency", goerr.V("id", d.ID))
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO select_dependencies (id, owner, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, data = excluded.data`,
		string(d.ID), string(d.Owner), data)
	if err != nil {
		return goerr.Wrap(err, "failed to put select dependency", goerr.V("id", d.ID))
	}
	return nil
}

func (t *transaction) DeleteDependency(ctx context.Context, id types.DependencyID) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM select_dependencies WHERE id = ?`, string(id)); err != nil {
		return goerr.Wrap(err, "failed to delete select dependency", goerr.V("id", id))
	}
	return nil
}
