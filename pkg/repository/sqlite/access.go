package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

type accessRepository struct {
	db *sql.DB
}

func (r *accessRepository) Grant(ctx context.Context, userID types.UserID, formID types.FormID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_grants (user_id, form_id) VALUES (?, ?)
		ON CONFLICT(user_id, form_id) DO NOTHING`, string(userID), string(formID))
	if err != nil {
		return goerr.Wrap(err, "failed to grant access", goerr.V("user_id", userID), goerr.V("form_id", formID))
	}
	return nil
}

func (r *accessRepository) Revoke(ctx context.Context, userID types.UserID, formID types.FormID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM access_grants WHERE user_id = ? AND form_id = ?`, string(userID), string(formID))
	if err != nil {
		return goerr.Wrap(err, "failed to revoke access", goerr.V("user_id", userID), goerr.V("form_id", formID))
	}
	return nil
}

func (r *accessRepository) HasAccess(ctx context.Context, userID types.UserID, formID types.FormID) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM access_grants WHERE user_id = ? AND form_id = ?`,
		string(userID), string(formID)).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to check access", goerr.V("user_id", userID), goerr.V("form_id", formID))
	}
	return true, nil
}

func (r *accessRepository) ListForms(ctx context.Context, userID types.UserID) ([]types.FormID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT form_id FROM access_grants WHERE user_id = ? ORDER BY form_id`, string(userID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list granted forms", goerr.V("user_id", userID))
	}
	defer rows.Close()

	result := []types.FormID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, goerr.Wrap(err, "failed to scan granted form", goerr.V("user_id", userID))
		}
		result = append(result, types.FormID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate granted forms", goerr.V("user_id", userID))
	}
	return result, nil
}
