package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

type submissionRepository struct {
	db *sql.DB
}

func (r *submissionRepository) PutRaw(ctx context.Context, raw *model.RawSubmission) (*model.RawSubmission, bool, error) {
	data, err := encode(raw)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to encode raw submission", goerr.V("hashcode", raw.Hashcode))
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO raw_submissions (hashcode, user_id, data) VALUES (?, ?, ?)
		ON CONFLICT(hashcode) DO NOTHING`,
		string(raw.Hashcode), string(raw.UserID), data)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to put raw submission", goerr.V("hashcode", raw.Hashcode))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to get affected rows", goerr.V("hashcode", raw.Hashcode))
	}

	stored, err := r.GetRaw(ctx, raw.Hashcode)
	if err != nil {
		return nil, false, err
	}
	return stored, n > 0, nil
}

func (r *submissionRepository) GetRaw(ctx context.Context, hashcode types.Hashcode) (*model.RawSubmission, error) {
	raw, err := getDocument[model.RawSubmission](ctx, r.db, `SELECT data FROM raw_submissions WHERE hashcode = ?`, string(hashcode))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "raw submission not found", goerr.V("hashcode", hashcode))
		}
		return nil, goerr.Wrap(err, "failed to get raw submission", goerr.V("hashcode", hashcode))
	}
	return raw, nil
}

func (r *submissionRepository) PutResult(ctx context.Context, result *model.ComputedResult) error {
	data, err := encode(result)
	if err != nil {
		return goerr.Wrap(err, "failed to encode computed result", goerr.V("hashcode", result.Hashcode))
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO computed_results (hashcode, user_id, updated_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(hashcode) DO UPDATE SET user_id = excluded.user_id, updated_at = excluded.updated_at, data = excluded.data`,
		string(result.Hashcode), string(result.UserID), result.UpdatedAt.UnixNano(), data)
	if err != nil {
		return goerr.Wrap(err, "failed to put computed result", goerr.V("hashcode", result.Hashcode))
	}
	return nil
}

func (r *submissionRepository) GetResult(ctx context.Context, hashcode types.Hashcode) (*model.ComputedResult, error) {
	result, err := getDocument[model.ComputedResult](ctx, r.db, `SELECT data FROM computed_results WHERE hashcode = ?`, string(hashcode))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "computed result not found", goerr.V("hashcode", hashcode))
		}
		return nil, goerr.Wrap(err, "failed to get computed result", goerr.V("hashcode", hashcode))
	}
	return result, nil
}

func (r *submissionRepository) ListResults(ctx context.Context, userID types.UserID, limit int) ([]*model.ComputedResult, error) {
	if limit <= 0 {
		limit = -1
	}
	results, err := listDocuments[model.ComputedResult](ctx, r.db, `
		SELECT data FROM computed_results WHERE user_id = ?
		ORDER BY updated_at DESC, hashcode LIMIT ?`, string(userID), limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list computed results", goerr.V("user_id", userID))
	}
	return results, nil
}
