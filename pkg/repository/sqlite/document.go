package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode document")
	}
	return string(raw), nil
}

// getDocument decodes the data column of the single row returned by query
func getDocument[T any](ctx context.Context, q queryer, query string, args ...any) (*T, error) {
	var data string
	if err := q.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, goerr.Wrap(err, "failed to query document")
	}

	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, goerr.Wrap(err, "failed to decode document")
	}
	return &v, nil
}

// listDocuments decodes the data column of every returned row
func listDocuments[T any](ctx context.Context, q queryer, query string, args ...any) ([]*T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query documents")
	}
	defer rows.Close()

	result := []*T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan document")
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document")
		}
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate documents")
	}
	return result, nil
}
