package interfaces

import (
	"context"

	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// SubmissionRepository stores raw submissions and their computed results
type SubmissionRepository interface {
	// PutRaw stores raw if no submission with the same hashcode exists and
	// returns the stored record. created is false when an existing record was
	// returned. Concurrent calls with one hashcode store exactly one record.
	PutRaw(ctx context.Context, raw *model.RawSubmission) (stored *model.RawSubmission, created bool, err error)

	// GetRaw retrieves a raw submission by hashcode
	GetRaw(ctx context.Context, hashcode types.Hashcode) (*model.RawSubmission, error)

	// PutResult creates or replaces the computed result of a submission
	PutResult(ctx context.Context, result *model.ComputedResult) error

	// GetResult retrieves the computed result of a submission
	GetResult(ctx context.Context, hashcode types.Hashcode) (*model.ComputedResult, error)

	// ListResults retrieves results of a user, newest first. limit <= 0 means no limit.
	ListResults(ctx context.Context, userID types.UserID, limit int) ([]*model.ComputedResult, error)
}

// AccessRepository records which forms a user may use besides the ones they own
type AccessRepository interface {
	Grant(ctx context.Context, userID types.UserID, formID types.FormID) error
	Revoke(ctx context.Context, userID types.UserID, formID types.FormID) error
	HasAccess(ctx context.Context, userID types.UserID, formID types.FormID) (bool, error)
	ListForms(ctx context.Context, userID types.UserID) ([]types.FormID, error)
}
