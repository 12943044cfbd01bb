package interfaces

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// Every backend returns errors wrapping these so that callers can classify
// failures without knowing the backend.
var (
	ErrNotFound = goerr.New("not found")
	ErrConflict = goerr.New("conflict")
)

// Repository defines the interface for data persistence
type Repository interface {
	Field() FieldRepository
	Form() FormRepository
	Dependency() DependencyRepository
	Submission() SubmissionRepository
	Access() AccessRepository

	// RunInTransaction runs fn atomically against fields, forms and select
	// dependencies. Writers are serialized, so a transaction that read the
	// graph never commits on top of a concurrent change to it. Readers never
	// observe a partially applied transaction. fn may be retried by backends
	// with optimistic concurrency and must not have side effects besides tx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error

	Close() error
}

// Transaction is the read-then-write view of the definition graph used by
// every save, rename and delete. All reads must be issued before the first write.
type Transaction interface {
	// ListFields returns every field of every owner
	ListFields(ctx context.Context) ([]*model.Field, error)
	// ListForms returns every form of every owner
	ListForms(ctx context.Context) ([]*model.Form, error)
	// ListDependencies returns every select dependency of every owner
	ListDependencies(ctx context.Context) ([]*model.SelectDependency, error)

	PutField(ctx context.Context, f *model.Field) error
	DeleteField(ctx context.Context, id types.FieldID) error
	PutForm(ctx context.Context, f *model.Form) error
	DeleteForm(ctx context.Context, id types.FormID) error
	PutDependency(ctx context.Context, d *model.SelectDependency) error
	DeleteDependency(ctx context.Context, id types.DependencyID) error
}
