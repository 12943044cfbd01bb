package interfaces

import (
	"context"

	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// FieldRepository defines read access to fields. Writes go through Transaction.
type FieldRepository interface {
	// Get retrieves a field by ID
	Get(ctx context.Context, id types.FieldID) (*model.Field, error)

	// GetByFullTitle retrieves a field by its globally unique full title
	GetByFullTitle(ctx context.Context, fullTitle types.FullTitle) (*model.Field, error)

	// ListByOwner retrieves fields owned by a user ordered by full title
	ListByOwner(ctx context.Context, owner types.UserID) ([]*model.Field, error)
}

// FormRepository defines read access to forms
type FormRepository interface {
	Get(ctx context.Context, id types.FormID) (*model.Form, error)
	ListByOwner(ctx context.Context, owner types.UserID) ([]*model.Form, error)
}

// DependencyRepository defines read access to select dependencies
type DependencyRepository interface {
	Get(ctx context.Context, id types.DependencyID) (*model.SelectDependency, error)
	// GetMany retrieves dependencies in the order of ids. Missing IDs are skipped.
	GetMany(ctx context.Context, ids []types.DependencyID) ([]*model.SelectDependency, error)
}
