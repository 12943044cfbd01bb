package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

type accessRepository struct {
	mu     sync.RWMutex
	grants map[types.UserID]map[types.FormID]struct{}
}

func newAccessRepository() *accessRepository {
	return &accessRepository{
		grants: make(map[types.UserID]map[types.FormID]struct{}),
	}
}

func (r *accessRepository) Grant(ctx context.Context, userID types.UserID, formID types.FormID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.grants[userID]; !ok {
		r.grants[userID] = make(map[types.FormID]struct{})
	}
	r.grants[userID][formID] = struct{}{}
	return nil
}

func (r *accessRepository) Revoke(ctx context.Context, userID types.UserID, formID types.FormID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.grants[userID], formID)
	return nil
}

func (r *accessRepository) HasAccess(ctx context.Context, userID types.UserID, formID types.FormID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.grants[userID][formID]
	return ok, nil
}

func (r *accessRepository) ListForms(ctx context.Context, userID types.UserID) ([]types.FormID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]types.FormID, 0, len(r.grants[userID]))
	for id := range r.grants[userID] {
		result = append(result, id)
	}
	slices.Sort(result)
	return result, nil
}
