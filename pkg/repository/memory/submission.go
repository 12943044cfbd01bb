package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

type submissionRepository struct {
	mu      sync.RWMutex
	raws    map[types.Hashcode]*model.RawSubmission
	results map[types.Hashcode]*model.ComputedResult
}

func newSubmissionRepository() *submissionRepository {
	return &submissionRepository{
		raws:    make(map[types.Hashcode]*model.RawSubmission),
		results: make(map[types.Hashcode]*model.ComputedResult),
	}
}

func (r *submissionRepository) PutRaw(ctx context.Context, raw *model.RawSubmission) (*model.RawSubmission, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.raws[raw.Hashcode]; ok {
		return existing.Clone(), false, nil
	}
	stored := raw.Clone()
	r.raws[raw.Hashcode] = stored
	return stored.Clone(), true, nil
}

func (r *submissionRepository) GetRaw(ctx context.Context, hashcode types.Hashcode) (*model.RawSubmission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	raw, ok := r.raws[hashcode]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "raw submission not found", goerr.V("hashcode", hashcode))
	}
	return raw.Clone(), nil
}

func (r *submissionRepository) PutResult(ctx context.Context, result *model.ComputedResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results[result.Hashcode] = result.Clone()
	return nil
}

func (r *submissionRepository) GetResult(ctx context.Context, hashcode types.Hashcode) (*model.ComputedResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result, ok := r.results[hashcode]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "computed result not found", goerr.V("hashcode", hashcode))
	}
	return result.Clone(), nil
}

func (r *submissionRepository) ListResults(ctx context.Context, userID types.UserID, limit int) ([]*model.ComputedResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*model.ComputedResult{}
	for _, res := range r.results {
		if res.UserID == userID {
			result = append(result, res.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].Hashcode < result[j].Hashcode
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
