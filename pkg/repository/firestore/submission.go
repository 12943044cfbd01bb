package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type submissionRepository struct {
	client      *firestore.Client
	collections *collections
}

func (r *submissionRepository) PutRaw(ctx context.Context, raw *model.RawSubmission) (*model.RawSubmission, bool, error) {
	ref := r.client.Collection(r.collections.raws()).Doc(string(raw.Hashcode))

	_, err := ref.Create(ctx, newRawSubmissionDoc(raw))
	if err == nil {
		return raw.Clone(), true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, false, goerr.Wrap(err, "failed to create raw submission", goerr.V("hashcode", raw.Hashcode))
	}

	stored, err := r.GetRaw(ctx, raw.Hashcode)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *submissionRepository) GetRaw(ctx context.Context, hashcode types.Hashcode) (*model.RawSubmission, error) {
	doc, err := getDoc[rawSubmissionDoc](ctx, r.client.Collection(r.collections.raws()).Doc(string(hashcode)))
	if err != nil {
		if err == ErrNotFound {
			return nil, goerr.Wrap(ErrNotFound, "raw submission not found", goerr.V("hashcode", hashcode))
		}
		return nil, goerr.Wrap(err, "failed to get raw submission", goerr.V("hashcode", hashcode))
	}
	return doc.toModel(), nil
}

func (r *submissionRepository) PutResult(ctx context.Context, result *model.ComputedResult) error {
	ref := r.client.Collection(r.collections.results()).Doc(string(result.Hashcode))
	if _, err := ref.Set(ctx, newComputedResultDoc(result)); err != nil {
		return goerr.Wrap(err, "failed to put computed result", goerr.V("hashcode", result.Hashcode))
	}
	return nil
}

func (r *submissionRepository) GetResult(ctx context.Context, hashcode types.Hashcode) (*model.ComputedResult, error) {
	doc, err := getDoc[computedResultDoc](ctx, r.client.Collection(r.collections.results()).Doc(string(hashcode)))
	if err != nil {
		if err == ErrNotFound {
			return nil, goerr.Wrap(ErrNotFound, "computed result not found", goerr.V("hashcode", hashcode))
		}
		return nil, goerr.Wrap(err, "failed to get computed result", goerr.V("hashcode", hashcode))
	}
	return doc.toModel(), nil
}

func (r *submissionRepository) ListResults(ctx context.Context, userID types.UserID, limit int) ([]*model.ComputedResult, error) {
	q := r.client.Collection(r.collections.results()).
		Where("user_id", "==", string(userID)).
		OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	results, err := queryDocs(ctx, q, (*computedResultDoc).toModel)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list computed results", goerr.V("user_id", userID))
	}
	return results, nil
}
