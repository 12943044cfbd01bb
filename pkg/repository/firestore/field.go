package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func getDoc[D any](ctx context.Context, ref *firestore.DocumentRef) (*D, error) {
	docSnap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, goerr.Wrap(err, "failed to get document", goerr.V("path", ref.Path))
	}

	var doc D
	if err := docSnap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode document", goerr.V("path", ref.Path))
	}
	return &doc, nil
}

func queryDocs[D any, M any](ctx context.Context, q firestore.Query, convert func(*D) M) ([]M, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	result := []M{}
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents")
		}

		var doc D
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.V("doc_id", docSnap.Ref.ID))
		}
		result = append(result, convert(&doc))
	}
	return result, nil
}

type fieldRepository struct {
	client      *firestore.Client
	collections *collections
}

func (r *fieldRepository) Get(ctx context.Context, id types.FieldID) (*model.Field, error) {
	doc, err := getDoc[fieldDoc](ctx, r.client.Collection(r.collections.fields()).Doc(string(id)))
	if err != nil {
		if err == ErrNotFound {
			return nil, goerr.Wrap(ErrNotFound, "field not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get field", goerr.V("id", id))
	}
	return doc.toModel(), nil
}

func (r *fieldRepository) GetByFullTitle(ctx context.Context, fullTitle types.FullTitle) (*model.Field, error) {
	q := r.client.Collection(r.collections.fields()).Where("full_title", "==", string(fullTitle)).Limit(1)
	fields, err := queryDocs(ctx, q, (*fieldDoc).toModel)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query field", goerr.V("full_title", fullTitle))
	}
	if len(fields) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "field not found", goerr.V("full_title", fullTitle))
	}
	return fields[0], nil
}

func (r *fieldRepository) ListByOwner(ctx context.Context, owner types.UserID) ([]*model.Field, error) {
	q := r.client.Collection(r.collections.fields()).
		Where("owner", "==", string(owner)).
		OrderBy("full_title", firestore.Asc)
	fields, err := queryDocs(ctx, q, (*fieldDoc).toModel)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list fields", goerr.V("owner", owner))
	}
	return fields, nil
}

type formRepository struct {
	client      *firestore.Client
	collections *collections
}

func (r *formRepository) Get(ctx context.Context, id types.FormID) (*model.Form, error) {
	doc, err := getDoc[formDoc](ctx, r.client.Collection(r.collections.forms()).Doc(string(id)))
	if err != nil {
		if err == ErrNotFound {
			return nil, goerr.Wrap(ErrNotFound, "form not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get form", goerr.V("id", id))
	}
	return doc.toModel(), nil
}

func (r *formRepository) ListByOwner(ctx context.Context, owner types.UserID) ([]*model.Form, error) {
	q := r.client.Collection(r.collections.forms()).
		Where("owner", "==", string(owner)).
		OrderBy("full_title", firestore.Asc)
	forms, err := queryDocs(ctx, q, (*formDoc).toModel)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list forms", goerr.V("owner", owner))
	}
	return forms, nil
}

type dependencyRepository struct {
	client      *firestore.Client
	collections *collections
}

func (r *dependencyRepository) Get(ctx context.Context, id types.DependencyID) (*model.SelectDependency, error) {
	doc, err := getDoc[dependencyDoc](ctx, r.client.Collection(r.collections.dependencies()).Doc(string(id)))
	if err != nil {
		if err == ErrNotFound {
			return nil, goerr.Wrap(ErrNotFound, "select dependency not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get select dependency", goerr.V("id", id))
	}
	return doc.toModel(), nil
}

func (r *dependencyRepository) GetMany(ctx context.Context, ids []types.DependencyID) ([]*model.SelectDependency, error) {
	if len(ids) == 0 {
		return []*model.SelectDependency{}, nil
	}

	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = r.client.Collection(r.collections.dependencies()).Doc(string(id))
	}
	snaps, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get select dependencies", goerr.V("ids", ids))
	}

	result := make([]*model.SelectDependency, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc dependencyDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode select dependency", goerr.V("doc_id", snap.Ref.ID))
		}
		result = append(result, doc.toModel())
	}
	return result, nil
}
