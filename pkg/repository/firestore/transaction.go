package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"google.golang.org/api/iterator"
)

type transaction struct {
	client      *firestore.Client
	tx          *firestore.Transaction
	collections *collections
}

var _ interfaces.Transaction = &transaction{}

func listInTx[D any, M any](tx *firestore.Transaction, q firestore.Queryer, collection string, convert func(*D) M) ([]M, error) {
	iter := tx.Documents(q)
	defer iter.Stop()

	var result []M
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate documents", goerr.V("collection", collection))
		}

		var doc D
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode document",
				goerr.V("collection", collection),
				goerr.V("doc_id", docSnap.Ref.ID))
		}
		result = append(result, convert(&doc))
	}
	return result, nil
}

func (t *transaction) ListFields(ctx context.Context) ([]*model.Field, error) {
	name := t.collections.fields()
	return listInTx(t.tx, t.client.Collection(name), name, (*fieldDoc).toModel)
}

func (t *transaction) ListForms(ctx context.Context) ([]*model.Form, error) {
	name := t.collections.forms()
	return listInTx(t.tx, t.client.Collection(name), name, (*formDoc).toModel)
}

func (t *transaction) ListDependencies(ctx context.Context) ([]*model.SelectDependency, error) {
	name := t.collections.dependencies()
	return listInTx(t.tx, t.client.Collection(name), name, (*dependencyDoc).toModel)
}

func (t *transaction) PutField(ctx context.Context, f *model.Field) error {
	ref := t.client.Collection(t.collections.fields()).Doc(string(f.ID))
	if err := t.tx.Set(ref, newFieldDoc(f)); err != nil {
		return goerr.Wrap(err, "failed to put field", goerr.V("id", f.ID))
	}
	return nil
}

func (t *transaction) DeleteField(ctx context.Context, id types.FieldID) error {
	ref := t.client.Collection(t.collections.fields()).Doc(string(id))
	if err := t.tx.Delete(ref); err != nil {
		return goerr.Wrap(err, "failed to delete field", goerr.V("id", id))
	}
	return nil
}

func (t *transaction) PutForm(ctx context.Context, f *model.Form) error {
	ref := t.client.Collection(t.collections.forms()).Doc(string(f.ID))
	if err := t.tx.Set(ref, newFormDoc(f)); err != nil {
		return goerr.Wrap(err, "failed to put form", goerr.V("id", f.ID))
	}
	return nil
}

func (t *transaction) DeleteForm(ctx context.Context, id types.FormID) error {
	ref := t.client.Collection(t.collections.forms()).Doc(string(id))
	if err := t.tx.Delete(ref); err != nil {
		return goerr.Wrap(err, "failed to delete form", goerr.V("id", id))
	}
	return nil
}

func (t *transaction) PutDependency(ctx context.Context, d *model.SelectDependency) error {
	ref := t.client.Collection(t.collections.dependencies()).Doc(string(d.ID))
	if err := t.tx.Set(ref, newDependencyDoc(d)); err != nil {
		return goerr.Wrap(err, "failed to put select dependency", goerr.V("id", d.ID))
	}
	return nil
}

func (t *transaction) DeleteDependency(ctx context.Context, id types.DependencyID) error {
	ref := t.client.Collection(t.collections.dependencies()).Doc(string(id))
	if err := t.tx.Delete(ref); err != nil {
		return goerr.Wrap(err, "failed to delete select dependency", goerr.V("id", id))
	}
	return nil
}
