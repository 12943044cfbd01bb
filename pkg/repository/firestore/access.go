package firestore

import (
	"context"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type accessGrantDoc struct {
	UserID string `firestore:"user_id"`
	FormID string `firestore:"form_id"`
}

type accessRepository struct {
	client      *firestore.Client
	collections *collections
}

// grantRef escapes both IDs since user IDs may contain "/"
func (r *accessRepository) grantRef(userID types.UserID, formID types.FormID) *firestore.DocumentRef {
	docID := url.PathEscape(string(userID)) + ":" + url.PathEscape(string(formID))
	return r.client.Collection(r.collections.grants()).Doc(docID)
}

func (r *accessRepository) Grant(ctx context.Context, userID types.UserID, formID types.FormID) error {
	doc := &accessGrantDoc{UserID: string(userID), FormID: string(formID)}
	if _, err := r.grantRef(userID, formID).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to grant access", goerr.V("user_id", userID), goerr.V("form_id", formID))
	}
	return nil
}

func (r *accessRepository) Revoke(ctx context.Context, userID types.UserID, formID types.FormID) error {
	if _, err := r.grantRef(userID, formID).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to revoke access", goerr.V("user_id", userID), goerr.V("form_id", formID))
	}
	return nil
}

func (r *accessRepository) HasAccess(ctx context.Context, userID types.UserID, formID types.FormID) (bool, error) {
	_, err := r.grantRef(userID, formID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, goerr.Wrap(err, "failed to check access", goerr.V("user_id", userID), goerr.V("form_id", formID))
	}
	return true, nil
}

func (r *accessRepository) ListForms(ctx context.Context, userID types.UserID) ([]types.FormID, error) {
	q := r.client.Collection(r.collections.grants()).
		Where("user_id", "==", string(userID)).
		OrderBy("form_id", firestore.Asc)
	return queryDocs(ctx, q, func(d *accessGrantDoc) types.FormID {
		return types.FormID(d.FormID)
	})
}
