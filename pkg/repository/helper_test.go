package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/repository/firestore"
	"github.com/secmon-lab/utmcraft/pkg/repository/memory"
	"github.com/secmon-lab/utmcraft/pkg/repository/sqlite"
)

func newMemoryRepo(t *testing.T) interfaces.Repository {
	return memory.New()
}

func newSQLiteRepo(t *testing.T) interfaces.Repository {
	repo, err := sqlite.New(context.Background(), ":memory:")
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// newFirestoreFactory skips the test when FIRESTORE_PROJECT_ID is not set. Each
// repository gets its own collection prefix so tests do not see each other.
func newFirestoreFactory(t *testing.T) func(t *testing.T) interfaces.Repository {
	projectID := os.Getenv("FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT_ID not set")
	}
	databaseID := os.Getenv("FIRESTORE_DATABASE_ID")

	return func(t *testing.T) interfaces.Repository {
		prefix := "test_" + uuid.NewString()
		repo, err := firestore.New(context.Background(), projectID, databaseID, firestore.WithCollectionPrefix(prefix))
		gt.NoError(t, err).Required()
		t.Cleanup(func() { _ = repo.Close() })
		return repo
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, memory.ErrNotFound) ||
		errors.Is(err, sqlite.ErrNotFound) ||
		errors.Is(err, firestore.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, memory.ErrConflict) ||
		errors.Is(err, sqlite.ErrConflict) ||
		errors.Is(err, firestore.ErrConflict)
}
