package cli_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/utmcraft/pkg/cli"
)

func TestRun_MigrateRequiresDatabaseID(t *testing.T) {
	// fireconf rejects the arguments before connecting to Firestore
	err := cli.Run(context.Background(), []string{
		"utmcraft", "migrate",
		"--firestore-project-id", "utmcraft-test",
		"--firestore-database-id", "",
		"--dry-run",
	}, "test")
	gt.Error(t, err)
	gt.String(t, err.Error()).Contains("database ID is required")
}
