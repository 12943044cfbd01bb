package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/repository/firestore"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var projectID string
	var databaseID string
	var collectionPrefix string
	var dryRun bool

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate Firestore indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "firestore-project-id",
				Usage:       "Firestore Project ID (required)",
				Required:    true,
				Sources:     cli.EnvVars("UTMCRAFT_FIRESTORE_PROJECT_ID"),
				Destination: &projectID,
			},
			&cli.StringFlag{
				Name:        "firestore-database-id",
				Usage:       "Firestore Database ID",
				Value:       "(default)",
				Sources:     cli.EnvVars("UTMCRAFT_FIRESTORE_DATABASE_ID"),
				Destination: &databaseID,
			},
			&cli.StringFlag{
				Name:        "firestore-collection-prefix",
				Usage:       "Prefix prepended to every Firestore collection name",
				Sources:     cli.EnvVars("UTMCRAFT_FIRESTORE_COLLECTION_PREFIX"),
				Destination: &collectionPrefix,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "Preview changes without applying",
				Destination: &dryRun,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			logger.Info("Migrating Firestore indexes",
				"project_id", projectID,
				"database_id", databaseID,
				"collection_prefix", collectionPrefix,
				"dry_run", dryRun)

			indexConfig := getIndexConfig(collectionPrefix)

			client, err := fireconf.New(ctx, projectID, databaseID, indexConfig,
				fireconf.WithLogger(logger),
				fireconf.WithDryRun(dryRun))
			if err != nil {
				return goerr.Wrap(err, "failed to create fireconf client")
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("failed to close fireconf client", "error", err.Error())
				}
			}()

			if dryRun {
				return logMigrationPlan(ctx, client, indexConfig)
			}

			if err := client.Migrate(ctx); err != nil {
				return goerr.Wrap(err, "failed to apply index migration", goerr.V("project_id", projectID))
			}
			logger.Info("Firestore indexes migrated", "collections", len(indexConfig.Collections))
			return nil
		},
	}
}

// logMigrationPlan compares the indexes in Firestore with indexConfig and
// logs every change Migrate would apply
func logMigrationPlan(ctx context.Context, client *fireconf.Client, indexConfig *fireconf.Config) error {
	logger := logging.Default()

	names := make([]string, 0, len(indexConfig.Collections))
	for _, c := range indexConfig.Collections {
		names = append(names, c.Name)
	}
	current, err := client.Import(ctx, names...)
	if err != nil {
		return goerr.Wrap(err, "failed to import current indexes")
	}
	diff, err := client.DiffConfigs(current)
	if err != nil {
		return goerr.Wrap(err, "failed to compare indexes")
	}

	if len(diff.Collections) == 0 {
		logger.Info("Firestore indexes are up to date")
	}
	for _, c := range diff.Collections {
		logger.Info("Planned index change",
			"collection", c.Name,
			"action", c.Action,
			"indexes_to_add", len(c.IndexesToAdd),
			"indexes_to_delete", len(c.IndexesToDelete),
			"ttl_action", c.TTLAction)
	}
	return nil
}

// getIndexConfig returns the composite indexes used by the Firestore repository
func getIndexConfig(prefix string) *fireconf.Config {
	names := firestore.CollectionNames(prefix)

	byOwner := fireconf.Index{
		Fields: []fireconf.IndexField{
			{Path: "owner", Order: fireconf.OrderAscending},
			{Path: "full_title", Order: fireconf.OrderAscending},
		},
	}

	return &fireconf.Config{
		Collections: []fireconf.Collection{
			// ListByOwner: owner ASC, full_title ASC
			{Name: names["fields"], Indexes: []fireconf.Index{byOwner}},
			{Name: names["forms"], Indexes: []fireconf.Index{byOwner}},
			{
				Name: names["computed_results"],
				Indexes: []fireconf.Index{
					// ListResults: user_id ASC, updated_at DESC
					{
						Fields: []fireconf.IndexField{
							{Path: "user_id", Order: fireconf.OrderAscending},
							{Path: "updated_at", Order: fireconf.OrderDescending},
						},
					},
				},
			},
			{
				Name: names["access_grants"],
				Indexes: []fireconf.Index{
					// ListForms: user_id ASC, form_id ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "user_id", Order: fireconf.OrderAscending},
							{Path: "form_id", Order: fireconf.OrderAscending},
						},
					},
				},
			},
		},
	}
}
