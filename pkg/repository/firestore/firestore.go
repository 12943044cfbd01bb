package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
)

type Firestore struct {
	client      *firestore.Client
	collections *collections
	field       *fieldRepository
	form        *formRepository
	dependency  *dependencyRepository
	submission  *submissionRepository
	access      *accessRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collections.prefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	c := &collections{}
	f := &Firestore{
		client:      client,
		collections: c,
		field:       &fieldRepository{client: client, collections: c},
		form:        &formRepository{client: client, collections: c},
		dependency:  &dependencyRepository{client: client, collections: c},
		submission:  &submissionRepository{client: client, collections: c},
		access:      &accessRepository{client: client, collections: c},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Field() interfaces.FieldRepository {
	return f.field
}

func (f *Firestore) Form() interfaces.FormRepository {
	return f.form
}

func (f *Firestore) Dependency() interfaces.DependencyRepository {
	return f.dependency
}

func (f *Firestore) Submission() interfaces.SubmissionRepository {
	return f.submission
}

func (f *Firestore) Access() interfaces.AccessRepository {
	return f.access
}

func (f *Firestore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &transaction{client: f.client, tx: tx, collections: f.collections})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to run transaction")
	}
	return nil
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// collections resolves collection names with the optional prefix
type collections struct {
	prefix string
}

func (c *collections) name(base string) string {
	if c.prefix != "" {
		return c.prefix + "_" + base
	}
	return base
}

func (c *collections) fields() string       { return c.name("fields") }
func (c *collections) forms() string        { return c.name("forms") }
func (c *collections) dependencies() string { return c.name("select_dependencies") }
func (c *collections) raws() string         { return c.name("raw_submissions") }
func (c *collections) results() string      { return c.name("computed_results") }
func (c *collections) grants() string       { return c.name("access_grants") }

// CollectionNames lists every collection used with prefix applied. The
// migrate command manages indexes on them.
func CollectionNames(prefix string) map[string]string {
	c := &collections{prefix: prefix}
	return map[string]string{
		"fields":              c.fields(),
		"forms":               c.forms(),
		"select_dependencies": c.dependencies(),
		"raw_submissions":     c.raws(),
		"computed_results":    c.results(),
		"access_grants":       c.grants(),
	}
}
