package memory

import (
	"context"

	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
)

type Memory struct {
	graph      *graphStore
	field      *fieldRepository
	form       *formRepository
	dependency *dependencyRepository
	submission *submissionRepository
	access     *accessRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	graph := newGraphStore()

	return &Memory{
		graph:      graph,
		field:      &fieldRepository{graph: graph},
		form:       &formRepository{graph: graph},
		dependency: &dependencyRepository{graph: graph},
		submission: newSubmissionRepository(),
		access:     newAccessRepository(),
	}
}

func (m *Memory) Field() interfaces.FieldRepository {
	return m.field
}

func (m *Memory) Form() interfaces.FormRepository {
	return m.form
}

func (m *Memory) Dependency() interfaces.DependencyRepository {
	return m.dependency
}

func (m *Memory) Submission() interfaces.SubmissionRepository {
	return m.submission
}

func (m *Memory) Access() interfaces.AccessRepository {
	return m.access
}

func (m *Memory) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	return m.graph.runInTransaction(ctx, fn)
}

func (m *Memory) Close() error {
	return nil
}
