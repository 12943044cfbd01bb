package usecase

import (
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
)

type UseCases struct {
	repo       interfaces.Repository
	maxDepth   int
	Field      *FieldUseCase
	Form       *FormUseCase
	Dependency *DependencyUseCase
	Submission *SubmissionUseCase
}

type Option func(*UseCases)

// WithMaxEvaluationDepth bounds recursion of result field evaluation
func WithMaxEvaluationDepth(depth int) Option {
	return func(uc *UseCases) {
		uc.maxDepth = depth
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		maxDepth: DefaultMaxEvaluationDepth,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Field = NewFieldUseCase(repo)
	uc.Form = NewFormUseCase(repo)
	uc.Dependency = NewDependencyUseCase(repo)
	uc.Submission = NewSubmissionUseCase(repo, uc.maxDepth)

	return uc
}
