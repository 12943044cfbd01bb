package usecase_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
)

func TestErrors_SentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrFormNotFound", usecase.ErrFormNotFound},
		{"ErrFieldNotFound", usecase.ErrFieldNotFound},
		{"ErrDependencyNotFound", usecase.ErrDependencyNotFound},
		{"ErrSubmissionNotFound", usecase.ErrSubmissionNotFound},
		{"ErrAccessDenied", usecase.ErrAccessDenied},
		{"ErrVersionConflict", usecase.ErrVersionConflict},
		{"ErrEvaluationFailed", usecase.ErrEvaluationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, tt.err).NotNil()
			wrapped := goerr.Wrap(tt.err, "wrapped", goerr.V(usecase.FormIDKey, "f1"))
			gt.Bool(t, errors.Is(wrapped, tt.err)).True()
		})
	}
}

func TestErrors_ErrorsAreDistinct(t *testing.T) {
	gt.Bool(t, errors.Is(usecase.ErrFormNotFound, usecase.ErrFieldNotFound)).False()
	gt.Bool(t, errors.Is(usecase.ErrAccessDenied, usecase.ErrFormNotFound)).False()
	gt.Bool(t, errors.Is(usecase.ErrEvaluationFailed, usecase.ErrVersionConflict)).False()
}
