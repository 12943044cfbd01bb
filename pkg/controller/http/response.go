package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
	"github.com/secmon-lab/utmcraft/pkg/utils/errutil"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
	"github.com/secmon-lab/utmcraft/pkg/utils/safe"
)

// errorResponse is the body of every non 2xx JSON response
type errorResponse struct {
	Error  string                 `json:"error"`
	Errors model.ValidationErrors `json:"errors,omitempty"`
	UsedIn []string               `json:"used_in,omitempty"`
}

// retryMessage is shown when a submission could not be computed
const retryMessage = "failed to compute the result, please try again"

var errBadRequest = goerr.New("bad request")

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(ctx, w, data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(context.Background(), w, status, errorResponse{Error: msg})
}

// decodeJSON reads the request body into v. A malformed build rule is reported
// as a validation problem of the build_rule input.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, model.ErrMalformedBuildRule) {
			var errs model.ValidationErrors
			errs.Add("build_rule", model.ErrMalformedBuildRule, "build rule must be a list of strings")
			return errs
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return goerr.Wrap(err, "request body too large")
		}
		return goerr.Wrap(errBadRequest, err.Error())
	}
	return nil
}

// handleError maps use case errors to HTTP statuses. Only unexpected errors
// are reported as server errors.
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	if errs, ok := model.AsValidationErrors(err); ok {
		writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation failed",
			Errors: errs,
		})
		return
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSON(ctx, w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})

	case errors.Is(err, errBadRequest):
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})

	case errors.Is(err, usecase.ErrFormNotFound),
		errors.Is(err, usecase.ErrFieldNotFound),
		errors.Is(err, usecase.ErrDependencyNotFound),
		errors.Is(err, usecase.ErrSubmissionNotFound):
		writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: rootMessage(err)})

	case errors.Is(err, usecase.ErrAccessDenied):
		writeJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "access denied"})

	case errors.Is(err, model.ErrDeletionBlocked):
		resp := errorResponse{Error: model.ErrDeletionBlocked.Error()}
		if ge := goerr.Unwrap(err); ge != nil {
			if usedIn, ok := ge.Values()[usecase.UsedInKey].([]string); ok {
				resp.UsedIn = usedIn
			}
		}
		writeJSON(ctx, w, http.StatusConflict, resp)

	case errors.Is(err, usecase.ErrVersionConflict),
		errors.Is(err, interfaces.ErrConflict):
		writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: rootMessage(err)})

	case errors.Is(err, usecase.ErrEvaluationFailed):
		logging.From(ctx).Warn("evaluation failed", "error", err.Error())
		writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: retryMessage})

	default:
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
	}
}

// rootMessage returns the message of the innermost sentinel so that internal
// values never reach the client
func rootMessage(err error) string {
	for _, sentinel := range []error{
		usecase.ErrFormNotFound,
		usecase.ErrFieldNotFound,
		usecase.ErrDependencyNotFound,
		usecase.ErrSubmissionNotFound,
		usecase.ErrVersionConflict,
		interfaces.ErrConflict,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
