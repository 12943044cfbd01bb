package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

const defaultHistoryLimit = 50

type evaluateRequest struct {
	Values map[string]string `json:"values"`
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(ctx, w, err)
		return
	}
	result, err := s.uc.Submission.Evaluate(ctx, userFrom(ctx), types.FormID(chi.URLParam(r, "formID")), req.Values)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(ctx, w, status, result)
}

type resolveRequest struct {
	Ref      string            `json:"ref"`
	Values   map[string]string `json:"values"`
	Hashcode types.Hashcode    `json:"hashcode,omitempty"`
}

type resolveResponse struct {
	Value string `json:"value"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(ctx, w, err)
		return
	}
	if req.Ref == "" {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "ref is required"})
		return
	}
	v, err := s.uc.Submission.Resolve(ctx, req.Ref, req.Values, req.Hashcode)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, resolveResponse{Value: v})
}

func (s *Server) parse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parsed, err := s.uc.Submission.Parse(ctx, userFrom(ctx), types.Hashcode(chi.URLParam(r, "hashcode")))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, parsed)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	results, err := s.uc.Submission.History(ctx, userFrom(ctx), r.URL.Query().Get("q"), limit)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if results == nil {
		results = []*model.ComputedResult{}
	}
	writeJSON(ctx, w, http.StatusOK, results)
}
