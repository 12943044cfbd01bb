package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

type validateResponse struct {
	Valid  bool                   `json:"valid"`
	Errors model.ValidationErrors `json:"errors,omitempty"`
}

func newValidateResponse(errs model.ValidationErrors) validateResponse {
	return validateResponse{Valid: len(errs) == 0, Errors: errs}
}

// Fields

func (s *Server) listFields(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := types.UserID(r.URL.Query().Get("owner"))
	if owner == "" {
		owner = userFrom(ctx)
	}
	fields, err := s.uc.Field.ListFields(ctx, owner)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if fields == nil {
		fields = []*model.Field{}
	}
	writeJSON(ctx, w, http.StatusOK, fields)
}

func (s *Server) getField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	field, err := s.uc.Field.GetField(ctx, types.FieldID(chi.URLParam(r, "fieldID")))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, field)
}

func (s *Server) createField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var field model.Field
	if err := decodeJSON(r, &field); err != nil {
		handleError(ctx, w, err)
		return
	}
	result, err := s.uc.Field.CreateField(ctx, userFrom(ctx), &field)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, result)
}

func (s *Server) updateField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var field model.Field
	if err := decodeJSON(r, &field); err != nil {
		handleError(ctx, w, err)
		return
	}
	field.ID = types.FieldID(chi.URLParam(r, "fieldID"))
	result, err := s.uc.Field.UpdateField(ctx, userFrom(ctx), &field)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, result)
}

func (s *Server) validateField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var field model.Field
	if err := decodeJSON(r, &field); err != nil {
		handleError(ctx, w, err)
		return
	}
	errs, err := s.uc.Field.ValidateField(ctx, userFrom(ctx), &field)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newValidateResponse(errs))
}

type renameRequest struct {
	From types.FullTitle `json:"from"`
	To   types.FullTitle `json:"to"`
}

func (s *Server) renameField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(ctx, w, err)
		return
	}
	result, err := s.uc.Field.RenameField(ctx, userFrom(ctx), req.From, req.To)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, result)
}

func (s *Server) deleteField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.uc.Field.DeleteField(ctx, userFrom(ctx), types.FieldID(chi.URLParam(r, "fieldID"))); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Forms

func (s *Server) listForms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	forms, err := s.uc.Form.ListForms(ctx, userFrom(ctx))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if forms == nil {
		forms = []*model.Form{}
	}
	writeJSON(ctx, w, http.StatusOK, forms)
}

func (s *Server) getForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, err := s.uc.Form.GetForm(ctx, userFrom(ctx), types.FormID(chi.URLParam(r, "formID")))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, form)
}

func (s *Server) createForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var form model.Form
	if err := decodeJSON(r, &form); err != nil {
		handleError(ctx, w, err)
		return
	}
	saved, err := s.uc.Form.CreateForm(ctx, userFrom(ctx), &form)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, saved)
}

func (s *Server) updateForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var form model.Form
	if err := decodeJSON(r, &form); err != nil {
		handleError(ctx, w, err)
		return
	}
	form.ID = types.FormID(chi.URLParam(r, "formID"))
	saved, err := s.uc.Form.UpdateForm(ctx, userFrom(ctx), &form)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, saved)
}

func (s *Server) validateForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var form model.Form
	if err := decodeJSON(r, &form); err != nil {
		handleError(ctx, w, err)
		return
	}
	errs, err := s.uc.Form.ValidateForm(ctx, userFrom(ctx), &form)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newValidateResponse(errs))
}

func (s *Server) deleteForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.uc.Form.DeleteForm(ctx, userFrom(ctx), types.FormID(chi.URLParam(r, "formID"))); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) layout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	layout, err := s.uc.Form.Layout(ctx, userFrom(ctx), types.FormID(chi.URLParam(r, "formID")))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, layout)
}

type grantRequest struct {
	UserID types.UserID `json:"user_id"`
}

func (s *Server) grantAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(ctx, w, err)
		return
	}
	if req.UserID == "" {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}
	if err := s.uc.Form.GrantAccess(ctx, userFrom(ctx), types.FormID(chi.URLParam(r, "formID")), req.UserID); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) revokeAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formID := types.FormID(chi.URLParam(r, "formID"))
	grantee := types.UserID(chi.URLParam(r, "userID"))
	if err := s.uc.Form.RevokeAccess(ctx, userFrom(ctx), formID, grantee); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Select dependencies

func (s *Server) listDependencies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deps, err := s.uc.Dependency.ListDependencies(ctx, userFrom(ctx))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	if deps == nil {
		deps = []*model.SelectDependency{}
	}
	writeJSON(ctx, w, http.StatusOK, deps)
}

func (s *Server) getDependency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dep, err := s.uc.Dependency.GetDependency(ctx, types.DependencyID(chi.URLParam(r, "dependencyID")))
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, dep)
}

func (s *Server) createDependency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var dep model.SelectDependency
	if err := decodeJSON(r, &dep); err != nil {
		handleError(ctx, w, err)
		return
	}
	saved, err := s.uc.Dependency.CreateDependency(ctx, userFrom(ctx), &dep)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, saved)
}

func (s *Server) updateDependency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var dep model.SelectDependency
	if err := decodeJSON(r, &dep); err != nil {
		handleError(ctx, w, err)
		return
	}
	dep.ID = types.DependencyID(chi.URLParam(r, "dependencyID"))
	saved, err := s.uc.Dependency.UpdateDependency(ctx, userFrom(ctx), &dep)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, saved)
}

func (s *Server) validateDependency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var dep model.SelectDependency
	if err := decodeJSON(r, &dep); err != nil {
		handleError(ctx, w, err)
		return
	}
	errs, err := s.uc.Dependency.ValidateDependency(ctx, userFrom(ctx), &dep)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newValidateResponse(errs))
}

func (s *Server) deleteDependency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.uc.Dependency.DeleteDependency(ctx, userFrom(ctx), types.DependencyID(chi.URLParam(r, "dependencyID"))); err != nil {
		handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
