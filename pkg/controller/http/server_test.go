package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	server "github.com/secmon-lab/utmcraft/pkg/controller/http"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/repository/memory"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
)

type apiClient struct {
	t   *testing.T
	srv *server.Server
}

func newClient(t *testing.T, opts ...server.Options) *apiClient {
	t.Helper()
	return &apiClient{t: t, srv: server.New(usecase.New(memory.New()), opts...)}
}

func (c *apiClient) do(user, method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		gt.NoError(c.t, err).Required()
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(server.DefaultUserHeader, user)
	}
	w := httptest.NewRecorder()
	c.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &v)).Required()
	return v
}

type errorBody struct {
	Error  string `json:"error"`
	Errors []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
	UsedIn []string `json:"used_in"`
}

// setup creates $it-source-alice and $co-link-alice and a form rendering them
func setup(t *testing.T, c *apiClient) (fieldID, formID string) {
	t.Helper()
	w := c.do("alice", http.MethodPost, "/api/fields", map[string]any{
		"kind":  "it",
		"title": "source",
		"label": "Source",
		"input": map[string]any{"required": true},
	})
	gt.Number(t, w.Code).Equal(http.StatusCreated).Required()
	saved := decode[usecase.FieldSaveResult](t, w)
	fieldID = string(saved.Field.ID)

	w = c.do("alice", http.MethodPost, "/api/fields", map[string]any{
		"kind":     "co",
		"title":    "link",
		"label":    "Link",
		"combined": map[string]any{"build_rule": []string{"https://example.com/?utm_source=", "$it-source-alice"}},
		"result":   map[string]any{"separator": ""},
		"value":    map[string]any{"disable_lowercase": true, "chars_settings": "not_set"},
	})
	gt.Number(t, w.Code).Equal(http.StatusCreated).Required()

	w = c.do("alice", http.MethodPost, "/api/forms", map[string]any{
		"title":             "landing",
		"ui":                [][]string{{"$it-source-alice"}},
		"main_result_field": "co-link-alice",
	})
	gt.Number(t, w.Code).Equal(http.StatusCreated).Required()
	form := decode[model.Form](t, w)
	return fieldID, string(form.ID)
}

func TestServer_Authentication(t *testing.T) {
	c := newClient(t)

	w := c.do("", http.MethodGet, "/api/forms", nil)
	gt.Number(t, w.Code).Equal(http.StatusUnauthorized)

	w = c.do("", http.MethodGet, "/health", nil)
	gt.Number(t, w.Code).Equal(http.StatusOK)

	w = c.do("alice", http.MethodGet, "/api/forms", nil)
	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.String(t, strings.TrimSpace(w.Body.String())).Equal("[]")
}

func TestServer_CustomUserHeader(t *testing.T) {
	c := newClient(t, server.WithUserHeader("X-Forwarded-User"))

	req := httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	req.Header.Set("X-Forwarded-User", "alice")
	w := httptest.NewRecorder()
	c.srv.ServeHTTP(w, req)
	gt.Number(t, w.Code).Equal(http.StatusOK)
}

func TestServer_Evaluate(t *testing.T) {
	c := newClient(t)
	fieldID, formID := setup(t, c)

	w := c.do("alice", http.MethodPost, "/api/forms/"+formID+"/evaluate", map[string]any{
		"values": map[string]string{fieldID: "Google"},
	})
	gt.Number(t, w.Code).Equal(http.StatusCreated).Required()
	result := decode[usecase.EvaluationResult](t, w)
	gt.String(t, result.MainValue).Equal("https://example.com/?utm_source=google")
	gt.String(t, string(result.Hashcode)).NotEqual("")

	w = c.do("alice", http.MethodPost, "/api/forms/"+formID+"/evaluate", map[string]any{
		"values": map[string]string{fieldID: "Google"},
	})
	gt.Number(t, w.Code).Equal(http.StatusOK)
	again := decode[usecase.EvaluationResult](t, w)
	gt.Value(t, again.Hashcode).Equal(result.Hashcode)

	w = c.do("alice", http.MethodGet, "/api/submissions/"+string(result.Hashcode), nil)
	gt.Number(t, w.Code).Equal(http.StatusOK).Required()
	parsed := decode[usecase.ParsedSubmission](t, w)
	gt.Value(t, parsed.Values).Equal(map[string]string{fieldID: "Google"})

	w = c.do("alice", http.MethodGet, "/api/history?q=google&limit=10", nil)
	gt.Number(t, w.Code).Equal(http.StatusOK).Required()
	history := decode[[]model.ComputedResult](t, w)
	gt.Array(t, history).Length(1)

	w = c.do("alice", http.MethodGet, "/api/history?limit=x", nil)
	gt.Number(t, w.Code).Equal(http.StatusBadRequest)

	w = c.do("bob", http.MethodPost, "/api/forms/"+formID+"/evaluate", map[string]any{
		"values": map[string]string{fieldID: "Google"},
	})
	gt.Number(t, w.Code).Equal(http.StatusForbidden)

	w = c.do("bob", http.MethodGet, "/api/submissions/"+string(result.Hashcode), nil)
	gt.Number(t, w.Code).Equal(http.StatusForbidden)

	w = c.do("alice", http.MethodGet, "/api/submissions/unknown", nil)
	gt.Number(t, w.Code).Equal(http.StatusNotFound)
}

func TestServer_Resolve(t *testing.T) {
	c := newClient(t)
	fieldID, _ := setup(t, c)

	w := c.do("alice", http.MethodPost, "/api/resolve", map[string]any{
		"ref":    "$co-link-alice",
		"values": map[string]string{fieldID: "Newsletter"},
	})
	gt.Number(t, w.Code).Equal(http.StatusOK).Required()
	gt.String(t, decode[map[string]string](t, w)["value"]).Equal("https://example.com/?utm_source=newsletter")

	w = c.do("alice", http.MethodPost, "/api/resolve", map[string]any{})
	gt.Number(t, w.Code).Equal(http.StatusBadRequest)
}

func TestServer_ValidationErrors(t *testing.T) {
	c := newClient(t)
	setup(t, c)

	t.Run("malformed build rule", func(t *testing.T) {
		w := c.do("alice", http.MethodPost, "/api/fields",
			`{"kind":"co","title":"broken","combined":{"build_rule":"$it-source-alice"}}`)
		gt.Number(t, w.Code).Equal(http.StatusUnprocessableEntity).Required()
		body := decode[errorBody](t, w)
		gt.Array(t, body.Errors).Length(1).Required()
		gt.String(t, body.Errors[0].Field).Equal("build_rule")
	})

	t.Run("duplicate title", func(t *testing.T) {
		w := c.do("alice", http.MethodPost, "/api/fields", map[string]any{"kind": "it", "title": "source", "label": "Source"})
		gt.Number(t, w.Code).Equal(http.StatusUnprocessableEntity).Required()
		body := decode[errorBody](t, w)
		gt.Array(t, body.Errors).Length(1).Required()
		gt.String(t, body.Errors[0].Field).Equal("title")
	})

	t.Run("validate endpoint does not save", func(t *testing.T) {
		w := c.do("alice", http.MethodPost, "/api/fields/validate", map[string]any{
			"kind":     "co",
			"title":    "other",
			"combined": map[string]any{"build_rule": []string{"$it-missing-alice"}},
		})
		gt.Number(t, w.Code).Equal(http.StatusOK).Required()
		body := decode[map[string]any](t, w)
		gt.Value(t, body["valid"]).Equal(false)

		w = c.do("alice", http.MethodGet, "/api/fields?owner=alice", nil)
		gt.Array(t, decode[[]model.Field](t, w)).Length(2)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		w := c.do("alice", http.MethodPost, "/api/forms", `{"title":`)
		gt.Number(t, w.Code).Equal(http.StatusBadRequest)
	})
}

func TestServer_DeleteBlocked(t *testing.T) {
	c := newClient(t)
	fieldID, formID := setup(t, c)

	w := c.do("alice", http.MethodDelete, "/api/fields/"+fieldID, nil)
	gt.Number(t, w.Code).Equal(http.StatusConflict).Required()
	body := decode[errorBody](t, w)
	gt.Array(t, body.UsedIn).Length(2)

	w = c.do("bob", http.MethodDelete, "/api/forms/"+formID, nil)
	gt.Number(t, w.Code).Equal(http.StatusForbidden)

	w = c.do("alice", http.MethodDelete, "/api/forms/"+formID, nil)
	gt.Number(t, w.Code).Equal(http.StatusNoContent)

	w = c.do("alice", http.MethodGet, "/api/forms/"+formID, nil)
	gt.Number(t, w.Code).Equal(http.StatusNotFound)
}

func TestServer_VersionConflict(t *testing.T) {
	c := newClient(t)
	fieldID, _ := setup(t, c)

	w := c.do("alice", http.MethodPut, "/api/fields/"+fieldID, map[string]any{
		"kind":    "it",
		"title":   "source",
		"label":   "Traffic source",
		"version": 1,
	})
	gt.Number(t, w.Code).Equal(http.StatusOK).Required()

	w = c.do("alice", http.MethodPut, "/api/fields/"+fieldID, map[string]any{
		"kind":    "it",
		"title":   "source",
		"label":   "Stale",
		"version": 1,
	})
	gt.Number(t, w.Code).Equal(http.StatusConflict)
}

func TestServer_Grants(t *testing.T) {
	c := newClient(t)
	_, formID := setup(t, c)

	w := c.do("bob", http.MethodGet, "/api/forms/"+formID+"/layout", nil)
	gt.Number(t, w.Code).Equal(http.StatusForbidden)

	w = c.do("alice", http.MethodPost, "/api/forms/"+formID+"/grants", map[string]any{})
	gt.Number(t, w.Code).Equal(http.StatusBadRequest)

	w = c.do("alice", http.MethodPost, "/api/forms/"+formID+"/grants", map[string]any{"user_id": "bob"})
	gt.Number(t, w.Code).Equal(http.StatusNoContent)

	w = c.do("bob", http.MethodGet, "/api/forms/"+formID+"/layout", nil)
	gt.Number(t, w.Code).Equal(http.StatusOK).Required()
	layout := decode[usecase.FormLayout](t, w)
	gt.Array(t, layout.Rows).Length(1)

	w = c.do("alice", http.MethodDelete, "/api/forms/"+formID+"/grants/bob", nil)
	gt.Number(t, w.Code).Equal(http.StatusNoContent)

	w = c.do("bob", http.MethodGet, "/api/forms/"+formID, nil)
	gt.Number(t, w.Code).Equal(http.StatusForbidden)
}

func TestServer_BodyLimit(t *testing.T) {
	c := newClient(t, server.WithMaxBodySize(16))
	w := c.do("alice", http.MethodPost, "/api/fields", map[string]any{"kind": "it", "title": "a_rather_long_title"})
	gt.Number(t, w.Code).Equal(http.StatusRequestEntityTooLarge)
}
