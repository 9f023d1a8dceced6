package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/chdsbd/recipeyak/internal/export"
)

func newTestHTTPServer(t *testing.T) (*HTTPServer, *Service) {
	t.Helper()
	svc := newTestService(newFakeStore())
	svc.exporter = export.NewService()
	return NewHTTPServer(svc, "*", nil), svc
}

func doRequest(t *testing.T, server *HTTPServer, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestCreateAndGetRecipe(t *testing.T) {
	server, _ := newTestHTTPServer(t)

	rr := doRequest(t, server, http.MethodPost, "/api/v1/recipes", map[string]any{
		"name":        "Dal",
		"ingredients": []map[string]any{{"quantity": "1 cup", "name": "lentils"}, {"name": "ghee", "position": "Zz"}},
		"steps":       []map[string]any{{"text": "rinse"}, {"text": "simmer"}},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeResponse[RecipeView](t, rr)

	rr = doRequest(t, server, http.MethodGet, "/api/v1/recipes/"+strconv.FormatInt(created.ID, 10), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decodeResponse[RecipeView](t, rr)
	if got.Ingredients[0].Name != "ghee" || got.Ingredients[1].Name != "lentils" {
		t.Fatalf("expected ingredients in position order, got %+v", got.Ingredients)
	}
	if got.Steps[0].Position != "a0" || got.Steps[1].Position != "a1" {
		t.Fatalf("unexpected step positions %+v", got.Steps)
	}
	if got.Tags == nil || got.Sections == nil {
		t.Fatal("expected empty lists rather than null")
	}

	rr = doRequest(t, server, http.MethodGet, "/api/v1/recipes", nil)
	list := decodeResponse[struct {
		Recipes []RecipeSummary `json:"recipes"`
	}](t, rr)
	if len(list.Recipes) != 1 || list.Recipes[0].Name != "Dal" {
		t.Fatalf("unexpected recipe list %+v", list.Recipes)
	}
}

func TestRecipeNotFound(t *testing.T) {
	server, _ := newTestHTTPServer(t)

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/recipes/42", nil},
		{http.MethodDelete, "/api/v1/recipes/42", nil},
		{http.MethodGet, "/api/v1/recipes/not-a-number", nil},
		{http.MethodPatch, "/api/v1/ingredients/42", map[string]any{"position": "a1"}},
		{http.MethodDelete, "/api/v1/steps/42", nil},
		{http.MethodPost, "/api/v1/recipes/42/sections", map[string]any{"title": "sauce"}},
		{http.MethodGet, "/api/v2/recipes", nil},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := doRequest(t, server, tt.method, tt.path, tt.body)
			if rr.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
			}
			body := decodeResponse[map[string]any](t, rr)
			if body["code"] != "NOT_FOUND" {
				t.Fatalf("expected NOT_FOUND code, got %v", body["code"])
			}
		})
	}
}

func TestPatchEchoesPosition(t *testing.T) {
	server, svc := newTestHTTPServer(t)
	recipe := seedRecipe(t, svc)

	tests := []struct {
		path     string
		position string
	}{
		{"/api/v1/ingredients/" + strconv.FormatInt(recipe.Ingredients[1].ID, 10), "a0V"},
		{"/api/v1/sections/" + strconv.FormatInt(recipe.Sections[0].ID, 10), "Zz"},
		{"/api/v1/steps/" + strconv.FormatInt(recipe.Steps[0].ID, 10), "a1V"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := doRequest(t, server, http.MethodPatch, tt.path, map[string]any{"position": tt.position})
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			body := decodeResponse[map[string]any](t, rr)
			if body["position"] != tt.position {
				t.Fatalf("expected echoed position %s, got %v", tt.position, body["position"])
			}
			if body["recipeId"] != float64(recipe.ID) {
				t.Fatalf("expected recipeId %d, got %v", recipe.ID, body["recipeId"])
			}
		})
	}
}

func TestPatchRejectsInvalidPosition(t *testing.T) {
	server, svc := newTestHTTPServer(t)
	recipe := seedRecipe(t, svc)

	rr := doRequest(t, server, http.MethodPatch, "/api/v1/steps/"+strconv.FormatInt(recipe.Steps[0].ID, 10),
		map[string]any{"position": "a0 "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	body := decodeResponse[map[string]any](t, rr)
	if body["code"] != "INVALID_POSITION" {
		t.Fatalf("expected INVALID_POSITION, got %v", body["code"])
	}
	details, _ := body["details"].(map[string]any)
	if details["position"] != "a0 " {
		t.Fatalf("expected offending position in details, got %v", body["details"])
	}
}

func TestInvalidBody(t *testing.T) {
	server, _ := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateChildAndDelete(t *testing.T) {
	server, svc := newTestHTTPServer(t)
	recipe := seedRecipe(t, svc)
	base := "/api/v1/recipes/" + strconv.FormatInt(recipe.ID, 10)

	rr := doRequest(t, server, http.MethodPost, base+"/steps", map[string]any{"text": "serve"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	step := decodeResponse[StepView](t, rr)
	if step.Position != "a2" {
		t.Fatalf("expected appended step at a2, got %q", step.Position)
	}

	rr = doRequest(t, server, http.MethodDelete, "/api/v1/steps/"+strconv.FormatInt(step.ID, 10), nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, base+"/rebalance", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from rebalance, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestExportEndpoints(t *testing.T) {
	server, svc := newTestHTTPServer(t)
	recipe := seedRecipe(t, svc)
	base := "/api/v1/recipes/" + strconv.FormatInt(recipe.ID, 10)

	rr := doRequest(t, server, http.MethodGet, base+"/export", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/x-yaml" {
		t.Fatalf("expected yaml content type, got %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "Shakshuka.yaml") {
		t.Fatalf("unexpected content disposition %q", cd)
	}

	rr = doRequest(t, server, http.MethodGet, base+"/export?format=docx", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown format, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/v1/export/recipes.json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var exported []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &exported); err != nil {
		t.Fatalf("decode bulk export: %v", err)
	}
	if len(exported) != 1 || exported[0]["name"] != "Shakshuka" {
		t.Fatalf("unexpected bulk export %v", exported)
	}
	if _, ok := exported[0]["id"]; ok {
		t.Fatal("bulk export must not include ids")
	}

	rr = doRequest(t, server, http.MethodGet, "/api/v1/export/recipes.pdf", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bulk pdf, got %d", rr.Code)
	}
	rr = doRequest(t, server, http.MethodGet, "/api/v1/export/everything.yaml", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestUnconfiguredFeatures(t *testing.T) {
	server, svc := newTestHTTPServer(t)
	recipe := seedRecipe(t, svc)

	rr := doRequest(t, server, http.MethodGet, "/api/v1/recipes?q=eggs", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without search, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/v1/upload", map[string]any{
		"recipeId": recipe.ID, "fileName": "pie.png", "contentType": "image/png",
	})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without uploads, got %d", rr.Code)
	}
}
