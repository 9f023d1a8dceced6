package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chdsbd/recipeyak/internal/export"
	"github.com/chdsbd/recipeyak/internal/search"
	"github.com/chdsbd/recipeyak/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[2] {
	case "recipes":
		s.handleRecipes(w, r, parts[3:])
		return
	case "ingredients", "sections", "steps":
		if len(parts) == 4 {
			s.handleChild(w, r, parts[2], parts[3])
			return
		}
	case "export":
		if len(parts) == 4 && r.Method == http.MethodGet {
			s.handleBulkExport(w, r, parts[3])
			return
		}
	case "calendar":
		s.handleCalendar(w, r, parts[3:])
		return
	case "calendar.ics":
		if len(parts) == 3 && r.Method == http.MethodGet {
			query := r.URL.Query()
			feed, err := s.service.CalendarFeed(r.Context(), query.Get("start"), query.Get("end"))
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(feed))
			return
		}
	case "shopping-list":
		if len(parts) == 3 && r.Method == http.MethodGet {
			query := r.URL.Query()
			items, err := s.service.ShoppingList(r.Context(), query.Get("start"), query.Get("end"))
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
			return
		}
	case "upload":
		if len(parts) == 3 && r.Method == http.MethodPost {
			var body UploadInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			ticket, err := s.service.StartUpload(r.Context(), body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, ticket)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRecipes(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		if r.Method == http.MethodGet {
			query := r.URL.Query()
			if text := strings.TrimSpace(query.Get("q")); text != "" {
				limit, _ := strconv.Atoi(query.Get("limit"))
				offset, _ := strconv.Atoi(query.Get("offset"))
				response, err := s.service.SearchRecipes(search.Query{Text: text, Limit: limit, Offset: offset})
				if err != nil {
					s.writeServiceError(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, response)
				return
			}
			recipes, err := s.service.ListRecipes(r.Context())
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"recipes": recipes})
			return
		}
		if r.Method == http.MethodPost {
			var body CreateRecipeInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			recipe, err := s.service.CreateRecipe(r.Context(), body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, recipeView(recipe))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	recipeID, ok := parseID(parts[0])
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			recipe, err := s.service.GetRecipe(r.Context(), recipeID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, recipeView(recipe))
		case http.MethodDelete:
			if err := s.service.DeleteRecipe(r.Context(), recipeID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[1] == "ingredients" && r.Method == http.MethodPost:
		var body IngredientInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateIngredient(r.Context(), recipeID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ingredientView(item))
	case parts[1] == "sections" && r.Method == http.MethodPost:
		var body SectionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateSection(r.Context(), recipeID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sectionView(item))
	case parts[1] == "steps" && r.Method == http.MethodPost:
		var body StepInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.CreateStep(r.Context(), recipeID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, stepView(item))
	case parts[1] == "rebalance" && r.Method == http.MethodPost:
		recipe, err := s.service.RebalanceRecipe(r.Context(), recipeID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, recipeView(recipe))
	case parts[1] == "export" && r.Method == http.MethodGet:
		raw := r.URL.Query().Get("format")
		if raw == "" {
			raw = string(export.FormatYAML)
		}
		format, err := export.ParseFormat(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'yaml', 'json' or 'pdf'", nil)
			return
		}
		result, err := s.service.ExportRecipe(r.Context(), recipeID, format)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeFile(w, result)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleChild(w http.ResponseWriter, r *http.Request, kind, rawID string) {
	id, ok := parseID(rawID)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if r.Method == http.MethodDelete {
		var err error
		switch kind {
		case "ingredients":
			err = s.service.DeleteIngredient(r.Context(), id)
		case "sections":
			err = s.service.DeleteSection(r.Context(), id)
		default:
			err = s.service.DeleteStep(r.Context(), id)
		}
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	var payload any
	var err error
	switch kind {
	case "ingredients":
		var body IngredientInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, updateErr := s.service.UpdateIngredient(r.Context(), id, body)
		payload, err = ingredientView(item), updateErr
	case "sections":
		var body SectionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, updateErr := s.service.UpdateSection(r.Context(), id, body)
		payload, err = sectionView(item), updateErr
	default:
		var body StepInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, updateErr := s.service.UpdateStep(r.Context(), id, body)
		payload, err = stepView(item), updateErr
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleBulkExport serves /api/v1/export/recipes.{yaml,yml,json}.
func (s *HTTPServer) handleBulkExport(w http.ResponseWriter, r *http.Request, name string) {
	base, ext, found := strings.Cut(name, ".")
	if !found || base != "recipes" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	format, err := export.ParseFormat(ext)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	result, err := s.service.ExportRecipes(r.Context(), format)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeFile(w, result)
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			query := r.URL.Query()
			items, err := s.service.ListCalendar(r.Context(), query.Get("start"), query.Get("end"))
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			views := make([]ScheduledRecipeView, 0, len(items))
			for _, item := range items {
				views = append(views, scheduledRecipeView(item))
			}
			writeJSON(w, http.StatusOK, map[string]any{"scheduledRecipes": views})
		case http.MethodPost:
			var body ScheduleInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.ScheduleRecipe(r.Context(), body)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, scheduledRecipeView(item))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	id, ok := parseID(parts[0])
	if len(parts) != 1 || !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var body ScheduleUpdateInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		item, err := s.service.UpdateScheduledRecipe(r.Context(), id, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, scheduledRecipeView(item))
	case http.MethodDelete:
		if err := s.service.DeleteScheduledRecipe(r.Context(), id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFile(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
