package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dagoof/sc-buildorders/internal/application"
	"github.com/dagoof/sc-buildorders/internal/buildorder"
	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/domain"
)

type Handler struct {
	service *application.BuildService
	logger  *slog.Logger
}

func NewRouter(service *application.BuildService, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{service: service, logger: logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/races", h.handleListRaces)
		api.Get("/races/{race}/entities", h.handleListEntities)
		api.Post("/races/{race}/validate", h.handleValidate)
		api.Post("/races/{race}/tech", h.handleTech)
		api.Get("/entities/{name}", h.handleGetEntity)

		api.Get("/builds", h.handleListBuilds)
		api.Post("/builds", h.handleCreateBuild)
		api.Get("/builds/{key}", h.handleGetBuild)
		api.Post("/builds/{key}/units", h.handleAddUnit)
		api.Post("/builds/{key}/branch", h.handleBranch)
		api.Get("/builds/{key}/features", h.handleFeatures)
		api.Get("/builds/{key}/tech", h.handleBuildTech)
		api.Get("/builds/{key}/events", h.handleListEvents)
	})

	return r
}

func (h *Handler) handleListRaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Races())
}

func (h *Handler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Entities(urlParam(r, "race"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Entity(urlParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type apiUnitsRequest struct {
	Units []string `json:"units"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req apiUnitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	v, err := h.service.Validate(urlParam(r, "race"), req.Units)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleTech(w http.ResponseWriter, r *http.Request) {
	var req apiUnitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	v, err := h.service.Tech(urlParam(r, "race"), req.Units)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
		return
	}
	list, err := h.service.ListBuilds(r.Context(), r.URL.Query().Get("race"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type apiCreateBuildRequest struct {
	Race  string   `json:"race"`
	Units []string `json:"units"`
}

func (h *Handler) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	var req apiCreateBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	v, err := h.service.CreateBuild(r.Context(), req.Race, req.Units)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetBuild(r.Context(), urlParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type apiAddUnitRequest struct {
	Unit string `json:"unit"`
}

func (h *Handler) handleAddUnit(w http.ResponseWriter, r *http.Request) {
	var req apiAddUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Unit) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	v, err := h.service.AddUnit(r.Context(), urlParam(r, "key"), req.Unit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleBranch(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Branch(r.Context(), urlParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleFeatures(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Features(r.Context(), urlParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleBuildTech(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.BuildTech(r.Context(), urlParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
		return
	}
	v, err := h.service.ListEvents(r.Context(), urlParam(r, "key"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notMet *buildorder.RequirementsNotMetError
	if errors.As(err, &notMet) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   err.Error(),
			"entity":  notMet.Entity,
			"missing": notMet.Missing,
		})
		return
	}
	var unknown *catalog.UnknownEntityError
	if errors.As(err, &unknown) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":       err.Error(),
			"entity":      unknown.Name,
			"suggestions": unknown.Suggestions,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrUnknownRace), errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrBuildModified):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrEmptySequence), errors.Is(err, application.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
