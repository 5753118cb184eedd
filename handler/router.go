package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"qa-assistant/internal/usecase"
)

const maxBodyBytes = 1 << 20

// NewRouter exposes the handler over plain HTTP.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.apiKeyMiddleware)
			r.Post("/ask", h.askHTTP)
		})
	})

	return r
}

func (h *Handler) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r.Header.Get(headerAPIKey)) {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: errorUnauthorized})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) askHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get(headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	w.Header().Set(headerCorrelationID, correlationID)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("read request body", "correlation_id", correlationID, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}

	res := h.ask(r.Context(), correlationID, r.Header.Get(headerSessionID), raw)
	if res.sessionID != "" {
		w.Header().Set(headerSessionID, res.sessionID)
	}
	writeJSON(w, res.status, res.body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "err", err)
	}
}
