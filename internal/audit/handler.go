package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-ops/atelier-ops/internal/auth"
	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

// Handler serves the audit log to admins.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      *auth.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw *auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers audit log routes, admin-only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireRole(shared.RoleAdmin))
	r.Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list audit log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}
