package payledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atelier-ops/atelier-ops/internal/auth"
	"github.com/atelier-ops/atelier-ops/internal/platform/httpx"
	"github.com/atelier-ops/atelier-ops/internal/shared"
)

// Handler manages pay ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	summary  *SummaryCache
	mw       *auth.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, summary *SummaryCache, mw *auth.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		summary:  summary,
		mw:       mw,
		validate: validator.New(),
	}
}

// MountRoutes registers pay ledger routes, all admin-only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireRole(shared.RoleAdmin))
	r.Get("/", h.list)
	r.Get("/summary", h.getSummary)
	r.Post("/", h.create)
	r.Delete("/{id}", h.delete)
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
		h.logger.Error("list pay log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.summary.Get(r.Context())
	if err != nil {
		h.logger.Error("payout summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "memberId, payType and amount are required")
		return
	}

	actor, _ := shared.ActorFromContext(r.Context())
	entry, err := h.service.Record(r.Context(), req, actor)
	if err != nil {
		h.logger.Error("record payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.summary.Invalidate(r.Context())
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.summary.Invalidate(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
