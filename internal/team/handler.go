package team

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

// Handler manages team roster and status toggle endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       *auth.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw *auth.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		mw:       mw,
		validate: validator.New(),
	}
}

// MountTeamRoutes registers roster routes. The router mounts these
// behind RequireAuth already.
func (h *Handler) MountTeamRoutes(r chi.Router) {
	r.Get("/", h.listMembers)
	r.Get("/{id}", h.getMember)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(shared.RoleAdmin))
		r.Post("/", h.createMember)
		r.Patch("/{id}", h.updateMember)
		r.Delete("/{id}", h.deleteMember)
	})
}

// MountPayStatusRoutes registers the per-project paid flag routes.
func (h *Handler) MountPayStatusRoutes(r chi.Router) {
	r.Get("/", h.listPayStatus)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(shared.RoleAdmin))
		r.Post("/", h.togglePayStatus)
	})
}

// MountProfitShareRoutes registers the per-quarter paid flag routes.
func (h *Handler) MountProfitShareRoutes(r chi.Router) {
	r.Get("/", h.listProfitShareStatus)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(shared.RoleAdmin))
		r.Post("/", h.toggleProfitShareStatus)
	})
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		h.logger.Error("list members", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, members)
}

func (h *Handler) getMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) createMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := h.service.CreateMember(r.Context(), req)
	if err != nil {
		h.logger.Error("create member", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) updateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	actor, _ := shared.ActorFromContext(r.Context())
	member, err := h.service.UpdateMember(r.Context(), id, req, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) deleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteMember(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) listPayStatus(w http.ResponseWriter, r *http.Request) {
	var projectID *int64
	if raw := r.URL.Query().Get("projectId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Error(w, http.StatusBadRequest, "invalid projectId")
			return
		}
		projectID = &id
	}

	statuses, err := h.service.ListPayStatus(r.Context(), projectID)
	if err != nil {
		h.logger.Error("list pay status", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if statuses == nil {
		statuses = []PayStatus{}
	}
	httpx.JSON(w, http.StatusOK, statuses)
}

func (h *Handler) togglePayStatus(w http.ResponseWriter, r *http.Request) {
	var req TogglePayStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "projectId, memberId and paid are required")
		return
	}

	actor, _ := shared.ActorFromContext(r.Context())
	status, err := h.service.TogglePayStatus(r.Context(), req, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) listProfitShareStatus(w http.ResponseWriter, r *http.Request) {
	var quarter *string
	if raw := r.URL.Query().Get("quarter"); raw != "" {
		quarter = &raw
	}

	statuses, err := h.service.ListProfitShareStatus(r.Context(), quarter)
	if err != nil {
		h.logger.Error("list profit share status", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if statuses == nil {
		statuses = []ProfitShareStatus{}
	}
	httpx.JSON(w, http.StatusOK, statuses)
}

func (h *Handler) toggleProfitShareStatus(w http.ResponseWriter, r *http.Request) {
	var req ToggleProfitShareRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "quarter, memberId and paid are required")
		return
	}

	actor, _ := shared.ActorFromContext(r.Context())
	status, err := h.service.ToggleProfitShareStatus(r.Context(), req, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}
