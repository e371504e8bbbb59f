// Package principal serves the admin account-management routes.
package principal

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/auth"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	principals := protected.Group("/principals", middleware.Protect(model.RoleAdmin))
	{
		principals.POST("", h.Create)
		principals.GET("", h.List)
		principals.PATCH("/:id/role", h.ChangeRole)
		principals.PATCH("/:id/status", h.ChangeStatus)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreatePrincipalRequest
	if !handler.Bind(c, &req) {
		return
	}

	principal, err := h.svc.CreatePrincipal(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, principal)
}

func (h *Handler) List(c *gin.Context) {
	filter := model.PrincipalFilter{
		Role:   model.Role(c.Query("role")),
		Status: model.PrincipalStatus(c.Query("status")),
	}
	if filter.Role != "" && !filter.Role.Valid() {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid role filter", nil))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid status filter", nil))
		return
	}

	list, err := h.svc.ListPrincipals(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) ChangeRole(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateRoleRequest
	if !handler.Bind(c, &req) {
		return
	}

	principal, err := h.svc.ChangeRole(c.Request.Context(), id, req.Role)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, principal)
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateStatusRequest
	if !handler.Bind(c, &req) {
		return
	}

	principal, err := h.svc.ChangeStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, principal)
}
