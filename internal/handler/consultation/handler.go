package consultation

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/consultation"
	"github.com/jwalitptl/clinic-api/internal/service/prescription"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	svc           *consultation.Service
	prescriptions *prescription.Service
}

func NewHandler(svc *consultation.Service, prescriptions *prescription.Service) *Handler {
	return &Handler{svc: svc, prescriptions: prescriptions}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	consultations := protected.Group("/consultations")
	consultations.GET("/:id", h.Get)

	clinical := consultations.Group("", middleware.Protect(model.RoleDoctor, model.RoleAdmin))
	{
		clinical.PUT("/:id/diagnosis", h.SetDiagnosis)
		clinical.POST("/:id/notes", h.AddNote)
		clinical.POST("/:id/lab-orders", h.AddLabOrder)
		clinical.POST("/:id/attachments", h.AddAttachment)
		clinical.POST("/:id/prescriptions", h.IssuePrescription)
		clinical.POST("/:id/end", h.End)
		clinical.POST("/:id/lock", h.Lock)
	}
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	consult, err := h.svc.Get(c.Request.Context(), middleware.SessionFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, consult)
}

// write binds req and applies one ONGOING-only mutation.
func write[R any](c *gin.Context, fn func(context.Context, *model.Session, uuid.UUID, *R) (*model.Consultation, error)) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req R
	if !handler.Bind(c, &req) {
		return
	}

	consult, err := fn(c.Request.Context(), middleware.SessionFrom(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, consult)
}

func (h *Handler) SetDiagnosis(c *gin.Context) {
	write(c, h.svc.SetDiagnosis)
}

func (h *Handler) AddNote(c *gin.Context) {
	write(c, h.svc.AddNote)
}

func (h *Handler) AddLabOrder(c *gin.Context) {
	write(c, h.svc.AddLabOrder)
}

func (h *Handler) AddAttachment(c *gin.Context) {
	write(c, h.svc.AddAttachment)
}

// End accepts an empty body; the summary is then generated.
func (h *Handler) End(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.EndConsultationRequest
	if c.Request.ContentLength != 0 && !handler.Bind(c, &req) {
		return
	}

	consult, err := h.svc.End(c.Request.Context(), middleware.SessionFrom(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, consult)
}

func (h *Handler) Lock(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	consult, err := h.svc.Lock(c.Request.Context(), middleware.SessionFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, consult)
}

func (h *Handler) IssuePrescription(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.IssuePrescriptionRequest
	if !handler.Bind(c, &req) {
		return
	}

	rx, err := h.prescriptions.Issue(c.Request.Context(), middleware.SessionFrom(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, rx)
}
