package appointment

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/handler"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/appointment"
	"github.com/jwalitptl/clinic-api/internal/service/consultation"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

type Handler struct {
	service       *appointment.Service
	consultations *consultation.Service
}

func NewHandler(service *appointment.Service, consultations *consultation.Service) *Handler {
	return &Handler{service: service, consultations: consultations}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	appointments := protected.Group("/appointments")
	{
		appointments.POST("", middleware.Protect(model.RolePatient, model.RoleAdmin), h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id/status", h.UpdateStatus)
		appointments.DELETE("/:id", middleware.Protect(model.RoleAdmin), h.DeleteAppointment)
		appointments.GET("/:id/consultation", h.GetConsultation)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.BookAppointmentRequest
	if !handler.Bind(c, &req) {
		return
	}

	apt, err := h.service.Book(c.Request.Context(), middleware.SessionFrom(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.Get(c.Request.Context(), middleware.SessionFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	var filter model.AppointmentFilter
	var ok bool

	if filter.DoctorID, ok = handler.QueryID(c, "doctor_id"); !ok {
		return
	}
	if filter.PatientID, ok = handler.QueryID(c, "patient_id"); !ok {
		return
	}
	if status := c.Query("status"); status != "" {
		filter.Status = model.AppointmentStatus(status)
		if !filter.Status.Valid() {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid status filter", nil))
			return
		}
	}

	list, err := h.service.List(c.Request.Context(), middleware.SessionFrom(c), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.TransitionRequest
	if !handler.Bind(c, &req) {
		return
	}

	apt, err := h.service.Transition(c.Request.Context(), middleware.SessionFrom(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.SessionFrom(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, "appointment deleted")
}

func (h *Handler) GetConsultation(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	consult, err := h.consultations.GetByAppointment(c.Request.Context(), middleware.SessionFrom(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, consult)
}
