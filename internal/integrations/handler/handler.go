package handler

import (
	"net/http"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/crm/salesforce"
	"sales_agent_backend/internal/email"
	"sales_agent_backend/internal/integrations/service"
	"sales_agent_backend/internal/integrations/transport"
	"sales_agent_backend/platform/httpkit"
	"sales_agent_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for the integration tools
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new integrations handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the integration tool routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/email/send", h.SendEmail)

	rg.POST("/calendar/freebusy", h.FreeBusy)
	rg.POST("/calendar/events", h.CreateEvent)
	rg.PATCH("/calendar/events/:eventId", h.UpdateEvent)
	rg.DELETE("/calendar/events/:eventId", h.DeleteEvent)

	rg.GET("/crm/person", h.FindPerson)
	rg.POST("/crm/leads", h.CreateLead)
	rg.POST("/crm/tasks", h.LogTask)
}

func (h *Handler) SendEmail(c *gin.Context) {
	var req transport.SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	id, err := h.svc.SendEmail(c.Request.Context(), email.Message{
		To:      req.To,
		Cc:      req.Cc,
		ReplyTo: req.ReplyTo,
		Subject: req.Subject,
		Body:    req.Body,
		HTML:    req.HTML,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SendEmailResponse{ID: id})
}

func (h *Handler) FreeBusy(c *gin.Context) {
	var req transport.FreeBusyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	busy, err := h.svc.FreeBusy(c.Request.Context(), req.TimeMin, req.TimeMax, req.CalendarID)
	if httpkit.HandleError(c, err) {
		return
	}
	if busy == nil {
		busy = []availability.Interval{}
	}
	httpkit.OK(c, transport.FreeBusyResponse{Busy: busy})
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var req transport.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	id, err := h.svc.CreateEvent(c.Request.Context(), req.CalendarID, availability.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		TimeZone:    req.TimeZone,
		Attendees:   req.Attendees,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.EventResponse{ID: id})
}

func (h *Handler) UpdateEvent(c *gin.Context) {
	var req transport.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	id, err := h.svc.UpdateEvent(c.Request.Context(), req.CalendarID, c.Param("eventId"), availability.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		TimeZone:    req.TimeZone,
		Attendees:   req.Attendees,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.EventResponse{ID: id})
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	err := h.svc.DeleteEvent(c.Request.Context(), c.Query("calendarId"), c.Param("eventId"))
	if httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) FindPerson(c *gin.Context) {
	var q transport.FindPersonQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if q.Email == "" && q.Phone == "" {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, "email or phone is required")
		return
	}

	p, err := h.svc.FindPerson(c.Request.Context(), q.Email, q.Phone)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.PersonResponse{
		Type:      string(p.Type),
		ID:        p.ID,
		FirstName: p.FirstName,
		Email:     p.Email,
		Phone:     p.Phone,
	})
}

func (h *Handler) CreateLead(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	id, err := h.svc.CreateLead(c.Request.Context(), salesforce.LeadInput{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Company:          req.Company,
		Email:            req.Email,
		Phone:            req.Phone,
		Title:            req.Title,
		Website:          req.Website,
		Country:          req.Country,
		LeadSourceDetail: req.LeadSourceDetail,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.IDResponse{ID: id})
}

func (h *Handler) LogTask(c *gin.Context) {
	var req transport.LogTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	id, err := h.svc.LogTask(c.Request.Context(), salesforce.TaskInput{
		WhoID:        req.WhoID,
		Subject:      req.Subject,
		Body:         req.Body,
		Direction:    salesforce.Direction(req.Direction),
		ActivityDate: req.ActivityDate,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.IDResponse{ID: id})
}
