package handler

import (
	"io"
	"net/http"

	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/calls/service"
	"sales_agent_backend/internal/calls/transport"
	"sales_agent_backend/internal/sms"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/httpkit"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"

	maxWebhookBody = 64 << 10
)

// Handler handles HTTP requests for call sessions.
type Handler struct {
	svc *service.Service
	val *validator.Validator
	log *logger.Logger
}

// New creates a new calls handler.
func New(svc *service.Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, val: val, log: log}
}

// RegisterRoutes registers the call session routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Start)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/facts", h.UpdateFacts)
	rg.POST("/:id/qualify", h.Qualify)
	rg.POST("/:id/consent", h.Consent)
	rg.POST("/:id/resolve-contact", h.ResolveContact)
	rg.POST("/:id/slot", h.ProposeSlot)
	rg.POST("/:id/email/request", h.RequestEmail)
	rg.POST("/:id/email", h.ProvideEmail)
	rg.POST("/:id/email/decline", h.DeclineEmail)
	rg.POST("/:id/dispatch", h.Dispatch)
	rg.POST("/:id/close", h.Close)
	rg.POST("/:id/hangup", h.Hangup)
}

// RegisterWebhooks registers unauthenticated provider callbacks.
func (h *Handler) RegisterWebhooks(rg *gin.RouterGroup) {
	rg.POST("/sms/inbound", h.InboundSMS)
}

// Start opens a session, or resumes the caller's open one.
func (h *Handler) Start(c *gin.Context) {
	var req transport.StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sess, created, err := h.svc.Start(c.Request.Context(), req.Phone)
	if httpkit.HandleError(c, err) {
		return
	}
	h.log.WithContext(c.Request.Context()).Info("call started",
		"session_id", sess.ID,
		"principal", httpkit.GetPrincipal(c).Subject(),
		"resumed", !created,
	)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, transport.NewSessionResponse(sess))
}

// Get returns the session.
func (h *Handler) Get(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, sess, err)
}

// UpdateFacts merges caller facts into the session.
func (h *Handler) UpdateFacts(c *gin.Context) {
	var req transport.UpdateFactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sess, err := h.svc.UpdateFacts(c.Request.Context(), c.Param("id"), service.FactsUpdate{
		UseCase: req.UseCase,
		Volumes: req.Volumes,
		Numbers: req.Numbers,
		Email:   req.Email,
	})
	h.respond(c, sess, err)
}

// Qualify prices the caller's usage and assigns a tier.
func (h *Handler) Qualify(c *gin.Context) {
	sess, err := h.svc.Qualify(c.Request.Context(), c.Param("id"))
	h.respond(c, sess, err)
}

// Consent records the caller's CRM consent answer.
func (h *Handler) Consent(c *gin.Context) {
	var req transport.ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sess, err := h.svc.RecordConsent(c.Request.Context(), c.Param("id"), *req.Granted)
	h.respond(c, sess, err)
}

// ResolveContact finds or creates the caller's CRM record.
func (h *Handler) ResolveContact(c *gin.Context) {
	sess, err := h.svc.ResolveContact(c.Request.Context(), c.Param("id"))
	h.respond(c, sess, err)
}

// ProposeSlot checks a meeting window against the organizer's calendar.
func (h *Handler) ProposeSlot(c *gin.Context) {
	var req transport.ProposeSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sess, err := h.svc.ProposeSlot(c.Request.Context(), c.Param("id"), service.SlotRequest{
		Start:    req.Start,
		End:      req.End,
		TimeZone: req.TimeZone,
	})
	h.respond(c, sess, err)
}

// RequestEmail asks the caller for an address, by voice or SMS.
func (h *Handler) RequestEmail(c *gin.Context) {
	var req transport.RequestEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	sess, err := h.svc.RequestEmail(c.Request.Context(), c.Param("id"), service.EmailRequest{
		Consent: req.Consent,
		ViaSMS:  req.ViaSMS,
	})
	h.respond(c, sess, err)
}

// ProvideEmail captures an address spoken by the caller.
func (h *Handler) ProvideEmail(c *gin.Context) {
	var req transport.ProvideEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	sess, err := h.svc.ProvideEmail(c.Request.Context(), c.Param("id"), req.Email)
	h.respond(c, sess, err)
}

// DeclineEmail records that the caller will not share an address.
func (h *Handler) DeclineEmail(c *gin.Context) {
	sess, err := h.svc.DeclineEmail(c.Request.Context(), c.Param("id"))
	h.respond(c, sess, err)
}

// Dispatch runs the tier's follow-up actions.
func (h *Handler) Dispatch(c *gin.Context) {
	sess, err := h.svc.Dispatch(c.Request.Context(), c.Param("id"))
	h.respond(c, sess, err)
}

// Close logs the call and ends the session.
func (h *Handler) Close(c *gin.Context) {
	sess, err := h.svc.Close(c.Request.Context(), c.Param("id"))
	h.respond(c, sess, err)
}

// Hangup ends the session early and logs what is known.
func (h *Handler) Hangup(c *gin.Context) {
	sess, err := h.svc.Hangup(c.Request.Context(), c.Param("id"))
	h.respond(c, sess, err)
}

// InboundSMS attaches an emailed-back address to the sender's open session.
// The provider retries on non-2xx, so anything we cannot use is acknowledged.
func (h *Handler) InboundSMS(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	log := h.log.WithContext(c.Request.Context())
	msg, err := sms.ParseInbound(body)
	if err != nil {
		log.Warn("inbound sms ignored", "error", err)
		httpkit.OK(c, gin.H{"status": "ignored"})
		return
	}
	if msg.EventType != "" && msg.EventType != sms.EventMessageReceived {
		httpkit.OK(c, gin.H{"status": "ignored"})
		return
	}

	addr, ok := sms.ExtractEmail(msg.Text)
	if !ok {
		log.Info("inbound sms without email", "from", msg.From)
		httpkit.OK(c, gin.H{"status": "ignored"})
		return
	}

	sess, err := h.svc.AttachEmailByPhone(c.Request.Context(), msg.From, addr)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			log.Error("attach sms email failed", "from", msg.From, "error", err)
		}
		httpkit.OK(c, gin.H{"status": "ignored"})
		return
	}
	httpkit.OK(c, gin.H{"status": "attached", "sessionId": sess.ID})
}

func (h *Handler) respond(c *gin.Context, sess *domain.Session, err error) {
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewSessionResponse(sess))
}
