package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invoo/backend/internal/application/invoicing"
	"github.com/invoo/backend/internal/interfaces/http/dto"
)

// SignatureHeader carries the HMAC of the raw webhook body
const SignatureHeader = "X-Webhook-Signature"

// WebhookHandler receives invoice status notifications from the tax
// authority API
type WebhookHandler struct {
	BaseHandler
	service *invoicing.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(service *invoicing.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// RegisterRoutes registers webhook routes. These live outside the versioned
// API group: the remote API is configured with this exact path.
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/verifactu", h.Receive)
}

// Receive verifies and applies one status notification. The signature is
// computed over the raw body, so it must be read before any JSON binding.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "failed to read request body")
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeBadSignature, "missing webhook signature")
		return
	}

	result, err := h.service.ProcessNotification(c.Request.Context(), body, signature)
	if err != nil {
		if errors.Is(err, invoicing.ErrInvalidSignature) {
			h.Error(c, http.StatusUnauthorized, dto.ErrCodeBadSignature, "webhook signature verification failed")
			return
		}
		h.BadRequest(c, err.Error())
		return
	}

	h.Success(c, result)
}
