package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/invoo/backend/internal/application/invoicing"
	"github.com/invoo/backend/internal/domain/chain"
	"github.com/invoo/backend/internal/domain/invoice"
	"github.com/invoo/backend/internal/domain/shared"
	"github.com/invoo/backend/internal/infrastructure/safeguards"
	"github.com/invoo/backend/internal/infrastructure/verifactu"
	"github.com/invoo/backend/internal/interfaces/http/dto"
	"github.com/invoo/backend/internal/interfaces/http/middleware"
)

// defaultSyncLimit bounds one status-sync sweep
const defaultSyncLimit = 100

// InvoiceHandler handles invoice submission API endpoints
type InvoiceHandler struct {
	BaseHandler
	service *invoicing.Service
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(service *invoicing.Service) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// RegisterRoutes registers invoice routes
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.POST("", h.Create)
		invoices.PUT("/:series/:number", h.Modify)
		invoices.POST("/:series/:number/cancel", h.Cancel)
		invoices.POST("/:series/:number/rectify", h.Rectify)
		invoices.GET("/:series/:number/status", h.Status)
		invoices.GET("/:series/:number/chain", h.Chain)
		invoices.POST("/sync", h.Sync)
	}
}

// Create submits a new invoice to the tax authority
func (h *InvoiceHandler) Create(c *gin.Context) {
	var doc invoice.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		h.BadRequest(c, "invalid invoice payload: "+err.Error())
		return
	}

	result := h.service.CreateInvoice(c.Request.Context(), &doc)
	h.writeResult(c, result, http.StatusCreated)
}

// Modify resubmits an existing invoice with corrected data
func (h *InvoiceHandler) Modify(c *gin.Context) {
	var doc invoice.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		h.BadRequest(c, "invalid invoice payload: "+err.Error())
		return
	}
	// the path is authoritative for identity
	doc.Series = c.Param("series")
	doc.Number = c.Param("number")

	result := h.service.ModifyInvoice(c.Request.Context(), &doc)
	h.writeResult(c, result, http.StatusOK)
}

// Cancel voids a previously submitted invoice
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	result := h.service.CancelInvoice(c.Request.Context(), c.Param("series"), c.Param("number"))
	h.writeResult(c, result, http.StatusOK)
}

// RectifyRequest wraps a rectification invoice and the invoice it corrects
type RectifyRequest struct {
	TargetInvoiceID string           `json:"target_invoice_id" binding:"required"`
	Document        invoice.Document `json:"document" binding:"required"`
}

// Rectify submits a rectification invoice (R1-R5) against the invoice in
// the path
func (h *InvoiceHandler) Rectify(c *gin.Context) {
	var req RectifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result := h.service.RectifyInvoice(c.Request.Context(), &req.Document, req.TargetInvoiceID)
	h.writeResult(c, result, http.StatusCreated)
}

// Status queries the tax authority for the current submission status
func (h *InvoiceHandler) Status(c *gin.Context) {
	resp, err := h.service.GetStatus(c.Request.Context(), c.Param("series"), c.Param("number"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.Success(c, resp)
}

// Chain returns the recorded lifecycle events of an invoice
func (h *InvoiceHandler) Chain(c *gin.Context) {
	invoiceID := c.Param("series") + "-" + c.Param("number")
	events := h.service.ChainFor(invoiceID)
	h.Success(c, gin.H{"invoice_id": invoiceID, "events": events})
}

// Sync refreshes every pending invoice record from the tax authority
func (h *InvoiceHandler) Sync(c *gin.Context) {
	limit := defaultSyncLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	updated, err := h.service.SyncPendingStatuses(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.Success(c, gin.H{"updated": updated})
}

// writeResult translates an operation result into the response envelope
func (h *InvoiceHandler) writeResult(c *gin.Context, result *invoicing.Result, successStatus int) {
	if result.Success {
		c.JSON(successStatus, dto.NewSuccessResponse(result))
		return
	}
	h.writeError(c, result.Err)
}

// writeError maps the error taxonomy onto HTTP statuses: validation 400,
// chain conflicts 409, safeguard rejections 429/503, terminal remote
// rejections 422, exhausted retries 502.
func (h *InvoiceHandler) writeError(c *gin.Context, err error) {
	var vErr *invoice.ValidationError
	if errors.As(err, &vErr) {
		details := make([]dto.ValidationDetail, len(vErr.Violations))
		for i, v := range vErr.Violations {
			details[i] = dto.ValidationDetail{Field: v.Field, Code: v.Code, Message: v.Message}
		}
		h.ValidationError(c, details)
		return
	}

	var cErr *chain.ValidationError
	if errors.As(err, &cErr) {
		h.Error(c, http.StatusConflict, dto.ErrCodeChainConflict, cErr.Error())
		return
	}

	var rejection *safeguards.Rejection
	if errors.As(err, &rejection) {
		status := http.StatusServiceUnavailable
		if rejection.Code == safeguards.CodeRateLimit {
			status = http.StatusTooManyRequests
		}
		if rejection.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(rejection.RetryAfter.Seconds())))
		}
		info := dto.NewErrorResponseWithRequestID(dto.ErrCodeSafeguardRejected, rejection.Reason, getRequestID(c))
		info.Error.RetryAfter = rejection.RetryAfter.String()
		c.JSON(status, info)
		return
	}

	var apiErr *verifactu.APIError
	if errors.As(err, &apiErr) {
		code := dto.ErrCodeRemoteRejected
		status := http.StatusUnprocessableEntity
		if apiErr.Retryable {
			code = dto.ErrCodeRemoteUnavailable
			status = http.StatusBadGateway
		}
		resp := dto.NewErrorResponseWithRequestID(code, apiErr.Message, getRequestID(c))
		for _, d := range apiErr.Details {
			resp.Error.Details = append(resp.Error.Details, dto.ValidationDetail{
				Field:   d.Field,
				Code:    d.Code,
				Message: d.Message,
			})
		}
		c.JSON(status, resp)
		return
	}

	if errors.Is(err, shared.ErrNotFound) {
		h.NotFound(c, "invoice not found")
		return
	}

	h.InternalError(c, err.Error())
}
