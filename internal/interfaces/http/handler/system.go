package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/invoo/backend/internal/domain/chain"
	"github.com/invoo/backend/internal/infrastructure/safeguards"
	"github.com/invoo/backend/internal/interfaces/http/dto"
)

// SystemHandler exposes the operator surface: safeguard status, canary and
// shutdown controls, and the chain audit trail.
type SystemHandler struct {
	BaseHandler
	safeguards *safeguards.Coordinator
	chain      *chain.Manager
	startTime  time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(coordinator *safeguards.Coordinator, chainManager *chain.Manager) *SystemHandler {
	return &SystemHandler{
		safeguards: coordinator,
		chain:      chainManager,
		startTime:  time.Now(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	system := rg.Group("/system")
	{
		system.GET("/safeguards", h.SafeguardStatus)
		system.POST("/safeguards/canary", h.EngageCanary)
		system.DELETE("/safeguards/canary", h.ResetCanary)
		system.POST("/safeguards/shutdown", h.EmergencyShutdown)
		system.POST("/safeguards/reset", h.ResetSafeguards)
		system.GET("/chain/stats", h.ChainStats)
		system.GET("/chain/export", h.ExportChain)
		system.POST("/chain/import", h.ImportChain)
	}
}

// SafeguardStatus returns a point-in-time view of every safeguard
func (h *SystemHandler) SafeguardStatus(c *gin.Context) {
	h.Success(c, h.safeguards.Status())
}

// CanaryRequest sets the canary admission percentage
type CanaryRequest struct {
	Percent int `json:"percent" binding:"omitempty,min=1,max=100"`
}

// EngageCanary manually enables canary mode
func (h *SystemHandler) EngageCanary(c *gin.Context) {
	var req CanaryRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		h.BadRequest(c, "percent must be between 1 and 100")
		return
	}
	if req.Percent == 0 {
		req.Percent = safeguards.DefaultCanaryPercentage
	}

	h.safeguards.EngageCanary(req.Percent)
	h.Success(c, h.safeguards.Status())
}

// ResetCanary disables canary mode and resumes full traffic
func (h *SystemHandler) ResetCanary(c *gin.Context) {
	h.safeguards.ResetCanary()
	h.Success(c, h.safeguards.Status())
}

// EmergencyShutdown stops admitting any invoice operations
func (h *SystemHandler) EmergencyShutdown(c *gin.Context) {
	h.safeguards.EmergencyShutdown()
	h.Success(c, h.safeguards.Status())
}

// ResetSafeguards clears every safeguard back to its initial state
func (h *SystemHandler) ResetSafeguards(c *gin.Context) {
	h.safeguards.Reset()
	h.Success(c, h.safeguards.Status())
}

// ChainStats summarizes the invoice relationship graph
func (h *SystemHandler) ChainStats(c *gin.Context) {
	h.Success(c, h.chain.Stats())
}

// ExportChain serializes the full chain state for backup
func (h *SystemHandler) ExportChain(c *gin.Context) {
	data, err := h.chain.Export()
	if err != nil {
		h.InternalError(c, "chain export failed")
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// ImportChain restores chain state from a previous export
func (h *SystemHandler) ImportChain(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		h.BadRequest(c, "failed to read request body")
		return
	}
	if err := h.chain.Import(data); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "malformed chain snapshot")
		return
	}
	h.Success(c, h.chain.Stats())
}

// HealthHandler answers liveness probes
type HealthHandler struct {
	BaseHandler
	startTime time.Time
	ping      func() error
}

// NewHealthHandler creates a health handler. ping checks the database
// connection and may be nil.
func NewHealthHandler(ping func() error) *HealthHandler {
	return &HealthHandler{startTime: time.Now(), ping: ping}
}

// Health reports process liveness and database reachability
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	httpStatus := http.StatusOK
	if h.ping != nil {
		if err := h.ping(); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	c.JSON(httpStatus, gin.H{
		"status": status,
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}
