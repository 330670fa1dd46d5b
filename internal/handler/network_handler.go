// internal/handler/network_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-sync-service/internal/model"
	"pos-sync-service/internal/network"
	"pos-sync-service/internal/utils"
)

// NetworkMonitor is the connectivity view the handlers need
type NetworkMonitor interface {
	network.NetworkProbe
	Subscribe(buffer int) (<-chan model.NetworkStatus, func())
	NotifyVisible(visible bool)
}

// VisibilityRequest reports whether the cashier UI is in the foreground
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// NetworkHandler exposes the connectivity monitor
type NetworkHandler struct {
	monitor NetworkMonitor
	logger  *utils.ServiceLogger
}

// NewNetworkHandler creates a new network handler
func NewNetworkHandler(monitor NetworkMonitor, logger *zap.Logger) *NetworkHandler {
	return &NetworkHandler{
		monitor: monitor,
		logger:  utils.NewServiceLogger(logger, "network-handler"),
	}
}

// RegisterRoutes registers network routes
func (h *NetworkHandler) RegisterRoutes(router *gin.RouterGroup) {
	networkRoutes := router.Group("/network")
	{
		networkRoutes.GET("/status", h.GetStatus)
		networkRoutes.POST("/check", h.CheckNow)
		networkRoutes.POST("/visibility", h.SetVisibility)
	}
}

// GetStatus returns the last connectivity snapshot
// @Summary Get network status
// @Tags Network
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.NetworkStatus}
// @Router /network/status [get]
func (h *NetworkHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Network status retrieved", h.monitor.Status())
}

// CheckNow runs a probe cycle and returns its outcome
// @Summary Probe the back office now
// @Description Run a probe cycle with retries. Joins a cycle that is already running.
// @Tags Network
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.NetworkStatus}
// @Router /network/check [post]
func (h *NetworkHandler) CheckNow(c *gin.Context) {
	status := h.monitor.CheckNow(c.Request.Context())
	utils.SuccessResponse(c, http.StatusOK, "Network checked", status)
}

// SetVisibility forwards UI visibility changes to the monitor
// @Summary Report UI visibility
// @Description A transition to visible triggers an immediate probe
// @Tags Network
// @Accept json
// @Produce json
// @Param request body VisibilityRequest true "Visibility"
// @Success 202 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /network/visibility [post]
func (h *NetworkHandler) SetVisibility(c *gin.Context) {
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	h.monitor.NotifyVisible(*req.Visible)
	utils.SuccessResponse(c, http.StatusAccepted, "Visibility recorded", gin.H{"visible": *req.Visible})
}
