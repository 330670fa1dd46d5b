// internal/handler/sync_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-sync-service/internal/repository"
	"pos-sync-service/internal/service"
	"pos-sync-service/internal/utils"
)

// SyncHandler exposes the sync queue state and manual sync
type SyncHandler struct {
	engine *service.SyncEngine
	store  *repository.LocalStore
	logger *utils.ServiceLogger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(engine *service.SyncEngine, store *repository.LocalStore, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		store:  store,
		logger: utils.NewServiceLogger(logger, "sync-handler"),
	}
}

// RegisterRoutes registers sync and storage routes
func (h *SyncHandler) RegisterRoutes(router *gin.RouterGroup) {
	sync := router.Group("/sync")
	{
		sync.POST("/force", h.ForceSync)
		sync.GET("/status", h.GetSyncStatus)
	}

	router.GET("/storage/info", h.GetStorageInfo)
}

// ForceSync drains the queue immediately
// @Summary Force a sync cycle
// @Description Deliver every pending order now. Joins a cycle that is already running.
// @Tags Sync
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.CycleResult} "Cycle finished"
// @Failure 409 {object} utils.APIResponse "Another engine owns the queue"
// @Failure 503 {object} utils.APIResponse "Back office unreachable"
// @Router /sync/force [post]
func (h *SyncHandler) ForceSync(c *gin.Context) {
	result, err := h.engine.ForceSync(c.Request.Context())
	if err != nil {
		h.logger.Warn("Manual sync failed", zap.Error(err))
		respondServiceError(c, "Sync failed", err)
		return
	}

	message := "Sync completed"
	if result.Failed > 0 {
		message = "Sync completed with failures"
	}
	utils.SuccessResponse(c, http.StatusOK, message, result)
}

// GetSyncStatus returns the current sync status
// @Summary Get sync status
// @Tags Sync
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.SyncStatus}
// @Router /sync/status [get]
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Sync status retrieved", h.engine.GetSyncStatus())
}

// GetStorageInfo returns local store counts
// @Summary Get local storage info
// @Description Count cached products and customers, unsynced orders and synced orders kept for audit
// @Tags Storage
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.StorageInfo}
// @Failure 500 {object} utils.APIResponse "Local storage failure"
// @Router /storage/info [get]
func (h *SyncHandler) GetStorageInfo(c *gin.Context) {
	info, err := h.store.GetStorageInfo(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to read storage info", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Storage info retrieved", info)
}
