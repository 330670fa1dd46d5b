// internal/handler/order_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-sync-service/internal/model"
	"pos-sync-service/internal/repository"
	"pos-sync-service/internal/service"
	"pos-sync-service/internal/utils"
)

// OrderHandler handles checkout and order inspection requests
type OrderHandler struct {
	engine *service.SyncEngine
	store  *repository.LocalStore
	audit  *utils.AuditLogger
	logger *utils.ServiceLogger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(engine *service.SyncEngine, store *repository.LocalStore, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		engine: engine,
		store:  store,
		audit:  utils.NewAuditLogger(logger),
		logger: utils.NewServiceLogger(logger, "order-handler"),
	}
}

// RegisterRoutes registers order routes
func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/unsynced", h.ListUnsyncedOrders)
		orders.GET("/:id", h.GetOrder)
		orders.DELETE("/:id", h.DeleteOrder)
	}
}

// CreateOrder records a sale on this terminal
// @Summary Create an offline order
// @Description Persist a completed sale locally. The order is delivered to the back office by the sync engine.
// @Tags Orders
// @Accept json
// @Produce json
// @Param request body service.OrderDraft true "Checkout cart"
// @Success 201 {object} utils.APIResponse{data=model.OfflineOrder} "Order recorded"
// @Failure 400 {object} utils.APIResponse "Invalid order"
// @Failure 500 {object} utils.APIResponse "Local storage failure"
// @Router /orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var draft service.OrderDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		respondBindingError(c, err)
		return
	}

	order, err := h.engine.CreateOfflineOrder(c.Request.Context(), draft)
	if err != nil {
		h.logger.Error("Failed to record order", zap.Error(err))
		respondServiceError(c, "Failed to record order", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Order recorded", order)
}

// ListOrders lists local orders
// @Summary List local orders
// @Description List every order held on this terminal, optionally filtered by sync state
// @Tags Orders
// @Produce json
// @Param synced query bool false "Filter by sync state"
// @Success 200 {object} utils.APIResponse{data=[]model.OfflineOrder}
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Router /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.store.GetAllOrders(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to list orders", err)
		return
	}

	if raw := c.Query("synced"); raw != "" {
		synced, err := strconv.ParseBool(raw)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid synced filter", err)
			return
		}
		filtered := make([]*model.OfflineOrder, 0, len(orders))
		for _, order := range orders {
			if order.Synced == synced {
				filtered = append(filtered, order)
			}
		}
		orders = filtered
	}

	utils.SuccessResponse(c, http.StatusOK, "Orders retrieved", orders)
}

// ListUnsyncedOrders lists the sync queue
// @Summary List unsynced orders
// @Description List orders waiting for the back office, oldest first
// @Tags Orders
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.OfflineOrder}
// @Router /orders/unsynced [get]
func (h *OrderHandler) ListUnsyncedOrders(c *gin.Context) {
	orders, err := h.store.GetUnsyncedOrders(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to list unsynced orders", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Unsynced orders retrieved", orders)
}

// GetOrder returns one local order
// @Summary Get an order
// @Tags Orders
// @Produce json
// @Param id path string true "Local order id"
// @Success 200 {object} utils.APIResponse{data=model.OfflineOrder}
// @Failure 404 {object} utils.APIResponse "Order not found"
// @Router /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.store.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, "Order not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Order retrieved", order)
}

// DeleteOrder removes a local order
// @Summary Delete an order
// @Description Remove an order from this terminal. Debug tooling only; an unsynced order deleted here is never delivered.
// @Tags Orders
// @Produce json
// @Param id path string true "Local order id"
// @Success 200 {object} utils.APIResponse{data=model.OfflineOrder}
// @Failure 404 {object} utils.APIResponse "Order not found"
// @Router /orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id := c.Param("id")

	order, err := h.engine.DeleteOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "Failed to delete order", err)
		return
	}
	if order == nil {
		respondServiceError(c, "Order not found", repository.ErrNotFound)
		return
	}

	h.audit.LogOrderDeleted(order.ID, order.Synced, c.ClientIP())
	utils.SuccessResponse(c, http.StatusOK, "Order deleted", order)
}
