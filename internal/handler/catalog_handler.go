// internal/handler/catalog_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pos-sync-service/internal/repository"
	"pos-sync-service/internal/service"
	"pos-sync-service/internal/utils"
)

// CatalogHandler serves the cached catalog
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *utils.ServiceLogger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  utils.NewServiceLogger(logger, "catalog-handler"),
	}
}

// RegisterRoutes registers catalog routes
func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	catalog := router.Group("/catalog")
	{
		catalog.GET("/products", h.GetProducts)
		catalog.GET("/customers", h.GetCustomers)
		catalog.POST("/refresh", h.Refresh)
	}
}

// GetProducts returns the cached products
// @Summary List cached products
// @Tags Catalog
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.Product}
// @Router /catalog/products [get]
func (h *CatalogHandler) GetProducts(c *gin.Context) {
	products, err := h.catalog.GetProducts(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to read products", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Products retrieved", products)
}

// GetCustomers returns the cached customers
// @Summary List cached customers
// @Tags Catalog
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]model.Customer}
// @Router /catalog/customers [get]
func (h *CatalogHandler) GetCustomers(c *gin.Context) {
	customers, err := h.catalog.GetCustomers(c.Request.Context())
	if err != nil {
		respondServiceError(c, "Failed to read customers", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Customers retrieved", customers)
}

// Refresh downloads the catalog from the back office
// @Summary Refresh the catalog
// @Tags Catalog
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.CatalogRefreshResult}
// @Failure 502 {object} utils.APIResponse "Back office request failed"
// @Failure 503 {object} utils.APIResponse "Back office unreachable"
// @Router /catalog/refresh [post]
func (h *CatalogHandler) Refresh(c *gin.Context) {
	result, err := h.catalog.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Warn("Catalog refresh failed", zap.Error(err))
		if errors.Is(err, service.ErrOffline) || errors.Is(err, repository.ErrStorage) {
			respondServiceError(c, "Catalog refresh failed", err)
			return
		}
		utils.CodedErrorResponse(c, http.StatusBadGateway, utils.CodeRemoteFailure, "Catalog refresh failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Catalog refreshed", result)
}
