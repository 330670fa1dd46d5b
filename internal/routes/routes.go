// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"pos-sync-service/internal/config"
	"pos-sync-service/internal/database"
	"pos-sync-service/internal/handler"
	"pos-sync-service/internal/middleware"
	"pos-sync-service/internal/repository"
	"pos-sync-service/internal/service"
	"pos-sync-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config  *config.Config
	logger  *zap.Logger
	db      *database.DB
	store   *repository.LocalStore
	engine  *service.SyncEngine
	catalog *service.CatalogService
	monitor handler.NetworkMonitor

	wsHandler *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db is nil on the memory backend.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	store *repository.LocalStore,
	engine *service.SyncEngine,
	catalog *service.CatalogService,
	monitor handler.NetworkMonitor,
) *Router {
	return &Router{
		config:  config,
		logger:  logger,
		db:      db,
		store:   store,
		engine:  engine,
		catalog: catalog,
		monitor: monitor,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// Close disconnects status stream clients
func (r *Router) Close() {
	if r.wsHandler != nil {
		r.wsHandler.Close()
	}
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(r.logger))

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))
	router.Use(middleware.RateLimitMiddleware(&r.config.Security, utils.NewSecurityLogger(r.logger), r.logger))

	r.logger.Info("Middleware configured",
		zap.Bool("rate_limit", r.config.Security.RateLimitEnabled),
	)
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	r.wsHandler = handler.NewWebSocketHandler(r.engine, r.monitor, r.config.Security.AllowedOrigins, r.logger)
	healthHandler := handler.NewHealthHandler(r.store, r.db, r.monitor, r.wsHandler, r.config, r.logger)
	orderHandler := handler.NewOrderHandler(r.engine, r.store, r.logger)
	syncHandler := handler.NewSyncHandler(r.engine, r.store, r.logger)
	networkHandler := handler.NewNetworkHandler(r.monitor, r.logger)
	catalogHandler := handler.NewCatalogHandler(r.catalog, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(&router.RouterGroup)

	apiV1 := router.Group("/api/v1")
	orderHandler.RegisterRoutes(apiV1)
	syncHandler.RegisterRoutes(apiV1)
	networkHandler.RegisterRoutes(apiV1)
	catalogHandler.RegisterRoutes(apiV1)

	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
