package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"oneflow/internal/audit"
	"oneflow/internal/auth"
	"oneflow/internal/identity"
	"oneflow/internal/shared/config"
	"oneflow/internal/shared/database"
	"oneflow/internal/token"
	"oneflow/pkg/cache"
	"oneflow/pkg/logger"
)

// Router holds all route dependencies
type Router struct {
	config *config.Config
	db     *database.DB
	audit  audit.Producer
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, auditProducer audit.Producer) *Router {
	return &Router{
		config: cfg,
		db:     db,
		audit:  auditProducer,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAuthRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "oneflow-auth",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "oneflow-auth",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}

// setupAuthRoutes configures authentication routes
func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	store := identity.NewGormStore(r.db.GetPostgreSQL())

	// Reads tolerate a briefly stale record; the token service itself gets
	// the uncached store so refresh observes deactivations immediately.
	reads := identity.NewCachedStore(store, cache.New(r.db.GetRedisClient()), r.config.Redis.IdentityCacheTTL)

	codec := token.NewCodec(r.config.JWT.Secret, r.config.JWT.AccessTTL, r.config.JWT.RefreshTTL)
	authService := auth.NewService(store, codec, r.audit, logger.GetDefault())
	authController := auth.NewController(authService, reads)
	authRouter := auth.NewRouter(authController, codec)

	authRouter.SetupRoutes(rg)
}
