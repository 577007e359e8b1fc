package auth

import (
	"github.com/gin-gonic/gin"

	"oneflow/internal/shared/middleware"
	"oneflow/internal/token"
)

// Router handles auth-related routes
type Router struct {
	controller *Controller
	codec      *token.Codec
}

// NewRouter creates a new auth router
func NewRouter(controller *Controller, codec *token.Codec) *Router {
	return &Router{
		controller: controller,
		codec:      codec,
	}
}

// SetupRoutes registers all auth routes
func (r *Router) SetupRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		// Public routes (no authentication required)
		auth.POST("/register", r.controller.Register)
		auth.POST("/login", r.controller.Login)
		auth.POST("/refresh", r.controller.Refresh)
		auth.POST("/logout", r.controller.Logout)

		// Protected routes (authentication required)
		protected := auth.Group("")
		protected.Use(middleware.RequireAuth(r.codec))
		{
			protected.GET("/me", r.controller.Me)
			protected.GET("/identities", middleware.AdminOnly(), r.controller.ListIdentities)
		}
	}
}
