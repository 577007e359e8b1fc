package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"oneflow/internal/identity"
	"oneflow/internal/shared/utils/response"
	"oneflow/internal/token"
	"oneflow/pkg/logger"
)

// claimsContextKey is where RequireAuth stores the verified access claims.
const claimsContextKey = "auth_claims"

// ClaimsFromContext returns the verified claims RequireAuth attached to the
// request, if any.
func ClaimsFromContext(c *gin.Context) (*token.AccessClaims, bool) {
	v, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*token.AccessClaims)
	return claims, ok
}

// RequireAuth extracts and verifies the bearer token, then forwards the
// request with the decoded claims attached. The external message is the same
// for every verification failure; the specific cause only goes to the log.
func RequireAuth(codec *token.Codec) gin.HandlerFunc {
	log := logger.GetDefault()
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authorization header is required", nil, nil)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "authorization header format must be Bearer {token}", nil, nil)
			c.Abort()
			return
		}

		claims, err := codec.VerifyAccess(parts[1])
		if err != nil {
			log.LogAuthFailure(c.Request.Context(), err.Error(), c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or expired token", nil, nil)
			c.Abort()
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// RequireRoles rejects any verified identity whose role is outside the given
// set. Plain membership, no hierarchy: admin passes only where the set says
// so.
func RequireRoles(roles ...identity.Role) gin.HandlerFunc {
	allowed := make(map[identity.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or expired token", nil, nil)
			c.Abort()
			return
		}

		role, ok := identity.ParseRole(claims.Role)
		if !ok {
			// VerifyAccess already enforces this; treated as a token failure
			// if it ever slips through.
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or expired token", nil, nil)
			c.Abort()
			return
		}

		if _, member := allowed[role]; !member {
			response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Role-set composites used by the surrounding application.

func AdminOnly() gin.HandlerFunc {
	return RequireRoles(identity.RoleAdmin)
}

func AdminOrManager() gin.HandlerFunc {
	return RequireRoles(identity.RoleAdmin, identity.RoleProjectManager)
}

func AdminOrFinance() gin.HandlerFunc {
	return RequireRoles(identity.RoleAdmin, identity.RoleFinance)
}

// CORS middleware
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
