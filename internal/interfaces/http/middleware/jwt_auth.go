package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/authstore/pkg/logger"
)

// ContextKeyClaims is the gin context key holding the verified claims of the caller.
const ContextKeyClaims = "claims"

// TokenVerifier validates a compact JWS issued by this service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (jwt.MapClaims, error)
}

// extractBearer extracts the token from the Authorization header.
func extractBearer(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequireJWT protects routes with a bearer token signed by one of the published
// signing keys. When requiredScope is set the token's scope claim must contain it.
func RequireJWT(verifier TokenVerifier, requiredScope string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractBearer(c.Request.Header.Get("Authorization"))
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "bearer token required"})
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			log.Warn(c.Request.Context(), "Rejected bearer token", logger.Err(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		if requiredScope != "" && !hasScope(claims, requiredScope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient_scope"})
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

func hasScope(claims jwt.MapClaims, scope string) bool {
	granted, _ := claims["scope"].(string)
	for _, s := range strings.Fields(granted) {
		if s == scope {
			return true
		}
	}
	return false
}
