package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

var errTokenMissing = errors.New("authorization header or token query required")

// TokenValidator verifies a bearer token.
type TokenValidator interface {
	ValidateToken(token string) (*service.Claims, error)
}

// RequireCandidate validates a candidate JWT from the Authorization header.
func RequireCandidate(auth TokenValidator) gin.HandlerFunc {
	return requireRole(auth, service.RoleCandidate, response.ErrCandidateAccessOnly, false)
}

// RequireAdmin validates an admin JWT from the Authorization header.
func RequireAdmin(auth TokenValidator) gin.HandlerFunc {
	return requireRole(auth, service.RoleAdmin, response.ErrAdminAccessOnly, false)
}

// RequireCandidateWS validates a candidate JWT from the query param ?token=...
// Used for WebSocket upgrade requests, which cannot carry headers from browsers.
func RequireCandidateWS(auth TokenValidator) gin.HandlerFunc {
	return requireRole(auth, service.RoleCandidate, response.ErrCandidateAccessOnly, true)
}

func requireRole(auth TokenValidator, role service.Role, denied response.ErrCode, queryOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, auth, queryOnly)
		switch {
		case errors.Is(err, errTokenMissing):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		case service.IsExpired(err):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		case err != nil:
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if claims.Role != role {
			response.AbortFail(c, http.StatusForbidden, denied)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractAndValidateClaims(c *gin.Context, auth TokenValidator, queryOnly bool) (*service.Claims, error) {
	tokenStr := ""

	if !queryOnly {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenStr = strings.TrimSpace(parts[1])
			}
		}
	}

	if tokenStr == "" && queryOnly {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return nil, errTokenMissing
	}

	return auth.ValidateToken(tokenStr)
}
