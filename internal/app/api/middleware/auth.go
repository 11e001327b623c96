package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/response"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

const actorKey = "actor"

// AuthMiddleware resolves the Bearer token to a user and stores it in the
// gin context under "actor". Requests without a valid token are rejected.
func AuthMiddleware(ident *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing bearer token"))
			return
		}
		user, err := ident.VerifyAccessToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid bearer token"))
			return
		}
		c.Set(actorKey, user)
		c.Next()
	}
}

// RequireRole gates a route group to the listed roles. Must run after
// AuthMiddleware.
func RequireRole(roles ...types.MembershipRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := Actor(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "not authenticated"))
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeBadRequest, "insufficient role"))
	}
}

// Actor returns the authenticated user set by AuthMiddleware, or nil.
func Actor(c *gin.Context) *models.User {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
