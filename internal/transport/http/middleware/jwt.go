package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"phyrisk/internal/app"
	"phyrisk/internal/model"
	"phyrisk/internal/pkg/jwtutil"
	"phyrisk/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextEmailKey  = "email"
	ContextRoleKey   = "role"
)

// UserLoader returns the current state of a token's user.
type UserLoader interface {
	GetActiveUser(id uint) (*model.User, error)
}

// AuthJWT validates the bearer token and, when loader is set, refuses users
// that were deactivated or removed after the token was issued. The role in
// context comes from the database when loaded.
func AuthJWT(secret string, loader UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			return
		}

		claims, err := jwtutil.ParseToken(secret, strings.TrimSpace(token))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			return
		}

		role := claims.Role
		if loader != nil {
			user, err := loader.GetActiveUser(claims.UserID)
			switch {
			case errors.Is(err, app.ErrUserInactive):
				response.Abort(c, http.StatusUnauthorized, response.CodeUserInactive, err.Error())
				return
			case errors.Is(err, app.ErrUserNotFound):
				response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
				return
			case err != nil:
				response.Abort(c, http.StatusInternalServerError, response.CodeInternalServer, "load user failed")
				return
			}
			role = user.Role
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextEmailKey, claims.Email)
		c.Set(ContextRoleKey, role)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRoleKey) != model.RoleAdmin {
			response.Abort(c, http.StatusForbidden, response.CodeForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}
