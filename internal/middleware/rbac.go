package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/response"
)

// RequirePermission checks that the staff JWT contains the required permission code.
func RequirePermission(permission model.Permission) gin.HandlerFunc {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission checks that the staff JWT contains at least one of the specified permissions.
func RequireAnyPermission(permissions ...model.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, p := range permissions {
			if claims.HasPermission(p) {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, response.ErrPermissionDenied)
	}
}
