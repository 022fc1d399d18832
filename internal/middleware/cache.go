package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// CacheControl marks successful responses as publicly cacheable for
// maxAgeSeconds. Used on endpoints whose data changes only on library reload.
func CacheControl(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAgeSeconds))
		c.Next()
	}
}

// NoStore disables caching of per-user responses.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
