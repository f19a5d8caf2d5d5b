package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// tenantCtxKey is the Gin context key used to store the authenticated tenant ID.
const tenantCtxKey = "tenant_id"

// HeaderAPIKey carries the tenant's key on every authenticated request, beacon included.
const HeaderAPIKey = "X-API-Key"

// APIKeyMiddleware maps X-API-Key to a tenant ID and rejects unknown keys.
// CORS preflights carry no custom headers, so OPTIONS requests pass through
// unauthenticated and never reach a handler with a tenant.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		apiKey := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		tenantID, ok := keys[apiKey]
		if !ok || apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(tenantCtxKey, tenantID)
		c.Next()
	}
}

// TenantID returns the authenticated tenant ID from the request context.
func TenantID(c *gin.Context) string {
	return c.GetString(tenantCtxKey)
}
