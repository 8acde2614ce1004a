package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const TenantHeader = "X-TENANT"

var tenantHeaders = []string{TenantHeader, "tenant", "tenantName"}

// TenantValidationMiddleware requires a tenant header and stores it for CustomContextMiddleware.
func TenantValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := ""
		for _, header := range tenantHeaders {
			if value := strings.TrimSpace(c.GetHeader(header)); value != "" {
				tenant = value
				break
			}
		}

		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-TENANT header is required"})
			return
		}

		c.Set("TenantName", tenant)
		c.Next()
	}
}
