package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/domainstack/internal/utils"
)

// CustomContextMiddleware copies tenant and request id from the gin context into the request context
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
