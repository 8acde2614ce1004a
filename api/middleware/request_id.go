package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIdHeader = "X-Request-Id"

func RequestIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(RequestIdHeader)
		if requestId == "" {
			requestId = uuid.New().String()
		}

		c.Set("RequestId", requestId)
		c.Header(RequestIdHeader, requestId)
		c.Next()
	}
}
