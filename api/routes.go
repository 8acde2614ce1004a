package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domainstack/api/handlers"
	"github.com/customeros/domainstack/api/middleware"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/tracing"
)

const AppSource = "domainstack"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, provisioning interfaces.ProvisioningService, propagation interfaces.PropagationService, apikey string) {
	if provisioning == nil || propagation == nil {
		panic("Services cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	apiHandlers := handlers.InitHandlers(provisioning, propagation)

	r.GET("/health", handlers.HealthCheck)

	v1 := r.Group("/v1")
	v1.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: apikey,
	}))
	v1.Use(middleware.TenantValidationMiddleware())
	v1.Use(middleware.RequestIdMiddleware())
	v1.Use(middleware.CustomContextMiddleware(AppSource))
	v1.Use(middleware.TracingMiddleware())
	{
		domains := v1.Group("/domains")
		{
			domains.POST("", apiHandlers.Domains.Connect())
			domains.GET("/:domain", apiHandlers.Domains.GetDomain())
			domains.POST("/:domain/verify-nameservers", apiHandlers.Domains.VerifyNameservers())
			domains.POST("/:domain/records", apiHandlers.Domains.ProvisionRecords())
			domains.POST("/:domain/mail-directory/verify", apiHandlers.Domains.VerifyMailDirectory())
			domains.GET("/:domain/sessions/active", apiHandlers.Domains.GetActiveSession())
		}

		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:id", apiHandlers.Sessions.GetSession())
			sessions.POST("/:id/tick", apiHandlers.Sessions.Tick())
			sessions.POST("/:id/cancel", apiHandlers.Sessions.Cancel())
		}
	}
}
