package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource string
	Tenant    string
	RequestId string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		Tenant:    c.GetString("TenantName"),
		RequestId: c.GetString("RequestId"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetTenantFromContext(ctx context.Context) string {
	return GetContext(ctx).Tenant
}

func GetRequestIdFromContext(ctx context.Context) string {
	return GetContext(ctx).RequestId
}

func SetTenantInContext(ctx context.Context, tenant string) context.Context {
	customContext := *GetContext(ctx)
	customContext.Tenant = tenant
	return WithCustomContext(ctx, &customContext)
}

func SetAppSourceInContext(ctx context.Context, appSource string) context.Context {
	customContext := *GetContext(ctx)
	customContext.AppSource = appSource
	return WithCustomContext(ctx, &customContext)
}
