package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domainstack/interfaces"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

type SessionHandler struct {
	propagation interfaces.PropagationService
}

func NewSessionHandler(propagation interfaces.PropagationService) *SessionHandler {
	return &SessionHandler{
		propagation: propagation,
	}
}

// ownedSession hides sessions of other tenants behind ErrSessionNotFound.
func (h *SessionHandler) ownedSession(ctx context.Context, id string) (*models.PollingSession, error) {
	session, err := h.propagation.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Tenant != utils.GetTenantFromContext(ctx) {
		return nil, er.ErrSessionNotFound
	}
	return session, nil
}

func (h *SessionHandler) GetSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SessionHandler.GetSession")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		session, err := h.ownedSession(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err, er.ContextPropagation)
			return
		}

		c.JSON(http.StatusOK, session)
	}
}

// Tick samples the session's records once and returns the updated session
func (h *SessionHandler) Tick() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SessionHandler.Tick")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if _, err := h.ownedSession(ctx, c.Param("id")); err != nil {
			respondError(c, span, err, er.ContextPropagation)
			return
		}

		session, err := h.propagation.Tick(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err, er.ContextPropagation)
			return
		}

		c.JSON(http.StatusOK, session)
	}
}

func (h *SessionHandler) Cancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SessionHandler.Cancel")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if _, err := h.ownedSession(ctx, c.Param("id")); err != nil {
			respondError(c, span, err, er.ContextPropagation)
			return
		}

		session, err := h.propagation.Cancel(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err, er.ContextPropagation)
			return
		}

		c.JSON(http.StatusOK, session)
	}
}
