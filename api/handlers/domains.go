package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

type ConnectDomainRequest struct {
	Domain    string `json:"domain" binding:"required"`
	Registrar string `json:"registrar"`
}

type ProvisionRecordsRequest struct {
	Purposes      []enum.RecordPurpose `json:"purposes" binding:"required"`
	DKIMPublicKey string               `json:"dkimPublicKey"`
}

type DomainResponse struct {
	Domain        *models.Domain         `json:"domain"`
	ActiveSession *models.PollingSession `json:"activeSession,omitempty"`
}

type DomainHandler struct {
	provisioning interfaces.ProvisioningService
	propagation  interfaces.PropagationService
}

func NewDomainHandler(provisioning interfaces.ProvisioningService, propagation interfaces.PropagationService) *DomainHandler {
	return &DomainHandler{
		provisioning: provisioning,
		propagation:  propagation,
	}
}

// Connect creates the domain's zone and mail directory entry, or resumes an earlier attempt
func (h *DomainHandler) Connect() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.Connect")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req ConnectDomainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "Missing required field: domain")
			return
		}

		result, err := h.provisioning.ConnectOrResume(ctx, utils.GetTenantFromContext(ctx), interfaces.ConnectRequest{
			Domain:    req.Domain,
			Registrar: req.Registrar,
		})
		if err != nil {
			respondError(c, span, err, er.ContextZone)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func (h *DomainHandler) GetDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.GetDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, err := h.provisioning.GetDomain(ctx, utils.GetTenantFromContext(ctx), c.Param("domain"))
		if err != nil {
			respondError(c, span, err, "")
			return
		}

		session, err := h.propagation.GetActiveForDomain(ctx, domain.ID)
		if err != nil {
			respondError(c, span, err, er.ContextPropagation)
			return
		}

		c.JSON(http.StatusOK, DomainResponse{Domain: domain, ActiveSession: session})
	}
}

func (h *DomainHandler) VerifyNameservers() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.VerifyNameservers")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		result, err := h.provisioning.VerifyNameservers(ctx, utils.GetTenantFromContext(ctx), c.Param("domain"))
		if err != nil {
			respondError(c, span, err, er.ContextNameservers)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// ProvisionRecords creates the requested authentication records and starts propagation monitoring
func (h *DomainHandler) ProvisionRecords() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.ProvisionRecords")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var req ProvisionRecordsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "Missing required field: purposes")
			return
		}
		if len(req.Purposes) == 0 {
			respondBadRequest(c, "At least one record purpose is required")
			return
		}
		for _, purpose := range req.Purposes {
			if !purpose.IsRequestable() {
				respondBadRequest(c, fmt.Sprintf("Unsupported record purpose: %s", purpose))
				return
			}
		}

		result, err := h.provisioning.ProvisionRecords(ctx, utils.GetTenantFromContext(ctx), c.Param("domain"), interfaces.ProvisionRequest{
			Purposes:      req.Purposes,
			DKIMPublicKey: req.DKIMPublicKey,
		})
		if err != nil {
			respondError(c, span, err, er.ContextRecords)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func (h *DomainHandler) VerifyMailDirectory() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.VerifyMailDirectory")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, err := h.provisioning.CheckMailDirectoryVerification(ctx, utils.GetTenantFromContext(ctx), c.Param("domain"))
		if err != nil {
			respondError(c, span, err, er.ContextMailDirectory)
			return
		}

		c.JSON(http.StatusOK, DomainResponse{Domain: domain})
	}
}

func (h *DomainHandler) GetActiveSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainHandler.GetActiveSession")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		session, err := h.provisioning.GetActiveSession(ctx, utils.GetTenantFromContext(ctx), c.Param("domain"))
		if err != nil {
			respondError(c, span, err, er.ContextPropagation)
			return
		}

		c.JSON(http.StatusOK, session)
	}
}
