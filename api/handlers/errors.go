package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/tracing"
)

type ErrorResponse struct {
	Error  string  `json:"error"`
	Kind   er.Kind `json:"kind,omitempty"`
	Advice string  `json:"advice,omitempty"`
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, er.ErrTenantMissing):
		return http.StatusBadRequest
	case errors.Is(err, er.ErrDomainNotFound),
		errors.Is(err, er.ErrSessionNotFound),
		errors.Is(err, er.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, er.ErrDomainTaken),
		errors.Is(err, er.ErrZoneNotCreated),
		errors.Is(err, er.ErrSessionAlreadyActive),
		errors.Is(err, er.ErrNoRecordsToMonitor):
		return http.StatusConflict
	}

	switch er.KindOf(err) {
	case er.KindValidation:
		return http.StatusBadRequest
	case er.KindDuplicate:
		return http.StatusConflict
	case er.KindTerminal:
		return http.StatusFailedDependency
	case er.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, span opentracing.Span, err error, adviceContext string) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError || status == http.StatusFailedDependency {
		tracing.TraceErr(span, err)
	}

	response := ErrorResponse{Error: er.UserMessage(err)}
	if kind := er.KindOf(err); kind != er.KindUnknown {
		response.Kind = kind
		response.Advice = er.DefaultAdvice.Lookup(err, adviceContext)
	}
	if status == http.StatusInternalServerError {
		response.Error = "internal error"
	}
	c.JSON(status, response)
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Kind: er.KindValidation})
}
