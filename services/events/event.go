package events

import (
	"context"
	"reflect"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

const (
	defaultAppSource = "domainstack"

	EntityTypeDomain         = "domain"
	EntityTypePollingSession = "polling_session"
)

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string      `json:"id"`
	EntityId   string      `json:"entityId"`
	EntityType string      `json:"entityType"`
	Tenant     string      `json:"tenant"`
	EventType  string      `json:"eventType"`
	Data       interface{} `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uberTraceId"`
	AppSource   string `json:"appSource"`
	Timestamp   string `json:"timestamp"`
}

// newEvent wraps data in the envelope consumers expect. EventType is the Go type name of data.
func newEvent(ctx context.Context, span opentracing.Span, tenant, entityId, entityType string, data interface{}) Event {
	tracingData := tracing.ExtractTextMapCarrier(span.Context())

	messageType := reflect.TypeOf(data)
	if messageType.Kind() == reflect.Ptr {
		messageType = messageType.Elem()
	}

	appSource := utils.GetAppSourceFromContext(ctx)
	if appSource == "" {
		appSource = defaultAppSource
	}

	return Event{
		Event: EventDetails{
			Id:         utils.GenerateNanoIdWithPrefix("event", 21),
			EntityId:   entityId,
			EntityType: entityType,
			Tenant:     tenant,
			EventType:  messageType.Name(),
			Data:       data,
		},
		Metadata: EventMetadata{
			UberTraceId: tracingData["uber-trace-id"],
			AppSource:   appSource,
			Timestamp:   utils.Now().Format(time.RFC3339),
		},
	}
}
