package events

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/logger"
)

// noopPublisher drops events; used when RabbitMQ is not configured.
type noopPublisher struct {
	log logger.Logger
}

func NewNoopPublisher(log logger.Logger) interfaces.ProgressPublisher {
	return &noopPublisher{log: log}
}

func (p *noopPublisher) PublishPropagationProgress(ctx context.Context, event interfaces.PropagationProgressEvent) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "NoopPublisher.PublishPropagationProgress")
	defer span.Finish()
	span.LogKV("sessionId", event.SessionID, "progress", event.Progress, "published", false)

	p.log.Debugf("Propagation progress for session %s: %d%% (%s)", event.SessionID, event.Progress, event.Status)
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}
