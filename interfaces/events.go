package interfaces

import (
	"context"
	"time"

	"github.com/customeros/domainstack/internal/enum"
)

type PropagationProgressEvent struct {
	SessionID             string             `json:"sessionId"`
	DomainID              string             `json:"domainId"`
	Domain                string             `json:"domain"`
	Tenant                string             `json:"tenant"`
	Status                enum.PollingStatus `json:"status"`
	Progress              int                `json:"progress"`
	EstimatedCompletionAt *time.Time         `json:"estimatedCompletionAt,omitempty"`
	CheckedAt             time.Time          `json:"checkedAt"`
}

type ProgressPublisher interface {
	PublishPropagationProgress(ctx context.Context, event PropagationProgressEvent) error
	Close() error
}
