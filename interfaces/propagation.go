package interfaces

import (
	"context"

	"github.com/customeros/domainstack/internal/models"
)

type PropagationService interface {
	Start(ctx context.Context, domainID string, recordIDs []string) (*models.PollingSession, error)
	Tick(ctx context.Context, sessionID string) (*models.PollingSession, error)
	Cancel(ctx context.Context, sessionID string) (*models.PollingSession, error)
	Get(ctx context.Context, sessionID string) (*models.PollingSession, error)
	GetActiveForDomain(ctx context.Context, domainID string) (*models.PollingSession, error)
	TickActive(ctx context.Context) (int, error)
}
