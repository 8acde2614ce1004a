package interfaces

import (
	"context"

	"github.com/customeros/domainstack/internal/models"
)

type NameserverVerifyResult struct {
	Domain             string   `json:"domain"`
	IsVerified         bool     `json:"isVerified"`
	CurrentNameservers []string `json:"currentNameservers"`
	ExpectedSuffix     string   `json:"expectedSuffix"`
	Message            string   `json:"message"`
}

type NameserverService interface {
	Verify(ctx context.Context, domain *models.Domain) (*NameserverVerifyResult, error)
	VerifyBatch(ctx context.Context, domains []*models.Domain) []NameserverVerifyResult
	VerifyPending(ctx context.Context) (int, error)
}
