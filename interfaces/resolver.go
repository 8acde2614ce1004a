package interfaces

import (
	"context"

	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/models"
)

type NameserverResolver interface {
	ResolveNameservers(ctx context.Context, domain string) ([]string, error)
}

type ResolverAnswer struct {
	Resolver string   `json:"resolver"`
	Values   []string `json:"values"`
	Matched  bool     `json:"matched"`
	Error    string   `json:"error,omitempty"`
}

type SampleResult struct {
	Status    enum.PropagationStatus `json:"status"`
	Coverage  int                    `json:"coverage"`
	Resolvers []ResolverAnswer       `json:"resolvers"`
}

type PropagationSampler interface {
	Sample(ctx context.Context, record *models.DNSRecord) SampleResult
}
