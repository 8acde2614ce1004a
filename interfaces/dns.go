package interfaces

import (
	"context"

	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/models"
)

type SkippedSpec struct {
	Spec    RecordSpec      `json:"spec"`
	Reason  enum.SkipReason `json:"reason"`
	Message string          `json:"message,omitempty"`
	// Existing is the published record that made the spec a duplicate, when known.
	Existing *ProviderRecord `json:"existing,omitempty"`
}

type FailedSpec struct {
	Spec    RecordSpec `json:"spec"`
	Kind    er.Kind    `json:"kind"`
	Message string     `json:"message"`
	Advice  string     `json:"advice,omitempty"`
	Err     error      `json:"-"`
}

type PlanResult struct {
	ToCreate []RecordSpec  `json:"toCreate"`
	ToSkip   []SkippedSpec `json:"toSkip"`
}

type BatchResult struct {
	Created  []models.DNSRecord `json:"created"`
	Skipped  []SkippedSpec      `json:"skipped"`
	Failed   []FailedSpec       `json:"failed"`
	Warnings []string           `json:"warnings"`
}

type DNSRecordService interface {
	CreateBatch(ctx context.Context, domain *models.Domain, specs []RecordSpec) (*BatchResult, error)
	CreateDeferredDMARC(ctx context.Context) (int, error)
}
