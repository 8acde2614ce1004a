package dnsrecords

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/repository"
	"github.com/customeros/domainstack/internal/retry"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
	"github.com/customeros/domainstack/services/planner"
)

type dnsRecordService struct {
	log          logger.Logger
	cfg          *config.ProvisioningConfig
	repositories *repository.Repositories
	zones        interfaces.ZoneProvider
	credentials  interfaces.CredentialProvider
	advice       er.AdviceBook
	retryConfig  retry.Config
}

func NewDNSRecordService(log logger.Logger, cfg *config.ProvisioningConfig, repos *repository.Repositories, zones interfaces.ZoneProvider, credentials interfaces.CredentialProvider) interfaces.DNSRecordService {
	return &dnsRecordService{
		log:          log,
		cfg:          cfg,
		repositories: repos,
		zones:        zones,
		credentials:  credentials,
		advice:       er.DefaultAdvice,
		retryConfig:  retry.DefaultConfig(),
	}
}

// CreateBatch creates specs one by one, persisting each created record before moving on.
// A failing spec never aborts the batch; every spec ends up created, skipped or failed.
func (s *dnsRecordService) CreateBatch(ctx context.Context, domain *models.Domain, specs []interfaces.RecordSpec) (*interfaces.BatchResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DNSRecordService.CreateBatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("specs", len(specs)))

	if domain == nil {
		return nil, er.ErrDomainNotFound
	}
	tracing.TagTenant(span, domain.Tenant)
	tracing.TagEntity(span, domain.ID)
	if !domain.HasZone() {
		tracing.TraceErr(span, er.ErrZoneNotCreated)
		return nil, er.ErrZoneNotCreated
	}

	creds, err := s.credentials.ZoneCredentials(ctx, domain.Tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := &interfaces.BatchResult{
		Created:  []models.DNSRecord{},
		Skipped:  []interfaces.SkippedSpec{},
		Failed:   []interfaces.FailedSpec{},
		Warnings: []string{},
	}
	seen := make(map[string]bool, len(specs))

	for _, spec := range specs {
		if spec.TTL == 0 {
			spec.TTL = s.cfg.DefaultTTL
		}
		key := spec.Key()
		if seen[key] {
			result.Skipped = append(result.Skipped, interfaces.SkippedSpec{Spec: spec, Reason: enum.SkipDuplicate, Message: "duplicate of an earlier record in this batch"})
			continue
		}
		seen[key] = true

		exists, err := s.repositories.DNSRecordRepository.Exists(ctx, domain.ID, spec.Type, spec.Name, spec.Content)
		if err != nil {
			s.fail(result, spec, errors.Wrap(err, "failed to check existing records"))
			continue
		}
		if exists {
			result.Skipped = append(result.Skipped, interfaces.SkippedSpec{Spec: spec, Reason: enum.SkipAlreadyExists, Message: "record already configured"})
			continue
		}

		externalID, err := s.createWithRetry(ctx, creds, *domain.ZoneID, spec)
		if er.IsDuplicate(err) {
			result.Skipped = append(result.Skipped, interfaces.SkippedSpec{Spec: spec, Reason: enum.SkipAlreadyExists, Message: "record already exists at the DNS host"})
			continue
		}
		if err != nil {
			s.log.Warnf("Failed to create %s record %s for domain %s: %v", spec.Type, spec.Name, domain.Domain, err)
			s.fail(result, spec, err)
			continue
		}

		record := recordFromSpec(domain, spec, externalID)
		if err := s.repositories.DNSRecordRepository.Create(ctx, &record); err != nil {
			s.log.Errorf("Record %s created at DNS host as %s but could not be saved: %v", spec.Name, externalID, err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s %s exists at the DNS host but was not saved", spec.Type, spec.Name))
			s.fail(result, spec, errors.Wrap(err, "failed to save DNS record"))
			continue
		}
		result.Created = append(result.Created, record)
	}

	span.LogFields(
		tracingLog.Int("result.created", len(result.Created)),
		tracingLog.Int("result.skipped", len(result.Skipped)),
		tracingLog.Int("result.failed", len(result.Failed)),
	)
	return result, nil
}

// CreateDeferredDMARC adds the DMARC record to domains configured at least DmarcDelay ago.
func (s *dnsRecordService) CreateDeferredDMARC(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DNSRecordService.CreateDeferredDMARC")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	cutoff := utils.Now().Add(-s.cfg.DmarcDelay)
	domains, err := s.repositories.DomainRepository.GetDomainsAwaitingDMARC(ctx, cutoff)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "failed to load domains awaiting DMARC")
	}

	created := 0
	for i := range domains {
		domain := &domains[i]
		n, err := s.createDMARC(ctx, domain)
		if err != nil {
			s.log.Errorf("Failed to create DMARC for domain %s: %v", domain.Domain, err)
			continue
		}
		created += n
	}

	span.LogFields(tracingLog.Int("domains", len(domains)), tracingLog.Int("result.created", created))
	return created, nil
}

func (s *dnsRecordService) createDMARC(ctx context.Context, domain *models.Domain) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DNSRecordService.createDMARC")
	defer span.Finish()
	tracing.TagTenant(span, domain.Tenant)
	tracing.TagEntity(span, domain.ID)

	if !domain.HasZone() {
		return 0, er.ErrZoneNotCreated
	}
	creds, err := s.credentials.ZoneCredentials(ctx, domain.Tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	existing, err := s.zones.ListRecords(ctx, creds, *domain.ZoneID)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	plan := planner.PlanDMARC(domain.Domain, existing, planner.OptionsFromConfig(s.cfg))
	if len(plan.ToCreate) == 0 {
		// published outside this service; remember it so the domain is not picked up again
		for _, skipped := range plan.ToSkip {
			record := adoptPublished(domain, skipped)
			if err := s.repositories.DNSRecordRepository.Create(ctx, &record); err != nil {
				return 0, errors.Wrap(err, "failed to save existing DMARC record")
			}
		}
		return 0, nil
	}

	result, err := s.CreateBatch(ctx, domain, plan.ToCreate)
	if err != nil {
		return 0, err
	}
	if len(result.Failed) > 0 {
		return len(result.Created), result.Failed[0].Err
	}
	return len(result.Created), nil
}

func (s *dnsRecordService) createWithRetry(ctx context.Context, creds interfaces.ZoneCredentials, zoneID string, spec interfaces.RecordSpec) (string, error) {
	var externalID string
	err := retry.Do(ctx, s.retryConfig, retry.IsRetryable, func(ctx context.Context) error {
		callCtx, cancel := s.withTimeout(ctx)
		defer cancel()

		id, err := s.zones.CreateRecord(callCtx, creds, zoneID, spec)
		if err != nil {
			return err
		}
		externalID = id
		return nil
	})
	return externalID, err
}

func (s *dnsRecordService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}

func (s *dnsRecordService) fail(result *interfaces.BatchResult, spec interfaces.RecordSpec, err error) {
	result.Failed = append(result.Failed, interfaces.FailedSpec{
		Spec:    spec,
		Kind:    er.KindOf(err),
		Message: er.UserMessage(err),
		Advice:  s.advice.Lookup(err, er.ContextRecords),
		Err:     err,
	})
}

// adoptPublished stores what the zone actually serves so propagation checks can match it.
func adoptPublished(domain *models.Domain, skipped interfaces.SkippedSpec) models.DNSRecord {
	if skipped.Existing == nil {
		return recordFromSpec(domain, skipped.Spec, "")
	}
	spec := skipped.Spec
	spec.Content = strings.Trim(strings.TrimSpace(skipped.Existing.Content), `"`)
	// cloudflare reports automatic TTL as 1
	if skipped.Existing.TTL > 1 {
		spec.TTL = skipped.Existing.TTL
	}
	return recordFromSpec(domain, spec, skipped.Existing.ID)
}

func recordFromSpec(domain *models.Domain, spec interfaces.RecordSpec, externalID string) models.DNSRecord {
	ttl := spec.TTL
	if ttl == 0 {
		ttl = int(time.Hour / time.Second)
	}
	return models.DNSRecord{
		DomainID:   domain.ID,
		Tenant:     domain.Tenant,
		RecordType: spec.Type,
		Purpose:    spec.Purpose,
		Name:       spec.Name,
		Content:    spec.Content,
		Priority:   spec.Priority,
		TTL:        ttl,
		ExternalID: utils.StringPtrOrNil(externalID),
	}
}
