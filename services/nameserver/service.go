package nameserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/repository"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

// batchSize is the number of concurrent lookups in VerifyBatch.
const batchSize = 5

type nameserverService struct {
	log          logger.Logger
	cfg          *config.ProvisioningConfig
	repositories *repository.Repositories
	resolver     interfaces.NameserverResolver
}

func NewNameserverService(log logger.Logger, cfg *config.ProvisioningConfig, repos *repository.Repositories, resolver interfaces.NameserverResolver) interfaces.NameserverService {
	return &nameserverService{
		log:          log,
		cfg:          cfg,
		repositories: repos,
		resolver:     resolver,
	}
}

// Verify checks that the domain is delegated to the expected nameservers.
// Lookup failures and mismatches are reported in the result, not as errors.
func (s *nameserverService) Verify(ctx context.Context, domain *models.Domain) (*interfaces.NameserverVerifyResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NameserverService.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if domain == nil {
		return nil, er.ErrDomainNotFound
	}
	tracing.TagTenant(span, domain.Tenant)
	tracing.TagEntity(span, domain.ID)
	span.LogKV("domain", domain.Domain)

	suffix := s.cfg.ExpectedNameserverSuffix
	result := &interfaces.NameserverVerifyResult{
		Domain:             domain.Domain,
		CurrentNameservers: []string{},
		ExpectedSuffix:     suffix,
	}

	nameservers, err := s.resolver.ResolveNameservers(ctx, domain.Domain)
	if err != nil {
		if errors.Is(err, er.ErrNoNameservers) {
			result.Message = "No nameservers found for this domain. Check that the domain is registered and try again."
		} else {
			s.log.Warnf("Nameserver lookup failed for %s: %v", domain.Domain, err)
			result.Message = "Nameserver lookup failed. Try again in a few minutes."
		}
		span.LogFields(tracingLog.String("result.message", result.Message))
		return result, nil
	}
	result.CurrentNameservers = nameservers

	if !allMatch(nameservers, suffix) {
		result.Message = fmt.Sprintf("Nameservers still point to %s. Update them at your registrar; changes can take up to 48 hours.", strings.Join(nameservers, ", "))
		span.LogFields(tracingLog.Bool("result.verified", false))
		return result, nil
	}

	now := utils.Now()
	if err := s.repositories.DomainRepository.MarkNameserversVerified(ctx, domain.ID, nameservers, now); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to save nameserver verification")
	}
	domain.NameserverStatus = enum.NameserverVerified
	domain.Nameservers = models.NewStringArray(nameservers)
	domain.LastVerifiedAt = &now

	result.IsVerified = true
	result.Message = "Nameservers verified."
	span.LogFields(tracingLog.Bool("result.verified", true))
	return result, nil
}

// VerifyBatch verifies domains in groups of five concurrent checks. Results keep the input order.
func (s *nameserverService) VerifyBatch(ctx context.Context, domains []*models.Domain) []interfaces.NameserverVerifyResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NameserverService.VerifyBatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.Int("domains", len(domains)))

	results := make([]interfaces.NameserverVerifyResult, len(domains))
	offset := 0
	for _, group := range utils.Chunk(domains, batchSize) {
		g, gctx := errgroup.WithContext(ctx)
		for i, domain := range group {
			idx, domain := offset+i, domain
			g.Go(func() error {
				results[idx] = s.verifyOne(gctx, domain)
				return nil
			})
		}
		_ = g.Wait()
		offset += len(group)
	}
	return results
}

func (s *nameserverService) verifyOne(ctx context.Context, domain *models.Domain) interfaces.NameserverVerifyResult {
	result, err := s.Verify(ctx, domain)
	if err != nil {
		name := ""
		if domain != nil {
			name = domain.Domain
		}
		return interfaces.NameserverVerifyResult{
			Domain:             name,
			CurrentNameservers: []string{},
			ExpectedSuffix:     s.cfg.ExpectedNameserverSuffix,
			Message:            er.UserMessage(err),
		}
	}
	return *result
}

// VerifyPending re-checks every zoned domain still waiting for delegation and returns how many got verified.
func (s *nameserverService) VerifyPending(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NameserverService.VerifyPending")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	pending, err := s.repositories.DomainRepository.GetPendingNameserverDomains(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "failed to load pending domains")
	}

	domains := make([]*models.Domain, len(pending))
	for i := range pending {
		domains[i] = &pending[i]
	}

	verified := 0
	for _, result := range s.VerifyBatch(ctx, domains) {
		if result.IsVerified {
			verified++
		}
	}
	span.LogFields(tracingLog.Int("pending", len(pending)), tracingLog.Int("result.verified", verified))
	return verified, nil
}

func allMatch(nameservers []string, suffix string) bool {
	if len(nameservers) == 0 {
		return false
	}
	for _, ns := range nameservers {
		if !utils.HasHostnameSuffix(ns, suffix) {
			return false
		}
	}
	return true
}
