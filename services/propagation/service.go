package propagation

import (
	"context"
	"time"

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

// concurrent record samples per tick; each sample already fans out over the resolver panel
const sampleConcurrency = 4

type propagationService struct {
	log          logger.Logger
	cfg          *config.PropagationConfig
	repositories *repository.Repositories
	sampler      interfaces.PropagationSampler
	locker       interfaces.Locker
	publisher    interfaces.ProgressPublisher
	now          func() time.Time
}

func NewPropagationService(log logger.Logger, cfg *config.PropagationConfig, repos *repository.Repositories, sampler interfaces.PropagationSampler, locker interfaces.Locker, publisher interfaces.ProgressPublisher) interfaces.PropagationService {
	return &propagationService{
		log:          log,
		cfg:          cfg,
		repositories: repos,
		sampler:      sampler,
		locker:       locker,
		publisher:    publisher,
		now:          utils.Now,
	}
}

// Start opens a polling session over recordIDs. A session already polling for the domain is cancelled.
func (s *propagationService) Start(ctx context.Context, domainID string, recordIDs []string) (*models.PollingSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PropagationService.Start")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogFields(tracingLog.String("domainId", domainID), tracingLog.Int("records", len(recordIDs)))

	domain, err := s.repositories.DomainRepository.GetByID(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to load domain")
	}
	if domain == nil {
		return nil, er.ErrDomainNotFound
	}
	tracing.TagTenant(span, domain.Tenant)

	recordIDs, err = s.validateRecords(ctx, domain, recordIDs)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	session := &models.PollingSession{
		DomainID:  domain.ID,
		Tenant:    domain.Tenant,
		Status:    enum.PollingActive,
		StartedAt: s.now(),
	}
	superseded, err := s.repositories.PollingSessionRepository.Start(ctx, session, recordIDs)
	if err != nil {
		// a concurrent start won the partial unique index
		if active, getErr := s.repositories.PollingSessionRepository.GetActiveForDomain(ctx, domain.ID); getErr == nil && active != nil {
			return nil, errors.Wrap(er.ErrSessionAlreadyActive, active.ID)
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to start polling session")
	}
	if len(superseded) > 0 {
		s.log.Infof("Polling session %s for domain %s supersedes %v", session.ID, domain.Domain, superseded)
	}
	tracing.TagEntity(span, session.ID)

	return s.Get(ctx, session.ID)
}

func (s *propagationService) validateRecords(ctx context.Context, domain *models.Domain, recordIDs []string) ([]string, error) {
	if len(recordIDs) == 0 {
		return nil, er.ErrNoRecordsToMonitor
	}

	records, err := s.repositories.DNSRecordRepository.GetByDomain(ctx, domain.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load DNS records")
	}
	owned := make(map[string]bool, len(records))
	for _, record := range records {
		owned[record.ID] = true
	}

	seen := make(map[string]bool, len(recordIDs))
	unique := make([]string, 0, len(recordIDs))
	for _, id := range recordIDs {
		if !owned[id] {
			return nil, er.Validation("DNS record " + id + " does not belong to " + domain.Domain)
		}
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique, nil
}

// Tick samples every record not yet propagated and advances the session.
// Terminal sessions are returned as they are; a tick held by another worker is skipped.
func (s *propagationService) Tick(ctx context.Context, sessionID string) (*models.PollingSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PropagationService.Tick")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, sessionID)

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	tracing.TagTenant(span, session.Tenant)
	if session.Status.IsTerminal() {
		span.LogFields(tracingLog.String("result", "terminal"))
		return session, nil
	}

	unlock, acquired, err := s.locker.TryLock(ctx, "propagation:"+session.ID, s.cfg.TickLockTTL)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, er.Transient("propagation.Tick", err)
	}
	if !acquired {
		span.LogFields(tracingLog.String("result", "locked"))
		return session, nil
	}
	defer unlock()

	// another worker may have finished a tick between the read above and the lock
	session, err = s.Get(ctx, sessionID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if session.Status.IsTerminal() {
		span.LogFields(tracingLog.String("result", "terminal"))
		return session, nil
	}

	s.sampleRecords(ctx, session)
	now := s.now()
	advance(session, now, s.cfg.MaxSessionAge)

	err = s.repositories.PollingSessionRepository.SaveTick(ctx, session, session.Records)
	if errors.Is(err, repository.ErrStaleSession) {
		// cancelled while sampling; the cancel wins
		span.LogFields(tracingLog.String("result", "stale"))
		return s.Get(ctx, sessionID)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to save tick")
	}

	span.LogFields(
		tracingLog.String("result.status", session.Status.String()),
		tracingLog.Int("result.progress", session.Progress),
	)
	if session.Status == enum.PollingCompleted {
		s.log.Infof("DNS propagation completed for session %s", session.ID)
	} else if session.Status == enum.PollingTimeout {
		s.log.Warnf("DNS propagation timed out for session %s at %d%%", session.ID, session.Progress)
	}
	s.publish(ctx, session)
	return session, nil
}

func (s *propagationService) sampleRecords(ctx context.Context, session *models.PollingSession) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sampleConcurrency)

	for i := range session.Records {
		record := &session.Records[i]
		if record.Status == enum.Propagated || record.DNSRecord == nil {
			continue
		}
		g.Go(func() error {
			result := s.sampler.Sample(gctx, record.DNSRecord)
			checkedAt := s.now()
			record.Status = result.Status
			record.Coverage = result.Coverage
			record.CheckedAt = &checkedAt
			return nil
		})
	}
	_ = g.Wait()
}

// advance derives progress, ETA and status from the sampled records.
// The completed check runs before the timeout check.
func advance(session *models.PollingSession, now time.Time, maxAge time.Duration) {
	total, propagated := len(session.Records), 0
	for _, record := range session.Records {
		if record.Status == enum.Propagated {
			propagated++
		}
	}

	progress := 100
	if total > 0 {
		progress = propagated * 100 / total
	}
	if progress < session.Progress {
		progress = session.Progress
	}
	session.Progress = progress
	session.LastCheckedAt = &now

	elapsed := now.Sub(session.StartedAt)
	switch {
	case propagated == total:
		session.Status = enum.PollingCompleted
		session.CompletedAt = &now
		session.EstimatedCompletionAt = nil
	case maxAge > 0 && elapsed > maxAge:
		session.Status = enum.PollingTimeout
		session.CompletedAt = &now
		session.EstimatedCompletionAt = nil
	default:
		session.EstimatedCompletionAt = EstimateCompletion(now, elapsed, progress)
	}
}

// EstimateCompletion extrapolates linearly from the progress so far. Nil until something propagated.
func EstimateCompletion(now time.Time, elapsed time.Duration, progress int) *time.Time {
	if progress <= 0 || progress >= 100 {
		return nil
	}
	remaining := time.Duration(int64(elapsed) * int64(100-progress) / int64(progress))
	eta := now.Add(remaining)
	return &eta
}

// Cancel stops a polling session. Cancelling a finished session returns it unchanged.
func (s *propagationService) Cancel(ctx context.Context, sessionID string) (*models.PollingSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PropagationService.Cancel")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, sessionID)

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return session, nil
	}

	cancelled, err := s.repositories.PollingSessionRepository.Cancel(ctx, sessionID, s.now())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to cancel polling session")
	}
	span.LogFields(tracingLog.Bool("result.cancelled", cancelled))

	session, err = s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cancelled {
		s.publish(ctx, session)
	}
	return session, nil
}

func (s *propagationService) Get(ctx context.Context, sessionID string) (*models.PollingSession, error) {
	session, err := s.repositories.PollingSessionRepository.GetByID(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load polling session")
	}
	if session == nil {
		return nil, er.ErrSessionNotFound
	}
	return session, nil
}

// GetActiveForDomain returns nil when the domain has no polling session.
func (s *propagationService) GetActiveForDomain(ctx context.Context, domainID string) (*models.PollingSession, error) {
	session, err := s.repositories.PollingSessionRepository.GetActiveForDomain(ctx, domainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load active polling session")
	}
	return session, nil
}

// TickActive ticks every polling session once and returns how many were ticked without error.
func (s *propagationService) TickActive(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PropagationService.TickActive")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	sessions, err := s.repositories.PollingSessionRepository.GetActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "failed to load active polling sessions")
	}

	ticked := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			break
		}
		tickCtx := utils.SetTenantInContext(ctx, session.Tenant)
		if _, err := s.Tick(tickCtx, session.ID); err != nil {
			s.log.Errorf("Failed to tick polling session %s: %v", session.ID, err)
			continue
		}
		ticked++
	}
	span.LogFields(tracingLog.Int("sessions", len(sessions)), tracingLog.Int("result.ticked", ticked))
	return ticked, nil
}

func (s *propagationService) publish(ctx context.Context, session *models.PollingSession) {
	if !s.cfg.ProgressEvents || s.publisher == nil {
		return
	}

	event := interfaces.PropagationProgressEvent{
		SessionID:             session.ID,
		DomainID:              session.DomainID,
		Tenant:                session.Tenant,
		Status:                session.Status,
		Progress:              session.Progress,
		EstimatedCompletionAt: session.EstimatedCompletionAt,
		CheckedAt:             s.now(),
	}
	if session.LastCheckedAt != nil {
		event.CheckedAt = *session.LastCheckedAt
	}
	if session.Domain != nil {
		event.Domain = session.Domain.Domain
	}

	if err := s.publisher.PublishPropagationProgress(ctx, event); err != nil {
		s.log.Warnf("Failed to publish propagation progress for session %s: %v", session.ID, err)
	}
}
