package propagation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/lock"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/repository"
	"github.com/customeros/domainstack/internal/testutil"
)

type fixture struct {
	svc       *propagationService
	repos     *repository.Repositories
	publisher *testutil.MockProgressPublisher
	domain    *models.Domain
	records   []models.DNSRecord
	clock     time.Time

	mu      sync.Mutex
	results map[string]interfaces.SampleResult
	sampled []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repos:     testutil.NewTestRepositories(t),
		publisher: new(testutil.MockProgressPublisher),
		clock:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		results:   map[string]interfaces.SampleResult{},
	}
	f.publisher.On("PublishPropagationProgress", mock.Anything, mock.Anything).Return(nil).Maybe()

	cfg := &config.PropagationConfig{MaxSessionAge: 4 * time.Hour, TickLockTTL: time.Minute, ProgressEvents: true}
	sampler := testutil.SamplerFunc(func(ctx context.Context, record *models.DNSRecord) interfaces.SampleResult {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sampled = append(f.sampled, record.Name)
		if result, ok := f.results[record.Name]; ok {
			return result
		}
		return interfaces.SampleResult{Status: enum.NotPropagated}
	})
	f.svc = NewPropagationService(testutil.NewTestLogger(), cfg, f.repos, sampler, lock.NewLocalLocker(), f.publisher).(*propagationService)
	f.svc.now = func() time.Time { return f.clock }

	f.domain = testutil.CreateZonedDomain(t, f.repos, "acme", "acme.com")
	for _, name := range []string{"acme.com", "track.acme.com"} {
		record := models.DNSRecord{DomainID: f.domain.ID, Tenant: "acme", RecordType: enum.DNSRecordTXT, Purpose: enum.PurposeSPF, Name: name, Content: "v=spf1 ~all", TTL: 3600}
		require.NoError(t, f.repos.DNSRecordRepository.Create(context.Background(), &record))
		f.records = append(f.records, record)
	}
	return f
}

func (f *fixture) recordIDs() []string {
	ids := make([]string, len(f.records))
	for i, r := range f.records {
		ids[i] = r.ID
	}
	return ids
}

func (f *fixture) set(name string, status enum.PropagationStatus, coverage int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[name] = interfaces.SampleResult{Status: status, Coverage: coverage}
}

func (f *fixture) sampledNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sampled...)
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)
	assert.Equal(t, enum.PollingActive, session.Status)
	assert.Equal(t, 0, session.Progress)
	require.Len(t, session.Records, 2)
	for _, record := range session.Records {
		assert.Equal(t, enum.NotPropagated, record.Status)
		assert.Equal(t, 0, record.Coverage)
	}
}

func TestStart_SupersedesActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)
	second, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs()[:1])
	require.NoError(t, err)

	old, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingCancelled, old.Status)

	active, err := f.svc.GetActiveForDomain(ctx, f.domain.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
}

func TestStart_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, f.domain.ID, nil)
	assert.ErrorIs(t, err, er.ErrNoRecordsToMonitor)

	_, err = f.svc.Start(ctx, f.domain.ID, []string{"dnsr_unknown"})
	assert.True(t, er.IsValidation(err))

	_, err = f.svc.Start(ctx, "dom_missing", f.recordIDs())
	assert.ErrorIs(t, err, er.ErrDomainNotFound)
}

func TestTick_FullCoverageCompletesInOneTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)

	f.set("acme.com", enum.Propagated, 100)
	f.set("track.acme.com", enum.Propagated, 100)
	f.clock = f.clock.Add(time.Minute)

	session, err = f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingCompleted, session.Status)
	assert.Equal(t, 100, session.Progress)
	assert.NotNil(t, session.CompletedAt)
	assert.Nil(t, session.EstimatedCompletionAt)

	stored, err := f.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingCompleted, stored.Status)
	for _, record := range stored.Records {
		assert.Equal(t, enum.Propagated, record.Status)
		assert.Equal(t, 100, record.Coverage)
	}
	f.publisher.AssertCalled(t, "PublishPropagationProgress", mock.Anything, mock.MatchedBy(func(e interfaces.PropagationProgressEvent) bool {
		return e.SessionID == session.ID && e.Status == enum.PollingCompleted && e.Domain == "acme.com"
	}))
}

func TestTick_ProgressIsNonDecreasingAndEstimatesCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)
	startedAt := f.clock

	f.set("acme.com", enum.Propagated, 100)
	f.set("track.acme.com", enum.Propagating, 50)
	f.clock = startedAt.Add(10 * time.Minute)

	session, err = f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingActive, session.Status)
	assert.Equal(t, 50, session.Progress)
	require.NotNil(t, session.EstimatedCompletionAt)
	assert.True(t, session.EstimatedCompletionAt.Equal(f.clock.Add(10*time.Minute)))

	// a resolver flapping back does not reduce progress: propagated records are not re-sampled
	f.set("acme.com", enum.NotPropagated, 0)
	f.set("track.acme.com", enum.Propagating, 75)
	f.clock = startedAt.Add(20 * time.Minute)

	before := len(f.sampledNames())
	session, err = f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, session.Progress)
	assert.Equal(t, []string{"track.acme.com"}, f.sampledNames()[before:])
}

func TestTick_TimesOutAfterMaxAge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)

	f.clock = f.clock.Add(4*time.Hour + time.Second)
	session, err = f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingTimeout, session.Status)
	assert.NotNil(t, session.CompletedAt)

	// terminal sessions are not sampled again
	before := len(f.sampledNames())
	session, err = f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingTimeout, session.Status)
	assert.Len(t, f.sampledNames(), before)
}

func TestTick_CompletionWinsOverTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)

	f.set("acme.com", enum.Propagated, 100)
	f.set("track.acme.com", enum.Propagated, 100)
	f.clock = f.clock.Add(5 * time.Hour)

	session, err = f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingCompleted, session.Status)
}

func TestTick_CancelDuringSamplingWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)

	var once sync.Once
	f.svc.sampler = testutil.SamplerFunc(func(ctx context.Context, record *models.DNSRecord) interfaces.SampleResult {
		once.Do(func() {
			_, err := f.svc.Cancel(ctx, session.ID)
			assert.NoError(t, err)
		})
		return interfaces.SampleResult{Status: enum.Propagated, Coverage: 100}
	})

	result, err := f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingCancelled, result.Status)
	assert.Equal(t, 0, result.Progress)
	for _, record := range result.Records {
		assert.Equal(t, enum.NotPropagated, record.Status)
	}
}

func TestTick_SkippedWhileLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)

	_, acquired, err := f.svc.locker.TryLock(ctx, "propagation:"+session.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	result, err := f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingActive, result.Status)
	assert.Nil(t, result.LastCheckedAt)
	assert.Empty(t, f.sampledNames())
}

// racingLocker runs before once, ahead of handing out the lock, to stand in for another worker.
type racingLocker struct {
	interfaces.Locker
	before func()
}

func (l *racingLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if before := l.before; before != nil {
		l.before = nil
		before()
	}
	return l.Locker.TryLock(ctx, key, ttl)
}

func TestTick_ReloadsSessionTickedWhileWaitingForLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)

	f.svc.locker = &racingLocker{
		Locker: f.svc.locker,
		before: func() {
			f.set("acme.com", enum.Propagated, 100)
			other, err := f.svc.Tick(ctx, session.ID)
			require.NoError(t, err)
			require.Equal(t, 50, other.Progress)
			f.set("acme.com", enum.NotPropagated, 0)
		},
	}

	result, err := f.svc.Tick(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, result.Progress)

	stored, err := f.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Progress)
	for _, record := range stored.Records {
		if record.DNSRecord != nil && record.DNSRecord.Name == "acme.com" {
			assert.Equal(t, enum.Propagated, record.Status)
		}
	}
}

func TestCancel_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingCancelled, cancelled.Status)

	again, err := f.svc.Cancel(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.PollingCancelled, again.Status)

	_, err = f.svc.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, er.ErrSessionNotFound)
}

func TestTickActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, f.domain.ID, f.recordIDs())
	require.NoError(t, err)

	other := testutil.CreateZonedDomain(t, f.repos, "acme", "other.com")
	record := models.DNSRecord{DomainID: other.ID, Tenant: "acme", RecordType: enum.DNSRecordMX, Purpose: enum.PurposeMX, Name: "other.com", Content: "mx.hostedemail.com", TTL: 3600}
	require.NoError(t, f.repos.DNSRecordRepository.Create(ctx, &record))
	_, err = f.svc.Start(ctx, other.ID, []string{record.ID})
	require.NoError(t, err)

	ticked, err := f.svc.TickActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ticked)
	assert.Len(t, f.sampledNames(), 3)
}

func TestEstimateCompletion(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, EstimateCompletion(now, time.Hour, 0))
	assert.Nil(t, EstimateCompletion(now, time.Hour, 100))

	eta := EstimateCompletion(now, 30*time.Minute, 25)
	require.NotNil(t, eta)
	assert.Equal(t, now.Add(90*time.Minute), *eta)
}
