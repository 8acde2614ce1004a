package provisioning

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
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
	"github.com/customeros/domainstack/internal/retry"
	"github.com/customeros/domainstack/internal/testutil"
	"github.com/customeros/domainstack/services/credentials"
	"github.com/customeros/domainstack/services/dnsrecords"
	"github.com/customeros/domainstack/services/events"
	"github.com/customeros/domainstack/services/nameserver"
	"github.com/customeros/domainstack/services/propagation"
)

type fixture struct {
	svc      *provisioningService
	repos    *repository.Repositories
	zones    *testutil.MockZoneProvider
	mailDir  *testutil.MockMailDirectory
	resolver *testutil.MockNameserverResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testutil.NewTestLogger()
	cfg := &config.ProvisioningConfig{
		ExpectedNameserverSuffix: "cloudflare.com",
		SpfInclude:               "_spf.hostedemail.com",
		MxHosts:                  []string{"10:mx.hostedemail.com"},
		DkimSelector:             "dkim",
		TrackingSubdomain:        "track",
		TrackingTarget:           "custosmetrics.com",
		DmarcRua:                 "dmarc@customeros.ai",
		DefaultTTL:               3600,
		DmarcDelay:               48 * time.Hour,
		ProviderTimeout:          time.Second,
		MinDomainAgeDays:         30,
	}
	f := &fixture{
		repos:    testutil.NewTestRepositories(t),
		zones:    new(testutil.MockZoneProvider),
		mailDir:  new(testutil.MockMailDirectory),
		resolver: new(testutil.MockNameserverResolver),
	}
	creds := credentials.StaticCredentialProvider{
		Zone:          interfaces.ZoneCredentials{AccountID: "acc", APIToken: "token"},
		MailDirectory: interfaces.MailDirectoryCredentials{Username: "user", APIKey: "key"},
	}
	sampler := testutil.SamplerFunc(func(ctx context.Context, record *models.DNSRecord) interfaces.SampleResult {
		return interfaces.SampleResult{Status: enum.NotPropagated}
	})
	propagationCfg := &config.PropagationConfig{MaxSessionAge: time.Hour, TickLockTTL: time.Minute}

	f.svc = NewProvisioningService(log, cfg, f.repos, Dependencies{
		Zones:         f.zones,
		MailDirectory: f.mailDir,
		Credentials:   creds,
		DNSRecords:    dnsrecords.NewDNSRecordService(log, cfg, f.repos, f.zones, creds),
		Nameservers:   nameserver.NewNameserverService(log, cfg, f.repos, f.resolver),
		Propagation:   propagation.NewPropagationService(log, propagationCfg, f.repos, sampler, lock.NewLocalLocker(), events.NewNoopPublisher(log)),
	}).(*provisioningService)
	f.svc.retryConfig = retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	f.svc.domainAge = func(domain string) (int, bool, error) { return 400, true, nil }
	f.svc.blacklists = func(domain string) (int, int, int) { return 0, 0, 0 }
	f.svc.isPrimary = func(domain string) bool { return false }
	return f
}

func purpose(p enum.RecordPurpose) interface{} {
	return mock.MatchedBy(func(spec interfaces.RecordSpec) bool { return spec.Purpose == p })
}

func (f *fixture) expectHappyConnect(domain string) {
	f.zones.On("CreateZone", mock.Anything, mock.Anything, domain).
		Return(&interfaces.Zone{ID: "zone-1", Name: domain, Nameservers: []string{"Ada.NS.Cloudflare.com", "bob.ns.cloudflare.com"}}, nil).Once()
	f.mailDir.On("AddDomain", mock.Anything, mock.Anything, domain).
		Return(&interfaces.AddDomainResult{Domain: domain}, nil).Once()
	f.mailDir.On("GetVerificationToken", mock.Anything, mock.Anything, domain).
		Return(&interfaces.VerificationToken{Token: "hostedemail-verify=abc", Method: interfaces.VerificationMethodDNSTXT, RecordName: domain}, nil).Once()
	f.zones.On("CreateRecord", mock.Anything, mock.Anything, "zone-1", purpose(enum.PurposeVerification)).
		Return("cf-verify", nil).Once()
}

func stepStatus(result *interfaces.ConnectResult, step string) enum.StepStatus {
	for _, s := range result.Steps {
		if s.Step == step {
			return s.Status
		}
	}
	return ""
}

func TestConnectOrResume_NewDomain(t *testing.T) {
	f := newFixture(t)
	f.expectHappyConnect("acme.com")

	result, err := f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "https://www.Acme.com/", Registrar: "namecheap"})
	require.NoError(t, err)

	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepZone))
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepMailDirectory))
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepVerificationRecord))
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepDomainAge))
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepBlacklist))
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepPrimaryDomain))
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepInstructions))

	domain := result.Domain
	require.NotNil(t, domain)
	assert.Equal(t, "acme.com", domain.Domain)
	assert.Equal(t, "zone-1", *domain.ZoneID)
	assert.Equal(t, []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"}, []string(domain.Nameservers))
	assert.Equal(t, enum.MailDirectoryPendingVerification, domain.MailDirectoryStatus)
	require.NotNil(t, domain.MailDirectoryRecordID)

	require.NotNil(t, result.Instructions)
	assert.Equal(t, enum.RegistrarNamecheap, result.Instructions.Registrar)
	assert.Equal(t, []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"}, result.Instructions.Nameservers)
}

func TestConnectOrResume_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.expectHappyConnect("acme.com")
	ctx := context.Background()

	_, err := f.svc.ConnectOrResume(ctx, "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)
	result, err := f.svc.ConnectOrResume(ctx, "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)

	assert.Equal(t, enum.StepSkipped, stepStatus(result, StepZone))
	assert.Equal(t, enum.StepSkipped, stepStatus(result, StepMailDirectory))
	assert.Equal(t, enum.StepSkipped, stepStatus(result, StepVerificationRecord))
	f.zones.AssertNumberOfCalls(t, "CreateZone", 1)
	f.zones.AssertNumberOfCalls(t, "CreateRecord", 1)
	f.mailDir.AssertNumberOfCalls(t, "AddDomain", 1)
	f.mailDir.AssertNumberOfCalls(t, "GetVerificationToken", 1)
}

func TestConnectOrResume_Validation(t *testing.T) {
	f := newFixture(t)
	f.expectHappyConnect("acme.com")
	ctx := context.Background()

	_, err := f.svc.ConnectOrResume(ctx, "acme", interfaces.ConnectRequest{Domain: "not a domain"})
	assert.True(t, er.IsValidation(err))

	_, err = f.svc.ConnectOrResume(ctx, "", interfaces.ConnectRequest{Domain: "acme.com"})
	assert.ErrorIs(t, err, er.ErrTenantMissing)

	_, err = f.svc.ConnectOrResume(ctx, "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)

	_, err = f.svc.ConnectOrResume(ctx, "other-tenant", interfaces.ConnectRequest{Domain: "acme.com"})
	require.Error(t, err)
	assert.True(t, er.IsValidation(err))
	assert.Contains(t, er.UserMessage(err), "another workspace")
	assert.ErrorIs(t, err, er.ErrDomainTaken)
}

func TestConnectOrResume_ExistingZoneIsReused(t *testing.T) {
	f := newFixture(t)
	f.zones.On("CreateZone", mock.Anything, mock.Anything, "acme.com").
		Return(nil, er.Duplicate("cloudflare.CreateZone", errors.New("zone already exists"))).Once()
	f.zones.On("FindZone", mock.Anything, mock.Anything, "acme.com").
		Return(&interfaces.Zone{ID: "zone-existing", Nameservers: []string{"ada.ns.cloudflare.com"}}, nil).Once()
	f.mailDir.On("AddDomain", mock.Anything, mock.Anything, "acme.com").
		Return(nil, er.Duplicate("maildirectory.AddDomain", errors.New("domain exists"))).Once()
	f.mailDir.On("GetVerificationToken", mock.Anything, mock.Anything, "acme.com").
		Return(&interfaces.VerificationToken{Token: "t", Method: interfaces.VerificationMethodDNSTXT, RecordName: "acme.com"}, nil).Once()
	f.zones.On("CreateRecord", mock.Anything, mock.Anything, "zone-existing", mock.Anything).Return("cf-1", nil).Once()

	result, err := f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)
	assert.Equal(t, "zone-existing", *result.Domain.ZoneID)
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepMailDirectory))
	f.zones.AssertExpectations(t)
}

func TestConnectOrResume_ZoneFailureIsFatalAndResumable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.zones.On("CreateZone", mock.Anything, mock.Anything, "acme.com").
		Return(nil, er.Terminal("cloudflare.CreateZone", "token lacks Zone:Edit permission", nil)).Once()

	_, err := f.svc.ConnectOrResume(ctx, "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.Error(t, err)
	assert.True(t, er.IsTerminal(err))
	f.mailDir.AssertNotCalled(t, "AddDomain", mock.Anything, mock.Anything, mock.Anything)

	stored, err := f.repos.DomainRepository.GetDomain(ctx, "acme", "acme.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.HasZone())

	f.expectHappyConnect("acme.com")
	result, err := f.svc.ConnectOrResume(ctx, "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepZone))
	assert.True(t, result.Domain.HasZone())
}

func TestConnectOrResume_MailDirectoryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.zones.On("CreateZone", mock.Anything, mock.Anything, "acme.com").
		Return(&interfaces.Zone{ID: "zone-1", Nameservers: []string{"ada.ns.cloudflare.com"}}, nil).Once()
	f.mailDir.On("AddDomain", mock.Anything, mock.Anything, "acme.com").
		Return(nil, er.Transient("maildirectory.AddDomain", errors.New("503")))

	result, err := f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "acme.com", Registrar: "godaddy"})
	require.NoError(t, err)

	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepZone))
	assert.Equal(t, enum.StepFailed, stepStatus(result, StepMailDirectory))
	assert.Equal(t, enum.StepSkipped, stepStatus(result, StepVerificationRecord))
	assert.Equal(t, enum.MailDirectoryFailed, result.Domain.MailDirectoryStatus)
	require.NotNil(t, result.Instructions)
	assert.NotEmpty(t, result.Instructions.HelpURL)
	f.mailDir.AssertNumberOfCalls(t, "AddDomain", 3)

	for _, step := range result.Steps {
		if step.Step == StepMailDirectory {
			assert.NotEmpty(t, step.Advice)
		}
	}
}

func findStep(result *interfaces.ConnectResult, step string) interfaces.StepResult {
	for _, s := range result.Steps {
		if s.Step == step {
			return s
		}
	}
	return interfaces.StepResult{}
}

func TestConnectOrResume_AlreadyVerifiedInMailDirectory(t *testing.T) {
	f := newFixture(t)
	f.zones.On("CreateZone", mock.Anything, mock.Anything, "acme.com").
		Return(&interfaces.Zone{ID: "zone-1", Name: "acme.com", Nameservers: []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"}}, nil).Once()
	f.mailDir.On("AddDomain", mock.Anything, mock.Anything, "acme.com").
		Return(&interfaces.AddDomainResult{Domain: "acme.com", AlreadyExisted: true, Verified: true}, nil).Once()

	result, err := f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)

	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepMailDirectory))
	verification := findStep(result, StepVerificationRecord)
	assert.Equal(t, enum.StepSkipped, verification.Status)
	assert.Contains(t, verification.Message, "already verified")
	assert.Equal(t, enum.MailDirectoryVerified, result.Domain.MailDirectoryStatus)

	f.mailDir.AssertNotCalled(t, "GetVerificationToken", mock.Anything, mock.Anything, mock.Anything)
	f.zones.AssertNotCalled(t, "CreateRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// resuming keeps the verified state and does not onboard again
	result, err = f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)
	assert.Equal(t, enum.StepSkipped, stepStatus(result, StepMailDirectory))
	assert.Contains(t, findStep(result, StepVerificationRecord).Message, "already verified")
	f.mailDir.AssertNumberOfCalls(t, "AddDomain", 1)
}

// racingDomainRepository inserts competitor just before the first Create, like a parallel connect would.
type racingDomainRepository struct {
	repository.DomainRepository
	competitor *models.Domain
}

func (r *racingDomainRepository) Create(ctx context.Context, domain *models.Domain) error {
	if competitor := r.competitor; competitor != nil {
		r.competitor = nil
		if err := r.DomainRepository.Create(ctx, competitor); err != nil {
			return err
		}
	}
	return r.DomainRepository.Create(ctx, domain)
}

func TestConnectOrResume_ConcurrentFirstConnectResumes(t *testing.T) {
	f := newFixture(t)
	competitor := &models.Domain{Tenant: "acme", Domain: "acme.com", Registrar: enum.RegistrarOther}
	f.repos.DomainRepository = &racingDomainRepository{DomainRepository: f.repos.DomainRepository, competitor: competitor}
	f.expectHappyConnect("acme.com")

	result, err := f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)
	assert.Equal(t, competitor.ID, result.Domain.ID)
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepZone))
	require.NotNil(t, result.Domain.ZoneID)
	assert.Equal(t, "zone-1", *result.Domain.ZoneID)
}

func TestConnectOrResume_ConcurrentFirstConnectByAnotherTenant(t *testing.T) {
	f := newFixture(t)
	competitor := &models.Domain{Tenant: "globex", Domain: "acme.com", Registrar: enum.RegistrarOther}
	f.repos.DomainRepository = &racingDomainRepository{DomainRepository: f.repos.DomainRepository, competitor: competitor}

	_, err := f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, er.ErrDomainTaken)
	assert.True(t, er.IsValidation(err))
	f.zones.AssertNotCalled(t, "CreateZone", mock.Anything, mock.Anything, mock.Anything)
}

func TestConnectOrResume_AdvisoryWarnings(t *testing.T) {
	f := newFixture(t)
	f.expectHappyConnect("acme.com")
	f.svc.domainAge = func(domain string) (int, bool, error) { return 3, true, nil }
	f.svc.blacklists = func(domain string) (int, int, int) { return 0, 2, 0 }
	f.svc.isPrimary = func(domain string) bool { return domain == "acme.com" }

	result, err := f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "acme.com"})
	require.NoError(t, err)
	assert.Equal(t, enum.StepWarning, stepStatus(result, StepDomainAge))
	assert.Equal(t, enum.StepWarning, stepStatus(result, StepBlacklist))
	assert.Equal(t, enum.StepWarning, stepStatus(result, StepPrimaryDomain))

	f.expectHappyConnect("fresh.com")
	f.svc.domainAge = func(domain string) (int, bool, error) { return 0, false, errors.New("whois timeout") }
	result, err = f.svc.ConnectOrResume(context.Background(), "acme", interfaces.ConnectRequest{Domain: "fresh.com"})
	require.NoError(t, err)
	assert.Equal(t, enum.StepSkipped, stepStatus(result, StepDomainAge))
	assert.Equal(t, enum.StepSucceeded, stepStatus(result, StepPrimaryDomain))
}

func TestProvisionRecords_SPFAndMX(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	domain := testutil.CreateZonedDomain(t, f.repos, "acme", "acme.com")

	f.zones.On("ListRecords", mock.Anything, mock.Anything, *domain.ZoneID).Return([]interfaces.ProviderRecord{}, nil).Once()
	f.zones.On("CreateRecord", mock.Anything, mock.Anything, *domain.ZoneID, purpose(enum.PurposeSPF)).Return("cf-spf", nil).Once()
	f.zones.On("CreateRecord", mock.Anything, mock.Anything, *domain.ZoneID, purpose(enum.PurposeMX)).Return("cf-mx", nil).Once()

	result, err := f.svc.ProvisionRecords(ctx, "acme", "acme.com", interfaces.ProvisionRequest{
		Purposes: []enum.RecordPurpose{enum.PurposeSPF, enum.PurposeMX, enum.PurposeDKIM, enum.PurposeDMARC},
	})
	require.NoError(t, err)

	assert.Len(t, result.Batch.Created, 2)
	assert.Empty(t, result.Batch.Failed)
	require.Len(t, result.Batch.Skipped, 2)
	assert.Equal(t, enum.SkipAwaitingManualKey, result.Batch.Skipped[0].Reason)
	assert.Equal(t, enum.SkipDeferred48h, result.Batch.Skipped[1].Reason)
	assert.NotEmpty(t, result.Batch.Warnings)

	require.NotNil(t, result.Session)
	assert.Equal(t, enum.PollingActive, result.Session.Status)
	assert.Len(t, result.Session.Records, 2)

	stored, err := f.repos.DomainRepository.GetByID(ctx, domain.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.DNSConfiguredAt)
	f.zones.AssertExpectations(t)
}

func TestProvisionRecords_RequiresZone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repos.DomainRepository.Create(ctx, &models.Domain{Tenant: "acme", Domain: "acme.com"}))

	_, err := f.svc.ProvisionRecords(ctx, "acme", "acme.com", interfaces.ProvisionRequest{Purposes: []enum.RecordPurpose{enum.PurposeSPF}})
	assert.ErrorIs(t, err, er.ErrZoneNotCreated)

	_, err = f.svc.ProvisionRecords(ctx, "acme", "missing.com", interfaces.ProvisionRequest{})
	assert.ErrorIs(t, err, er.ErrDomainNotFound)
}

func TestCheckMailDirectoryVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	domain := testutil.CreateZonedDomain(t, f.repos, "acme", "acme.com")

	_, err := f.svc.CheckMailDirectoryVerification(ctx, "acme", "acme.com")
	assert.True(t, er.IsValidation(err))

	require.NoError(t, f.repos.DomainRepository.SetMailDirectoryStatus(ctx, domain.ID, enum.MailDirectoryPendingVerification))
	f.mailDir.On("CheckVerificationStatus", mock.Anything, mock.Anything, "acme.com").Return(false, nil).Once()
	f.mailDir.On("CheckVerificationStatus", mock.Anything, mock.Anything, "acme.com").Return(true, nil).Once()

	pending, err := f.svc.CheckMailDirectoryVerification(ctx, "acme", "acme.com")
	require.NoError(t, err)
	assert.Equal(t, enum.MailDirectoryPendingVerification, pending.MailDirectoryStatus)

	verified, err := f.svc.CheckPendingMailDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, verified)

	stored, err := f.repos.DomainRepository.GetByID(ctx, domain.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.MailDirectoryVerified, stored.MailDirectoryStatus)
}

func TestVerifyNameserversAndActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateZonedDomain(t, f.repos, "acme", "acme.com")
	f.resolver.On("ResolveNameservers", mock.Anything, "acme.com").Return([]string{"ada.ns.cloudflare.com"}, nil)

	result, err := f.svc.VerifyNameservers(ctx, "acme", "ACME.com")
	require.NoError(t, err)
	assert.True(t, result.IsVerified)

	_, err = f.svc.GetActiveSession(ctx, "acme", "acme.com")
	assert.ErrorIs(t, err, er.ErrSessionNotFound)
}

func TestRegistrarInstructionsFor(t *testing.T) {
	ns := []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"}

	godaddy := RegistrarInstructionsFor(enum.RegistrarGoDaddy, "acme.com", ns)
	assert.Equal(t, enum.RegistrarGoDaddy, godaddy.Registrar)
	assert.NotEmpty(t, godaddy.HelpURL)
	assert.Contains(t, godaddy.Steps[2], "ada.ns.cloudflare.com, bob.ns.cloudflare.com")

	other := RegistrarInstructionsFor("unknown", "acme.com", ns)
	assert.Equal(t, enum.RegistrarOther, other.Registrar)
	assert.Len(t, other.Steps, 4)

	cf := RegistrarInstructionsFor(enum.RegistrarCloudflare, "acme.com", ns)
	assert.Contains(t, cf.Steps[0], "Cloudflare")
}
