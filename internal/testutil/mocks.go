package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/models"
)

type MockZoneProvider struct {
	mock.Mock
}

func (m *MockZoneProvider) CreateZone(ctx context.Context, creds interfaces.ZoneCredentials, domain string) (*interfaces.Zone, error) {
	args := m.Called(ctx, creds, domain)
	zone, _ := args.Get(0).(*interfaces.Zone)
	return zone, args.Error(1)
}

func (m *MockZoneProvider) FindZone(ctx context.Context, creds interfaces.ZoneCredentials, domain string) (*interfaces.Zone, error) {
	args := m.Called(ctx, creds, domain)
	zone, _ := args.Get(0).(*interfaces.Zone)
	return zone, args.Error(1)
}

func (m *MockZoneProvider) CreateRecord(ctx context.Context, creds interfaces.ZoneCredentials, zoneID string, spec interfaces.RecordSpec) (string, error) {
	args := m.Called(ctx, creds, zoneID, spec)
	return args.String(0), args.Error(1)
}

func (m *MockZoneProvider) ListRecords(ctx context.Context, creds interfaces.ZoneCredentials, zoneID string) ([]interfaces.ProviderRecord, error) {
	args := m.Called(ctx, creds, zoneID)
	records, _ := args.Get(0).([]interfaces.ProviderRecord)
	return records, args.Error(1)
}

func (m *MockZoneProvider) DeleteRecord(ctx context.Context, creds interfaces.ZoneCredentials, zoneID, recordID string) error {
	return m.Called(ctx, creds, zoneID, recordID).Error(0)
}

func (m *MockZoneProvider) DeleteZone(ctx context.Context, creds interfaces.ZoneCredentials, zoneID string) error {
	return m.Called(ctx, creds, zoneID).Error(0)
}

type MockMailDirectory struct {
	mock.Mock
}

func (m *MockMailDirectory) AddDomain(ctx context.Context, creds interfaces.MailDirectoryCredentials, domain string) (*interfaces.AddDomainResult, error) {
	args := m.Called(ctx, creds, domain)
	result, _ := args.Get(0).(*interfaces.AddDomainResult)
	return result, args.Error(1)
}

func (m *MockMailDirectory) GetVerificationToken(ctx context.Context, creds interfaces.MailDirectoryCredentials, domain string) (*interfaces.VerificationToken, error) {
	args := m.Called(ctx, creds, domain)
	token, _ := args.Get(0).(*interfaces.VerificationToken)
	return token, args.Error(1)
}

func (m *MockMailDirectory) CheckVerificationStatus(ctx context.Context, creds interfaces.MailDirectoryCredentials, domain string) (bool, error) {
	args := m.Called(ctx, creds, domain)
	return args.Bool(0), args.Error(1)
}

type MockNameserverResolver struct {
	mock.Mock
}

func (m *MockNameserverResolver) ResolveNameservers(ctx context.Context, domain string) ([]string, error) {
	args := m.Called(ctx, domain)
	nameservers, _ := args.Get(0).([]string)
	return nameservers, args.Error(1)
}

// SamplerFunc adapts a function to interfaces.PropagationSampler.
type SamplerFunc func(ctx context.Context, record *models.DNSRecord) interfaces.SampleResult

func (f SamplerFunc) Sample(ctx context.Context, record *models.DNSRecord) interfaces.SampleResult {
	return f(ctx, record)
}

type MockProgressPublisher struct {
	mock.Mock
}

func (m *MockProgressPublisher) PublishPropagationProgress(ctx context.Context, event interfaces.PropagationProgressEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockProgressPublisher) Close() error {
	return m.Called().Error(0)
}

type MockProvisioningService struct {
	mock.Mock
}

func (m *MockProvisioningService) ConnectOrResume(ctx context.Context, tenant string, request interfaces.ConnectRequest) (*interfaces.ConnectResult, error) {
	args := m.Called(ctx, tenant, request)
	result, _ := args.Get(0).(*interfaces.ConnectResult)
	return result, args.Error(1)
}

func (m *MockProvisioningService) GetDomain(ctx context.Context, tenant, domain string) (*models.Domain, error) {
	args := m.Called(ctx, tenant, domain)
	result, _ := args.Get(0).(*models.Domain)
	return result, args.Error(1)
}

func (m *MockProvisioningService) VerifyNameservers(ctx context.Context, tenant, domain string) (*interfaces.NameserverVerifyResult, error) {
	args := m.Called(ctx, tenant, domain)
	result, _ := args.Get(0).(*interfaces.NameserverVerifyResult)
	return result, args.Error(1)
}

func (m *MockProvisioningService) ProvisionRecords(ctx context.Context, tenant, domain string, request interfaces.ProvisionRequest) (*interfaces.ProvisionResult, error) {
	args := m.Called(ctx, tenant, domain, request)
	result, _ := args.Get(0).(*interfaces.ProvisionResult)
	return result, args.Error(1)
}

func (m *MockProvisioningService) CheckMailDirectoryVerification(ctx context.Context, tenant, domain string) (*models.Domain, error) {
	args := m.Called(ctx, tenant, domain)
	result, _ := args.Get(0).(*models.Domain)
	return result, args.Error(1)
}

func (m *MockProvisioningService) CheckPendingMailDirectory(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockProvisioningService) GetActiveSession(ctx context.Context, tenant, domain string) (*models.PollingSession, error) {
	args := m.Called(ctx, tenant, domain)
	result, _ := args.Get(0).(*models.PollingSession)
	return result, args.Error(1)
}

type MockPropagationService struct {
	mock.Mock
}

func (m *MockPropagationService) Start(ctx context.Context, domainID string, recordIDs []string) (*models.PollingSession, error) {
	args := m.Called(ctx, domainID, recordIDs)
	result, _ := args.Get(0).(*models.PollingSession)
	return result, args.Error(1)
}

func (m *MockPropagationService) Tick(ctx context.Context, sessionID string) (*models.PollingSession, error) {
	args := m.Called(ctx, sessionID)
	result, _ := args.Get(0).(*models.PollingSession)
	return result, args.Error(1)
}

func (m *MockPropagationService) Cancel(ctx context.Context, sessionID string) (*models.PollingSession, error) {
	args := m.Called(ctx, sessionID)
	result, _ := args.Get(0).(*models.PollingSession)
	return result, args.Error(1)
}

func (m *MockPropagationService) Get(ctx context.Context, sessionID string) (*models.PollingSession, error) {
	args := m.Called(ctx, sessionID)
	result, _ := args.Get(0).(*models.PollingSession)
	return result, args.Error(1)
}

func (m *MockPropagationService) GetActiveForDomain(ctx context.Context, domainID string) (*models.PollingSession, error) {
	args := m.Called(ctx, domainID)
	result, _ := args.Get(0).(*models.PollingSession)
	return result, args.Error(1)
}

func (m *MockPropagationService) TickActive(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
