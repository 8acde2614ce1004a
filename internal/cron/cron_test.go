package cron

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes"

	"github.com/customeros/domainstack/interfaces"
	cron_config "github.com/customeros/domainstack/internal/cron/config"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/testutil"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

type fakeNameservers struct {
	calls int
}

func (f *fakeNameservers) Verify(ctx context.Context, domain *models.Domain) (*interfaces.NameserverVerifyResult, error) {
	return nil, nil
}

func (f *fakeNameservers) VerifyBatch(ctx context.Context, domains []*models.Domain) []interfaces.NameserverVerifyResult {
	return nil
}

func (f *fakeNameservers) VerifyPending(ctx context.Context) (int, error) {
	f.calls++
	return 2, nil
}

type fakeDNSRecords struct {
	calls int
}

func (f *fakeDNSRecords) CreateBatch(ctx context.Context, domain *models.Domain, specs []interfaces.RecordSpec) (*interfaces.BatchResult, error) {
	return nil, nil
}

func (f *fakeDNSRecords) CreateDeferredDMARC(ctx context.Context) (int, error) {
	f.calls++
	return 0, errors.New("zone host unavailable")
}

func testConfig() *cron_config.Config {
	return &cron_config.Config{
		CronScheduleHeartbeat:          "0 * * * * *",
		CronSchedulePropagationTick:    "*/30 * * * * *",
		CronScheduleVerifyNameservers:  "0 */10 * * * *",
		CronScheduleDeferredDmarc:      "0 0 * * * *",
		CronScheduleMailDirectoryCheck: "0 */15 * * * *",
		LeaderElection:                 true,
		LeaseName:                      "domainstack-cron-leader",
	}
}

func TestNewCronManager(t *testing.T) {
	cfg := testConfig()
	log := testutil.NewTestLogger()
	k8s := &mockKubernetesInterface{}

	cm := NewCronManager(cfg, log, k8s, Jobs{})

	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_RegisterJobs(t *testing.T) {
	cm := NewCronManager(testConfig(), testutil.NewTestLogger(), nil, Jobs{
		Propagation:  new(testutil.MockPropagationService),
		Nameservers:  &fakeNameservers{},
		DNSRecords:   &fakeDNSRecords{},
		Provisioning: new(testutil.MockProvisioningService),
	})

	c := cronv3.New(cronv3.WithSeconds())
	cm.registerJobs(c)

	assert.Len(t, cm.jobIDs, 5)
	for _, name := range []string{"heartbeat", "propagation_tick", "verify_nameservers", "deferred_dmarc", "mail_directory_check"} {
		assert.Contains(t, cm.jobIDs, name)
	}
	assert.Len(t, c.Entries(), 5)
}

func TestCronManager_DisabledSchedulesAreSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.CronScheduleDeferredDmarc = ""
	cfg.CronScheduleHeartbeat = ""
	cm := NewCronManager(cfg, testutil.NewTestLogger(), nil, Jobs{
		Propagation: new(testutil.MockPropagationService),
		DNSRecords:  &fakeDNSRecords{},
	})

	c := cronv3.New(cronv3.WithSeconds())
	cm.registerJobs(c)

	assert.Len(t, cm.jobIDs, 1)
	assert.Contains(t, cm.jobIDs, "propagation_tick")
}

func TestCronManager_JobsCallServices(t *testing.T) {
	propagation := new(testutil.MockPropagationService)
	propagation.On("TickActive", mock.Anything).Return(3, nil).Once()
	provisioning := new(testutil.MockProvisioningService)
	provisioning.On("CheckPendingMailDirectory", mock.Anything).Return(1, nil).Once()
	nameservers := &fakeNameservers{}
	dnsRecords := &fakeDNSRecords{}

	cm := NewCronManager(testConfig(), testutil.NewTestLogger(), nil, Jobs{
		Propagation:  propagation,
		Nameservers:  nameservers,
		DNSRecords:   dnsRecords,
		Provisioning: provisioning,
	})
	ctx := context.Background()

	cm.tickPropagation(ctx)
	cm.verifyNameservers(ctx)
	cm.createDeferredDMARC(ctx)
	cm.checkMailDirectory(ctx)

	propagation.AssertExpectations(t)
	provisioning.AssertExpectations(t)
	assert.Equal(t, 1, nameservers.calls)
	assert.Equal(t, 1, dnsRecords.calls)
}

func TestCronManager_StartLocalMode(t *testing.T) {
	cfg := testConfig()
	cfg.LeaderElection = false
	cm := NewCronManager(cfg, testutil.NewTestLogger(), &mockKubernetesInterface{}, Jobs{})

	require.NoError(t, cm.Start("pod-1", "default"))
	assert.NotNil(t, cm.cron)
	assert.Contains(t, cm.jobIDs, "heartbeat")

	cm.Stop()
}

func TestCronManager_Stop(t *testing.T) {
	cm := NewCronManager(testConfig(), testutil.NewTestLogger(), &mockKubernetesInterface{}, Jobs{})

	mockCron := cronv3.New()
	mockCron.Start()
	cm.cron = mockCron

	cm.Stop()
	cm.Stop()

	select {
	case <-cm.stopCh:
	default:
		t.Error("Stop channel was not closed")
	}
}
