package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/domainstack/interfaces"
	cron_config "github.com/customeros/domainstack/internal/cron/config"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

const (
	// GroupPropagation serializes jobs that sample DNS
	GroupPropagation = "propagation"
	// GroupProvisioning serializes jobs that call the zone host or mail directory
	GroupProvisioning = "provisioning"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second

	jobTimeout = 5 * time.Minute
	appSource  = "domainstack-cron"
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupPropagation:  new(sync.Mutex),
		GroupProvisioning: new(sync.Mutex),
	},
}

// Jobs are the service operations the scheduler drives.
type Jobs struct {
	Propagation  interfaces.PropagationService
	Nameservers  interfaces.NameserverService
	DNSRecords   interfaces.DNSRecordService
	Provisioning interfaces.ProvisioningService
}

type CronManager struct {
	cfg      *cron_config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	jobs     Jobs
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, k8s kubernetes.Interface, jobs Jobs) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		k8s:    k8s,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		jobs:   jobs,
	}
}

// Start runs the scheduler on the elected leader only.
// Without a k8s client, or with leader election disabled, it starts in local mode.
func (cm *CronManager) Start(podName, namespace string) error {
	cfg := cm.config()
	if cm.k8s == nil || !cfg.LeaderElection || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}
	if cfg.LeaseNamespace != "" {
		namespace = cfg.LeaseNamespace
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      cfg.LeaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-cm.stopCh
			cancel()
		}()
		le.Run(ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

func (cm *CronManager) config() *cron_config.Config {
	if cm.cfg != nil {
		return cm.cfg
	}
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}
	cm.cfg = &cronConfig
	return cm.cfg
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	cfg := cm.config()

	if cfg.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		cm.addJob(c, "heartbeat", cfg.CronScheduleHeartbeat, "", func(ctx context.Context) {
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
	}

	if cm.jobs.Propagation != nil {
		cm.addJob(c, "propagation_tick", cfg.CronSchedulePropagationTick, GroupPropagation, cm.tickPropagation)
	}
	if cm.jobs.Nameservers != nil {
		cm.addJob(c, "verify_nameservers", cfg.CronScheduleVerifyNameservers, GroupProvisioning, cm.verifyNameservers)
	}
	if cm.jobs.DNSRecords != nil {
		cm.addJob(c, "deferred_dmarc", cfg.CronScheduleDeferredDmarc, GroupProvisioning, cm.createDeferredDMARC)
	}
	if cm.jobs.Provisioning != nil {
		cm.addJob(c, "mail_directory_check", cfg.CronScheduleMailDirectoryCheck, GroupProvisioning, cm.checkMailDirectory)
	}
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule, group string, job func(ctx context.Context)) {
	if schedule == "" {
		cm.log.Infof("Cron job %s disabled", name)
		return
	}
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		if group != "" {
			jobLocks.locks[group].Lock()
			defer jobLocks.locks[group].Unlock()
		}
		ctx, cancel := context.WithTimeout(utils.SetAppSourceInContext(context.Background(), appSource), jobTimeout)
		defer cancel()
		job(ctx)
	})
	if err != nil {
		cm.log.Fatalf("Could not add %s cron job: %v", name, err)
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

func (cm *CronManager) tickPropagation(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.tickPropagation")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	ticked, err := cm.jobs.Propagation.TickActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to tick polling sessions: %v", err)
		return
	}
	if ticked > 0 {
		cm.log.Infof("Ticked %d polling sessions", ticked)
	}
}

func (cm *CronManager) verifyNameservers(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.verifyNameservers")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	verified, err := cm.jobs.Nameservers.VerifyPending(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to verify pending nameservers: %v", err)
		return
	}
	if verified > 0 {
		cm.log.Infof("Verified nameservers for %d domains", verified)
	}
}

func (cm *CronManager) createDeferredDMARC(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.createDeferredDMARC")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	created, err := cm.jobs.DNSRecords.CreateDeferredDMARC(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to create deferred DMARC records: %v", err)
		return
	}
	if created > 0 {
		cm.log.Infof("Created DMARC records for %d domains", created)
	}
}

func (cm *CronManager) checkMailDirectory(ctx context.Context) {
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.checkMailDirectory")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	verified, err := cm.jobs.Provisioning.CheckPendingMailDirectory(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to check mail directory verification: %v", err)
		return
	}
	if verified > 0 {
		cm.log.Infof("Mail directory verified %d domains", verified)
	}
}
