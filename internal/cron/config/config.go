package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Propagation tick for all active polling sessions, every 30 seconds
	CronSchedulePropagationTick string `env:"CRON_SCHEDULE_PROPAGATION_TICK" envDefault:"*/30 * * * * *"`
	// Nameserver verification for pending domains, every 10 minutes
	CronScheduleVerifyNameservers string `env:"CRON_SCHEDULE_VERIFY_NAMESERVERS" envDefault:"0 */10 * * * *"`
	// Deferred DMARC creation, every hour
	CronScheduleDeferredDmarc string `env:"CRON_SCHEDULE_DEFERRED_DMARC" envDefault:"0 0 * * * *"`
	// Mail directory verification check, every 15 minutes
	CronScheduleMailDirectoryCheck string `env:"CRON_SCHEDULE_MAIL_DIRECTORY_CHECK" envDefault:"0 */15 * * * *"`

	LeaderElection bool   `env:"CRON_LEADER_ELECTION" envDefault:"true"`
	LeaseName      string `env:"CRON_LEASE_NAME" envDefault:"domainstack-cron-leader"`
	LeaseNamespace string `env:"CRON_LEASE_NAMESPACE" envDefault:"default"`
}
