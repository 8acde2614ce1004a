package services

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/lock"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/repository"
	"github.com/customeros/domainstack/services/cloudflare"
	"github.com/customeros/domainstack/services/credentials"
	"github.com/customeros/domainstack/services/dnsrecords"
	"github.com/customeros/domainstack/services/events"
	"github.com/customeros/domainstack/services/maildirectory"
	"github.com/customeros/domainstack/services/nameserver"
	"github.com/customeros/domainstack/services/propagation"
	"github.com/customeros/domainstack/services/provisioning"
	"github.com/customeros/domainstack/services/resolver"
)

type Services struct {
	EventsService       *events.EventsService
	ZoneProvider        interfaces.ZoneProvider
	MailDirectory       interfaces.MailDirectoryService
	Credentials         interfaces.CredentialProvider
	DNSRecordService    interfaces.DNSRecordService
	NameserverService   interfaces.NameserverService
	PropagationService  interfaces.PropagationService
	ProvisioningService interfaces.ProvisioningService

	redis *redis.Client
}

func InitServices(ctx context.Context, cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// events
	var eventsService *events.EventsService
	if cfg.PropagationConfig.ProgressEvents {
		var err error
		eventsService, err = events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig())
		if err != nil {
			return nil, errors.Wrap(err, "failed to init events service")
		}
	} else {
		eventsService = &events.EventsService{Publisher: events.NewNoopPublisher(log)}
	}

	// tick lock
	var redisClient *redis.Client
	var locker interfaces.Locker
	if cfg.RedisConfig.Addr != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisConfig)
		if err != nil {
			_ = eventsService.Close()
			return nil, err
		}
		redisClient = client
		locker = lock.NewRedisLocker(log, client)
	} else {
		log.Warn("REDIS_ADDR not set, propagation tick lock is local to this process")
		locker = lock.NewLocalLocker()
	}

	// providers
	zones := cloudflare.NewCloudflareService(log, cfg.CloudflareConfig)
	mailDirectory := maildirectory.NewMailDirectoryService(log, cfg.MailDirectoryConfig)
	creds := credentials.NewEnvCredentialProvider(cfg.CloudflareConfig, cfg.MailDirectoryConfig)

	dnsRecordService := dnsrecords.NewDNSRecordService(log, cfg.ProvisioningConfig, repos, zones, creds)
	nameserverService := nameserver.NewNameserverService(log, cfg.ProvisioningConfig, repos, resolver.NewNameserverResolver(cfg.PropagationConfig))
	propagationService := propagation.NewPropagationService(log, cfg.PropagationConfig, repos, resolver.NewPropagationSampler(cfg.PropagationConfig), locker, eventsService.Publisher)

	services := Services{
		EventsService:      eventsService,
		ZoneProvider:       zones,
		MailDirectory:      mailDirectory,
		Credentials:        creds,
		DNSRecordService:   dnsRecordService,
		NameserverService:  nameserverService,
		PropagationService: propagationService,
		ProvisioningService: provisioning.NewProvisioningService(log, cfg.ProvisioningConfig, repos, provisioning.Dependencies{
			Zones:         zones,
			MailDirectory: mailDirectory,
			Credentials:   creds,
			DNSRecords:    dnsRecordService,
			Nameservers:   nameserverService,
			Propagation:   propagationService,
		}),
		redis: redisClient,
	}

	return &services, nil
}

func (s *Services) Close() error {
	var result error
	if err := s.EventsService.Close(); err != nil {
		result = err
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil && result == nil {
			result = errors.Wrap(err, "failed to close redis client")
		}
	}
	return result
}
