package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

type DomainRepository interface {
	Create(ctx context.Context, domain *models.Domain) error
	GetByID(ctx context.Context, id string) (*models.Domain, error)
	GetDomain(ctx context.Context, tenant, domain string) (*models.Domain, error)
	GetDomainCrossTenant(ctx context.Context, domain string) (*models.Domain, error)
	GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error)
	SetZone(ctx context.Context, id, zoneID string, nameservers []string) error
	MarkNameserversVerified(ctx context.Context, id string, nameservers []string, verifiedAt time.Time) error
	SetMailDirectoryStatus(ctx context.Context, id string, status enum.MailDirectoryStatus) error
	SetMailDirectoryToken(ctx context.Context, id, token, recordName string) error
	SetMailDirectoryRecordID(ctx context.Context, id, recordID string) error
	MarkDNSConfigured(ctx context.Context, id string, configuredAt time.Time) error
	GetPendingNameserverDomains(ctx context.Context) ([]models.Domain, error)
	GetPendingMailDirectoryDomains(ctx context.Context) ([]models.Domain, error)
	GetDomainsAwaitingDMARC(ctx context.Context, configuredBefore time.Time) ([]models.Domain, error)
}

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &domainRepository{
		db: db,
	}
}

func (r *domainRepository) Create(ctx context.Context, domain *models.Domain) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, domain.Tenant)
	span.LogKV("domain", domain.Domain)

	now := utils.Now()
	domain.CreatedAt = now
	domain.UpdatedAt = now
	domain.Active = true

	err := r.db.WithContext(ctx).Create(domain).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	tracing.TagEntity(span, domain.ID)
	return nil
}

func (r *domainRepository) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var domain models.Domain
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &domain, nil
}

func (r *domainRepository) GetDomain(ctx context.Context, tenant, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("domain", domain)

	var result models.Domain
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND domain = ?", tenant, domain).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.LogFields(tracingLog.Bool("response.exists", false))
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	span.LogFields(tracingLog.Bool("response.exists", true))
	return &result, nil
}

func (r *domainRepository) GetDomainCrossTenant(ctx context.Context, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomainCrossTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domain", domain)

	var result models.Domain
	err := r.db.WithContext(ctx).
		Where("domain = ?", domain).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &result, nil
}

func (r *domainRepository) GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetActiveDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND active = ?", tenant, true).
		Order("domain").
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return domains, nil
}

func (r *domainRepository) SetZone(ctx context.Context, id, zoneID string, nameservers []string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.SetZone")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("zoneId", zoneID)

	return r.update(ctx, span, id, map[string]interface{}{
		"zone_id":     zoneID,
		"nameservers": models.NewStringArray(nameservers),
	})
}

// MarkNameserversVerified records the observed nameservers. Status only moves to verified.
func (r *domainRepository) MarkNameserversVerified(ctx context.Context, id string, nameservers []string, verifiedAt time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.MarkNameserversVerified")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	return r.update(ctx, span, id, map[string]interface{}{
		"nameserver_status": enum.NameserverVerified,
		"nameservers":       models.NewStringArray(nameservers),
		"last_verified_at":  verifiedAt,
	})
}

func (r *domainRepository) SetMailDirectoryStatus(ctx context.Context, id string, status enum.MailDirectoryStatus) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.SetMailDirectoryStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("status", status)

	return r.update(ctx, span, id, map[string]interface{}{
		"mail_directory_status": status,
	})
}

func (r *domainRepository) SetMailDirectoryToken(ctx context.Context, id, token, recordName string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.SetMailDirectoryToken")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	return r.update(ctx, span, id, map[string]interface{}{
		"mail_directory_token":             token,
		"mail_directory_token_record_name": recordName,
	})
}

func (r *domainRepository) SetMailDirectoryRecordID(ctx context.Context, id, recordID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.SetMailDirectoryRecordID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	return r.update(ctx, span, id, map[string]interface{}{
		"mail_directory_record_id": recordID,
	})
}

// MarkDNSConfigured sets dns_configured_at once; later calls keep the first timestamp.
func (r *domainRepository) MarkDNSConfigured(ctx context.Context, id string, configuredAt time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.MarkDNSConfigured")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ? AND dns_configured_at IS NULL", id).
		Updates(map[string]interface{}{
			"dns_configured_at": configuredAt,
			"updated_at":        utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *domainRepository) GetPendingNameserverDomains(ctx context.Context) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetPendingNameserverDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("zone_id IS NOT NULL AND zone_id <> ''").
		Where("nameserver_status = ?", enum.NameserverPending).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("response.count", len(domains)))

	return domains, nil
}

func (r *domainRepository) GetPendingMailDirectoryDomains(ctx context.Context) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetPendingMailDirectoryDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("mail_directory_status = ?", enum.MailDirectoryPendingVerification).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("response.count", len(domains)))

	return domains, nil
}

// GetDomainsAwaitingDMARC returns domains configured before the cutoff that have no DMARC record yet.
func (r *domainRepository) GetDomainsAwaitingDMARC(ctx context.Context, configuredBefore time.Time) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomainsAwaitingDMARC")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogFields(tracingLog.String("configuredBefore", configuredBefore.String()))

	hasDmarc := r.db.Model(&models.DNSRecord{}).
		Select("1").
		Where("dns_records.domain_id = domains.id AND dns_records.purpose = ?", enum.PurposeDMARC)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("zone_id IS NOT NULL AND zone_id <> ''").
		Where("dns_configured_at IS NOT NULL AND dns_configured_at <= ?", configuredBefore).
		Where("NOT EXISTS (?)", hasDmarc).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("response.count", len(domains)))

	return domains, nil
}

func (r *domainRepository) update(ctx context.Context, span opentracing.Span, id string, values map[string]interface{}) error {
	values["updated_at"] = utils.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ?", id).
		Updates(values)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return result.Error
	}
	if result.RowsAffected == 0 {
		tracing.TraceErr(span, ErrNotFound)
		return ErrNotFound
	}
	return nil
}
