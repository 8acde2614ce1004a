package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

type DNSRecordRepository interface {
	Create(ctx context.Context, record *models.DNSRecord) error
	GetByDomain(ctx context.Context, domainID string) ([]models.DNSRecord, error)
	Exists(ctx context.Context, domainID string, recordType enum.DNSRecordType, name, content string) (bool, error)
	HasPurpose(ctx context.Context, domainID string, purpose enum.RecordPurpose) (bool, error)
}

type dnsRecordRepository struct {
	db *gorm.DB
}

func NewDNSRecordRepository(db *gorm.DB) DNSRecordRepository {
	return &dnsRecordRepository{
		db: db,
	}
}

func (r *dnsRecordRepository) Create(ctx context.Context, record *models.DNSRecord) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DNSRecordRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, record.Tenant)
	span.LogFields(
		tracingLog.String("domainId", record.DomainID),
		tracingLog.String("type", record.RecordType.String()),
		tracingLog.String("name", record.Name),
	)

	if record.DomainID == "" || record.Name == "" || record.RecordType == "" {
		tracing.TraceErr(span, ErrInvalidInput)
		return ErrInvalidInput
	}
	record.CreatedAt = utils.Now()

	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *dnsRecordRepository) GetByDomain(ctx context.Context, domainID string) ([]models.DNSRecord, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DNSRecordRepository.GetByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domainId", domainID)

	var records []models.DNSRecord
	err := r.db.WithContext(ctx).
		Where("domain_id = ?", domainID).
		Order("created_at, id").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return records, nil
}

func (r *dnsRecordRepository) Exists(ctx context.Context, domainID string, recordType enum.DNSRecordType, name, content string) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DNSRecordRepository.Exists")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domainId", domainID, "type", recordType, "name", name)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DNSRecord{}).
		Where("domain_id = ? AND record_type = ? AND name = ? AND content = ?", domainID, recordType, name, content).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return false, err
	}

	return count > 0, nil
}

func (r *dnsRecordRepository) HasPurpose(ctx context.Context, domainID string, purpose enum.RecordPurpose) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DNSRecordRepository.HasPurpose")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domainId", domainID, "purpose", purpose)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DNSRecord{}).
		Where("domain_id = ? AND purpose = ?", domainID, purpose).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return false, err
	}

	return count > 0, nil
}
