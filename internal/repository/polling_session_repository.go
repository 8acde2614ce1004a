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

type PollingSessionRepository interface {
	// Start cancels any polling session of the same domain and inserts the new one in one transaction.
	Start(ctx context.Context, session *models.PollingSession, recordIDs []string) ([]string, error)
	GetByID(ctx context.Context, id string) (*models.PollingSession, error)
	GetActiveForDomain(ctx context.Context, domainID string) (*models.PollingSession, error)
	GetActive(ctx context.Context) ([]models.PollingSession, error)
	// SaveTick writes a tick result only while the session is still polling.
	SaveTick(ctx context.Context, session *models.PollingSession, records []models.PollingSessionRecord) error
	Cancel(ctx context.Context, id string, cancelledAt time.Time) (bool, error)
}

type pollingSessionRepository struct {
	db *gorm.DB
}

func NewPollingSessionRepository(db *gorm.DB) PollingSessionRepository {
	return &pollingSessionRepository{
		db: db,
	}
}

func (r *pollingSessionRepository) Start(ctx context.Context, session *models.PollingSession, recordIDs []string) ([]string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "PollingSessionRepository.Start")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, session.Tenant)
	span.LogFields(
		tracingLog.String("domainId", session.DomainID),
		tracingLog.Int("records", len(recordIDs)),
	)

	session.StartedAt = nowIfZero(session.StartedAt)
	if session.Status == "" {
		session.Status = enum.PollingActive
	}

	var superseded []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active []models.PollingSession
		if err := tx.Where("domain_id = ? AND status = ?", session.DomainID, enum.PollingActive).
			Find(&active).Error; err != nil {
			return err
		}
		for _, s := range active {
			superseded = append(superseded, s.ID)
		}
		if len(superseded) > 0 {
			if err := tx.Model(&models.PollingSession{}).
				Where("id IN ? AND status = ?", superseded, enum.PollingActive).
				Updates(map[string]interface{}{
					"status":       enum.PollingCancelled,
					"completed_at": session.StartedAt,
				}).Error; err != nil {
				return err
			}
		}

		session.Records = make([]models.PollingSessionRecord, 0, len(recordIDs))
		for _, recordID := range recordIDs {
			session.Records = append(session.Records, models.PollingSessionRecord{
				DNSRecordID: recordID,
				Status:      enum.NotPropagated,
				Coverage:    0,
			})
		}
		return tx.Create(session).Error
	})
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	tracing.TagEntity(span, session.ID)

	return superseded, nil
}

func (r *pollingSessionRepository) GetByID(ctx context.Context, id string) (*models.PollingSession, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "PollingSessionRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var session models.PollingSession
	err := r.db.WithContext(ctx).
		Preload("Records", func(db *gorm.DB) *gorm.DB { return db.Order("dns_record_id") }).
		Preload("Records.DNSRecord").
		Preload("Domain").
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &session, nil
}

func (r *pollingSessionRepository) GetActiveForDomain(ctx context.Context, domainID string) (*models.PollingSession, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "PollingSessionRepository.GetActiveForDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domainId", domainID)

	var session models.PollingSession
	err := r.db.WithContext(ctx).
		Preload("Records", func(db *gorm.DB) *gorm.DB { return db.Order("dns_record_id") }).
		Preload("Records.DNSRecord").
		Preload("Domain").
		Where("domain_id = ? AND status = ?", domainID, enum.PollingActive).
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &session, nil
}

func (r *pollingSessionRepository) GetActive(ctx context.Context) ([]models.PollingSession, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "PollingSessionRepository.GetActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var sessions []models.PollingSession
	err := r.db.WithContext(ctx).
		Where("status = ?", enum.PollingActive).
		Order("started_at").
		Find(&sessions).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}
	span.LogFields(tracingLog.Int("response.count", len(sessions)))

	return sessions, nil
}

func (r *pollingSessionRepository) SaveTick(ctx context.Context, session *models.PollingSession, records []models.PollingSessionRecord) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "PollingSessionRepository.SaveTick")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, session.Tenant)
	tracing.TagEntity(span, session.ID)
	span.LogFields(
		tracingLog.String("status", session.Status.String()),
		tracingLog.Int("progress", session.Progress),
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PollingSession{}).
			Where("id = ? AND status = ? AND progress <= ?", session.ID, enum.PollingActive, session.Progress).
			Updates(map[string]interface{}{
				"status":                  session.Status,
				"progress":                session.Progress,
				"last_checked_at":         session.LastCheckedAt,
				"estimated_completion_at": session.EstimatedCompletionAt,
				"completed_at":            session.CompletedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStaleSession
		}

		for _, record := range records {
			if err := tx.Model(&models.PollingSessionRecord{}).
				Where("session_id = ? AND dns_record_id = ?", session.ID, record.DNSRecordID).
				Updates(map[string]interface{}{
					"status":     record.Status,
					"coverage":   record.Coverage,
					"checked_at": record.CheckedAt,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStaleSession) {
			span.LogFields(tracingLog.Bool("response.stale", true))
			return err
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

// Cancel moves a polling session to cancelled. It reports false when the session was not polling.
func (r *pollingSessionRepository) Cancel(ctx context.Context, id string, cancelledAt time.Time) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "PollingSessionRepository.Cancel")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.PollingSession{}).
		Where("id = ? AND status = ?", id, enum.PollingActive).
		Updates(map[string]interface{}{
			"status":       enum.PollingCancelled,
			"completed_at": cancelledAt,
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return utils.Now()
	}
	return t
}
