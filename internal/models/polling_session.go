package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/customeros/domainstack/internal/enum"
)

type PollingSession struct {
	ID                    string             `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	DomainID              string             `gorm:"column:domain_id;type:varchar(50);NOT NULL;index;index:idx_polling_sessions_active_domain,unique,where:status = 'polling'" json:"domainId"`
	Tenant                string             `gorm:"column:tenant;type:varchar(255);NOT NULL" json:"tenant"`
	Status                enum.PollingStatus `gorm:"column:status;type:varchar(20);NOT NULL;index" json:"status"`
	StartedAt             time.Time          `gorm:"column:started_at;type:timestamp;NOT NULL" json:"startedAt"`
	LastCheckedAt         *time.Time         `gorm:"column:last_checked_at;type:timestamp" json:"lastCheckedAt,omitempty"`
	Progress              int                `gorm:"column:progress;NOT NULL;DEFAULT:0" json:"progress"`
	EstimatedCompletionAt *time.Time         `gorm:"column:estimated_completion_at;type:timestamp" json:"estimatedCompletionAt,omitempty"`
	CompletedAt           *time.Time         `gorm:"column:completed_at;type:timestamp" json:"completedAt,omitempty"`

	Records []PollingSessionRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"records"`
	Domain  *Domain                `gorm:"foreignKey:DomainID;constraint:OnDelete:CASCADE" json:"-"`
}

func (PollingSession) TableName() string {
	return "polling_sessions"
}

func (s *PollingSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// PollingSessionRecord tracks the propagation of one DNS record within a session.
type PollingSessionRecord struct {
	SessionID   string                 `gorm:"column:session_id;type:varchar(36);primaryKey" json:"sessionId"`
	DNSRecordID string                 `gorm:"column:dns_record_id;type:varchar(50);primaryKey" json:"dnsRecordId"`
	Status      enum.PropagationStatus `gorm:"column:status;type:varchar(20);NOT NULL" json:"status"`
	Coverage    int                    `gorm:"column:coverage;NOT NULL;DEFAULT:0" json:"coverage"`
	CheckedAt   *time.Time             `gorm:"column:checked_at;type:timestamp" json:"checkedAt,omitempty"`

	DNSRecord *DNSRecord `gorm:"foreignKey:DNSRecordID;constraint:OnDelete:CASCADE" json:"dnsRecord,omitempty"`
}

func (PollingSessionRecord) TableName() string {
	return "polling_session_records"
}
