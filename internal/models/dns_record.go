package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/utils"
)

// DNSRecord is a record created at the zone host on behalf of a domain. Rows are append-only.
type DNSRecord struct {
	ID         string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	DomainID   string             `gorm:"column:domain_id;type:varchar(50);NOT NULL;index" json:"domainId"`
	Tenant     string             `gorm:"column:tenant;type:varchar(255);NOT NULL" json:"tenant"`
	RecordType enum.DNSRecordType `gorm:"column:record_type;type:varchar(10);NOT NULL" json:"recordType"`
	Purpose    enum.RecordPurpose `gorm:"column:purpose;type:varchar(20);NOT NULL" json:"purpose"`
	Name       string             `gorm:"column:name;type:varchar(255);NOT NULL" json:"name"`
	Content    string             `gorm:"column:content;type:text;NOT NULL" json:"content"`
	Priority   *int               `gorm:"column:priority" json:"priority,omitempty"`
	TTL        int                `gorm:"column:ttl;NOT NULL;DEFAULT:3600" json:"ttl"`
	ExternalID *string            `gorm:"column:external_id;type:varchar(64)" json:"externalId,omitempty"`
	CreatedAt  time.Time          `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`

	Domain *Domain `gorm:"foreignKey:DomainID;constraint:OnDelete:CASCADE" json:"-"`
}

func (DNSRecord) TableName() string {
	return "dns_records"
}

func (r *DNSRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIdWithPrefix("dnsr", 16)
	}
	return nil
}
