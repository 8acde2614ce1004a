package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/utils"
)

type Domain struct {
	ID     string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Tenant string `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	Domain string `gorm:"column:domain;type:varchar(255);NOT NULL;uniqueIndex" json:"domain"`
	// Zone host
	ZoneID           *string               `gorm:"column:zone_id;type:varchar(64)" json:"zoneId,omitempty"`
	Nameservers      pq.StringArray        `gorm:"column:nameservers;type:text" json:"nameservers"`
	NameserverStatus enum.NameserverStatus `gorm:"column:nameserver_status;type:varchar(20);NOT NULL;DEFAULT:'pending'" json:"nameserverStatus"`
	Registrar        enum.Registrar        `gorm:"column:registrar;type:varchar(50)" json:"registrar"`
	LastVerifiedAt   *time.Time            `gorm:"column:last_verified_at;type:timestamp" json:"lastVerifiedAt,omitempty"`
	DNSConfiguredAt  *time.Time            `gorm:"column:dns_configured_at;type:timestamp" json:"dnsConfiguredAt,omitempty"`
	// Mail directory
	MailDirectoryStatus          enum.MailDirectoryStatus `gorm:"column:mail_directory_status;type:varchar(30);NOT NULL;DEFAULT:'none'" json:"mailDirectoryStatus"`
	MailDirectoryToken           *string                  `gorm:"column:mail_directory_token;type:varchar(255)" json:"-"`
	MailDirectoryTokenRecordName *string                  `gorm:"column:mail_directory_token_record_name;type:varchar(255)" json:"mailDirectoryTokenRecordName,omitempty"`
	MailDirectoryRecordID        *string                  `gorm:"column:mail_directory_record_id;type:varchar(64)" json:"mailDirectoryRecordId,omitempty"`

	Active    bool      `gorm:"column:active;type:boolean;NOT NULL;DEFAULT:true" json:"active"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (Domain) TableName() string {
	return "domains"
}

func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIdWithPrefix("dom", 16)
	}
	if d.NameserverStatus == "" {
		d.NameserverStatus = enum.NameserverPending
	}
	if d.MailDirectoryStatus == "" {
		d.MailDirectoryStatus = enum.MailDirectoryNone
	}
	return nil
}

func (d *Domain) HasZone() bool {
	return d.ZoneID != nil && *d.ZoneID != ""
}

func (d *Domain) NameserversVerified() bool {
	return d.NameserverStatus == enum.NameserverVerified
}

func NewStringArray(values []string) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(values)
}
