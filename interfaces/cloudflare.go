package interfaces

import (
	"context"

	"github.com/customeros/domainstack/internal/enum"
)

// ZoneCredentials authenticate against the zone host for one tenant.
type ZoneCredentials struct {
	AccountID string
	APIToken  string
}

type Zone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	Nameservers []string `json:"nameservers"`
}

// RecordSpec describes a DNS record to create. Name is fully qualified.
type RecordSpec struct {
	Type     enum.DNSRecordType `json:"type"`
	Purpose  enum.RecordPurpose `json:"purpose"`
	Name     string             `json:"name"`
	Content  string             `json:"content"`
	Priority *int               `json:"priority,omitempty"`
	TTL      int                `json:"ttl"`
}

// Key identifies a spec by name, type and content.
func (s RecordSpec) Key() string {
	return string(s.Type) + "|" + s.Name + "|" + s.Content
}

type ProviderRecord struct {
	ID       string             `json:"id"`
	Type     enum.DNSRecordType `json:"type"`
	Name     string             `json:"name"`
	Content  string             `json:"content"`
	Priority *int               `json:"priority,omitempty"`
	TTL      int                `json:"ttl"`
}

type ZoneProvider interface {
	CreateZone(ctx context.Context, creds ZoneCredentials, domain string) (*Zone, error)
	FindZone(ctx context.Context, creds ZoneCredentials, domain string) (*Zone, error)
	CreateRecord(ctx context.Context, creds ZoneCredentials, zoneID string, spec RecordSpec) (string, error)
	ListRecords(ctx context.Context, creds ZoneCredentials, zoneID string) ([]ProviderRecord, error)
	DeleteRecord(ctx context.Context, creds ZoneCredentials, zoneID, recordID string) error
	DeleteZone(ctx context.Context, creds ZoneCredentials, zoneID string) error
}
