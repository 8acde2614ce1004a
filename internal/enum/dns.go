package enum

type DNSRecordType string

const (
	DNSRecordTXT   DNSRecordType = "TXT"
	DNSRecordMX    DNSRecordType = "MX"
	DNSRecordCNAME DNSRecordType = "CNAME"
)

func (t DNSRecordType) String() string {
	return string(t)
}

type RecordPurpose string

const (
	PurposeSPF          RecordPurpose = "SPF"
	PurposeDKIM         RecordPurpose = "DKIM"
	PurposeDMARC        RecordPurpose = "DMARC"
	PurposeMX           RecordPurpose = "MX"
	PurposeTracking     RecordPurpose = "TRACKING"
	PurposeVerification RecordPurpose = "VERIFICATION"
	PurposeOther        RecordPurpose = "OTHER"
)

func (p RecordPurpose) String() string {
	return string(p)
}

// IsRequestable reports whether callers may ask for records of this purpose.
func (p RecordPurpose) IsRequestable() bool {
	switch p {
	case PurposeSPF, PurposeDKIM, PurposeDMARC, PurposeMX, PurposeTracking:
		return true
	}
	return false
}

type SkipReason string

const (
	SkipDuplicate         SkipReason = "duplicate"
	SkipAwaitingManualKey SkipReason = "awaiting_manual_key"
	SkipDeferred48h       SkipReason = "deferred_48h"
	SkipAlreadyExists     SkipReason = "already_exists"
)

func (r SkipReason) String() string {
	return string(r)
}
