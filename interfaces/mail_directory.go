package interfaces

import "context"

type MailDirectoryCredentials struct {
	Username string
	APIKey   string
}

type AddDomainResult struct {
	Domain         string `json:"domain"`
	AlreadyExisted bool   `json:"alreadyExisted"`
	Verified       bool   `json:"verified"`
}

type VerificationToken struct {
	Token      string `json:"token"`
	Method     string `json:"method"`
	RecordName string `json:"recordName"`
}

const VerificationMethodDNSTXT = "DNS_TXT"

type MailDirectoryService interface {
	AddDomain(ctx context.Context, creds MailDirectoryCredentials, domain string) (*AddDomainResult, error)
	GetVerificationToken(ctx context.Context, creds MailDirectoryCredentials, domain string) (*VerificationToken, error)
	CheckVerificationStatus(ctx context.Context, creds MailDirectoryCredentials, domain string) (bool, error)
}
