package credentials

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/tracing"
)

// envCredentialProvider serves the same configured account for every tenant.
type envCredentialProvider struct {
	cloudflare    *config.CloudflareConfig
	mailDirectory *config.MailDirectoryConfig
}

func NewEnvCredentialProvider(cloudflare *config.CloudflareConfig, mailDirectory *config.MailDirectoryConfig) interfaces.CredentialProvider {
	return &envCredentialProvider{
		cloudflare:    cloudflare,
		mailDirectory: mailDirectory,
	}
}

func (p *envCredentialProvider) ZoneCredentials(ctx context.Context, tenant string) (interfaces.ZoneCredentials, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CredentialProvider.ZoneCredentials")
	defer span.Finish()
	tracing.TagTenant(span, tenant)

	if p.cloudflare == nil || p.cloudflare.ApiToken == "" {
		err := er.Terminal("credentials.ZoneCredentials", "DNS host credentials are not configured", nil)
		tracing.TraceErr(span, err)
		return interfaces.ZoneCredentials{}, err
	}
	return interfaces.ZoneCredentials{
		AccountID: p.cloudflare.AccountID,
		APIToken:  p.cloudflare.ApiToken,
	}, nil
}

func (p *envCredentialProvider) MailDirectoryCredentials(ctx context.Context, tenant string) (interfaces.MailDirectoryCredentials, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CredentialProvider.MailDirectoryCredentials")
	defer span.Finish()
	tracing.TagTenant(span, tenant)

	if p.mailDirectory == nil || p.mailDirectory.Username == "" || p.mailDirectory.ApiKey == "" {
		err := er.Terminal("credentials.MailDirectoryCredentials", "mail directory credentials are not configured", nil)
		tracing.TraceErr(span, err)
		return interfaces.MailDirectoryCredentials{}, err
	}
	return interfaces.MailDirectoryCredentials{
		Username: p.mailDirectory.Username,
		APIKey:   p.mailDirectory.ApiKey,
	}, nil
}

// StaticCredentialProvider returns fixed credentials.
type StaticCredentialProvider struct {
	Zone          interfaces.ZoneCredentials
	MailDirectory interfaces.MailDirectoryCredentials
	Err           error
}

func (p StaticCredentialProvider) ZoneCredentials(ctx context.Context, tenant string) (interfaces.ZoneCredentials, error) {
	return p.Zone, p.Err
}

func (p StaticCredentialProvider) MailDirectoryCredentials(ctx context.Context, tenant string) (interfaces.MailDirectoryCredentials, error) {
	return p.MailDirectory, p.Err
}
