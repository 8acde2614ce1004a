package interfaces

import "context"

type CredentialProvider interface {
	ZoneCredentials(ctx context.Context, tenant string) (ZoneCredentials, error)
	MailDirectoryCredentials(ctx context.Context, tenant string) (MailDirectoryCredentials, error)
}
