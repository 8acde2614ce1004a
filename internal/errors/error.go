package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrTenantMissing     = errors.New("tenant is missing")
	ErrConnectionTimeout = errors.New("connection timeout")

	// domain errors
	ErrDomainNotFound   = errors.New("domain not found")
	ErrDomainTaken      = errors.New("domain is connected to another tenant")
	ErrZoneNotCreated   = errors.New("domain has no DNS zone yet")
	ErrNoNameservers    = errors.New("no nameservers found")
	ErrProviderNotFound = errors.New("resource not found at provider")

	// propagation errors
	ErrSessionNotFound      = errors.New("polling session not found")
	ErrSessionAlreadyActive = errors.New("domain already has an active polling session")
	ErrNoRecordsToMonitor   = errors.New("no DNS records to monitor")
)
