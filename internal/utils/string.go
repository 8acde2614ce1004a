package utils

import (
	"strings"
)

// NormalizeHostname lower-cases a DNS name and strips surrounding whitespace and the trailing dot.
func NormalizeHostname(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// HasHostnameSuffix reports whether name equals suffix or is a subdomain of it, ignoring case and trailing dots.
func HasHostnameSuffix(name, suffix string) bool {
	name = NormalizeHostname(name)
	suffix = NormalizeHostname(suffix)
	if suffix == "" {
		return false
	}
	return name == suffix || strings.HasSuffix(name, "."+suffix)
}

// NormalizeDomain strips scheme, path, port and a leading "www." from user input.
func NormalizeDomain(input string) string {
	domain := strings.ToLower(strings.TrimSpace(input))
	for _, prefix := range []string{"https://", "http://"} {
		domain = strings.TrimPrefix(domain, prefix)
	}
	if idx := strings.IndexAny(domain, "/?#"); idx >= 0 {
		domain = domain[:idx]
	}
	if idx := strings.LastIndex(domain, ":"); idx >= 0 {
		domain = domain[:idx]
	}
	domain = strings.TrimPrefix(domain, "www.")
	return strings.TrimSuffix(domain, ".")
}

// IsValidDomain checks the syntax of a registrable domain name.
func IsValidDomain(domain string) bool {
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	for _, r := range tld {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}
