package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/utils"
)

const defaultMXPriority = 10

type MXHost struct {
	Priority int
	Host     string
}

// Options carries the fixed provider values the plan is built from.
type Options struct {
	SpfInclude        string
	MXHosts           []MXHost
	DkimSelector      string
	DKIMPublicKey     string
	TrackingSubdomain string
	TrackingTarget    string
	DmarcRua          string
	TTL               int
}

func OptionsFromConfig(cfg *config.ProvisioningConfig) Options {
	return Options{
		SpfInclude:        cfg.SpfInclude,
		MXHosts:           ParseMXHosts(cfg.MxHosts),
		DkimSelector:      cfg.DkimSelector,
		TrackingSubdomain: cfg.TrackingSubdomain,
		TrackingTarget:    cfg.TrackingTarget,
		DmarcRua:          cfg.DmarcRua,
		TTL:               cfg.DefaultTTL,
	}
}

// ParseMXHosts reads "priority:host" pairs. A bare host gets priority 10, unparsable entries are dropped.
func ParseMXHosts(values []string) []MXHost {
	var hosts []MXHost
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		priority, host := defaultMXPriority, value
		if idx := strings.Index(value, ":"); idx >= 0 {
			p, err := strconv.Atoi(strings.TrimSpace(value[:idx]))
			if err != nil || p < 0 {
				continue
			}
			priority, host = p, value[idx+1:]
		}
		host = utils.NormalizeHostname(host)
		if host == "" {
			continue
		}
		hosts = append(hosts, MXHost{Priority: priority, Host: host})
	}
	return hosts
}

// Plan computes which records to create for the requested purposes, given what the zone already holds.
// It never fails: unknown purposes produce nothing.
func Plan(domain string, purposes []enum.RecordPurpose, existing []interfaces.ProviderRecord, opts Options) interfaces.PlanResult {
	domain = utils.NormalizeHostname(domain)
	result := interfaces.PlanResult{
		ToCreate: []interfaces.RecordSpec{},
		ToSkip:   []interfaces.SkippedSpec{},
	}

	seen := make(map[enum.RecordPurpose]bool)
	for _, purpose := range purposes {
		if seen[purpose] {
			continue
		}
		seen[purpose] = true

		switch purpose {
		case enum.PurposeSPF:
			planSPF(&result, domain, existing, opts)
		case enum.PurposeDKIM:
			planDKIM(&result, domain, opts)
		case enum.PurposeDMARC:
			result.ToSkip = append(result.ToSkip, interfaces.SkippedSpec{
				Spec:    dmarcSpec(domain, opts),
				Reason:  enum.SkipDeferred48h,
				Message: "DMARC is added automatically 48 hours after DNS is configured",
			})
		case enum.PurposeMX:
			planMX(&result, domain, existing, opts)
		case enum.PurposeTracking:
			planTracking(&result, domain, existing, opts)
		}
	}
	return result
}

// PlanDMARC emits the DMARC record unless one is already published.
func PlanDMARC(domain string, existing []interfaces.ProviderRecord, opts Options) interfaces.PlanResult {
	domain = utils.NormalizeHostname(domain)
	spec := dmarcSpec(domain, opts)
	result := interfaces.PlanResult{
		ToCreate: []interfaces.RecordSpec{},
		ToSkip:   []interfaces.SkippedSpec{},
	}
	for _, r := range existing {
		if r.Type == enum.DNSRecordTXT && sameName(r.Name, spec.Name) && strings.HasPrefix(unquote(r.Content), "v=DMARC1") {
			published := r
			result.ToSkip = append(result.ToSkip, interfaces.SkippedSpec{Spec: spec, Reason: enum.SkipDuplicate, Message: "a DMARC record is already published", Existing: &published})
			return result
		}
	}
	result.ToCreate = append(result.ToCreate, spec)
	return result
}

func planSPF(result *interfaces.PlanResult, domain string, existing []interfaces.ProviderRecord, opts Options) {
	spec := interfaces.RecordSpec{
		Type:    enum.DNSRecordTXT,
		Purpose: enum.PurposeSPF,
		Name:    domain,
		Content: fmt.Sprintf("v=spf1 include:%s ~all", opts.SpfInclude),
		TTL:     opts.TTL,
	}
	for _, r := range existing {
		if r.Type == enum.DNSRecordTXT && sameName(r.Name, domain) && strings.HasPrefix(unquote(r.Content), "v=spf1") {
			result.ToSkip = append(result.ToSkip, interfaces.SkippedSpec{Spec: spec, Reason: enum.SkipDuplicate, Message: "an SPF record is already published"})
			return
		}
	}
	result.ToCreate = append(result.ToCreate, spec)
}

func planDKIM(result *interfaces.PlanResult, domain string, opts Options) {
	key := strings.TrimSpace(opts.DKIMPublicKey)
	spec := interfaces.RecordSpec{
		Type:    enum.DNSRecordTXT,
		Purpose: enum.PurposeDKIM,
		Name:    fmt.Sprintf("%s._domainkey.%s", opts.DkimSelector, domain),
		TTL:     opts.TTL,
	}
	if key == "" {
		result.ToSkip = append(result.ToSkip, interfaces.SkippedSpec{Spec: spec, Reason: enum.SkipAwaitingManualKey, Message: "DKIM public key not provided yet"})
		return
	}
	spec.Content = fmt.Sprintf("v=DKIM1; k=rsa; p=%s", key)
	result.ToCreate = append(result.ToCreate, spec)
}

func planMX(result *interfaces.PlanResult, domain string, existing []interfaces.ProviderRecord, opts Options) {
	for _, host := range opts.MXHosts {
		spec := interfaces.RecordSpec{
			Type:     enum.DNSRecordMX,
			Purpose:  enum.PurposeMX,
			Name:     domain,
			Content:  host.Host,
			Priority: utils.ToPtr(host.Priority),
			TTL:      opts.TTL,
		}
		if hasMX(existing, domain, host) {
			result.ToSkip = append(result.ToSkip, interfaces.SkippedSpec{Spec: spec, Reason: enum.SkipDuplicate, Message: "MX record already exists"})
			continue
		}
		result.ToCreate = append(result.ToCreate, spec)
	}
}

func planTracking(result *interfaces.PlanResult, domain string, existing []interfaces.ProviderRecord, opts Options) {
	spec := interfaces.RecordSpec{
		Type:    enum.DNSRecordCNAME,
		Purpose: enum.PurposeTracking,
		Name:    fmt.Sprintf("%s.%s", opts.TrackingSubdomain, domain),
		Content: utils.NormalizeHostname(opts.TrackingTarget),
		TTL:     opts.TTL,
	}
	for _, r := range existing {
		if r.Type == enum.DNSRecordCNAME && sameName(r.Name, spec.Name) && sameName(r.Content, spec.Content) {
			result.ToSkip = append(result.ToSkip, interfaces.SkippedSpec{Spec: spec, Reason: enum.SkipDuplicate, Message: "tracking CNAME already exists"})
			return
		}
	}
	result.ToCreate = append(result.ToCreate, spec)
}

func dmarcSpec(domain string, opts Options) interfaces.RecordSpec {
	return interfaces.RecordSpec{
		Type:    enum.DNSRecordTXT,
		Purpose: enum.PurposeDMARC,
		Name:    "_dmarc." + domain,
		Content: fmt.Sprintf("v=DMARC1; p=none; rua=mailto:%s", opts.DmarcRua),
		TTL:     opts.TTL,
	}
}

func hasMX(existing []interfaces.ProviderRecord, domain string, host MXHost) bool {
	for _, r := range existing {
		if r.Type != enum.DNSRecordMX || !sameName(r.Name, domain) || !sameName(r.Content, host.Host) {
			continue
		}
		if r.Priority != nil && *r.Priority == host.Priority {
			return true
		}
	}
	return false
}

func sameName(a, b string) bool {
	return utils.NormalizeHostname(a) == utils.NormalizeHostname(b)
}

func unquote(content string) string {
	return strings.Trim(strings.TrimSpace(content), `"`)
}
