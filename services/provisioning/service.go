package provisioning

import (
	"context"
	"fmt"

	"github.com/customeros/mailsherpa/domaincheck"
	"github.com/customeros/mailwatcher/blscan"
	"github.com/customeros/mailwatcher/domainage"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/repository"
	"github.com/customeros/domainstack/internal/retry"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
	"github.com/customeros/domainstack/services/planner"
)

const (
	StepZone               = "zone"
	StepMailDirectory      = "mail_directory"
	StepVerificationRecord = "verification_record"
	StepDomainAge          = "domain_age"
	StepBlacklist          = "blacklist"
	StepPrimaryDomain      = "primary_domain"
	StepInstructions       = "instructions"
)

// DomainAgeFunc returns the age of a registered domain in days. ok is false when it cannot be determined.
type DomainAgeFunc func(domain string) (days int, ok bool, err error)

// BlacklistFunc counts the blocklists a domain appears on, by severity.
type BlacklistFunc func(domain string) (major, minor, spamTrap int)

// PrimaryDomainFunc reports whether a domain hosts the organisation's main website.
type PrimaryDomainFunc func(domain string) bool

type Dependencies struct {
	Zones         interfaces.ZoneProvider
	MailDirectory interfaces.MailDirectoryService
	Credentials   interfaces.CredentialProvider
	DNSRecords    interfaces.DNSRecordService
	Nameservers   interfaces.NameserverService
	Propagation   interfaces.PropagationService
}

type provisioningService struct {
	log          logger.Logger
	cfg          *config.ProvisioningConfig
	repositories *repository.Repositories
	deps         Dependencies
	advice       er.AdviceBook
	retryConfig  retry.Config
	domainAge    DomainAgeFunc
	blacklists   BlacklistFunc
	isPrimary    PrimaryDomainFunc
}

func NewProvisioningService(log logger.Logger, cfg *config.ProvisioningConfig, repos *repository.Repositories, deps Dependencies) interfaces.ProvisioningService {
	return &provisioningService{
		log:          log,
		cfg:          cfg,
		repositories: repos,
		deps:         deps,
		advice:       er.DefaultAdvice,
		retryConfig:  retry.DefaultConfig(),
		domainAge:    lookupDomainAge,
		blacklists:   scanBlacklists,
		isPrimary:    isPrimaryDomain,
	}
}

func lookupDomainAge(domain string) (int, bool, error) {
	dates, err := domainage.GetDomainDates(domain)
	if err != nil {
		return 0, false, err
	}
	if !dates.Success {
		return 0, false, nil
	}
	return int(dates.CreationAge), true, nil
}

func scanBlacklists(domain string) (int, int, int) {
	result := blscan.ScanBlacklists(domain, "domain")
	return result.MajorLists, result.MinorLists, result.SpamTrapLists
}

func isPrimaryDomain(domain string) bool {
	primary, _ := domaincheck.PrimaryDomainCheck(domain)
	return primary
}

// ConnectOrResume gets a domain to the "awaiting nameserver update" state.
// Re-running it continues from the first incomplete step without recreating external resources.
// Only validation and zone failures are returned as errors; later steps report failures in the result.
func (s *provisioningService) ConnectOrResume(ctx context.Context, tenant string, request interfaces.ConnectRequest) (*interfaces.ConnectResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.ConnectOrResume")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.LogObjectAsJson(span, "request", request)

	if tenant == "" {
		return nil, er.ErrTenantMissing
	}
	name := utils.NormalizeDomain(request.Domain)
	if !utils.IsValidDomain(name) {
		return nil, er.Validation(fmt.Sprintf("%q is not a valid domain name", request.Domain))
	}

	domain, err := s.repositories.DomainRepository.GetDomainCrossTenant(ctx, name)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to look up domain")
	}
	if domain != nil && domain.Tenant != tenant {
		return nil, domainTaken(name)
	}

	resumed := domain != nil
	if !resumed {
		domain = &models.Domain{
			Tenant:    tenant,
			Domain:    name,
			Registrar: enum.GetRegistrar(request.Registrar),
		}
		if err := s.repositories.DomainRepository.Create(ctx, domain); err != nil {
			// a concurrent connect for the same name may have inserted it first
			existing, lookupErr := s.repositories.DomainRepository.GetDomainCrossTenant(ctx, name)
			if lookupErr != nil || existing == nil {
				tracing.TraceErr(span, err)
				return nil, errors.Wrap(err, "failed to save domain")
			}
			if existing.Tenant != tenant {
				return nil, domainTaken(name)
			}
			domain, resumed = existing, true
		}
	}
	tracing.TagEntity(span, domain.ID)
	span.LogFields(tracingLog.Bool("resumed", resumed))

	result := &interfaces.ConnectResult{Steps: []interfaces.StepResult{}}

	step, err := s.ensureZone(ctx, domain)
	result.Steps = append(result.Steps, step)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	onboarded := s.ensureMailDirectory(ctx, domain, result)
	switch {
	case onboarded:
		result.Steps = append(result.Steps, s.ensureVerificationRecord(ctx, domain))
	case domain.MailDirectoryStatus == enum.MailDirectoryVerified:
		result.Steps = append(result.Steps, interfaces.StepResult{
			Step:    StepVerificationRecord,
			Status:  enum.StepSkipped,
			Message: "Domain is already verified in the mail directory",
		})
	default:
		result.Steps = append(result.Steps, interfaces.StepResult{
			Step:    StepVerificationRecord,
			Status:  enum.StepSkipped,
			Message: "Mail directory onboarding did not complete",
		})
	}

	if !resumed {
		result.Steps = append(result.Steps, s.checkDomainAge(ctx, domain), s.checkBlacklists(ctx, domain), s.checkPrimaryDomain(ctx, domain))
	}

	registrar := domain.Registrar
	if request.Registrar != "" {
		registrar = enum.GetRegistrar(request.Registrar)
	}
	result.Instructions = RegistrarInstructionsFor(registrar, domain.Domain, domain.Nameservers)
	result.Steps = append(result.Steps, interfaces.StepResult{Step: StepInstructions, Status: enum.StepSucceeded})

	result.Domain, err = s.repositories.DomainRepository.GetByID(ctx, domain.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to reload domain")
	}
	return result, nil
}

func domainTaken(name string) error {
	return &er.Error{
		Kind:    er.KindValidation,
		Op:      "provisioning.ConnectOrResume",
		Message: fmt.Sprintf("%s is already connected to another workspace", name),
		Err:     er.ErrDomainTaken,
	}
}

func (s *provisioningService) ensureZone(ctx context.Context, domain *models.Domain) (interfaces.StepResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.ensureZone")
	defer span.Finish()
	tracing.TagEntity(span, domain.ID)

	if domain.HasZone() {
		return interfaces.StepResult{Step: StepZone, Status: enum.StepSkipped, Message: "DNS zone already exists"}, nil
	}

	failed := func(err error) (interfaces.StepResult, error) {
		tracing.TraceErr(span, err)
		return interfaces.StepResult{
			Step:    StepZone,
			Status:  enum.StepFailed,
			Message: er.UserMessage(err),
			Advice:  s.advice.Lookup(err, er.ContextZone),
		}, err
	}

	creds, err := s.deps.Credentials.ZoneCredentials(ctx, domain.Tenant)
	if err != nil {
		return failed(err)
	}

	var zone *interfaces.Zone
	err = s.call(ctx, func(ctx context.Context) error {
		created, err := s.deps.Zones.CreateZone(ctx, creds, domain.Domain)
		zone = created
		return err
	})
	if er.IsDuplicate(err) {
		err = s.call(ctx, func(ctx context.Context) error {
			found, err := s.deps.Zones.FindZone(ctx, creds, domain.Domain)
			zone = found
			return err
		})
		if err == nil && zone == nil {
			err = er.Terminal("provisioning.ensureZone", "the zone exists at the DNS host but is not visible to this account", nil)
		}
	}
	if err != nil {
		return failed(err)
	}

	nameservers := make([]string, 0, len(zone.Nameservers))
	for _, ns := range zone.Nameservers {
		nameservers = append(nameservers, utils.NormalizeHostname(ns))
	}
	if err := s.repositories.DomainRepository.SetZone(ctx, domain.ID, zone.ID, nameservers); err != nil {
		return failed(errors.Wrap(err, "failed to save zone"))
	}
	domain.ZoneID = &zone.ID
	domain.Nameservers = models.NewStringArray(nameservers)

	span.LogFields(tracingLog.String("result.zoneId", zone.ID))
	return interfaces.StepResult{Step: StepZone, Status: enum.StepSucceeded, Message: "DNS zone created"}, nil
}

// ensureMailDirectory onboards the domain once. It reports whether the domain still needs its
// ownership verification record.
func (s *provisioningService) ensureMailDirectory(ctx context.Context, domain *models.Domain, result *interfaces.ConnectResult) bool {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.ensureMailDirectory")
	defer span.Finish()
	tracing.TagEntity(span, domain.ID)
	span.LogKV("status", domain.MailDirectoryStatus)

	switch domain.MailDirectoryStatus {
	case enum.MailDirectoryVerified:
		result.Steps = append(result.Steps, interfaces.StepResult{Step: StepMailDirectory, Status: enum.StepSkipped, Message: "Domain already verified in the mail directory"})
		return false
	case enum.MailDirectoryPendingVerification:
		result.Steps = append(result.Steps, interfaces.StepResult{Step: StepMailDirectory, Status: enum.StepSkipped, Message: "Domain already added to the mail directory"})
		return true
	}

	verified, err := s.addToMailDirectory(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("Mail directory onboarding failed for %s: %v", domain.Domain, err)
		if statusErr := s.repositories.DomainRepository.SetMailDirectoryStatus(ctx, domain.ID, enum.MailDirectoryFailed); statusErr != nil {
			s.log.Errorf("Failed to save mail directory status for %s: %v", domain.Domain, statusErr)
		}
		domain.MailDirectoryStatus = enum.MailDirectoryFailed
		result.Steps = append(result.Steps, interfaces.StepResult{
			Step:    StepMailDirectory,
			Status:  enum.StepFailed,
			Message: er.UserMessage(err),
			Advice:  s.advice.Lookup(err, er.ContextMailDirectory),
		})
		return false
	}

	status := enum.MailDirectoryPendingVerification
	if verified {
		status = enum.MailDirectoryVerified
	}
	if err := s.repositories.DomainRepository.SetMailDirectoryStatus(ctx, domain.ID, status); err != nil {
		tracing.TraceErr(span, err)
		result.Steps = append(result.Steps, interfaces.StepResult{Step: StepMailDirectory, Status: enum.StepFailed, Message: "Domain added to the mail directory but its status could not be saved"})
		return false
	}
	domain.MailDirectoryStatus = status
	if verified {
		result.Steps = append(result.Steps, interfaces.StepResult{Step: StepMailDirectory, Status: enum.StepSucceeded, Message: "Domain is already verified in the mail directory"})
		return false
	}
	result.Steps = append(result.Steps, interfaces.StepResult{Step: StepMailDirectory, Status: enum.StepSucceeded, Message: "Domain added to the mail directory"})
	return true
}

// addToMailDirectory reports whether the mail directory already considers the domain verified.
func (s *provisioningService) addToMailDirectory(ctx context.Context, domain *models.Domain) (bool, error) {
	creds, err := s.deps.Credentials.MailDirectoryCredentials(ctx, domain.Tenant)
	if err != nil {
		return false, err
	}
	var added *interfaces.AddDomainResult
	err = s.call(ctx, func(ctx context.Context) error {
		result, err := s.deps.MailDirectory.AddDomain(ctx, creds, domain.Domain)
		added = result
		return err
	})
	if er.IsDuplicate(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return added != nil && added.Verified, nil
}

// ensureVerificationRecord publishes the mail directory ownership token as a TXT record.
func (s *provisioningService) ensureVerificationRecord(ctx context.Context, domain *models.Domain) interfaces.StepResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.ensureVerificationRecord")
	defer span.Finish()
	tracing.TagEntity(span, domain.ID)

	if domain.MailDirectoryRecordID != nil && *domain.MailDirectoryRecordID != "" {
		return interfaces.StepResult{Step: StepVerificationRecord, Status: enum.StepSkipped, Message: "Verification record already created"}
	}

	failed := func(err error) interfaces.StepResult {
		tracing.TraceErr(span, err)
		s.log.Warnf("Verification record step failed for %s: %v", domain.Domain, err)
		return interfaces.StepResult{
			Step:    StepVerificationRecord,
			Status:  enum.StepFailed,
			Message: er.UserMessage(err),
			Advice:  s.advice.Lookup(err, er.ContextMailDirectory),
		}
	}

	token, err := s.verificationToken(ctx, domain)
	if err != nil {
		return failed(err)
	}
	if token.Method != interfaces.VerificationMethodDNSTXT {
		return interfaces.StepResult{
			Step:    StepVerificationRecord,
			Status:  enum.StepSkipped,
			Message: fmt.Sprintf("Verification method %s must be completed manually", token.Method),
		}
	}

	spec := interfaces.RecordSpec{
		Type:    enum.DNSRecordTXT,
		Purpose: enum.PurposeVerification,
		Name:    token.RecordName,
		Content: token.Token,
		TTL:     s.cfg.DefaultTTL,
	}
	batch, err := s.deps.DNSRecords.CreateBatch(ctx, domain, []interfaces.RecordSpec{spec})
	if err != nil {
		return failed(err)
	}
	if len(batch.Failed) > 0 {
		failure := batch.Failed[0]
		return interfaces.StepResult{Step: StepVerificationRecord, Status: enum.StepFailed, Message: failure.Message, Advice: failure.Advice}
	}

	recordID := s.findRecordID(ctx, domain, batch, spec)
	if recordID != "" {
		if err := s.repositories.DomainRepository.SetMailDirectoryRecordID(ctx, domain.ID, recordID); err != nil {
			return failed(errors.Wrap(err, "failed to save verification record id"))
		}
		domain.MailDirectoryRecordID = &recordID
	}
	return interfaces.StepResult{Step: StepVerificationRecord, Status: enum.StepSucceeded, Message: "Verification record created"}
}

// verificationToken reuses a stored token so retries publish the same record.
func (s *provisioningService) verificationToken(ctx context.Context, domain *models.Domain) (*interfaces.VerificationToken, error) {
	if domain.MailDirectoryToken != nil && *domain.MailDirectoryToken != "" {
		return &interfaces.VerificationToken{
			Token:      *domain.MailDirectoryToken,
			Method:     interfaces.VerificationMethodDNSTXT,
			RecordName: utils.GetOrDefault(domain.MailDirectoryTokenRecordName, domain.Domain),
		}, nil
	}

	creds, err := s.deps.Credentials.MailDirectoryCredentials(ctx, domain.Tenant)
	if err != nil {
		return nil, err
	}
	var token *interfaces.VerificationToken
	err = s.call(ctx, func(ctx context.Context) error {
		t, err := s.deps.MailDirectory.GetVerificationToken(ctx, creds, domain.Domain)
		token = t
		return err
	})
	if err != nil {
		return nil, err
	}
	if token.RecordName == "" {
		token.RecordName = domain.Domain
	}

	if token.Method == interfaces.VerificationMethodDNSTXT {
		if err := s.repositories.DomainRepository.SetMailDirectoryToken(ctx, domain.ID, token.Token, token.RecordName); err != nil {
			return nil, errors.Wrap(err, "failed to save verification token")
		}
		domain.MailDirectoryToken = &token.Token
		domain.MailDirectoryTokenRecordName = &token.RecordName
	}
	return token, nil
}

func (s *provisioningService) findRecordID(ctx context.Context, domain *models.Domain, batch *interfaces.BatchResult, spec interfaces.RecordSpec) string {
	if len(batch.Created) > 0 {
		return batch.Created[0].ID
	}
	records, err := s.repositories.DNSRecordRepository.GetByDomain(ctx, domain.ID)
	if err != nil {
		return ""
	}
	for _, record := range records {
		if record.RecordType == spec.Type && record.Name == spec.Name && record.Content == spec.Content {
			return record.ID
		}
	}
	return ""
}

// checkDomainAge warns when the domain is too young to send from without warmup.
func (s *provisioningService) checkDomainAge(ctx context.Context, domain *models.Domain) interfaces.StepResult {
	span, _ := opentracing.StartSpanFromContext(ctx, "ProvisioningService.checkDomainAge")
	defer span.Finish()

	days, ok, err := s.domainAge(domain.Domain)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "cannot determine domain dates"))
	}
	if err != nil || !ok {
		return interfaces.StepResult{Step: StepDomainAge, Status: enum.StepSkipped, Message: "Domain age could not be determined"}
	}
	span.LogFields(tracingLog.Int("result.days", days))

	if days < s.cfg.MinDomainAgeDays {
		return interfaces.StepResult{
			Step:    StepDomainAge,
			Status:  enum.StepWarning,
			Message: fmt.Sprintf("%s was registered %d days ago", domain.Domain, days),
			Advice:  fmt.Sprintf("Domains younger than %d days should be warmed up before sending at volume.", s.cfg.MinDomainAgeDays),
		}
	}
	return interfaces.StepResult{Step: StepDomainAge, Status: enum.StepSucceeded, Message: fmt.Sprintf("%s is %d days old", domain.Domain, days)}
}

// checkBlacklists warns when the domain already appears on blocklists.
func (s *provisioningService) checkBlacklists(ctx context.Context, domain *models.Domain) interfaces.StepResult {
	span, _ := opentracing.StartSpanFromContext(ctx, "ProvisioningService.checkBlacklists")
	defer span.Finish()

	major, minor, spamTrap := s.blacklists(domain.Domain)
	span.LogFields(
		tracingLog.Int("result.major", major),
		tracingLog.Int("result.minor", minor),
		tracingLog.Int("result.spamTrap", spamTrap),
	)

	listed := major + minor + spamTrap
	if listed == 0 {
		return interfaces.StepResult{Step: StepBlacklist, Status: enum.StepSucceeded, Message: fmt.Sprintf("%s is not on any checked blocklist", domain.Domain)}
	}
	advice := "Request delisting before sending from this domain."
	if major > 0 || spamTrap > 0 {
		advice = "The domain is on a major blocklist or spam trap list; mail from it is likely to be rejected. Consider a different domain."
	}
	return interfaces.StepResult{
		Step:    StepBlacklist,
		Status:  enum.StepWarning,
		Message: fmt.Sprintf("%s appears on %d blocklists", domain.Domain, listed),
		Advice:  advice,
	}
}

// checkPrimaryDomain warns against sending cold outreach from the main website domain.
func (s *provisioningService) checkPrimaryDomain(ctx context.Context, domain *models.Domain) interfaces.StepResult {
	span, _ := opentracing.StartSpanFromContext(ctx, "ProvisioningService.checkPrimaryDomain")
	defer span.Finish()

	primary := s.isPrimary(domain.Domain)
	span.LogFields(tracingLog.Bool("result.primary", primary))

	if primary {
		return interfaces.StepResult{
			Step:    StepPrimaryDomain,
			Status:  enum.StepWarning,
			Message: fmt.Sprintf("%s looks like your primary website domain", domain.Domain),
			Advice:  "Send outreach from a secondary domain so complaints cannot hurt the reputation of your main domain.",
		}
	}
	return interfaces.StepResult{Step: StepPrimaryDomain, Status: enum.StepSucceeded}
}

// ProvisionRecords plans and creates the requested records, then starts monitoring every record of the domain.
func (s *provisioningService) ProvisionRecords(ctx context.Context, tenant, name string, request interfaces.ProvisionRequest) (*interfaces.ProvisionResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.ProvisionRecords")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	span.LogKV("domain", name, "purposes", request.Purposes)

	domain, err := s.GetDomain(ctx, tenant, name)
	if err != nil {
		return nil, err
	}
	if !domain.HasZone() {
		return nil, er.ErrZoneNotCreated
	}

	creds, err := s.deps.Credentials.ZoneCredentials(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	var existing []interfaces.ProviderRecord
	err = s.call(ctx, func(ctx context.Context) error {
		records, err := s.deps.Zones.ListRecords(ctx, creds, *domain.ZoneID)
		existing = records
		return err
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	options := planner.OptionsFromConfig(s.cfg)
	options.DKIMPublicKey = request.DKIMPublicKey
	plan := planner.Plan(domain.Domain, request.Purposes, existing, options)

	batch, err := s.deps.DNSRecords.CreateBatch(ctx, domain, plan.ToCreate)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	batch.Skipped = append(plan.ToSkip, batch.Skipped...)
	if !domain.NameserversVerified() {
		batch.Warnings = append(batch.Warnings, "Nameservers are not verified yet; records will not resolve until the registrar points to the DNS host.")
	}

	if len(batch.Created) > 0 || len(batch.Failed) == 0 {
		if err := s.repositories.DomainRepository.MarkDNSConfigured(ctx, domain.ID, utils.Now()); err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrap(err, "failed to mark DNS configured")
		}
	}

	result := &interfaces.ProvisionResult{Batch: batch}

	records, err := s.repositories.DNSRecordRepository.GetByDomain(ctx, domain.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to load DNS records")
	}
	if len(records) == 0 {
		return result, nil
	}
	recordIDs := make([]string, len(records))
	for i, record := range records {
		recordIDs[i] = record.ID
	}
	result.Session, err = s.deps.Propagation.Start(ctx, domain.ID, recordIDs)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to start propagation monitoring")
	}

	span.LogFields(
		tracingLog.Int("result.created", len(batch.Created)),
		tracingLog.String("result.sessionId", result.Session.ID),
	)
	return result, nil
}

// CheckMailDirectoryVerification asks the mail directory whether the ownership record was seen.
func (s *provisioningService) CheckMailDirectoryVerification(ctx context.Context, tenant, name string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.CheckMailDirectoryVerification")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	domain, err := s.GetDomain(ctx, tenant, name)
	if err != nil {
		return nil, err
	}
	if err := s.checkMailDirectory(ctx, domain); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return s.repositories.DomainRepository.GetByID(ctx, domain.ID)
}

func (s *provisioningService) checkMailDirectory(ctx context.Context, domain *models.Domain) error {
	switch domain.MailDirectoryStatus {
	case enum.MailDirectoryVerified:
		return nil
	case enum.MailDirectoryPendingVerification:
	default:
		return er.Validation(fmt.Sprintf("%s has not been added to the mail directory yet", domain.Domain))
	}

	creds, err := s.deps.Credentials.MailDirectoryCredentials(ctx, domain.Tenant)
	if err != nil {
		return err
	}
	var verified bool
	err = s.call(ctx, func(ctx context.Context) error {
		v, err := s.deps.MailDirectory.CheckVerificationStatus(ctx, creds, domain.Domain)
		verified = v
		return err
	})
	if err != nil {
		return err
	}
	if !verified {
		return nil
	}

	if err := s.repositories.DomainRepository.SetMailDirectoryStatus(ctx, domain.ID, enum.MailDirectoryVerified); err != nil {
		return errors.Wrap(err, "failed to save mail directory status")
	}
	domain.MailDirectoryStatus = enum.MailDirectoryVerified
	return nil
}

// CheckPendingMailDirectory re-checks every domain awaiting mail directory verification.
func (s *provisioningService) CheckPendingMailDirectory(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.CheckPendingMailDirectory")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	domains, err := s.repositories.DomainRepository.GetPendingMailDirectoryDomains(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "failed to load pending domains")
	}

	verified := 0
	for i := range domains {
		domain := &domains[i]
		if err := s.checkMailDirectory(ctx, domain); err != nil {
			s.log.Warnf("Mail directory check failed for %s: %v", domain.Domain, err)
			continue
		}
		if domain.MailDirectoryStatus == enum.MailDirectoryVerified {
			verified++
		}
	}
	span.LogFields(tracingLog.Int("pending", len(domains)), tracingLog.Int("result.verified", verified))
	return verified, nil
}

func (s *provisioningService) GetDomain(ctx context.Context, tenant, name string) (*models.Domain, error) {
	if tenant == "" {
		return nil, er.ErrTenantMissing
	}
	domain, err := s.repositories.DomainRepository.GetDomain(ctx, tenant, utils.NormalizeDomain(name))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load domain")
	}
	if domain == nil {
		return nil, er.ErrDomainNotFound
	}
	return domain, nil
}

func (s *provisioningService) VerifyNameservers(ctx context.Context, tenant, name string) (*interfaces.NameserverVerifyResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.VerifyNameservers")
	defer span.Finish()
	tracing.TagTenant(span, tenant)

	domain, err := s.GetDomain(ctx, tenant, name)
	if err != nil {
		return nil, err
	}
	if !domain.HasZone() {
		return nil, er.ErrZoneNotCreated
	}
	return s.deps.Nameservers.Verify(ctx, domain)
}

func (s *provisioningService) GetActiveSession(ctx context.Context, tenant, name string) (*models.PollingSession, error) {
	domain, err := s.GetDomain(ctx, tenant, name)
	if err != nil {
		return nil, err
	}
	session, err := s.deps.Propagation.GetActiveForDomain(ctx, domain.ID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, er.ErrSessionNotFound
	}
	return session, nil
}

// call runs one provider request with a per-call timeout, retrying transient failures.
func (s *provisioningService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, s.retryConfig, retry.IsRetryable, func(ctx context.Context) error {
		if s.cfg.ProviderTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.ProviderTimeout)
			defer cancel()
		}
		return fn(ctx)
	})
}
