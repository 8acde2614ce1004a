package maildirectory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/tracing"
)

const requestTimeout = 10 * time.Second

type response struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ErrorNumber int    `json:"error_number,omitempty"`
}

type verificationResponse struct {
	response
	Token      string `json:"token"`
	Method     string `json:"method"`
	RecordName string `json:"record_name"`
}

type statusResponse struct {
	response
	Attributes struct {
		Verified bool `json:"verified"`
	} `json:"attributes"`
}

type mailDirectoryService struct {
	log    logger.Logger
	cfg    *config.MailDirectoryConfig
	client *http.Client
}

func NewMailDirectoryService(log logger.Logger, cfg *config.MailDirectoryConfig) interfaces.MailDirectoryService {
	return &mailDirectoryService{
		log:    log,
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// AddDomain registers domain with the mail directory. An existing domain is reported, not failed,
// together with its verification state.
func (s *mailDirectoryService) AddDomain(ctx context.Context, creds interfaces.MailDirectoryCredentials, domain string) (*interfaces.AddDomainResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailDirectoryService.AddDomain")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("domain", domain)

	var out statusResponse
	err := s.post(ctx, creds, "/change_domain", map[string]interface{}{
		"domain":      domain,
		"create_only": true,
	}, &out)
	if err == nil {
		err = responseError("maildirectory.AddDomain", out.response)
	}
	if er.IsDuplicate(err) {
		verified, statusErr := s.CheckVerificationStatus(ctx, creds, domain)
		if statusErr != nil {
			// the domain exists either way; verification is re-checked later
			s.log.Warnf("Could not read mail directory status for existing domain %s: %v", domain, statusErr)
		}
		span.LogFields(tracingLog.Bool("result.alreadyExisted", true), tracingLog.Bool("result.verified", verified))
		return &interfaces.AddDomainResult{Domain: domain, AlreadyExisted: true, Verified: verified}, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Bool("result.verified", out.Attributes.Verified))
	return &interfaces.AddDomainResult{Domain: domain, Verified: out.Attributes.Verified}, nil
}

func (s *mailDirectoryService) GetVerificationToken(ctx context.Context, creds interfaces.MailDirectoryCredentials, domain string) (*interfaces.VerificationToken, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailDirectoryService.GetVerificationToken")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("domain", domain)

	var out verificationResponse
	err := s.post(ctx, creds, "/get_domain_verification", map[string]interface{}{
		"domain": domain,
	}, &out)
	if err == nil {
		err = responseError("maildirectory.GetVerificationToken", out.response)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if out.Token == "" {
		err = er.Terminal("maildirectory.GetVerificationToken", "mail directory returned no verification token", nil)
		tracing.TraceErr(span, err)
		return nil, err
	}

	token := &interfaces.VerificationToken{
		Token:      out.Token,
		Method:     out.Method,
		RecordName: out.RecordName,
	}
	if token.Method == "" {
		token.Method = interfaces.VerificationMethodDNSTXT
	}
	if token.RecordName == "" {
		token.RecordName = domain
	}
	return token, nil
}

func (s *mailDirectoryService) CheckVerificationStatus(ctx context.Context, creds interfaces.MailDirectoryCredentials, domain string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailDirectoryService.CheckVerificationStatus")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("domain", domain)

	var out statusResponse
	err := s.post(ctx, creds, "/get_domain", map[string]interface{}{
		"domain": domain,
	}, &out)
	if err == nil {
		err = responseError("maildirectory.CheckVerificationStatus", out.response)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}

	span.LogFields(tracingLog.Bool("result.verified", out.Attributes.Verified))
	return out.Attributes.Verified, nil
}

func (s *mailDirectoryService) post(ctx context.Context, creds interfaces.MailDirectoryCredentials, path string, body map[string]interface{}, out interface{}) error {
	if creds.Username == "" || creds.APIKey == "" {
		return er.Terminal("maildirectory", "mail directory credentials not set", nil)
	}

	body["credentials"] = map[string]string{
		"user":     creds.Username,
		"password": creds.APIKey,
	}
	requestData, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(s.cfg.Url, "/")+path, bytes.NewBuffer(requestData))
	if err != nil {
		return errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return er.Transient("maildirectory", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return er.Transient("maildirectory", fmt.Errorf("unexpected status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return er.Terminal("maildirectory", "mail directory rejected the credentials", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusConflict:
		return er.Duplicate("maildirectory", fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode mail directory response")
	}
	return nil
}

func responseError(op string, resp response) error {
	if resp.Success {
		return nil
	}
	message := strings.ToLower(resp.Error)
	cause := fmt.Errorf("error %d: %s", resp.ErrorNumber, resp.Error)
	switch {
	case strings.Contains(message, "already exists"):
		return er.Duplicate(op, cause)
	case strings.Contains(message, "authentication") || strings.Contains(message, "credentials"):
		return er.Terminal(op, "mail directory rejected the credentials", cause)
	case strings.Contains(message, "temporarily") || strings.Contains(message, "try again"):
		return er.Transient(op, cause)
	}
	return er.Terminal(op, resp.Error, cause)
}
