package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/tracing"
)

const (
	requestTimeout = 30 * time.Second
	recordsPerPage = 100

	codeZoneAlreadyExists   = 1061
	codeRecordAlreadyExists = 81057
	codeRecordIdentical     = 81058
	codeRecordNotFound      = 81044
	codeAuthentication      = 10000
	codeInvalidToken        = 9109
)

var _ interfaces.ZoneProvider = (*cloudflareService)(nil)

type cloudflareService struct {
	log    logger.Logger
	cfg    *config.CloudflareConfig
	client *http.Client
}

func NewCloudflareService(log logger.Logger, cfg *config.CloudflareConfig) interfaces.ZoneProvider {
	return &cloudflareService{
		log:    log,
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
	}
}

type cfEnvelope[T any] struct {
	Success bool      `json:"success"`
	Errors  []cfError `json:"errors"`
	Result  T         `json:"result"`
}

type cfListEnvelope[T any] struct {
	Success    bool         `json:"success"`
	Errors     []cfError    `json:"errors"`
	Result     []T          `json:"result"`
	ResultInfo cfResultInfo `json:"result_info"`
}

type cfError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cfResultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

type cfZone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	NameServers []string `json:"name_servers"`
}

type cfDNSRecord struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Priority *int   `json:"priority,omitempty"`
}

type cfCreateZoneBody struct {
	Name    string     `json:"name"`
	Account *cfAccount `json:"account,omitempty"`
	Type    string     `json:"type"`
}

type cfAccount struct {
	ID string `json:"id"`
}

type cfCreateRecordBody struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	Proxied  bool   `json:"proxied"`
}

func (s *cloudflareService) CreateZone(ctx context.Context, creds interfaces.ZoneCredentials, domain string) (*interfaces.Zone, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.CreateZone")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("domain", domain)

	body := cfCreateZoneBody{Name: domain, Type: "full"}
	accountID := creds.AccountID
	if accountID == "" {
		accountID = s.cfg.AccountID
	}
	if accountID != "" {
		body.Account = &cfAccount{ID: accountID}
	}

	var out cfEnvelope[cfZone]
	status, err := s.doJSON(ctx, creds, http.MethodPost, "/zones", body, &out)
	if err == nil {
		err = envelopeError("cloudflare.CreateZone", out.Success, out.Errors, status)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	zone := toZone(out.Result)
	span.LogFields(tracingLog.String("result.zoneId", zone.ID))
	return zone, nil
}

// FindZone returns nil when the account has no zone for domain.
func (s *cloudflareService) FindZone(ctx context.Context, creds interfaces.ZoneCredentials, domain string) (*interfaces.Zone, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.FindZone")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("domain", domain)

	var out cfListEnvelope[cfZone]
	path := "/zones?per_page=1&name=" + url.QueryEscape(domain)
	status, err := s.doJSON(ctx, creds, http.MethodGet, path, nil, &out)
	if err == nil {
		err = envelopeError("cloudflare.FindZone", out.Success, out.Errors, status)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if len(out.Result) == 0 {
		span.LogFields(tracingLog.Bool("result.found", false))
		return nil, nil
	}
	return toZone(out.Result[0]), nil
}

func (s *cloudflareService) CreateRecord(ctx context.Context, creds interfaces.ZoneCredentials, zoneID string, spec interfaces.RecordSpec) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.CreateRecord")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("zoneId", zoneID, "type", spec.Type, "name", spec.Name)

	body := cfCreateRecordBody{
		Type:    spec.Type.String(),
		Name:    spec.Name,
		Content: spec.Content,
		TTL:     spec.TTL,
		Proxied: false,
	}
	if spec.Type == enum.DNSRecordMX {
		body.Priority = spec.Priority
	}

	var out cfEnvelope[cfDNSRecord]
	status, err := s.doJSON(ctx, creds, http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", zoneID), body, &out)
	if err == nil {
		err = envelopeError("cloudflare.CreateRecord", out.Success, out.Errors, status)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	span.LogFields(tracingLog.String("result.recordId", out.Result.ID))
	return out.Result.ID, nil
}

func (s *cloudflareService) ListRecords(ctx context.Context, creds interfaces.ZoneCredentials, zoneID string) ([]interfaces.ProviderRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.ListRecords")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("zoneId", zoneID)

	var records []interfaces.ProviderRecord
	for page := 1; ; page++ {
		var out cfListEnvelope[cfDNSRecord]
		path := fmt.Sprintf("/zones/%s/dns_records?page=%d&per_page=%d", zoneID, page, recordsPerPage)
		status, err := s.doJSON(ctx, creds, http.MethodGet, path, nil, &out)
		if err == nil {
			err = envelopeError("cloudflare.ListRecords", out.Success, out.Errors, status)
		}
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}

		for _, r := range out.Result {
			records = append(records, toProviderRecord(r))
		}
		if page >= out.ResultInfo.TotalPages {
			break
		}
	}

	span.LogFields(tracingLog.Int("result.count", len(records)))
	return records, nil
}

// DeleteRecord treats an already deleted record as success.
func (s *cloudflareService) DeleteRecord(ctx context.Context, creds interfaces.ZoneCredentials, zoneID, recordID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.DeleteRecord")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("zoneId", zoneID, "recordId", recordID)

	var out cfEnvelope[json.RawMessage]
	status, err := s.doJSON(ctx, creds, http.MethodDelete, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID), nil, &out)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if status == http.StatusNotFound || hasCode(out.Errors, codeRecordNotFound) {
		s.log.Warnf("DNS record %s already removed from zone %s", recordID, zoneID)
		return nil
	}
	if err = envelopeError("cloudflare.DeleteRecord", out.Success, out.Errors, status); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *cloudflareService) DeleteZone(ctx context.Context, creds interfaces.ZoneCredentials, zoneID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareService.DeleteZone")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)
	span.LogKV("zoneId", zoneID)

	var out cfEnvelope[json.RawMessage]
	status, err := s.doJSON(ctx, creds, http.MethodDelete, "/zones/"+zoneID, nil, &out)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if err = envelopeError("cloudflare.DeleteZone", out.Success, out.Errors, status); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *cloudflareService) doJSON(ctx context.Context, creds interfaces.ZoneCredentials, method, path string, body, out any) (int, error) {
	token := creds.APIToken
	if token == "" {
		token = s.cfg.ApiToken
	}
	if token == "" {
		return 0, er.Terminal("cloudflare", "Cloudflare API token is not configured", nil)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "failed to encode cloudflare request")
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(s.cfg.Url, "/")+path, bodyReader)
	if err != nil {
		return 0, errors.Wrap(err, "failed to build cloudflare request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.InjectSpanContextIntoHTTPRequest(req, opentracing.SpanFromContext(ctx))

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return 0, ctx.Err()
		}
		return 0, er.Transient("cloudflare", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, er.Transient("cloudflare", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return resp.StatusCode, er.Terminal("cloudflare", "Cloudflare rejected the API token", fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode == http.StatusNotFound {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, errors.Wrap(err, "failed to decode cloudflare response")
	}

	return resp.StatusCode, nil
}

// envelopeError classifies a failed envelope into an error kind.
func envelopeError(op string, success bool, cfErrors []cfError, httpStatus int) error {
	if success {
		return nil
	}
	cause := errors.New(cfErrorString(cfErrors))

	for _, e := range cfErrors {
		switch e.Code {
		case codeZoneAlreadyExists, codeRecordAlreadyExists, codeRecordIdentical:
			return er.Duplicate(op, cause)
		case codeAuthentication, codeInvalidToken:
			return er.Terminal(op, "Cloudflare rejected the API token", cause)
		}
		if strings.Contains(strings.ToLower(e.Message), "already exists") {
			return er.Duplicate(op, cause)
		}
	}

	switch {
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden:
		return er.Terminal(op, "Cloudflare rejected the API token", cause)
	case httpStatus == http.StatusNotFound:
		return er.Terminal(op, "resource not found at Cloudflare", errors.Wrap(er.ErrProviderNotFound, cause.Error()))
	case httpStatus == http.StatusTooManyRequests || httpStatus >= http.StatusInternalServerError:
		return er.Transient(op, cause)
	}
	return er.Terminal(op, "Cloudflare rejected the request", cause)
}

func cfErrorString(cfErrors []cfError) string {
	if len(cfErrors) == 0 {
		return "unknown error"
	}
	msgs := make([]string, 0, len(cfErrors))
	for _, e := range cfErrors {
		msgs = append(msgs, fmt.Sprintf("[%d] %s", e.Code, e.Message))
	}
	return strings.Join(msgs, "; ")
}

func hasCode(cfErrors []cfError, code int) bool {
	for _, e := range cfErrors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func toZone(z cfZone) *interfaces.Zone {
	return &interfaces.Zone{
		ID:          z.ID,
		Name:        z.Name,
		Status:      z.Status,
		Nameservers: z.NameServers,
	}
}

func toProviderRecord(r cfDNSRecord) interfaces.ProviderRecord {
	content := r.Content
	if r.Type == enum.DNSRecordTXT.String() {
		content = strings.Trim(content, `"`)
	}
	return interfaces.ProviderRecord{
		ID:       r.ID,
		Type:     enum.DNSRecordType(r.Type),
		Name:     r.Name,
		Content:  content,
		Priority: r.Priority,
		TTL:      r.TTL,
	}
}
