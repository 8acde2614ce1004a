package maildirectory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/testutil"
)

var testCreds = interfaces.MailDirectoryCredentials{Username: "admin", APIKey: "key"}

func newTestService(t *testing.T, handler http.HandlerFunc) interfaces.MailDirectoryService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMailDirectoryService(testutil.NewTestLogger(), &config.MailDirectoryConfig{Url: srv.URL})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestAddDomain(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/change_domain", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "acme.com", body["domain"])
		assert.Equal(t, map[string]any{"user": "admin", "password": "key"}, body["credentials"])
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	result, err := svc.AddDomain(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	assert.False(t, result.AlreadyExisted)
}

func TestAddDomain_AlreadyExistsIsSuccess(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Domain already exists", "error_number": 2})
	})

	result, err := svc.AddDomain(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	assert.True(t, result.AlreadyExisted)
}

func TestAddDomain_ReportsVerification(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/change_domain", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "attributes": map[string]any{"verified": true}})
	})

	result, err := svc.AddDomain(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	assert.False(t, result.AlreadyExisted)
	assert.True(t, result.Verified)
}

func TestAddDomain_ExistingVerifiedDomain(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/change_domain":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Domain already exists", "error_number": 2})
		case "/get_domain":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "attributes": map[string]any{"verified": true}})
		}
	})

	result, err := svc.AddDomain(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	assert.True(t, result.AlreadyExisted)
	assert.True(t, result.Verified)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/change_domain", "/get_domain"}, paths)
}

func TestAddDomain_Conflict(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	result, err := svc.AddDomain(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	assert.True(t, result.AlreadyExisted)
}

func TestAddDomain_MissingCredentials(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := svc.AddDomain(context.Background(), interfaces.MailDirectoryCredentials{}, "acme.com")
	assert.True(t, er.IsTerminal(err))
}

func TestGetVerificationToken(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_domain_verification", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "md-verify=abc123", "record_name": "_md.acme.com"})
	})

	token, err := svc.GetVerificationToken(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "md-verify=abc123", token.Token)
	assert.Equal(t, "_md.acme.com", token.RecordName)
	assert.Equal(t, interfaces.VerificationMethodDNSTXT, token.Method)
}

func TestCheckVerificationStatus(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "attributes": map[string]any{"verified": true}})
	})

	verified, err := svc.CheckVerificationStatus(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestServerErrorIsTransient(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := svc.CheckVerificationStatus(context.Background(), testCreds, "acme.com")
	assert.True(t, er.IsTransient(err))
}
