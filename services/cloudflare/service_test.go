package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/testutil"
	"github.com/customeros/domainstack/internal/utils"
)

var testCreds = interfaces.ZoneCredentials{AccountID: "acc-1", APIToken: "test-token"}

func newTestService(t *testing.T, handler http.HandlerFunc) interfaces.ZoneProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCloudflareService(testutil.NewTestLogger(), &config.CloudflareConfig{Url: srv.URL})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func successEnvelope(result any) map[string]any {
	return map[string]any{"success": true, "errors": []any{}, "result": result}
}

func errorEnvelope(code int, message string) map[string]any {
	return map[string]any{
		"success": false,
		"errors":  []any{map[string]any{"code": code, "message": message}},
		"result":  nil,
	}
}

func TestCreateZone(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/zones", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body cfCreateZoneBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acme.com", body.Name)
		assert.Equal(t, "full", body.Type)
		require.NotNil(t, body.Account)
		assert.Equal(t, "acc-1", body.Account.ID)

		writeJSON(w, http.StatusOK, successEnvelope(map[string]any{
			"id":           "zone-123",
			"name":         "acme.com",
			"status":       "pending",
			"name_servers": []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"},
		}))
	})

	zone, err := svc.CreateZone(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "zone-123", zone.ID)
	assert.Equal(t, []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"}, zone.Nameservers)
}

func TestCreateZone_AlreadyExists(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, errorEnvelope(codeZoneAlreadyExists, "acme.com already exists"))
	})

	_, err := svc.CreateZone(context.Background(), testCreds, "acme.com")
	assert.True(t, er.IsDuplicate(err))
}

func TestCreateZone_Unauthorized(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, errorEnvelope(codeAuthentication, "Authentication error"))
	})

	_, err := svc.CreateZone(context.Background(), testCreds, "acme.com")
	assert.True(t, er.IsTerminal(err))
}

func TestCreateZone_ServerErrorIsTransient(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := svc.CreateZone(context.Background(), testCreds, "acme.com")
	assert.True(t, er.IsTransient(err))
}

func TestFindZone(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/zones", r.URL.Path)
		if r.URL.Query().Get("name") == "acme.com" {
			writeJSON(w, http.StatusOK, map[string]any{
				"success":     true,
				"result":      []any{map[string]any{"id": "zone-123", "name": "acme.com", "name_servers": []string{"ada.ns.cloudflare.com"}}},
				"result_info": map[string]any{"page": 1, "total_pages": 1},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": []any{}, "result_info": map[string]any{"page": 1, "total_pages": 0}})
	})

	zone, err := svc.FindZone(context.Background(), testCreds, "acme.com")
	require.NoError(t, err)
	require.NotNil(t, zone)
	assert.Equal(t, "zone-123", zone.ID)

	zone, err = svc.FindZone(context.Background(), testCreds, "missing.com")
	require.NoError(t, err)
	assert.Nil(t, zone)
}

func TestCreateRecord(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/zones/zone-123/dns_records", r.URL.Path)
		var body cfCreateRecordBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "MX", body.Type)
		require.NotNil(t, body.Priority)
		assert.Equal(t, 10, *body.Priority)
		assert.False(t, body.Proxied)
		writeJSON(w, http.StatusOK, successEnvelope(map[string]any{"id": "rec-1"}))
	})

	id, err := svc.CreateRecord(context.Background(), testCreds, "zone-123", interfaces.RecordSpec{
		Type:     enum.DNSRecordMX,
		Name:     "acme.com",
		Content:  "mx.hostedemail.com",
		Priority: utils.ToPtr(10),
		TTL:      3600,
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", id)
}

func TestCreateRecord_AlreadyExists(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, errorEnvelope(codeRecordAlreadyExists, "Record already exists."))
	})

	_, err := svc.CreateRecord(context.Background(), testCreds, "zone-123", interfaces.RecordSpec{Type: enum.DNSRecordTXT, Name: "acme.com", Content: "v=spf1 ~all"})
	assert.True(t, er.IsDuplicate(err))
}

func TestListRecords_Paginates(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		id := "rec-" + page
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"result":      []any{map[string]any{"id": id, "type": "TXT", "name": "acme.com", "content": `"v=spf1 ~all"`, "ttl": 1}},
			"result_info": map[string]any{"total_pages": 2},
		})
	})

	records, err := svc.ListRecords(context.Background(), testCreds, "zone-123")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-1", records[0].ID)
	assert.Equal(t, "rec-2", records[1].ID)
	assert.Equal(t, "v=spf1 ~all", records[0].Content)
}

func TestDeleteRecord_MissingIsSuccess(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeJSON(w, http.StatusNotFound, errorEnvelope(codeRecordNotFound, "Record does not exist."))
	})

	assert.NoError(t, svc.DeleteRecord(context.Background(), testCreds, "zone-123", "rec-1"))
}

func TestMissingToken(t *testing.T) {
	svc := NewCloudflareService(testutil.NewTestLogger(), &config.CloudflareConfig{Url: "http://127.0.0.1:1"})
	_, err := svc.FindZone(context.Background(), interfaces.ZoneCredentials{}, "acme.com")
	assert.True(t, er.IsTerminal(err))
}
