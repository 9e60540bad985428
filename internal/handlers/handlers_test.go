package handlers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claroledger/audittrail/internal/audit"
	"github.com/claroledger/audittrail/internal/config"
)

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *audit.Service) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{GracePeriod: 24 * time.Hour}
	}
	store := audit.NewFileStore(t.TempDir())
	svc := audit.NewService(store, audit.ServiceConfig{GracePeriod: cfg.GracePeriod})
	ts := httptest.NewServer(New(cfg, nil, store, svc).Router())
	t.Cleanup(ts.Close)
	return ts, svc
}

func postEntry(t *testing.T, ts *httptest.Server, body map[string]interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/audit/entries", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func mutationBody(entityID string) map[string]interface{} {
	return map[string]interface{}{
		"accountId":  "acct-1",
		"actorId":    "user-1",
		"actorName":  "Ana Lima",
		"action":     "create",
		"entityKind": "transaction",
		"entityId":   entityID,
		"detail":     "Created transaction " + entityID,
	}
}

func TestRecordAndVerifyOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		resp := postEntry(t, ts, mutationBody(fmt.Sprintf("txn-%d", i)))
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var e audit.AuditEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
		resp.Body.Close()
		assert.Len(t, e.Hash, 64)
		// Writes land quickly enough to share a millisecond; space them.
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/audit/accounts/acct-1/chain/verified")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var verified []audit.VerifiedEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verified))
	assert.Len(t, verified, 3)
	for _, v := range verified {
		assert.True(t, v.Valid)
	}
	// Most recent first.
	assert.Equal(t, "txn-2", verified[0].EntityID)
}

func TestRecordMutation_BadRequests(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	body := mutationBody("txn-1")
	body["accountId"] = ""
	resp := postEntry(t, ts, body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body = mutationBody("txn-1")
	body["action"] = "merge"
	resp = postEntry(t, ts, body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetChain_RawAndEmpty(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/audit/accounts/acct-none/chain")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []audit.AuditEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Empty(t, entries)
}

func TestVerifiedChain_GracePeriodQueryParam(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	// A fresh bulk-imported transaction entry plus a manual one.
	body := mutationBody("txn-import")
	body["origin"] = "bulk_import"
	body["detail"] = "Created transaction Salary, imported via CSV file extrato.csv"
	resp := postEntry(t, ts, body)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	time.Sleep(5 * time.Millisecond)
	resp = postEntry(t, ts, mutationBody("txn-manual"))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	get := func(url string) []audit.VerifiedEntry {
		resp, err := http.Get(url)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out []audit.VerifiedEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	// Unfiltered view and verification include the imported entry.
	all := get(ts.URL + "/audit/accounts/acct-1/chain/verified")
	assert.Len(t, all, 2)

	// Filtered view hides it while the grace window is open.
	shown := get(ts.URL + "/audit/accounts/acct-1/chain/verified?filtered=true")
	assert.Len(t, shown, 1)
	assert.Equal(t, "txn-manual", shown[0].EntityID)
}

func TestExportCSVOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	for i := 0; i < 2; i++ {
		resp := postEntry(t, ts, mutationBody(fmt.Sprintf("txn-%d", i)))
		resp.Body.Close()
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/audit/accounts/acct-1/export.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3) // header + 2 rows
	assert.Equal(t, audit.StatusVerified, records[1][0])
}

func TestGetEntry_NotFound(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/audit/entries/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActorTokenOverridesBodyIdentity(t *testing.T) {
	cfg := &config.Config{
		GracePeriod: 24 * time.Hour,
		AuthSecret:  "test-secret",
		RequireAuth: true,
	}
	ts, _ := newTestServer(t, cfg)

	// No token: rejected.
	resp := postEntry(t, ts, mutationBody("txn-1"))
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Signed token: actor identity comes from the token, not the body.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       "user-99",
		"name":      "Carla Mendes",
		"accountId": "acct-9",
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	b, _ := json.Marshal(mutationBody("txn-1"))
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/audit/entries", bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("Content-Type", "application/json")

	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusCreated, resp2.StatusCode)

	var e audit.AuditEntry
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&e))
	assert.Equal(t, "user-99", e.ActorID)
	assert.Equal(t, "Carla Mendes", e.ActorName)
	assert.Equal(t, "acct-9", e.AccountID)
}
