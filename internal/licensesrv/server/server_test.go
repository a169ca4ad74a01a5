package server

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/cspline/activationsrv/internal/licensesrv/config"
	"github.com/cspline/activationsrv/internal/licensesrv/db"
	"github.com/cspline/activationsrv/internal/licensesrv/db/models"
	"github.com/cspline/activationsrv/internal/licensesrv/license"
)

// newTestServer spins up the full router against the test database with a
// development signing key.
func newTestServer(t *testing.T) (*Server, *rsa.PublicKey) {
	t.Helper()
	config.TestInit()
	db.Init()

	signer, err := license.NewSigner(license.SignerOptions{DevMode: true})
	require.NoError(t, err)
	return CreateNewServer(signer), signer.PublicKey()
}

func executeRequest(req *http.Request, s *Server) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)
	return rr
}

func checkResponseCode(t *testing.T, expected int, actual int) {
	t.Helper()
	require.Equal(t, expected, actual, "unexpected response status code")
}

// newUnusedKey creates an unused key directly in the store.
func newUnusedKey(t *testing.T) *models.LicenseKey {
	t.Helper()
	ctx, err := db.ConnCtx(context.Background())
	require.NoError(t, err)
	d := db.DB(ctx)
	require.NotNil(t, d)
	defer d.Close(context.Background())

	keys, aerr := d.CreateLicenseKeys(ctx, 1, "server test")
	require.NoError(t, aerr)
	require.Len(t, keys, 1)
	t.Cleanup(func() {
		cctx, err := db.ConnCtx(context.Background())
		if err != nil {
			return
		}
		cd := db.DB(cctx)
		defer cd.Close(context.Background())
		cd.DeleteLicenseKey(cctx, keys[0].ID)
	})
	return keys[0]
}

func activateBody(key, machineID string) []byte {
	b, _ := json.Marshal(map[string]string{
		"key":        key,
		"email":      "alice@example.com",
		"name":       "Alice",
		"machine_id": machineID,
	})
	return b
}

func postActivate(s *Server, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/activate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return executeRequest(req, s)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := executeRequest(req, s)

	checkResponseCode(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", gjson.GetBytes(rr.Body.Bytes(), "status").String())
	assert.Equal(t, ServiceName, gjson.GetBytes(rr.Body.Bytes(), "service").String())
}

func TestActivationFlow(t *testing.T) {
	s, pub := newTestServer(t)
	key := newUnusedKey(t)

	// First activation succeeds and returns a verifiable token.
	rr := postActivate(s, activateBody(key.KeyString, "machine-1"))
	checkResponseCode(t, http.StatusOK, rr.Code)
	body := rr.Body.Bytes()
	assert.True(t, gjson.GetBytes(body, "success").Bool())

	var payload license.Payload
	require.NoError(t, json.Unmarshal([]byte(gjson.GetBytes(body, "token.payload").Raw), &payload))
	assert.Equal(t, license.Product, payload.Product)
	assert.Equal(t, "machine-1", payload.MachineID)
	assert.Nil(t, payload.Expires)

	sig, err := base64.StdEncoding.DecodeString(gjson.GetBytes(body, "token.sig").String())
	require.NoError(t, err)
	data, cerr := license.CanonicalEncode(payload)
	require.NoError(t, cerr)
	require.NoError(t, license.Verify(pub, data, sig))

	// Re-activation from the bound machine succeeds again.
	rr = postActivate(s, activateBody(key.KeyString, "machine-1"))
	checkResponseCode(t, http.StatusOK, rr.Code)
	assert.True(t, gjson.GetBytes(rr.Body.Bytes(), "success").Bool())

	// Another machine is turned away.
	rr = postActivate(s, activateBody(key.KeyString, "machine-2"))
	checkResponseCode(t, http.StatusBadRequest, rr.Code)
	assert.False(t, gjson.GetBytes(rr.Body.Bytes(), "success").Bool())
	assert.Equal(t, "License key already used on another computer",
		gjson.GetBytes(rr.Body.Bytes(), "error").String())

	// An unknown key is rejected.
	rr = postActivate(s, activateBody("CSPLINE-DEADBEEF-DEADBEEF-DEADBEEF", "machine-1"))
	checkResponseCode(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid license key", gjson.GetBytes(rr.Body.Bytes(), "error").String())
}

func TestActivationBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	// Missing fields.
	rr := postActivate(s, []byte(`{"key": "CSPLINE-00000000-00000000-00000001"}`))
	checkResponseCode(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Missing required fields", gjson.GetBytes(rr.Body.Bytes(), "error").String())

	// Malformed JSON.
	rr = postActivate(s, []byte(`{not json`))
	checkResponseCode(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request format", gjson.GetBytes(rr.Body.Bytes(), "error").String())

	// Wrong method.
	req := httptest.NewRequest(http.MethodGet, "/activate", nil)
	rr = executeRequest(req, s)
	checkResponseCode(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAdminRequiresToken(t *testing.T) {
	s, _ := newTestServer(t)
	config.Config().Admin.APIToken = ""

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rr := executeRequest(req, s)
	checkResponseCode(t, http.StatusUnauthorized, rr.Code)

	config.Config().Admin.APIToken = "test-admin-token"
	t.Cleanup(func() { config.Config().Admin.APIToken = "" })

	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rr = executeRequest(req, s)
	checkResponseCode(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminKeyManagement(t *testing.T) {
	s, _ := newTestServer(t)
	config.Config().Admin.APIToken = "test-admin-token"
	t.Cleanup(func() { config.Config().Admin.APIToken = "" })

	adminReq := func(method, path string, body []byte) *httptest.ResponseRecorder {
		var req *http.Request
		if body != nil {
			req = httptest.NewRequest(method, path, bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		req.Header.Set("Authorization", "Bearer test-admin-token")
		return executeRequest(req, s)
	}

	// Generate a batch of keys.
	rr := adminReq(http.MethodPost, "/admin/keys", []byte(`{"count": 2, "notes": "admin test"}`))
	checkResponseCode(t, http.StatusCreated, rr.Code)
	body := rr.Body.Bytes()
	assert.True(t, gjson.GetBytes(body, "success").Bool())
	created := gjson.GetBytes(body, "keys").Array()
	require.Len(t, created, 2)

	keyID := created[0].Get("id").String()
	keyString := created[0].Get("key").String()
	assert.Regexp(t, `^CSPLINE-[0-9A-F]{8}-[0-9A-F]{8}-[0-9A-F]{8}$`, keyString)
	t.Cleanup(func() {
		for _, k := range created {
			adminReq(http.MethodPost, "/admin/keys/"+k.Get("id").String()+"/reset", nil)
		}
	})

	// Invalid count is rejected.
	rr = adminReq(http.MethodPost, "/admin/keys", []byte(`{"count": 0}`))
	checkResponseCode(t, http.StatusBadRequest, rr.Code)

	// Activate one, then confirm it shows up claimed and can be reset.
	rr = postActivate(s, activateBody(keyString, "machine-adm"))
	checkResponseCode(t, http.StatusOK, rr.Code)

	rr = adminReq(http.MethodGet, "/admin/keys", nil)
	checkResponseCode(t, http.StatusOK, rr.Code)
	var status string
	for _, k := range gjson.GetBytes(rr.Body.Bytes(), "keys").Array() {
		if k.Get("id").String() == keyID {
			status = k.Get("status").String()
		}
	}
	assert.Equal(t, "claimed", status)

	rr = adminReq(http.MethodPost, "/admin/keys/"+keyID+"/reset", nil)
	checkResponseCode(t, http.StatusOK, rr.Code)

	rr = adminReq(http.MethodGet, "/admin/activations?limit=10", nil)
	checkResponseCode(t, http.StatusOK, rr.Code)
	assert.True(t, gjson.GetBytes(rr.Body.Bytes(), "success").Bool())

	rr = adminReq(http.MethodGet, "/admin/stats", nil)
	checkResponseCode(t, http.StatusOK, rr.Code)
	stats := rr.Body.Bytes()
	assert.True(t, gjson.GetBytes(stats, "success").Bool())
	assert.GreaterOrEqual(t, gjson.GetBytes(stats, "total_keys").Int(), int64(2))

	// Reset of an unknown key id is a 404.
	rr = adminReq(http.MethodPost, "/admin/keys/00000000-0000-0000-0000-000000000000/reset", nil)
	checkResponseCode(t, http.StatusNotFound, rr.Code)
}
