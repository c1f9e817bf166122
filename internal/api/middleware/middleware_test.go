package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/ownspend/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *DeviceRegistry {
	reg := NewDeviceRegistry([]config.DeviceSecret{
		{APIKey: "key-1", OwnerID: "owner-1", DeviceID: "pixel", Name: "Pixel 8"},
		{APIKey: "key-2", OwnerID: "owner-2", DeviceID: "galaxy"},
	})
	reg.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	return reg
}

func TestDeviceAuth(t *testing.T) {
	reg := testRegistry()
	handler := DeviceAuth(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device, ok := DeviceFromContext(r.Context())
		require.True(t, ok)
		WriteJSON(w, http.StatusOK, map[string]string{"owner_id": device.OwnerID, "device_id": device.DeviceID})
	}))

	tests := []struct {
		name       string
		apiKey     string
		wantStatus int
		wantBody   string
	}{
		{"known key", "key-1", http.StatusOK, `"owner_id":"owner-1"`},
		{"second device", "key-2", http.StatusOK, `"device_id":"galaxy"`},
		{"unknown key", "nope", http.StatusUnauthorized, "Invalid or inactive device API key"},
		{"missing key", "", http.StatusUnauthorized, "Invalid or inactive device API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
			if tt.apiKey != "" {
				req.Header.Set(APIKeyHeader, tt.apiKey)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestDeviceRegistry_LastSeen(t *testing.T) {
	reg := testRegistry()

	for _, d := range reg.Devices() {
		assert.True(t, d.LastSeenAt.IsZero())
		assert.Empty(t, d.APIKey)
	}

	device, ok := reg.Authenticate("key-1")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), device.LastSeenAt)

	devices := reg.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "galaxy", devices[0].DeviceID)
	assert.True(t, devices[0].LastSeenAt.IsZero())
	assert.Equal(t, "pixel", devices[1].DeviceID)
	assert.False(t, devices[1].LastSeenAt.IsZero())
}

func TestDeviceAuth_PassesPreflight(t *testing.T) {
	called := false
	handler := DeviceAuth(testRegistry())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodOptions, "/api/events/ingest", nil))
	assert.True(t, called)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zerolog.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "given")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "given", seen)
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/events/ingest", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), APIKeyHeader)
}

func TestLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logger(zerolog.New(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/health"`)
}
