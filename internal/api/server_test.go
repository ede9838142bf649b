package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/talgya/hexatlas/internal/atlas"
	"github.com/talgya/hexatlas/internal/persistence"
)

const testKey = "s3cret"

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts := atlas.DefaultOptions()
	opts.Workers = 2
	s := &Server{DB: db, Options: opts, AdminKey: testKey, MaxHexes: 400, GenerateRate: 5}
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const mapBody = `{"center":{"lat":45,"lon":-93},"edge_meters":9237.6,"width":5,"height":5,"regions":4,"seed":3}`

func TestStatus(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/status", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hexatlas", body["name"])
	assert.Equal(t, "crisp", body["mode"])
	assert.Equal(t, true, body["admin_auth"])
}

func TestCreateAndFetchMap(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/maps", mapBody, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/maps", mapBody, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 25, created.HexCount)
	assert.Equal(t, "noise:3", created.Source)
	assert.Len(t, created.Regions, 4)
	assert.Equal(t, "/api/v1/maps/"+created.ID, rec.Header().Get("Location"))

	rec = do(t, h, http.MethodGet, "/api/v1/maps", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []persistence.RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, created.ID, runs[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/maps/"+created.ID, "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var run persistence.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Len(t, run.Hexes, 25)
	assert.Len(t, run.Regions, 4)

	rec = do(t, h, http.MethodGet, "/api/v1/maps/"+created.ID+"?format=msgpack", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))
	var packed map[string]any
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, created.ID, packed["id"])
	assert.Len(t, packed["hexes"], 25)

	rec = do(t, h, http.MethodGet, "/api/v1/maps/"+created.ID+"?format=xml", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/maps/"+created.ID+"/hexes/-1/2", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var hex atlas.HexRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hex))
	assert.Equal(t, -1, hex.Q)
	assert.Equal(t, 2, hex.R)
	assert.Equal(t, -1, hex.S)
	require.NotNil(t, hex.Region)

	rec = do(t, h, http.MethodGet, "/api/v1/maps/"+created.ID+"/hexes/40/40", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/maps/nope", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/maps/"+created.ID, "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/maps/"+created.ID, "", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/maps/"+created.ID, "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMapRejectsBadInput(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown field", `{"center":{"lat":1,"lon":1},"bogus":1}`},
		{"zero regions", `{"center":{"lat":45,"lon":-93},"edge_meters":1000,"width":3,"height":3,"regions":0}`},
		{"too many regions", `{"center":{"lat":45,"lon":-93},"edge_meters":1000,"width":3,"height":3,"regions":10}`},
		{"bad center", `{"center":{"lat":95,"lon":-93},"edge_meters":1000,"width":3,"height":3,"regions":2}`},
		{"over hex cap", `{"center":{"lat":45,"lon":-93},"edge_meters":1000,"width":30,"height":30,"regions":2}`},
		{"size overflows", `{"center":{"lat":45,"lon":-93},"edge_meters":1000,"width":9223372036854775807,"height":9223372036854775807,"regions":1}`},
		{"bad mode", `{"center":{"lat":45,"lon":-93},"edge_meters":1000,"width":3,"height":3,"regions":2,"mode":"blurry"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/maps", tc.body, true)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAdminEndpointsDisabledWithoutKey(t *testing.T) {
	s, _ := newTestServer(t)
	s.AdminKey = ""
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/maps", mapBody, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/maps/anything", "", true)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/maps", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateMapRateLimited(t *testing.T) {
	s, _ := newTestServer(t)
	s.GenerateRate = 1
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/maps", mapBody, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/maps", mapBody, true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestListLimitValidation(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/maps?limit=0", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/maps?limit=5", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 61, rl.RetryAfter("a"))

	now = now.Add(30 * time.Second)
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 31, rl.RetryAfter("a"))

	now = now.Add(31 * time.Second)
	assert.True(t, rl.Allow("a"))

	now = now.Add(5 * time.Minute)
	rl.Allow("c")
	rl.mu.Lock()
	assert.NotContains(t, rl.buckets, "a")
	assert.NotContains(t, rl.buckets, "b")
	rl.mu.Unlock()
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientIP(r))

	r.RemoteAddr = "[::1]:80"
	assert.Equal(t, "::1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/maps", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
