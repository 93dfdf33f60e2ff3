package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parlor/internal/auth"
	"parlor/internal/store"
	"parlor/internal/websocket"
)

func newTestServer(t *testing.T) (*Server, *auth.Verifier) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "parlor.db"), 2*time.Second, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	verifier := auth.NewVerifier("test-secret", time.Hour)
	registry := websocket.NewRegistry(zerolog.Nop())
	return NewServer(st, verifier, registry, zerolog.Nop()), verifier
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) tokenResponse {
	t.Helper()
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegister_CreatesAccountAndMintsToken(t *testing.T) {
	s, verifier := newTestServer(t)

	rec := postJSON(t, s, "/api/register", map[string]string{
		"username": "alice",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeToken(t, rec)
	assert.Equal(t, "alice", resp.Username)

	identity, err := verifier.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Name)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	s, _ := newTestServer(t)

	creds := map[string]string{"username": "alice", "password": "hunter2hunter2"}
	require.Equal(t, http.StatusCreated, postJSON(t, s, "/api/register", creds).Code)
	assert.Equal(t, http.StatusConflict, postJSON(t, s, "/api/register", creds).Code)
}

func TestRegister_RejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"short username", map[string]string{"username": "a", "password": "hunter2hunter2"}},
		{"short password", map[string]string{"username": "alice", "password": "short"}},
		{"hyphenated username", map[string]string{"username": "ali-ce", "password": "hunter2hunter2"}},
		{"username with spaces", map[string]string{"username": "al ice", "password": "hunter2hunter2"}},
		{"missing password", map[string]string{"username": "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, postJSON(t, s, "/api/register", tt.body).Code)
		})
	}
}

func TestLogin(t *testing.T) {
	s, _ := newTestServer(t)

	creds := map[string]string{"username": "alice", "password": "hunter2hunter2"}
	require.Equal(t, http.StatusCreated, postJSON(t, s, "/api/register", creds).Code)

	rec := postJSON(t, s, "/api/login", creds)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeToken(t, rec).Username)
}

func TestLogin_WrongPassword(t *testing.T) {
	s, _ := newTestServer(t)

	require.Equal(t, http.StatusCreated, postJSON(t, s, "/api/register", map[string]string{
		"username": "alice", "password": "hunter2hunter2",
	}).Code)

	rec := postJSON(t, s, "/api/login", map[string]string{
		"username": "alice", "password": "wrongwrongwrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_UnknownUser(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s, "/api/login", map[string]string{
		"username": "nobody", "password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unknown user and bad password are indistinguishable")
}

func TestLogin_SyntheticIdentityRejected(t *testing.T) {
	s, _ := newTestServer(t)

	// The assistant's row has no password hash.
	_, err := s.store.FindOrCreateUser(t.Context(), "bot")
	require.NoError(t, err)

	rec := postJSON(t, s, "/api/login", map[string]string{
		"username": "bot", "password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/register", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["online"])
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
