package broker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyike/SchwabAI/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T, access string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"`+access+`","token_type":"Bearer","refresh_token":"refresh-2","expires_in":1800}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAuthenticator(t *testing.T, tokenURL, callback string) (*Authenticator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens", "token.json")
	a := NewAuthenticator("key", "secret", callback, path, logging.Discard()).
		WithEndpoint(oauth2.Endpoint{AuthURL: "https://example.test/authorize", TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInHeader})
	return a, path
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	require.NoError(t, store.Save(tok))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
}

func TestHTTPClientWithoutTokenIsNotAuthenticated(t *testing.T) {
	a, _ := newTestAuthenticator(t, "http://127.0.0.1:1/token", "http://127.0.0.1:8182/callback")
	_, err := a.HTTPClient(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
}

func TestHTTPClientRefreshesAndPersists(t *testing.T) {
	tokenSrv := newTokenServer(t, "fresh")
	a, path := newTestAuthenticator(t, tokenSrv.URL, "http://127.0.0.1:8182/callback")
	require.NoError(t, NewFileTokenStore(path).Save(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	client, err := a.HTTPClient(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)

	saved, err := NewFileTokenStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.AccessToken)
	assert.Equal(t, "refresh-2", saved.RefreshToken)
}

func TestCallbackHandlerExchangesCode(t *testing.T) {
	tokenSrv := newTokenServer(t, "first")
	a, path := newTestAuthenticator(t, tokenSrv.URL, "http://127.0.0.1:8182/callback")

	done := make(chan error, 1)
	h := a.CallbackHandler(context.Background(), "xyz", done)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=xyz&code=abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, <-done)

	saved, err := NewFileTokenStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "first", saved.AccessToken)
}

func TestCallbackHandlerRejectsBadState(t *testing.T) {
	a, _ := newTestAuthenticator(t, "http://127.0.0.1:1/token", "http://127.0.0.1:8182/callback")
	done := make(chan error, 1)
	h := a.CallbackHandler(context.Background(), "xyz", done)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=other&code=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Error(t, <-done)
}

func TestExchangeRedirect(t *testing.T) {
	tokenSrv := newTokenServer(t, "manual")
	a, path := newTestAuthenticator(t, tokenSrv.URL, "https://127.0.0.1:8182")

	require.Error(t, a.ExchangeRedirect(context.Background(), "https://127.0.0.1:8182/?state=s", "s"))
	require.NoError(t, a.ExchangeRedirect(context.Background(), "https://127.0.0.1:8182/?code=c1&state=s", "s"))

	saved, err := NewFileTokenStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "manual", saved.AccessToken)
}
