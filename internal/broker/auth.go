package broker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dyike/SchwabAI/internal/logging"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
)

var SchwabEndpoint = oauth2.Endpoint{
	AuthURL:   "https://api.schwabapi.com/v1/oauth/authorize",
	TokenURL:  "https://api.schwabapi.com/v1/oauth/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// FileTokenStore persists the OAuth token as JSON on disk.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Path() string { return s.path }

func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return &tok, nil
}

func (s *FileTokenStore) Save(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "token-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp token: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp token: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod token: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// persistingTokenSource writes every refreshed token back to the store.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  *FileTokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.store.Save(tok); err != nil {
			p.logger.Warn("persist refreshed token failed", "err", err)
		} else {
			p.logger.Debug("refreshed token saved", "path", p.store.Path())
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// Authenticator owns the OAuth configuration and the token file.
type Authenticator struct {
	conf   *oauth2.Config
	store  *FileTokenStore
	logger *slog.Logger
}

func NewAuthenticator(apiKey, appSecret, callbackURL, tokenPath string, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		conf: &oauth2.Config{
			ClientID:     apiKey,
			ClientSecret: appSecret,
			Endpoint:     SchwabEndpoint,
			RedirectURL:  callbackURL,
		},
		store:  NewFileTokenStore(tokenPath),
		logger: logging.OrDefault(logger),
	}
}

// WithEndpoint overrides the OAuth endpoint.
func (a *Authenticator) WithEndpoint(ep oauth2.Endpoint) *Authenticator {
	a.conf.Endpoint = ep
	return a
}

// HTTPClient returns a client that attaches and refreshes the stored token.
// A missing or unrefreshable token yields ErrNotAuthenticated.
func (a *Authenticator) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := a.store.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no token at %s, run the login command", ErrNotAuthenticated, a.store.Path())
		}
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}

	src := &persistingTokenSource{
		base:   a.conf.TokenSource(ctx, tok),
		store:  a.store,
		logger: a.logger,
		last:   tok.AccessToken,
	}
	ts := oauth2.ReuseTokenSource(tok, src)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("%w: refresh token: %w", ErrNotAuthenticated, err)
	}
	return oauth2.NewClient(ctx, ts), nil
}

// NewState returns a random OAuth state value.
func NewState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// AuthURL returns the browser URL the user visits to grant access.
func (a *Authenticator) AuthURL(state string) string {
	return a.conf.AuthCodeURL(state)
}

// ExchangeRedirect completes the login from the full redirect URL the
// browser landed on.
func (a *Authenticator) ExchangeRedirect(ctx context.Context, redirected, state string) error {
	u, err := url.Parse(strings.TrimSpace(redirected))
	if err != nil {
		return fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	if state != "" && q.Get("state") != state {
		return errors.New("oauth state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return errors.New("redirect url has no code parameter")
	}
	return a.exchange(ctx, code)
}

func (a *Authenticator) exchange(ctx context.Context, code string) error {
	tok, err := a.conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := a.store.Save(tok); err != nil {
		return err
	}
	a.logger.Info("token saved", "path", a.store.Path())
	return nil
}

// CallbackHandler serves the OAuth redirect. The result of the code exchange
// is sent once on done.
func (a *Authenticator) CallbackHandler(ctx context.Context, state string, done chan<- error) http.Handler {
	path := "/"
	if u, err := url.Parse(a.conf.RedirectURL); err == nil && u.Path != "" {
		path = u.Path
	}

	var once sync.Once
	finish := func(err error) {
		once.Do(func() { done <- err })
	}

	r := mux.NewRouter()
	r.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			finish(errors.New("oauth state mismatch"))
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, e, http.StatusBadRequest)
			finish(fmt.Errorf("authorization denied: %s", e))
			return
		}
		if err := a.exchange(ctx, q.Get("code")); err != nil {
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			finish(err)
			return
		}
		fmt.Fprintln(w, "Login complete. You can close this window.")
		finish(nil)
	}).Methods(http.MethodGet)
	return r
}

// Login runs the authorization-code flow on a local callback server bound to
// the callback URL's host and port. Only plain http callbacks can be served
// locally; https callbacks must use ExchangeRedirect.
func (a *Authenticator) Login(ctx context.Context, openURL func(string)) error {
	u, err := url.Parse(a.conf.RedirectURL)
	if err != nil {
		return fmt.Errorf("parse callback url: %w", err)
	}
	if u.Scheme != "http" {
		return fmt.Errorf("callback %s is not http, use manual login", a.conf.RedirectURL)
	}

	state := NewState()
	done := make(chan error, 1)
	srv := &http.Server{
		Handler:           a.CallbackHandler(ctx, state, done),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", u.Host, err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	openURL(a.AuthURL(state))

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
