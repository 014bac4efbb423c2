// Package firebase implements [pmind.IdentityProvider] on the Firebase
// Authentication REST API (Identity Toolkit).
//
// Google sign-in exchanges a Google ID token for a Firebase user through
// accounts:signInWithIdp. When no Google token is available and anonymous
// sign-in is enabled, accounts:signUp creates an anonymous user instead.
// Sign-out is local: the tokens are dropped and listeners are notified.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pmind-ai/pmind"
	"github.com/tidwall/gjson"
)

// Interface compliance check.
var _ pmind.IdentityProvider = (*Provider)(nil)

const (
	defaultBaseURL    = "https://identitytoolkit.googleapis.com"
	defaultRequestURI = "http://localhost"
	signInWithIdpPath = "/v1/accounts:signInWithIdp"
	signUpPath        = "/v1/accounts:signUp"
	maxResponseBody   = 1 << 20
)

// ErrNoCredential is returned by SignIn when there is neither a Google ID
// token nor permission to sign in anonymously.
var ErrNoCredential = errors.New("no sign-in credential available")

// TokenSource returns a Google ID token for the user.
type TokenSource func(ctx context.Context) (string, error)

// Provider implements [pmind.IdentityProvider].
type Provider struct {
	apiKey     string
	baseURL    string
	requestURI string
	httpClient *http.Client
	tokens     TokenSource
	anonymous  bool
	now        func() time.Time

	mu        sync.Mutex
	current   *pmind.Identity
	session   *Session
	listeners map[int]func(*pmind.Identity)
	nextID    int
}

// Session holds the Firebase tokens of the signed-in user.
type Session struct {
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Option configures a [Provider].
type Option func(*Provider)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// WithTokenSource sets where Google ID tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(p *Provider) { p.tokens = ts }
}

// WithAnonymous allows anonymous sign-in when no Google token is available.
func WithAnonymous(allow bool) Option {
	return func(p *Provider) { p.anonymous = allow }
}

// WithRequestURI sets the requestUri sent with IdP sign-in.
func WithRequestURI(uri string) Option {
	return func(p *Provider) { p.requestURI = uri }
}

// New creates a Provider for the Firebase project identified by apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		requestURI: defaultRequestURI,
		httpClient: http.DefaultClient,
		now:        time.Now,
		listeners:  make(map[int]func(*pmind.Identity)),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SignIn signs the user in with Google, or anonymously when allowed and no
// Google token is available.
func (p *Provider) SignIn(ctx context.Context) (pmind.Identity, error) {
	var token string
	if p.tokens != nil {
		t, err := p.tokens(ctx)
		if err != nil {
			return pmind.Identity{}, fmt.Errorf("firebase: google token: %w", err)
		}
		token = t
	}

	var (
		resp gjson.Result
		err  error
	)
	switch {
	case token != "":
		resp, err = p.post(ctx, signInWithIdpPath, map[string]any{
			"postBody":            url.Values{"id_token": {token}, "providerId": {"google.com"}}.Encode(),
			"requestUri":          p.requestURI,
			"returnIdpCredential": true,
			"returnSecureToken":   true,
		})
	case p.anonymous:
		resp, err = p.post(ctx, signUpPath, map[string]any{"returnSecureToken": true})
	default:
		return pmind.Identity{}, fmt.Errorf("firebase: %w", ErrNoCredential)
	}
	if err != nil {
		return pmind.Identity{}, err
	}

	id := pmind.Identity{
		UID:         resp.Get("localId").String(),
		DisplayName: resp.Get("displayName").String(),
		PhotoURL:    resp.Get("photoUrl").String(),
		Email:       resp.Get("email").String(),
		Anonymous:   token == "",
	}
	if id.UID == "" {
		return pmind.Identity{}, fmt.Errorf("firebase: response has no user id")
	}
	sess := &Session{
		IDToken:      resp.Get("idToken").String(),
		RefreshToken: resp.Get("refreshToken").String(),
		ExpiresAt:    p.now().Add(time.Duration(resp.Get("expiresIn").Int()) * time.Second),
	}

	p.mu.Lock()
	p.current = &id
	p.session = sess
	p.mu.Unlock()
	p.notify(&id)
	return id, nil
}

// SignOut forgets the signed-in user.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	wasSignedIn := p.current != nil
	p.current = nil
	p.session = nil
	p.mu.Unlock()
	if wasSignedIn {
		p.notify(nil)
	}
	return nil
}

// Session returns the tokens of the signed-in user, if any.
func (p *Provider) Session() (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return Session{}, false
	}
	return *p.session, true
}

// OnAuthStateChange registers fn, invokes it with the current identity and
// again after every sign-in and sign-out.
func (p *Provider) OnAuthStateChange(fn func(*pmind.Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	current := copyIdentity(p.current)
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) notify(id *pmind.Identity) {
	p.mu.Lock()
	fns := make([]func(*pmind.Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

func copyIdentity(id *pmind.Identity) *pmind.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

func (p *Provider) post(ctx context.Context, path string, body map[string]any) (gjson.Result, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("firebase: %w", err)
	}
	u := p.baseURL + path + "?" + url.Values{"key": {p.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("firebase: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("firebase: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("firebase: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return gjson.Result{}, fmt.Errorf("firebase: %w", &pmind.StatusError{StatusCode: resp.StatusCode, Message: msg})
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("firebase: invalid JSON response")
	}
	return gjson.ParseBytes(raw), nil
}
