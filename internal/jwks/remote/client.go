// Package remote fetches tenant key sets from a running warden so relying
// services can verify tenant-signed tokens without database access.
package remote

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"warden.dev/internal/jwks"
)

var (
	ErrNoActiveKey = errors.New("remote: tenant has no active key")
	ErrUnknownKid  = errors.New("remote: kid not in tenant key set")
)

const maxDocumentBytes = 1 << 16

// Client fetches and caches per-tenant JWKS documents.
type Client struct {
	base       *url.URL
	http       *http.Client
	ttl        time.Duration
	minRefetch time.Duration
	now        func() time.Time
	group      singleflight.Group
	mu         sync.RWMutex
	entries    map[string]cached
	forced     map[string]time.Time
}

type cached struct {
	doc     jwks.Document
	fetched time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCacheTTL bounds how long a fetched document is served before refetching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRefetchInterval bounds how often an unknown kid may force a refetch
// for the same tenant.
func WithRefetchInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.minRefetch = d
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(c *Client) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New creates a client for the warden at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:       u,
		http:       &http.Client{Timeout: 10 * time.Second},
		ttl:        5 * time.Minute,
		minRefetch: 30 * time.Second,
		now:        time.Now,
		entries:    make(map[string]cached),
		forced:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Document returns the tenant's key set, from cache when fresh.
func (c *Client) Document(ctx context.Context, tenantID string) (jwks.Document, error) {
	if doc, ok := c.cachedDoc(tenantID); ok {
		return doc, nil
	}
	return c.fetch(ctx, tenantID)
}

// PublicKey returns the tenant key with kid. An unknown kid forces one
// refetch so a freshly rotated key is picked up before the cache expires,
// at most once per refetch interval per tenant.
func (c *Client) PublicKey(ctx context.Context, tenantID, kid string) (*rsa.PublicKey, error) {
	doc, err := c.Document(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	key, ok := doc.Lookup(kid)
	if !ok {
		if !c.allowForcedRefetch(tenantID) {
			return nil, ErrUnknownKid
		}
		c.invalidate(tenantID)
		if doc, err = c.fetch(ctx, tenantID); err != nil {
			return nil, err
		}
		if key, ok = doc.Lookup(kid); !ok {
			return nil, ErrUnknownKid
		}
	}
	return key.PublicKey()
}

// Keyfunc adapts the client to jwt.Parse for tokens of tenantID.
func (c *Client) Keyfunc(ctx context.Context, tenantID string) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("remote: unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKid
		}
		return c.PublicKey(ctx, tenantID, kid)
	}
}

func (c *Client) cachedDoc(tenantID string) (jwks.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tenantID]
	if !ok || c.now().Sub(e.fetched) >= c.ttl {
		return jwks.Document{}, false
	}
	return e.doc, true
}

func (c *Client) allowForcedRefetch(tenantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if last, ok := c.forced[tenantID]; ok && now.Sub(last) < c.minRefetch {
		return false
	}
	c.forced[tenantID] = now
	return true
}

func (c *Client) invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

func (c *Client) fetch(ctx context.Context, tenantID string) (jwks.Document, error) {
	v, err, _ := c.group.Do(tenantID, func() (any, error) {
		doc, err := c.get(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[tenantID] = cached{doc: doc, fetched: c.now()}
		c.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return jwks.Document{}, err
	}
	return v.(jwks.Document), nil
}

func (c *Client) get(ctx context.Context, tenantID string) (jwks.Document, error) {
	endpoint := c.base.JoinPath("v1", "tenants", tenantID, "jwks.json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return jwks.Document{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return jwks.Document{}, fmt.Errorf("remote: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxDocumentBytes)
	if resp.StatusCode != http.StatusOK {
		return jwks.Document{}, mapStatus(resp.StatusCode, body)
	}
	var doc jwks.Document
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return jwks.Document{}, fmt.Errorf("remote: decode jwks: %w", err)
	}
	return doc, nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func mapStatus(code int, body io.Reader) error {
	var env errorEnvelope
	_ = json.NewDecoder(body).Decode(&env)
	if code == http.StatusNotFound && env.Error.Code == "NO_ACTIVE_KEY" {
		return ErrNoActiveKey
	}
	if env.Error.Code != "" {
		return fmt.Errorf("remote: jwks status %d: %s: %s", code, env.Error.Code, env.Error.Message)
	}
	return fmt.Errorf("remote: jwks status %d", code)
}
