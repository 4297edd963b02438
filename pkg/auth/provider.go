// Package auth supplies the bearer token sent with every proxied request:
// none, a static token, or an OAuth2 token fetched and cached until its JWT
// expiry.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fhoering/openapi-to-mcp/pkg/metrics"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// Mode is the provider variant.
type Mode string

const (
	ModeNone         Mode = "none"
	ModeStaticBearer Mode = "static_bearer"
	ModeOAuth2       Mode = "oauth2"
)

// State is the observable provider state.
type State string

const (
	StateNoAuth        State = "NoAuth"
	StateStaticBearer  State = "StaticBearer"
	StateOAuth2Pending State = "OAuth2Pending"
	StateOAuth2Cached  State = "OAuth2Cached"
)

// Provider yields the bearer token for one outgoing request. An empty token
// means the request goes out unauthenticated.
type Provider interface {
	Token(ctx context.Context) (string, error)
	State() State
}

// Options tunes a provider.
//
// HTTPClient: client for the token endpoint (default 30s timeout)
// Logger: default no-op
// Metrics: token fetch counters, nil disables them
// Now: clock used for JWT expiry (default time.Now)
type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

func (o *Options) withDefaults() *Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{}
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}

// NewProvider picks the variant once from a resolved configuration: a bearer
// token wins over an OAuth2 grant.
//
// Example usage:
//
//	cfg := auth.Configuration{GrantType: auth.GrantClientCredentials, ClientID: "id", ClientSecret: "secret"}
//	provider := auth.NewProvider(cfg.Resolve(doc), nil)
//	token, err := provider.Token(ctx)
func NewProvider(cfg Configuration, opts *Options) Provider {
	opts = opts.withDefaults()
	switch cfg.Mode() {
	case ModeStaticBearer:
		return staticBearer(cfg.BearerToken)
	case ModeOAuth2:
		if missing := missingFields(cfg); len(missing) > 0 {
			opts.Logger.Warn("OAuth2 grant is missing fields",
				zap.String("grant_type", string(cfg.GrantType)),
				zap.Strings("fields", missing))
		}
		return &OAuth2Provider{cfg: cfg, opts: opts}
	default:
		return noAuth{}
	}
}

type noAuth struct{}

func (noAuth) Token(context.Context) (string, error) { return "", nil }
func (noAuth) State() State                          { return StateNoAuth }

type staticBearer string

func (s staticBearer) Token(context.Context) (string, error) { return string(s), nil }
func (staticBearer) State() State                            { return StateStaticBearer }

// OAuth2Provider fetches a token on first use and again whenever the cached
// token is a JWT past its exp. Concurrent fetches are collapsed into one.
type OAuth2Provider struct {
	cfg   Configuration
	opts  *Options
	group singleflight.Group

	mu    sync.Mutex
	token string
}

// State reports whether a token is cached.
func (p *OAuth2Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" {
		return StateOAuth2Pending
	}
	return StateOAuth2Cached
}

// Token returns the cached token or fetches a new one. A failed fetch leaves
// the cache as it was.
func (p *OAuth2Provider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (any, error) {
		if token, ok := p.cached(); ok {
			return token, nil
		}
		// Shared by every waiter, so it outlives any one caller's cancellation.
		token, err := fetchToken(context.WithoutCancel(ctx), p.opts.HTTPClient, p.cfg)
		if err != nil {
			p.opts.Metrics.ObserveTokenFetch(string(p.cfg.GrantType), metrics.OutcomeFailure)
			var serr *server.ServerError
			if errors.As(err, &serr) {
				serr.LogError(p.opts.Logger)
			}
			return "", err
		}
		p.opts.Metrics.ObserveTokenFetch(string(p.cfg.GrantType), metrics.OutcomeSuccess)

		fields := []zap.Field{zap.String("grant_type", string(p.cfg.GrantType)), zap.String("token_url", p.cfg.TokenURL)}
		if exp, ok := tokenExpiry(token); ok {
			fields = append(fields, zap.Time("expires", exp))
		}
		p.opts.Logger.Debug("Fetched OAuth2 token", fields...)

		p.mu.Lock()
		p.token = token
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *OAuth2Provider) cached() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" || expired(p.token, p.opts.Now()) {
		return "", false
	}
	return p.token, true
}

// Describe is a loggable summary of the provider with secrets masked.
func Describe(cfg Configuration) []zap.Field {
	fields := []zap.Field{zap.String("auth_mode", string(cfg.Mode()))}
	switch cfg.Mode() {
	case ModeStaticBearer:
		fields = append(fields, zap.String("bearer_token", mask(cfg.BearerToken)))
	case ModeOAuth2:
		fields = append(fields,
			zap.String("grant_type", string(cfg.GrantType)),
			zap.String("token_url", cfg.TokenURL),
			zap.String("client_id", cfg.ClientID))
	}
	return fields
}

func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

type failing struct{ err error }

// NewFailingProvider returns a provider whose every call fails with err, for
// sessions whose override headers could not be resolved.
func NewFailingProvider(err error) Provider { return failing{err: err} }

func (f failing) Token(context.Context) (string, error) { return "", f.err }
func (failing) State() State                            { return StateNoAuth }
