package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhoering/openapi-to-mcp/pkg/metrics"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "client",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
	forms chan map[string][]string
}

// newTokenServer answers every POST with the next token from tokens, the last
// one repeating.
func newTokenServer(t *testing.T, status int, tokens ...string) *tokenServer {
	t.Helper()
	ts := &tokenServer{forms: make(chan map[string][]string, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(ts.calls.Add(1))
		_ = r.ParseForm()
		select {
		case ts.forms <- r.PostForm:
		default:
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		token := tokens[len(tokens)-1]
		if n <= len(tokens) {
			token = tokens[n-1]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": token, "token_type": "Bearer"})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestNewProvider_Variants(t *testing.T) {
	ctx := context.Background()

	p := NewProvider(Configuration{}, nil)
	token, err := p.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, StateNoAuth, p.State())

	p = NewProvider(Configuration{BearerToken: "static", GrantType: GrantClientCredentials}, nil)
	token, err = p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "static", token)
	assert.Equal(t, StateStaticBearer, p.State())

	p = NewProvider(Configuration{GrantType: GrantPassword}, nil)
	assert.Equal(t, StateOAuth2Pending, p.State())
}

func TestOAuth2Provider_ClientCredentialsForm(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, "opaque-token")
	p := NewProvider(Configuration{
		GrantType:    GrantClientCredentials,
		TokenURL:     ts.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	}, nil)

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", token)
	assert.Equal(t, StateOAuth2Cached, p.State())

	form := <-ts.forms
	assert.Equal(t, map[string][]string{
		"grant_type":    {"client_credentials"},
		"client_id":     {"id"},
		"client_secret": {"secret"},
	}, form)
}

func TestOAuth2Provider_PasswordForm(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, "opaque-token")
	p := NewProvider(Configuration{
		GrantType: GrantPassword,
		TokenURL:  ts.URL,
		Username:  "alice",
		Password:  "pw",
	}, nil)

	_, err := p.Token(context.Background())
	require.NoError(t, err)

	form := <-ts.forms
	assert.Equal(t, map[string][]string{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"pw"},
	}, form)
}

func TestOAuth2Provider_OpaqueTokenIsNeverRefreshed(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, "opaque-1", "opaque-2")
	p := NewProvider(Configuration{GrantType: GrantRefreshToken, TokenURL: ts.URL, RefreshToken: "rt"}, nil)

	for i := 0; i < 3; i++ {
		token, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "opaque-1", token)
	}
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestOAuth2Provider_RefreshesExpiredJWT(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := signedToken(t, now.Add(time.Minute))
	second := signedToken(t, now.Add(time.Hour))
	ts := newTokenServer(t, http.StatusOK, first, second)

	clock := now
	p := NewProvider(Configuration{GrantType: GrantClientCredentials, TokenURL: ts.URL, ClientID: "id", ClientSecret: "s"},
		&Options{Now: func() time.Time { return clock }})

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, token)

	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, token)
	assert.Equal(t, int32(1), ts.calls.Load())

	clock = now.Add(2 * time.Minute)
	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, token)
	assert.Equal(t, int32(2), ts.calls.Load())
}

func TestOAuth2Provider_FailedFetch(t *testing.T) {
	ts := newTokenServer(t, http.StatusUnauthorized)
	m := metrics.New()
	p := NewProvider(Configuration{GrantType: GrantClientCredentials, TokenURL: ts.URL}, &Options{Metrics: m})

	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Token generation failed with status code 401", err.Error())
	assert.True(t, server.IsType(err, server.ErrorTypeTokenFetch))
	assert.Equal(t, StateOAuth2Pending, p.State())

	_, err = p.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), ts.calls.Load())
	expected := `
# HELP openapi_to_mcp_token_fetches_total OAuth2 token endpoint calls by grant type and outcome.
# TYPE openapi_to_mcp_token_fetches_total counter
openapi_to_mcp_token_fetches_total{grant_type="client_credentials",outcome="failure"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "openapi_to_mcp_token_fetches_total"))
}

func TestOAuth2Provider_NoTokenURL(t *testing.T) {
	p := NewProvider(Configuration{GrantType: GrantPassword, Username: "u", Password: "p"}, nil)

	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrNoTokenURL, err.Error())
}

func TestOAuth2Provider_ConcurrentFetchesCollapse(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "shared"})
	}))
	defer ts.Close()

	p := NewProvider(Configuration{GrantType: GrantClientCredentials, TokenURL: ts.URL, ClientID: "id", ClientSecret: "s"}, nil)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := p.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, token := range tokens {
		assert.Equal(t, "shared", token)
	}
}

func TestOAuth2Provider_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "shared"})
	}))
	defer ts.Close()

	p := NewProvider(Configuration{GrantType: GrantClientCredentials, TokenURL: ts.URL, ClientID: "id", ClientSecret: "s"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := p.Token(ctx)
		first <- err
	}()
	time.Sleep(50 * time.Millisecond)

	second := make(chan string, 1)
	go func() {
		token, err := p.Token(context.Background())
		assert.NoError(t, err)
		second <- token
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Equal(t, "shared", <-second)
	assert.NoError(t, <-first)
	assert.Equal(t, StateOAuth2Cached, p.State())
}

func TestOptions_NoClientTimeout(t *testing.T) {
	var opts *Options
	assert.Zero(t, opts.withDefaults().HTTPClient.Timeout)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := tokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = tokenExpiry("not-a-jwt")
	assert.False(t, ok)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, ok = tokenExpiry(noExp)
	assert.False(t, ok)
	assert.False(t, expired(noExp, time.Now()))
}

func TestDescribe_MasksSecrets(t *testing.T) {
	fields := Describe(Configuration{BearerToken: "abcdefghijklmnop"})
	require.Len(t, fields, 2)
	assert.Equal(t, "abcd********mnop", fields[1].String)
}
