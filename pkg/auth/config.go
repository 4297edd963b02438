package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/fhoering/openapi-to-mcp/pkg/loader"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// GrantType is an OAuth2 grant.
type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantPassword          GrantType = "password"
)

// GrantTypes lists the supported grants.
var GrantTypes = []GrantType{GrantClientCredentials, GrantRefreshToken, GrantPassword}

// ParseGrantType accepts a supported grant name. The empty string means no grant.
func ParseGrantType(s string) (GrantType, error) {
	if s == "" {
		return "", nil
	}
	for _, g := range GrantTypes {
		if string(g) == s {
			return g, nil
		}
	}
	return "", server.NewError(server.ErrorTypeConfiguration,
		fmt.Sprintf("Unsupported OAuth2 grant type %s", s),
		"expected one of client_credentials, refresh_token, password")
}

// Override headers accepted on the HTTP transport.
const (
	HeaderBearerToken        = "mcp-bearer-token"
	HeaderOAuth2GrantType    = "mcp-oauth-2-grant-type"
	HeaderOAuth2TokenURL     = "mcp-oauth-2-token-url"
	HeaderOAuth2ClientID     = "mcp-oauth-2-client-id"
	HeaderOAuth2ClientSecret = "mcp-oauth-2-client-secret"
	HeaderOAuth2RefreshToken = "mcp-oauth-2-refresh-token"
	HeaderOAuth2Username     = "mcp-oauth-2-username"
	HeaderOAuth2Password     = "mcp-oauth-2-password"
)

// ErrNoTokenURL is reported when an OAuth2 grant has nowhere to fetch from.
const ErrNoTokenURL = "No token url specified. Add one in your OpenApi document or provide one as CLI option"

// Configuration is the resolved auth setup of a process or HTTP session.
type Configuration struct {
	BearerToken  string
	GrantType    GrantType
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Username     string
	Password     string
}

// Mode names the provider variant the configuration selects.
func (c Configuration) Mode() Mode {
	switch {
	case c.BearerToken != "":
		return ModeStaticBearer
	case c.GrantType != "":
		return ModeOAuth2
	default:
		return ModeNone
	}
}

// Fingerprint identifies configurations that can share a token cache.
func (c Configuration) Fingerprint() string {
	h := sha256.New()
	for _, v := range []string{c.BearerToken, string(c.GrantType), c.TokenURL, c.ClientID,
		c.ClientSecret, c.RefreshToken, c.Username, c.Password} {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WithHeaders applies the per-request override headers on top of c. A header
// that is present wins over the configured value, even when empty.
func (c Configuration) WithHeaders(h http.Header) (Configuration, error) {
	if h == nil {
		return c, nil
	}
	override := func(target *string, name string) {
		if values, ok := h[http.CanonicalHeaderKey(name)]; ok && len(values) > 0 {
			*target = values[0]
		}
	}

	if values, ok := h["Authorization"]; ok && len(values) > 0 {
		c.BearerToken = bearerValue(values[0])
	}
	override(&c.BearerToken, HeaderBearerToken)

	grant := string(c.GrantType)
	override(&grant, HeaderOAuth2GrantType)
	g, err := ParseGrantType(grant)
	if err != nil {
		return c, err
	}
	c.GrantType = g

	override(&c.TokenURL, HeaderOAuth2TokenURL)
	override(&c.ClientID, HeaderOAuth2ClientID)
	override(&c.ClientSecret, HeaderOAuth2ClientSecret)
	override(&c.RefreshToken, HeaderOAuth2RefreshToken)
	override(&c.Username, HeaderOAuth2Username)
	override(&c.Password, HeaderOAuth2Password)
	return c, nil
}

func bearerValue(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Resolve fills a missing token URL from the document's first OAuth2 security
// scheme that declares the flow matching the grant.
func (c Configuration) Resolve(d *loader.Document) Configuration {
	if c.TokenURL != "" || c.GrantType == "" || d == nil {
		return c
	}
	c.TokenURL = DocumentTokenURL(d, c.GrantType)
	return c
}

// DocumentTokenURL finds the token URL a grant uses in the document:
// clientCredentials for client_credentials, authorizationCode for
// refresh_token and password for password.
func DocumentTokenURL(d *loader.Document, grant GrantType) string {
	if d == nil || d.Doc == nil || d.Doc.Components == nil {
		return ""
	}
	schemes := d.Doc.Components.SecuritySchemes
	for _, name := range schemeNames(d) {
		ref := schemes[name]
		if ref == nil || ref.Value == nil || ref.Value.Type != "oauth2" || ref.Value.Flows == nil {
			continue
		}
		var flow *openapi3.OAuthFlow
		switch grant {
		case GrantClientCredentials:
			flow = ref.Value.Flows.ClientCredentials
		case GrantRefreshToken:
			flow = ref.Value.Flows.AuthorizationCode
		case GrantPassword:
			flow = ref.Value.Flows.Password
		}
		if flow != nil && flow.TokenURL != "" {
			return flow.TokenURL
		}
	}
	return ""
}

// schemeNames returns the scheme names in declaration order, followed by any
// the order scan missed.
func schemeNames(d *loader.Document) []string {
	names := append([]string(nil), d.SecuritySchemeOrder...)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	var rest []string
	for n := range d.Doc.Components.SecuritySchemes {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
