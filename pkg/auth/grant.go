package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fhoering/openapi-to-mcp/pkg/memory"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// maxTokenResponse caps the token endpoint body.
const maxTokenResponse = 1 << 20

// tokenForm builds the token request form of the configured grant. Only the
// grant's own fields are sent, and optional ones only when set.
func tokenForm(c Configuration) url.Values {
	form := url.Values{}
	form.Set("grant_type", string(c.GrantType))
	set := func(key, value string) {
		if value != "" {
			form.Set(key, value)
		}
	}
	switch c.GrantType {
	case GrantRefreshToken:
		set("refresh_token", c.RefreshToken)
	case GrantPassword:
		set("username", c.Username)
		set("password", c.Password)
	}
	set("client_id", c.ClientID)
	set("client_secret", c.ClientSecret)
	return form
}

// missingFields lists the fields the grant cannot do without.
func missingFields(c Configuration) []string {
	var required map[string]string
	switch c.GrantType {
	case GrantClientCredentials:
		required = map[string]string{"client_id": c.ClientID, "client_secret": c.ClientSecret}
	case GrantRefreshToken:
		required = map[string]string{"refresh_token": c.RefreshToken}
	case GrantPassword:
		required = map[string]string{"username": c.Username, "password": c.Password}
	}
	var missing []string
	for _, key := range []string{"client_id", "client_secret", "refresh_token", "username", "password"} {
		if v, ok := required[key]; ok && v == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// fetchToken posts the grant form to the token endpoint and returns the
// access_token of a 200 answer.
func fetchToken(ctx context.Context, client *http.Client, c Configuration) (string, error) {
	if c.TokenURL == "" {
		return "", server.NewError(server.ErrorTypeTokenFetch, ErrNoTokenURL, "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(tokenForm(c).Encode()))
	if err != nil {
		return "", server.Wrap(err, server.ErrorTypeTokenFetch, "Token generation failed: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", server.Wrap(err, server.ErrorTypeTokenFetch, "Token generation failed: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", server.NewError(server.ErrorTypeTokenFetch,
			fmt.Sprintf("Token generation failed with status code %d", resp.StatusCode), c.TokenURL)
	}

	body, err := memory.ReadLimited(ctx, resp.Body, maxTokenResponse)
	if err != nil {
		return "", server.Wrap(err, server.ErrorTypeTokenFetch, "Token generation failed: "+err.Error())
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", server.Wrap(err, server.ErrorTypeTokenFetch, "Token response is not JSON")
	}
	if tr.AccessToken == "" {
		return "", server.NewError(server.ErrorTypeTokenFetch, "Token response has no access_token", c.TokenURL)
	}
	return tr.AccessToken, nil
}
