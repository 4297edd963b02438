package openapi2mcp

import (
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/fhoering/openapi-to-mcp/pkg/loader"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// ErrServerURL is the startup failure for a document without a usable server.
const ErrServerURL = "The server URL cannot be inferred or is not absolute. Please use the HostOverride option"

// Normalize rewrites the document's server URLs in place.
//
// Relative URLs are prefixed with hostOverride, or with the host the document
// was fetched from. Absolute URLs keep their path, query and fragment but take
// the scheme and authority of hostOverride when one is given. A document
// without servers gets a single server at hostOverride (or the source host).
//
// Example usage:
//
//	doc, _ := loader.NewSpecLoader().Load(ctx, "petstore3.yaml")
//	openapi2mcp.Normalize(doc, "https://petstore3.swagger.io")
//	// doc.Doc.Servers[0].URL == "https://petstore3.swagger.io/api/v3"
func Normalize(d *loader.Document, hostOverride string) {
	hostOverride = strings.TrimSuffix(hostOverride, "/")

	if len(d.Doc.Servers) == 0 {
		base := hostOverride
		if base == "" {
			base = d.SourceHost
		}
		d.Doc.Servers = openapi3.Servers{&openapi3.Server{URL: base}}
		return
	}

	for _, srv := range d.Doc.Servers {
		if srv == nil {
			continue
		}
		srv.URL = normalizeServerURL(expandServerVariables(srv), hostOverride, d.SourceHost)
	}
}

func normalizeServerURL(raw, hostOverride, sourceHost string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if !u.IsAbs() {
		prefix := hostOverride
		if prefix == "" {
			prefix = sourceHost
		}
		if prefix == "" {
			return raw
		}
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		return prefix + raw
	}

	if hostOverride == "" {
		return raw
	}
	rest := u.EscapedPath()
	if u.RawQuery != "" {
		rest += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		rest += "#" + u.EscapedFragment()
	}
	return hostOverride + rest
}

// expandServerVariables substitutes each {variable} with its default.
func expandServerVariables(srv *openapi3.Server) string {
	out := srv.URL
	for name, v := range srv.Variables {
		if v == nil {
			continue
		}
		out = strings.ReplaceAll(out, "{"+name+"}", v.Default)
	}
	return out
}

// PrimaryServerURL is the URL of the first server, empty if there is none.
func PrimaryServerURL(d *loader.Document) string {
	if len(d.Doc.Servers) == 0 || d.Doc.Servers[0] == nil {
		return ""
	}
	return d.Doc.Servers[0].URL
}

// ValidateServerURL fails when the primary server URL is missing or not
// absolute. The server cannot proxy anything in that case.
func ValidateServerURL(d *loader.Document) error {
	raw := PrimaryServerURL(d)
	u, err := url.Parse(raw)
	if raw == "" || err != nil || !u.IsAbs() || u.Host == "" {
		return server.NewError(server.ErrorTypeDocumentValidation, ErrServerURL, raw)
	}
	return nil
}
