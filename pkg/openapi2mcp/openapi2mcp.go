// Package openapi2mcp exposes the operations of an OpenAPI 3.x document as
// MCP (Model Context Protocol) tools and proxies tool calls to the API.
//
// The pipeline has four steps: normalize the document's server URLs, resolve
// each operation's tool name and description, build the immutable tool
// catalog with one JSON input schema per operation, and serve the catalog
// over stdio or streamable HTTP, turning every tool call into an HTTP request.
//
// # Quick Start
//
//	doc, err := loader.NewSpecLoader().Load(ctx, "petstore3.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	openapi2mcp.Normalize(doc, "https://petstore3.swagger.io")
//	if err := openapi2mcp.ValidateServerURL(doc); err != nil {
//		log.Fatal(err)
//	}
//	catalog := openapi2mcp.BuildCatalog(doc, &openapi2mcp.ToolGenOptions{})
//	provider := auth.NewProvider(auth.Configuration{}.Resolve(doc), nil)
//	proxy := openapi2mcp.NewProxy(catalog, provider, nil)
//	srv := openapi2mcp.NewServer(doc, catalog, proxy, &openapi2mcp.ServerOptions{})
//	openapi2mcp.ServeStdio(ctx, srv, os.Stdin, os.Stdout)
//
// # Document extensions
//
// Operations can carry x-mcp-tool-name, x-mcp-tool-description and
// x-mcp-tool-enabled. The info object can carry x-mcp-instructions, which is
// advertised as the server instructions.
//
// # Tool inputs
//
// The input schema of a tool merges, in order, the application/json request
// body under the "body" property, the path item parameters and the operation
// parameters. Header and cookie parameters are not exposed.
//
// # Authentication
//
// Every outgoing request carries the bearer token of an auth.Provider: a
// static token, or an OAuth2 token fetched and cached per process (stdio) or
// per session (HTTP). On the HTTP transport, request headers override the
// command line configuration for their session.
package openapi2mcp

import (
	"go.uber.org/zap"

	"github.com/fhoering/openapi-to-mcp/pkg/metrics"
)

// Version is advertised in the User-Agent of proxied requests.
var Version = "1.0.0"

// ToolGenOptions controls tool generation.
//
// NamingStrategy: where tool names come from (default NamingDefault)
// Logger: receives omitted operations and build stats (default no-op)
// Metrics: optional collectors, nil disables them
type ToolGenOptions struct {
	NamingStrategy NamingStrategy
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

func (o *ToolGenOptions) withDefaults() *ToolGenOptions {
	out := ToolGenOptions{}
	if o != nil {
		out = *o
	}
	if out.NamingStrategy == "" {
		out.NamingStrategy = NamingDefault
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return &out
}
