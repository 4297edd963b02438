// server.go
package openapi2mcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/fhoering/openapi-to-mcp/pkg/auth"
	"github.com/fhoering/openapi-to-mcp/pkg/loader"
	"github.com/fhoering/openapi-to-mcp/pkg/memory"
	"github.com/fhoering/openapi-to-mcp/pkg/metrics"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// ServerOptions controls the MCP server.
//
// Instructions: overrides the document's x-mcp-instructions
// Hooks: mcp-go hooks, see RemoveSessionsOnUnregister. NewServer adds its own.
// Logger: default no-op
type ServerOptions struct {
	Instructions string
	Hooks        *mcpserver.Hooks
	Logger       *zap.Logger
}

// ServerInfo returns the name and version the server advertises: the
// document's title and version, "API" and "0.0" when missing.
func ServerInfo(d *loader.Document) (name, version string) {
	name, version = "API", "0.0"
	if d != nil && d.Doc != nil && d.Doc.Info != nil {
		if d.Doc.Info.Title != "" {
			name = d.Doc.Info.Title
		}
		if d.Doc.Info.Version != "" {
			version = d.Doc.Info.Version
		}
	}
	return name, version
}

// NewServer creates a new MCP server, registers every catalog tool, and
// returns the server.
//
// Example usage for NewServer:
//
//	catalog := openapi2mcp.BuildCatalog(doc, nil)
//	proxy := openapi2mcp.NewProxy(catalog, provider, nil)
//	srv := openapi2mcp.NewServer(doc, catalog, proxy, &openapi2mcp.ServerOptions{})
//	openapi2mcp.ServeStdio(ctx, srv, os.Stdin, os.Stdout)
func NewServer(d *loader.Document, catalog *Catalog, proxy *Proxy, opts *ServerOptions) *mcpserver.MCPServer {
	if opts == nil {
		opts = &ServerOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	name, version := ServerInfo(d)
	serverOpts := []mcpserver.ServerOption{mcpserver.WithToolCapabilities(false), mcpserver.WithRecovery()}
	instructions := opts.Instructions
	if instructions == "" && d != nil {
		instructions = Instructions(d.Doc)
	}
	if instructions != "" {
		serverOpts = append(serverOpts, mcpserver.WithInstructions(instructions))
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = &mcpserver.Hooks{}
	}
	hooks.AddBeforeCallTool(restoreRawArguments)
	serverOpts = append(serverOpts, mcpserver.WithHooks(hooks))

	srv := mcpserver.NewMCPServer(name, version, serverOpts...)
	for _, tool := range catalog.Tools() {
		mcpTool := mcp.NewToolWithRawSchema(tool.Name, tool.Description, tool.Schema)
		mcpTool.Annotations.Title = tool.Title()
		srv.AddTool(mcpTool, toolHandler(tool, proxy))
	}
	logger.Info("Registered tools", zap.String("server", name), zap.String("version", version), zap.Int("tools", catalog.Len()))
	return srv
}

func toolHandler(tool ToolDescriptor, proxy *Proxy) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := callArguments(tool, req)
		if err != nil {
			return toMCPResult(errorResult(err.Error())), nil
		}
		return toMCPResult(proxy.Call(ctx, tool.Name, args)), nil
	}
}

func toMCPResult(r CallResult) *mcp.CallToolResult {
	content := make([]mcp.Content, len(r.Content))
	for i, text := range r.Content {
		content[i] = mcp.NewTextContent(text)
	}
	return &mcp.CallToolResult{Content: content, IsError: r.IsError}
}

// ServeStdio serves MCP on in and out until in is closed or ctx is done.
// Tool call arguments are recorded off the stream before mcp-go decodes them.
func ServeStdio(ctx context.Context, srv *mcpserver.MCPServer, in io.Reader, out io.Writer) error {
	store := NewRawArguments()
	stdio := mcpserver.NewStdioServer(srv)
	err := stdio.Listen(WithRawArguments(ctx, store), &lineRecorder{r: in, store: store}, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RemoveSessionsOnUnregister drops a session's provider when mcp-go
// unregisters the session.
func RemoveSessionsOnUnregister(hooks *mcpserver.Hooks, sessions *auth.SessionRegistry) {
	hooks.AddOnUnregisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		sessions.Remove(session.SessionID())
	})
}

// HTTPOptions configures the streamable HTTP transport.
//
// Addr: listen address, e.g. ":8000"
// EndpointPath: where MCP is mounted (default /mcp)
// Auth: process-wide auth configuration, overridden per session by headers
// Document: source of OAuth2 token URLs
// Sessions: per-session providers
// Catalog: reported by /health and /tools
// Metrics: served on /metrics when set
// SweepInterval: how often idle sessions are dropped (default 1m)
type HTTPOptions struct {
	Addr          string
	EndpointPath  string
	Auth          auth.Configuration
	Document      *loader.Document
	Sessions      *auth.SessionRegistry
	Catalog       *Catalog
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	SweepInterval time.Duration
}

func (o *HTTPOptions) withDefaults() *HTTPOptions {
	out := HTTPOptions{}
	if o != nil {
		out = *o
	}
	if out.EndpointPath == "" {
		out.EndpointPath = "/mcp"
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.Sessions == nil {
		out.Sessions = auth.NewSessionRegistry(func(cfg auth.Configuration) auth.Provider {
			return auth.NewProvider(cfg, &auth.Options{Logger: out.Logger, Metrics: out.Metrics})
		}, 0, out.Logger)
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = time.Minute
	}
	return &out
}

// SessionContextFunc binds each HTTP request to the provider of its MCP
// session. Override headers are resolved on top of the process configuration.
func SessionContextFunc(base auth.Configuration, d *loader.Document, sessions *auth.SessionRegistry, logger *zap.Logger) mcpserver.HTTPContextFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		sessionID := r.Header.Get(mcpserver.HeaderKeySessionID)
		cfg, err := base.WithHeaders(r.Header)
		if err != nil {
			logger.Warn("Invalid auth override headers", zap.String("session", sessionID), zap.Error(err))
			return auth.WithProvider(ctx, auth.NewFailingProvider(err))
		}
		return auth.WithProvider(ctx, sessions.Provider(sessionID, cfg.Resolve(d)))
	}
}

// NewHTTPHandler returns the HTTP handler serving MCP at EndpointPath, plus
// /health, /tools and, with metrics, /metrics.
func NewHTTPHandler(srv *mcpserver.MCPServer, opts *HTTPOptions) http.Handler {
	opts = opts.withDefaults()

	streamable := mcpserver.NewStreamableHTTPServer(srv,
		mcpserver.WithHTTPContextFunc(SessionContextFunc(opts.Auth, opts.Document, opts.Sessions, opts.Logger)),
		mcpserver.WithEndpointPath(opts.EndpointPath),
	)

	toolCount := func() int {
		if opts.Catalog == nil {
			return 0
		}
		return opts.Catalog.Len()
	}

	mux := http.NewServeMux()
	mux.Handle(opts.EndpointPath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			body, err := memory.ReadLimited(r.Context(), r.Body, 0)
			if err != nil {
				http.Error(w, "read request body error", http.StatusBadRequest)
				return
			}
			store := NewRawArguments()
			store.Record(body)
			r = r.WithContext(WithRawArguments(r.Context(), store))
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		streamable.ServeHTTP(w, r)
		if r.Method == http.MethodDelete {
			if id := r.Header.Get(mcpserver.HeaderKeySessionID); id != "" {
				opts.Sessions.Remove(id)
			}
		}
	}))
	mux.HandleFunc("/health", server.HandleHealth(toolCount, opts.Logger))
	mux.HandleFunc("/tools", server.HandleToolList(func() ([]map[string]interface{}, error) {
		return toolList(opts.Catalog), nil
	}, opts.Logger))
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}
	return mux
}

func toolList(c *Catalog) []map[string]interface{} {
	list := []map[string]interface{}{}
	if c == nil {
		return list
	}
	for _, tool := range c.Tools() {
		list = append(list, map[string]interface{}{
			"name":        tool.Name,
			"title":       tool.Title(),
			"description": tool.Description,
			"url":         tool.AbsolutePath,
		})
	}
	return list
}

// ServeStreamableHTTP serves MCP over streamable HTTP until ctx is done, then
// shuts down gracefully.
func ServeStreamableHTTP(ctx context.Context, srv *mcpserver.MCPServer, opts *HTTPOptions) error {
	opts = opts.withDefaults()

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewHTTPHandler(srv, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go opts.Sessions.Run(sweepCtx, opts.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		opts.Logger.Info("Serving MCP over streamable HTTP",
			zap.String("url", GetStreamableHTTPURL(opts.Addr, opts.EndpointPath)))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		opts.Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// GetStreamableHTTPURL returns the URL for the Streamable HTTP endpoint of the MCP server.
// addr is the address the server is listening on (e.g., ":8080", "0.0.0.0:8080", "localhost:8080").
// basePath is the base HTTP path (e.g., "/mcp").
// Example usage:
//
//	url := openapi2mcp.GetStreamableHTTPURL(":8080", "/custom-base")
//	// Returns: "http://localhost:8080/custom-base"
func GetStreamableHTTPURL(addr, basePath string) string {
	if basePath == "" {
		basePath = "/mcp"
	}
	host := normalizeAddrToHost(addr)
	return "http://" + host + basePath
}

// normalizeAddrToHost converts an addr (as used by net/http) to a host:port string suitable for URLs.
// If addr is just ":8080", returns "localhost:8080". If it already includes a host, returns as is.
func normalizeAddrToHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost"
	}
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
