package cli

import (
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/fhoering/openapi-to-mcp/pkg/auth"
	"github.com/fhoering/openapi-to-mcp/pkg/openapi2mcp"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// ServeCommand serves the catalog over stdio or streamable HTTP.
func ServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [openapi]",
		Short: "Serve the document's operations as MCP tools",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}
	server.BindServeFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	opts := &openapi2mcp.ServerOptions{Instructions: a.cfg.Instructions, Logger: a.logger}
	proxy := a.newProxy()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Transport == server.TransportStdio {
		return openapi2mcp.ServeStdio(ctx, openapi2mcp.NewServer(a.doc, a.catalog, proxy, opts), os.Stdin, os.Stdout)
	}

	sessions := auth.NewSessionRegistry(func(cfg auth.Configuration) auth.Provider {
		return auth.NewProvider(cfg, &auth.Options{Logger: a.logger, Metrics: a.metrics})
	}, auth.DefaultSessionTTL, a.logger)
	opts.Hooks = &mcpserver.Hooks{}
	openapi2mcp.RemoveSessionsOnUnregister(opts.Hooks, sessions)

	srv := openapi2mcp.NewServer(a.doc, a.catalog, proxy, opts)
	return openapi2mcp.ServeStreamableHTTP(ctx, srv, &openapi2mcp.HTTPOptions{
		Addr:         a.cfg.Addr(),
		EndpointPath: a.cfg.EndpointPath,
		Auth:         a.auth,
		Document:     a.doc,
		Sessions:     sessions,
		Catalog:      a.catalog,
		Metrics:      a.metrics,
		Logger:       a.logger,
	})
}
