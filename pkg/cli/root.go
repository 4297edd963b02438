// Package cli wires the openapi-to-mcp commands.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fhoering/openapi-to-mcp/pkg/logging"
	"github.com/fhoering/openapi-to-mcp/pkg/openapi2mcp"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// errReported is returned by commands that already told the user what
// went wrong.
var errReported = errors.New("reported")

// RootCmd returns the openapi-to-mcp command tree. Without a subcommand it
// serves the document.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "openapi-to-mcp [openapi]",
		Short:         "Expose the operations of an OpenAPI document as MCP tools",
		Version:       openapi2mcp.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	server.BindFlags(root)
	server.BindServeFlags(root)

	root.AddCommand(ServeCommand())
	root.AddCommand(LintCommand())
	root.AddCommand(ToolsCommand())
	root.AddCommand(SpecsCommand())
	root.AddCommand(ReplCommand())

	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return run(context.Background(), os.Args[1:])
}

func run(ctx context.Context, args []string) int {
	root := RootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if !errors.Is(err, errReported) {
		logger := logging.Must(false)
		var serverErr *server.ServerError
		if errors.As(err, &serverErr) {
			logger.Error(serverErr.Message, zap.String("type", string(serverErr.Type)), zap.String("details", serverErr.Details), zap.Error(err))
		} else {
			logger.Error("Command failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return 1
}
