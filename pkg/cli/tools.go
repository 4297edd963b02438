package cli

import (
	"github.com/spf13/cobra"

	"github.com/fhoering/openapi-to-mcp/pkg/openapi2mcp"
)

// ToolsCommand prints the catalog the server would expose.
func ToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools [openapi]",
		Short: "List the tools built from the document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args)
			if err != nil {
				return err
			}
			openapi2mcp.PrintToolSummary(cmd.OutOrStdout(), a.catalog)
			return nil
		},
	}
}
