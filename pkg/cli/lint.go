package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fhoering/openapi-to-mcp/pkg/auth"
	"github.com/fhoering/openapi-to-mcp/pkg/loader"
	"github.com/fhoering/openapi-to-mcp/pkg/logging"
	"github.com/fhoering/openapi-to-mcp/pkg/openapi2mcp"
)

// LintCommand prints every problem found in the document and fails when one
// of them is an error.
func LintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lint [openapi]",
		Short: "Check the document for problems",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			logger := logging.Must(cfg.Verbose)
			authCfg, err := authConfiguration(cfg)
			if err != nil {
				return err
			}

			doc, err := loadDocument(cmd.Context(), cfg, authCfg, logger)
			if err != nil {
				return err
			}
			openapi2mcp.Normalize(doc, cfg.HostOverride)
			if err := openapi2mcp.ValidateServerURL(doc); err != nil {
				doc.AddDiagnostic(loader.SeverityError, "%s", err.Error())
			}
			openapi2mcp.Lint(doc)
			if authCfg.GrantType != "" && authCfg.Resolve(doc).TokenURL == "" {
				doc.AddDiagnostic(loader.SeverityWarning, "%s", auth.ErrNoTokenURL)
			}

			out := cmd.OutOrStdout()
			for _, diag := range doc.Diagnostics {
				fmt.Fprintln(out, diag.String())
			}
			if n := len(doc.Errors()); n > 0 {
				fmt.Fprintf(out, "%d error(s) found\n", n)
				return errReported
			}
			fmt.Fprintln(out, "No errors found")
			return nil
		},
	}
}
