package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fhoering/openapi-to-mcp/pkg/database"
	"github.com/fhoering/openapi-to-mcp/pkg/logging"
	"github.com/fhoering/openapi-to-mcp/pkg/models"
	"github.com/fhoering/openapi-to-mcp/pkg/repository"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
	"github.com/fhoering/openapi-to-mcp/pkg/services"
)

// SpecsCommand manages the documents kept in the spec store.
func SpecsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specs",
		Short: "Manage OpenAPI documents in the spec store",
	}

	importCmd := &cobra.Command{
		Use:   "import <name> <file> | import --dir <dir>",
		Short: "Store a document, or every document of a directory",
		Args: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: withSpecService(func(cmd *cobra.Command, args []string, svc *services.SpecService) error {
			out := cmd.OutOrStdout()
			if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
				imported, err := svc.ImportDir(cmd.Context(), dir)
				if err != nil {
					return err
				}
				for _, spec := range imported {
					fmt.Fprintf(out, "Imported %s\n", spec.Name)
				}
				fmt.Fprintf(out, "%d spec(s) imported\n", len(imported))
				return nil
			}
			spec, err := svc.ImportFile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Imported %s, serve it with: openapi-to-mcp db:%s\n", spec.Name, spec.Name)
			return nil
		}),
	}
	importCmd.Flags().String("dir", "", "Import every .yaml, .yml and .json file of a directory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: withSpecService(func(cmd *cobra.Command, args []string, svc *services.SpecService) error {
			activeOnly, _ := cmd.Flags().GetBool("active")
			specs, err := svc.List(cmd.Context(), activeOnly)
			if err != nil {
				return err
			}
			printSpecs(cmd, specs)
			return nil
		}),
	}
	listCmd.Flags().Bool("active", false, "Only active documents")

	seedCmd := &cobra.Command{
		Use:   "seed <manifest>",
		Short: "Store the documents listed in a YAML or JSON manifest",
		Args:  cobra.ExactArgs(1),
		RunE: withSpecService(func(cmd *cobra.Command, args []string, svc *services.SpecService) error {
			manifest, err := services.ReadSeedManifest(args[0])
			if err != nil {
				return err
			}
			seeded := svc.Seed(cmd.Context(), manifest)
			printSpecs(cmd, seeded)
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d spec(s) seeded\n", len(seeded), len(manifest.Specs))
			return nil
		}),
	}

	cmd.AddCommand(importCmd, seedCmd, listCmd,
		specNameCommand("activate", "Allow serving a stored document", (*services.SpecService).Activate),
		specNameCommand("deactivate", "Refuse serving a stored document", (*services.SpecService).Deactivate),
		specNameCommand("delete", "Remove a stored document", (*services.SpecService).Delete),
	)
	return cmd
}

type specAction func(*services.SpecService, context.Context, string) error

func specNameCommand(use, short string, action specAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withSpecService(func(cmd *cobra.Command, args []string, svc *services.SpecService) error {
			if err := action(svc, cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %sd\n", args[0], use)
			return nil
		}),
	}
}

// withSpecService opens the spec store around a command.
func withSpecService(run func(*cobra.Command, []string, *services.SpecService) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := server.Load(cmd, "")
		if err != nil {
			return err
		}
		logger := logging.Must(cfg.Verbose)
		defer logger.Sync()

		db, err := database.Open(cmd.Context(), cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		return run(cmd, args, services.NewSpecService(repository.NewOpenAPISpecRepository(db), logger))
	}
}

func printSpecs(cmd *cobra.Command, specs []*models.OpenAPISpec) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTITLE\tVERSION\tFORMAT\tSIZE\tACTIVE")
	for _, spec := range specs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\n",
			spec.Name, deref(spec.Title), deref(spec.Version), deref(spec.FileFormat), derefInt(spec.FileSize), spec.Active())
	}
	tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func derefInt(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
