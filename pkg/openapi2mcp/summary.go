// summary.go
package openapi2mcp

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// PrintToolSummary prints a human-readable summary of the catalog.
//
// The output lists every tool with its "<VERB> <path>" title, then the
// operations left out of the catalog and why.
//
// Example usage:
//
//	catalog := openapi2mcp.BuildCatalog(doc, nil)
//	openapi2mcp.PrintToolSummary(os.Stdout, catalog)
//
// Output example:
//
//	Total tools: 2
//	  addPet       POST /pet
//	  getPetById   GET /pet/{petId}
//	Omitted operations: 1
//	  POST /invalid-tool-name: invalid tool name: with space
func PrintToolSummary(w io.Writer, c *Catalog) {
	fmt.Fprintf(w, "Total tools: %d\n", c.Len())
	tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
	for _, tool := range c.Tools() {
		fmt.Fprintf(tw, "  %s\t%s\n", tool.Name, tool.Title())
	}
	tw.Flush()

	omitted := c.Omitted()
	if len(omitted) == 0 {
		return
	}
	fmt.Fprintf(w, "Omitted operations: %d\n", len(omitted))
	for _, op := range omitted {
		fmt.Fprintf(w, "  %s %s: %s\n", op.Method, op.Path, op.Reason)
	}
}
