// Command openapi-to-mcp exposes the operations of an OpenAPI document as MCP
// tools and proxies the tool calls to the API.
package main

import (
	"os"

	"github.com/fhoering/openapi-to-mcp/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
