package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/fhoering/openapi-to-mcp/pkg/openapi2mcp"
)

const replHelp = `Commands:
  list                         list tools
  schema <tool>                print the input schema of a tool
  call <tool> [key=value ...]  call a tool; values are read by the property type,
                               objects and arrays as JSON
  help                         this text
  exit                         leave`

// ReplCommand calls tools interactively against the live API.
func ReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl [openapi]",
		Short: "Call the document's tools from an interactive prompt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			r := &repl{catalog: a.catalog, proxy: a.newProxy()}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "openapi-to-mcp> ",
				AutoComplete:    r.completer(),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			fmt.Fprintln(rl.Stdout(), replHelp)
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				if r.exec(cmd.Context(), line, rl.Stdout()) {
					return nil
				}
			}
		},
	}
}

type repl struct {
	catalog *openapi2mcp.Catalog
	proxy   *openapi2mcp.Proxy
}

func (r *repl) completer() *readline.PrefixCompleter {
	var names []readline.PrefixCompleterInterface
	for _, tool := range r.catalog.Tools() {
		names = append(names, readline.PcItem(tool.Name))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("list"),
		readline.PcItem("schema", names...),
		readline.PcItem("call", names...),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// exec runs one input line and reports whether the session should end.
func (r *repl) exec(ctx context.Context, line string, out io.Writer) bool {
	words := splitWords(strings.TrimSpace(line))
	if len(words) == 0 {
		return false
	}

	switch words[0] {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintln(out, replHelp)
	case "list":
		openapi2mcp.PrintToolSummary(out, r.catalog)
	case "schema":
		if len(words) != 2 {
			fmt.Fprintln(out, "usage: schema <tool>")
			return false
		}
		tool, ok := r.catalog.Lookup(words[1])
		if !ok {
			fmt.Fprintf(out, "Tool %s not found\n", words[1])
			return false
		}
		pretty, err := json.MarshalIndent(json.RawMessage(tool.Schema), "", "  ")
		if err != nil {
			fmt.Fprintln(out, string(tool.Schema))
			return false
		}
		fmt.Fprintln(out, string(pretty))
	case "call":
		if len(words) < 2 {
			fmt.Fprintln(out, "usage: call <tool> [key=value ...]")
			return false
		}
		r.call(ctx, words[1], words[2:], out)
	default:
		fmt.Fprintf(out, "unknown command %q, try help\n", words[0])
	}
	return false
}

func (r *repl) call(ctx context.Context, name string, pairs []string, out io.Writer) {
	tool, ok := r.catalog.Lookup(name)
	if !ok {
		fmt.Fprintf(out, "Tool %s not found\n", name)
		return
	}

	input, err := parseArguments(tool, pairs)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	args, err := openapi2mcp.OrderArguments(tool, input)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}

	result := r.proxy.Call(ctx, name, args)
	if result.IsError {
		fmt.Fprint(out, "error: ")
	}
	fmt.Fprintln(out, strings.Join(result.Content, "\n"))
}

// parseArguments reads key=value pairs, converting each value to the type of
// its input schema property.
func parseArguments(tool openapi2mcp.ToolDescriptor, pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		var schema json.RawMessage
		if tool.InputSchema != nil {
			schema, _ = tool.InputSchema.Property(key)
		}
		v, err := parseValue(raw, schema)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		args[key] = v
	}
	return args, nil
}

// parseValue converts raw to the type named by schema. Untyped values are
// read as JSON when they parse, as strings otherwise.
func parseValue(raw string, schema json.RawMessage) (any, error) {
	raw = unquote(raw)

	var typed struct {
		Type any `json:"type"`
	}
	if len(schema) > 0 {
		_ = json.Unmarshal(schema, &typed)
	}
	kind, _ := typed.Type.(string)

	switch kind {
	case "string":
		return raw, nil
	case "integer":
		return cast.ToInt64E(raw)
	case "number":
		return cast.ToFloat64E(raw)
	case "boolean":
		return cast.ToBoolE(raw)
	case "array", "object":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			if kind == "array" {
				return strings.Split(raw, ","), nil
			}
			return nil, fmt.Errorf("invalid JSON %s: %w", kind, err)
		}
		return v, nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}
	return raw, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// splitWords splits on spaces outside quotes and outside JSON brackets, so
// body={"name": "Rex"} stays one word.
func splitWords(line string) []string {
	var (
		words []string
		cur   strings.Builder
		quote byte
		depth int
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(line) {
				cur.WriteByte(c)
				i++
				c = line[i]
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{' || c == '[':
			depth++
		case (c == '}' || c == ']') && depth > 0:
			depth--
		case (c == ' ' || c == '\t') && depth == 0:
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return words
}
