package openapi2mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fhoering/openapi-to-mcp/pkg/auth"
	"github.com/fhoering/openapi-to-mcp/pkg/memory"
	"github.com/fhoering/openapi-to-mcp/pkg/metrics"
	"github.com/fhoering/openapi-to-mcp/pkg/server"
)

// Argument is one named tool argument holding raw JSON.
type Argument struct {
	Name  string
	Value json.RawMessage
}

// CallResult is what a tool call returns to the agent: text items and an
// error flag.
type CallResult struct {
	IsError bool
	Content []string
}

// ProxyOptions tunes a Proxy.
//
// HTTPClient: base client, its transport gets wrapped with auth (default: no timeout, the call context bounds it)
// Logger: default no-op
// Metrics: tool call collectors, nil disables them
type ProxyOptions struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Proxy turns tool calls into HTTP requests against the catalog's endpoints.
type Proxy struct {
	catalog *Catalog
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewProxy creates a proxy. provider authenticates calls whose context
// carries no provider of its own (see auth.WithProvider).
func NewProxy(catalog *Catalog, provider auth.Provider, opts *ProxyOptions) *Proxy {
	if opts == nil {
		opts = &ProxyOptions{}
	}
	client := &http.Client{}
	if opts.HTTPClient != nil {
		cp := *opts.HTTPClient
		client = &cp
	}
	client.Transport = auth.NewSecureRoundTripper(client.Transport, provider, "openapi-to-mcp/"+Version)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{catalog: catalog, client: client, logger: logger, metrics: opts.Metrics}
}

// Call executes the tool named name. Failures are reported in the result,
// never as a Go error.
func (p *Proxy) Call(ctx context.Context, name string, args []Argument) CallResult {
	start := time.Now()
	callID := uuid.NewString()
	log := p.logger.With(zap.String("call_id", callID), zap.String("tool", name))

	tool, ok := p.catalog.Lookup(name)
	if !ok {
		err := server.NewError(server.ErrorTypeUnknownTool, fmt.Sprintf("Tool %s not found", name), "")
		err.LogError(log)
		p.metrics.ObserveToolCall(name, metrics.OutcomeFailure, time.Since(start))
		return errorResult(err.Error())
	}

	uri := BuildURL(tool.AbsolutePath, args)
	var payload io.Reader
	var body json.RawMessage
	for _, a := range args {
		if a.Name == BodyProperty {
			body = a.Value
		}
	}
	if body != nil {
		payload = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, tool.Method, uri, payload)
	if err != nil {
		return p.fail(log, name, start, server.Wrap(err, server.ErrorTypeProxyCall, err.Error()))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug("Calling endpoint", zap.String("method", tool.Method), zap.String("url", uri))
	resp, err := p.client.Do(req)
	if err != nil {
		var serr *server.ServerError
		if errors.As(err, &serr) {
			return p.fail(log, name, start, serr)
		}
		return p.fail(log, name, start, server.Wrap(err, server.ErrorTypeProxyCall, err.Error()))
	}
	defer resp.Body.Close()

	respBody, err := memory.ReadLimited(ctx, resp.Body, 0)
	if err != nil {
		return p.fail(log, name, start, server.Wrap(err, server.ErrorTypeProxyCall, err.Error()))
	}

	status := http.StatusText(resp.StatusCode)
	if status == "" {
		status = strconv.Itoa(resp.StatusCode)
	}
	summary := fmt.Sprintf("Called %s %s with status %s", tool.Method, uri, status)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	outcome := metrics.OutcomeSuccess
	if !success {
		outcome = metrics.OutcomeHTTPErr
	}
	p.metrics.ObserveToolCall(name, outcome, time.Since(start))
	log.Debug("Endpoint answered",
		zap.String("method", tool.Method),
		zap.String("url", uri),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.ByteString("response", respBody))

	return CallResult{IsError: !success, Content: []string{summary, string(respBody)}}
}

func (p *Proxy) fail(log *zap.Logger, name string, start time.Time, err *server.ServerError) CallResult {
	err.LogError(log)
	p.metrics.ObserveToolCall(name, metrics.OutcomeFailure, time.Since(start))
	return errorResult(err.Message)
}

func errorResult(msg string) CallResult {
	return CallResult{IsError: true, Content: []string{msg}}
}

// OrderArguments turns already decoded call arguments into a list following
// the tool's input schema order. Arguments the schema does not declare follow,
// sorted by name. Calls that arrive through ServeStdio or NewHTTPHandler use
// DecodeArguments on the wire text instead.
func OrderArguments(tool ToolDescriptor, args map[string]any) ([]Argument, error) {
	out := make([]Argument, 0, len(args))
	seen := make(map[string]bool, len(args))
	add := func(name string) error {
		v, ok := args[name]
		if !ok || seen[name] {
			return nil
		}
		seen[name] = true
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("argument %s: %w", name, err)
		}
		out = append(out, Argument{Name: name, Value: raw})
		return nil
	}

	if tool.InputSchema != nil {
		for _, name := range tool.InputSchema.Properties() {
			if err := add(name); err != nil {
				return nil, err
			}
		}
	}
	var rest []string
	for name := range args {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		if err := add(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BuildURL substitutes {name} placeholders of path with their argument and
// appends every other non-body argument as a query parameter, in argument
// order. Null query values are dropped.
//
// Example:
//
//	BuildURL("http://example.com/endpoint/{urlParam}", args)
//	// http://example.com/endpoint/id?strValue=my_string&intValue=5&list=value1,value2
func BuildURL(path string, args []Argument) string {
	var query []string
	for _, a := range args {
		if a.Name == BodyProperty {
			continue
		}
		placeholder := "{" + a.Name + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, escapeComponent(valueText(a.Value), false))
			continue
		}
		value, ok := queryValue(a.Value)
		if !ok {
			continue
		}
		query = append(query, escapeComponent(a.Name, false)+"="+value)
	}
	if len(query) == 0 {
		return path
	}
	return path + "?" + strings.Join(query, "&")
}

// valueText is the literal text of a JSON string, the compact JSON text of
// anything else.
func valueText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// queryValue encodes a query value. An array of scalars becomes the comma
// separated list of its elements. ok is false for null.
func queryValue(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil && allScalars(items) {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = escapeComponent(valueText(item), true)
			}
			return strings.Join(parts, ","), true
		}
	}
	return escapeComponent(valueText(raw), true), true
}

func allScalars(items []json.RawMessage) bool {
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && (item[0] == '[' || item[0] == '{') {
			return false
		}
	}
	return true
}

const upperHex = "0123456789ABCDEF"

// escapeComponent percent-encodes everything outside the RFC 3986 unreserved
// set, leaving commas alone when keepComma is set.
func escapeComponent(s string, keepComma bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || (keepComma && c == ',') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
