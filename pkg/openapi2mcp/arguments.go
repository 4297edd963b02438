package openapi2mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// RawArguments keeps the arguments of tools/call requests exactly as they
// arrived on the wire, keyed by JSON-RPC id, until the call takes them.
// mcp-go decodes arguments into map[string]any, which loses integers above
// 2^53 and the key order.
type RawArguments struct {
	mu      sync.Mutex
	pending map[string]json.RawMessage
}

// NewRawArguments returns an empty store.
func NewRawArguments() *RawArguments {
	return &RawArguments{pending: map[string]json.RawMessage{}}
}

// Record remembers the arguments of message when it is a tools/call request
// or a batch holding some. Anything else is ignored.
func (r *RawArguments) Record(message []byte) {
	message = bytes.TrimSpace(message)
	if len(message) == 0 {
		return
	}
	if message[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(message, &batch); err != nil {
			return
		}
		for _, m := range batch {
			r.recordOne(m)
		}
		return
	}
	r.recordOne(message)
}

func (r *RawArguments) recordOne(message []byte) {
	var msg struct {
		ID     mcp.RequestId `json:"id"`
		Method string        `json:"method"`
		Params struct {
			Arguments json.RawMessage `json:"arguments"`
		} `json:"params"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Method != string(mcp.MethodToolsCall) || msg.ID.IsNil() || len(msg.Params.Arguments) == 0 {
		return
	}

	r.mu.Lock()
	r.pending[msg.ID.String()] = bytes.Clone(msg.Params.Arguments)
	r.mu.Unlock()
}

// Take returns and forgets the arguments recorded for the request id.
func (r *RawArguments) Take(id any) (json.RawMessage, bool) {
	key := requestKey(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	return raw, ok
}

// Len returns the number of arguments not taken yet.
func (r *RawArguments) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// requestKey matches the id mcp-go hands to hooks (a decoded JSON value) with
// the one recorded from the wire.
func requestKey(id any) string {
	switch v := id.(type) {
	case mcp.RequestId:
		return v.String()
	case *mcp.RequestId:
		if v == nil {
			return ""
		}
		return v.String()
	default:
		return mcp.NewRequestId(id).String()
	}
}

type rawArgumentsKey struct{}

// WithRawArguments attaches store to ctx for the tool calls handled under it.
func WithRawArguments(ctx context.Context, store *RawArguments) context.Context {
	return context.WithValue(ctx, rawArgumentsKey{}, store)
}

func rawArgumentsFrom(ctx context.Context) *RawArguments {
	store, _ := ctx.Value(rawArgumentsKey{}).(*RawArguments)
	return store
}

// restoreRawArguments swaps the decoded arguments of a call for the recorded
// wire text.
func restoreRawArguments(ctx context.Context, id any, req *mcp.CallToolRequest) {
	store := rawArgumentsFrom(ctx)
	if store == nil {
		return
	}
	if raw, ok := store.Take(id); ok {
		req.Params.Arguments = raw
	}
}

// lineRecorder passes a newline delimited JSON-RPC stream through, recording
// each complete line before the reader behind it sees the line.
type lineRecorder struct {
	r     io.Reader
	store *RawArguments
	buf   []byte
}

func (l *lineRecorder) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if n > 0 {
		l.buf = append(l.buf, p[:n]...)
		for {
			i := bytes.IndexByte(l.buf, '\n')
			if i < 0 {
				break
			}
			l.store.Record(l.buf[:i])
			l.buf = l.buf[i+1:]
		}
		if len(l.buf) == 0 {
			l.buf = nil
		}
	}
	if err == io.EOF && len(l.buf) > 0 {
		l.store.Record(l.buf)
		l.buf = nil
	}
	return n, err
}

// DecodeArguments splits a JSON object of call arguments into its members, in
// the order they were written, keeping each value's text as is. A repeated
// name keeps its first position and its last value. null and empty input
// give no arguments.
func DecodeArguments(raw json.RawMessage) ([]Argument, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("arguments must be a JSON object")
	}

	var args []Argument
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		name, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		if i, ok := index[name]; ok {
			args[i].Value = value
			continue
		}
		index[name] = len(args)
		args = append(args, Argument{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}

// callArguments returns the arguments of req: the wire text when it was
// recorded, the decoded map in input schema order otherwise.
func callArguments(tool ToolDescriptor, req mcp.CallToolRequest) ([]Argument, error) {
	if raw, ok := req.Params.Arguments.(json.RawMessage); ok {
		return DecodeArguments(raw)
	}
	return OrderArguments(tool, req.GetArguments())
}
