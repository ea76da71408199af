package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// maxLineBytes bounds one stdio JSON-RPC message.
const maxLineBytes = 4 << 20

// Server exposes an Executor's tools over MCP JSON-RPC, either as
// newline-delimited messages on stdio or as an http.Handler.
type Server struct {
	exec    schema.Executor
	name    string
	version string
}

// NewServer returns a Server for exec.
func NewServer(exec schema.Executor, version string) *Server {
	return &Server{exec: exec, name: "metadolphin", version: version}
}

// Handle processes one JSON-RPC message. The bool is false for
// notifications, which get no reply.
func (s *Server) Handle(ctx context.Context, raw []byte) ([]byte, bool) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return s.encode(rpcResponse{ID: json.RawMessage("null"), Error: &rpcError{Code: codeParseError, Message: "parse error"}}), true
	}
	if req.isNotification() {
		slog.Debug("MCP notification", "method", req.Method)
		return nil, false
	}

	resp := rpcResponse{ID: req.ID}
	result, err := s.dispatch(ctx, req)
	if err != nil {
		rerr, ok := err.(*rpcError)
		if !ok {
			rerr = &rpcError{Code: codeInvalidRequest, Message: err.Error()}
		}
		resp.Error = rerr
	} else {
		resp.Result = result
	}
	return s.encode(resp), true
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) (any, error) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": s.name, "version": s.version},
		}, nil

	case "ping":
		return map[string]any{}, nil

	case "tools/list":
		defs, err := s.exec.Definitions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		out := listToolsResult{Tools: make([]toolInfo, 0, len(defs))}
		for _, d := range defs {
			out.Tools = append(out.Tools, toolInfo{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
		}
		return out, nil

	case "tools/call":
		var params callToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			return nil, &rpcError{Code: codeInvalidParams, Message: "tools/call requires a tool name"}
		}
		text, err := s.exec.Execute(ctx, params.Name, params.Arguments)
		if err != nil {
			return callToolResult{Content: []contentBlock{{Type: "text", Text: "Error: " + err.Error()}}, IsError: true}, nil
		}
		return callToolResult{Content: []contentBlock{{Type: "text", Text: text}}}, nil
	}
	return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
}

func (s *Server) encode(resp rpcResponse) []byte {
	resp.JSONRPC = "2.0"
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(rpcResponse{JSONRPC: "2.0", ID: resp.ID, Error: &rpcError{Code: codeInvalidRequest, Message: err.Error()}})
	}
	return data
}

// ServeStdio reads newline-delimited requests from r and writes replies to w
// until r is exhausted or ctx is cancelled. Requests are handled
// concurrently; replies may arrive out of order and are matched by id.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		wg  sync.WaitGroup
		wmu sync.Mutex
	)
	defer wg.Wait()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, ok := s.Handle(ctx, line)
			if !ok {
				return
			}
			wmu.Lock()
			defer wmu.Unlock()
			if _, err := fmt.Fprintf(w, "%s\n", out); err != nil {
				slog.Error("MCP: write reply failed", "err", err)
			}
		}()
	}
	return scanner.Err()
}

// ServeHTTP implements http.Handler: one JSON-RPC message per POST.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLineBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	out, ok := s.Handle(r.Context(), body)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}
