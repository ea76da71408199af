package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/metadolphin/internal/config"
	"github.com/crystaldolphin/metadolphin/internal/tools"
)

type echoTool struct {
	name string
	err  error
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes " + e.name }
func (e *echoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"table_name":{"type":"string"}}}`)
}

func (e *echoTool) Execute(_ context.Context, args map[string]any) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	name, _ := args["table_name"].(string)
	return "Found `" + name + "`", nil
}

func newTestServer() *Server {
	list := tools.NewToolList(
		&echoTool{name: "search_table"},
		&echoTool{name: "get_lineage", err: errors.New("upstream down")},
	)
	return NewServer(tools.NewExecutor(list), "test")
}

func call(t *testing.T, s *Server, req string) map[string]any {
	t.Helper()
	out, ok := s.Handle(context.Background(), []byte(req))
	require.True(t, ok)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
	return resp
}

func TestServer_Initialize(t *testing.T) {
	resp := call(t, newTestServer(), `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	assert.EqualValues(t, 1, resp["id"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, protocolVersion, result["protocolVersion"])
	assert.Equal(t, "metadolphin", result["serverInfo"].(map[string]any)["name"])
}

func TestServer_ToolsList(t *testing.T) {
	resp := call(t, newTestServer(), `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	assert.Equal(t, "a", resp["id"])
	list := resp["result"].(map[string]any)["tools"].([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "get_lineage", first["name"])
	assert.Equal(t, "object", first["inputSchema"].(map[string]any)["type"])
}

func TestServer_ToolsCall(t *testing.T) {
	s := newTestServer()

	resp := call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"search_table","arguments":{"table_name":"ORDERS"}}}`)
	assert.Equal(t, map[string]any{
		"content": []any{map[string]any{"type": "text", "text": "Found `ORDERS`"}},
		"isError": false,
	}, resp["result"])

	resp = call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_lineage","arguments":{}}}`)
	result := resp["result"].(map[string]any)
	assert.Equal(t, true, result["isError"])
	assert.Contains(t, result["content"].([]any)[0].(map[string]any)["text"], "upstream down")

	resp = call(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{}}`)
	assert.EqualValues(t, codeInvalidParams, resp["error"].(map[string]any)["code"])
}

func TestServer_ProtocolEdges(t *testing.T) {
	s := newTestServer()

	resp := call(t, s, `{"jsonrpc":"2.0","id":5,"method":"resources/list"}`)
	assert.EqualValues(t, codeMethodNotFound, resp["error"].(map[string]any)["code"])

	resp = call(t, s, `{not json`)
	assert.EqualValues(t, codeParseError, resp["error"].(map[string]any)["code"])
	assert.Nil(t, resp["id"])

	resp = call(t, s, `{"jsonrpc":"2.0","id":6,"method":"ping"}`)
	assert.Equal(t, map[string]any{}, resp["result"])

	_, ok := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.False(t, ok)
}

func TestServer_ServeStdio(t *testing.T) {
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"search_table","arguments":{"table_name":"X"}}}`,
	}, "\n") + "\n"
	var out bytes.Buffer

	require.NoError(t, newTestServer().ServeStdio(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "the notification gets no reply")
	var ids []float64
	for _, l := range lines {
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &resp))
		ids = append(ids, resp["id"].(float64))
	}
	sort.Float64s(ids)
	assert.Equal(t, []float64{1, 2}, ids)
}

func TestManager_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(newTestServer())
	t.Cleanup(srv.Close)

	m := NewManager(map[string]config.MCPServerConfig{"catalog": {URL: srv.URL}})
	t.Cleanup(m.Close)

	defs, err := m.Definitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "get_lineage", defs[0].Name, "names are not prefixed")

	out, err := m.Execute(context.Background(), "search_table", map[string]any{"table_name": "ORDERS"})
	require.NoError(t, err)
	assert.Equal(t, "Found `ORDERS`", out)

	_, err = m.Execute(context.Background(), "get_lineage", nil)
	assert.ErrorContains(t, err, "upstream down")

	// a second discovery does not reconnect or duplicate tools
	defs, err = m.Definitions(context.Background())
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}

func TestManager_NoServers(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Definitions(context.Background())
	assert.Error(t, err)
}

func TestServer_HTTPMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
