package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/docstore/internal/docstore"
	"github.com/Zereker/docstore/pkg/kv"
)

func newTestServer() *Server {
	repo := docstore.NewRepository(kv.NewMemoryBackend(), docstore.Options{Indexes: []string{"role"}})
	return NewServer(repo, ServerConfig{Name: "docstore", Version: "test"})
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func serve(t *testing.T, s *Server, input string) []rpcResponse {
	t.Helper()

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(input), &out))

	var responses []rpcResponse
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp rpcResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func call(t *testing.T, id int, tool string, args map[string]any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})
	require.NoError(t, err)
	return string(data)
}

// structured decodes the structuredContent of a successful tool call into out.
func structured(t *testing.T, resp rpcResponse, out any) {
	t.Helper()
	require.Nil(t, resp.Error)

	var result struct {
		Content           []ContentBlock  `json:"content"`
		StructuredContent json.RawMessage `json:"structuredContent"`
		IsError           bool            `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.JSONEq(t, string(result.StructuredContent), result.Content[0].Text)
	require.NoError(t, json.Unmarshal(result.StructuredContent, out))
}

func TestServer_Protocol(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":"two","method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":4,"method":"nope"}`,
		`{"jsonrpc":"2.0","id":5}`,
		`not json`,
		`{"jsonrpc":"2.0","id":6,"method":"ping"}`,
	}, "\n") // no trailing newline: the last line is still answered
	responses := serve(t, newTestServer(), input)
	require.Len(t, responses, 7)

	var init initializeResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &init))
	assert.Equal(t, "docstore", init.ServerInfo.Name)
	assert.Equal(t, protocolVersion, init.ProtocolVersion)

	assert.JSONEq(t, `"two"`, string(responses[1].ID))
	var list toolsListResult
	require.NoError(t, json.Unmarshal(responses[1].Result, &list))
	require.Len(t, list.Tools, len(DocstoreTools))
	assert.Equal(t, "docstore_set", list.Tools[0].Name)

	assert.Nil(t, responses[2].Error)
	assert.JSONEq(t, `{}`, string(responses[2].Result))

	require.NotNil(t, responses[3].Error)
	assert.Equal(t, codeMethodNotFound, responses[3].Error.Code)

	require.NotNil(t, responses[4].Error)
	assert.Equal(t, codeInvalidRequest, responses[4].Error.Code)

	require.NotNil(t, responses[5].Error)
	assert.Equal(t, codeParseError, responses[5].Error.Code)
	assert.JSONEq(t, `null`, string(responses[5].ID))

	assert.JSONEq(t, `6`, string(responses[6].ID))
}

func TestServer_Tools(t *testing.T) {
	input := strings.Join([]string{
		call(t, 1, "docstore_set", map[string]any{"collection": "users", "record": map[string]any{"id": "a", "role": "admin"}}),
		call(t, 2, "docstore_set", map[string]any{"collection": "users", "record": map[string]any{"id": "b", "role": "user"}, "ttl": "1h"}),
		call(t, 3, "docstore_find", map[string]any{"collection": "users", "query": map[string]any{"role": map[string]any{"$in": []any{"admin", "user"}}}}),
		call(t, 4, "docstore_update", map[string]any{"collection": "users", "query": map[string]any{"role": "user"}, "patch": map[string]any{"level": 2}}),
		call(t, 5, "docstore_find_one", map[string]any{"collection": "users", "query": map[string]any{"level": map[string]any{"$gt": 1}}}),
		call(t, 6, "docstore_delete", map[string]any{"collection": "users", "query": map[string]any{"role": "admin"}}),
		call(t, 7, "docstore_count", map[string]any{"collection": "users"}),
		call(t, 8, "docstore_find_one", map[string]any{"collection": "users", "query": map[string]any{"role": "admin"}}),
		call(t, 9, "docstore_find", map[string]any{"collection": "empty"}),
	}, "\n") + "\n"
	responses := serve(t, newTestServer(), input)
	require.Len(t, responses, 9)

	var stored RecordResult
	structured(t, responses[0], &stored)
	assert.Equal(t, docstore.Record{"id": "a", "role": "admin"}, stored.Record)

	var found RecordsResult
	structured(t, responses[2], &found)
	assert.Equal(t, 2, found.Count)
	assert.Len(t, found.Records, 2)

	var updated CountResult
	structured(t, responses[3], &updated)
	assert.Equal(t, 1, updated.Count)

	var one RecordResult
	structured(t, responses[4], &one)
	assert.Equal(t, "b", one.Record["id"])
	assert.Equal(t, float64(2), one.Record["level"])

	var deleted, counted CountResult
	structured(t, responses[5], &deleted)
	assert.Equal(t, 1, deleted.Count)
	structured(t, responses[6], &counted)
	assert.Equal(t, 1, counted.Count)

	var miss RecordResult
	structured(t, responses[7], &miss)
	assert.Nil(t, miss.Record)

	var empty RecordsResult
	structured(t, responses[8], &empty)
	assert.Equal(t, 0, empty.Count)
	assert.NotNil(t, empty.Records)
}

func TestServer_ToolErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "unknown tool", line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"docstore_drop"}}`},
		{name: "bad params", line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":[1]}`},
		{name: "bad arguments", line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"docstore_find","arguments":[1]}}`},
		{name: "bad collection", line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"docstore_find","arguments":{"collection":"a:b"}}}`},
		{name: "missing id", line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"docstore_set","arguments":{"collection":"users","record":{"role":"x"}}}}`},
		{name: "bad ttl", line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"docstore_set","arguments":{"collection":"users","record":{"id":"x"},"ttl":"later"}}}`},
		{name: "bad query", line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"docstore_delete","arguments":{"collection":"users","query":{"a":{"$regex":"("}}}}}`},
		{name: "identifier patch", line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"docstore_update","arguments":{"collection":"users","query":{},"patch":{"userId":"z"}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := serve(t, newTestServer(), tt.line+"\n")
			require.Len(t, responses, 1)
			require.NotNil(t, responses[0].Error)
			assert.Equal(t, codeInvalidParams, responses[0].Error.Code)
			assert.NotEmpty(t, responses[0].Error.Message)
		})
	}
}

func TestIsCallerError(t *testing.T) {
	assert.True(t, isCallerError(docstore.ErrValidation))
	assert.True(t, isCallerError(errUnknownTool))
	assert.False(t, isCallerError(&docstore.BatchError{
		Op:       docstore.OpUpdate,
		Failures: []docstore.Failure{{Key: "users:1", Err: docstore.ErrValidation}},
	}))
	assert.False(t, isCallerError(assert.AnError))
}

func TestToolResult_ExecutionFailure(t *testing.T) {
	res := toolResult(CountResult{Count: 2}, true)
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.JSONEq(t, `{"count":2}`, res.Content[0].Text)

	res = toolResult(nil, true)
	assert.Empty(t, res.Content)
	assert.Nil(t, res.StructuredContent)
}
