package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtkai/icm/internal/storage/sqlite"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewServer(store, store, WithInstructions("test instructions"))
}

func callLine(t *testing.T, s *Server, req map[string]interface{}) map[string]interface{} {
	t.Helper()
	line, err := json.Marshal(req)
	require.NoError(t, err)
	resp := s.HandleLine(context.Background(), line)
	require.NotNil(t, resp)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(resp, &out))
	return out
}

func TestInitializeReturnsServerInfo(t *testing.T) {
	s := newTestServer(t)
	resp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
	})
	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, protocolVersion, result["protocolVersion"])
	assert.Equal(t, "test instructions", result["instructions"])
}

func TestPingReturnsEmptyResult(t *testing.T) {
	s := newTestServer(t)
	resp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 2, "method": "ping",
	})
	assert.Nil(t, resp["error"])
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 3, "method": "bogus/method",
	})
	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(ErrCodeMethodNotFound), errObj["code"])
}

func TestNotificationProducesNoResponse(t *testing.T) {
	s := newTestServer(t)
	line, err := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "method": "ping"})
	require.NoError(t, err)
	resp := s.HandleLine(context.Background(), line)
	assert.Nil(t, resp)
}

func TestMalformedLineReturnsParseError(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleLine(context.Background(), []byte("{not json"))
	require.NotNil(t, resp)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(resp, &out))
	errObj, ok := out["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(ErrCodeParseError), errObj["code"])
}

func TestToolsListOmitsEmbedAllWithoutEmbedder(t *testing.T) {
	s := newTestServer(t)
	resp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 4, "method": "tools/list",
	})
	result := resp["result"].(map[string]interface{})
	tools := result["tools"].([]interface{})
	for _, tool := range tools {
		name := tool.(map[string]interface{})["name"]
		assert.NotEqual(t, "icm_embed_all", name)
	}
}

func TestToolsCallStoreThenRecall(t *testing.T) {
	s := newTestServer(t)

	storeResp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 5, "method": "tools/call",
		"params": map[string]interface{}{
			"name": "icm_store",
			"arguments": map[string]interface{}{
				"topic":   "golang",
				"content": "goroutines are cheap to spawn",
			},
		},
	})
	result := storeResp["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, "Stored memory:")

	recallResp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 6, "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "icm_recall",
			"arguments": map[string]interface{}{"query": "goroutines"},
		},
	})
	recallResult := recallResp["result"].(map[string]interface{})
	recallContent := recallResult["content"].([]interface{})
	recallText := recallContent[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, recallText, "goroutines")
}

func TestToolsCallUnknownToolIsInvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 7, "method": "tools/call",
		"params": map[string]interface{}{"name": "icm_nonexistent", "arguments": map[string]interface{}{}},
	})
	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(ErrCodeInvalidParams), errObj["code"])
}

func TestConceptSearchGlobalCrossesMemoirs(t *testing.T) {
	s := newTestServer(t)

	callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 20, "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "icm_memoir_create",
			"arguments": map[string]interface{}{"name": "memoir-a"},
		},
	})
	callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 21, "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "icm_memoir_create",
			"arguments": map[string]interface{}{"name": "memoir-b"},
		},
	})
	callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 22, "method": "tools/call",
		"params": map[string]interface{}{
			"name": "icm_memoir_add_concept",
			"arguments": map[string]interface{}{
				"memoir": "memoir-a", "name": "raft", "definition": "a consensus algorithm",
			},
		},
	})
	callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 23, "method": "tools/call",
		"params": map[string]interface{}{
			"name": "icm_memoir_add_concept",
			"arguments": map[string]interface{}{
				"memoir": "memoir-b", "name": "paxos", "definition": "another consensus algorithm",
			},
		},
	})

	resp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 24, "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "icm_concept_search",
			"arguments": map[string]interface{}{"query": "consensus"},
		},
	})
	result := resp["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, "raft")
	assert.Contains(t, text, "paxos")
}

func TestMemoirCreateAddConceptAndLink(t *testing.T) {
	s := newTestServer(t)

	callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 8, "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "icm_memoir_create",
			"arguments": map[string]interface{}{"name": "distsys", "description": "distributed systems notes"},
		},
	})

	callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 9, "method": "tools/call",
		"params": map[string]interface{}{
			"name": "icm_memoir_add_concept",
			"arguments": map[string]interface{}{
				"memoir": "distsys", "name": "raft", "definition": "a consensus algorithm",
			},
		},
	})
	callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 10, "method": "tools/call",
		"params": map[string]interface{}{
			"name": "icm_memoir_add_concept",
			"arguments": map[string]interface{}{
				"memoir": "distsys", "name": "paxos", "definition": "another consensus algorithm",
			},
		},
	})

	linkResp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 11, "method": "tools/call",
		"params": map[string]interface{}{
			"name": "icm_memoir_link",
			"arguments": map[string]interface{}{
				"memoir": "distsys", "from": "raft", "to": "paxos", "relation": "alternative_to",
			},
		},
	})
	result := linkResp["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, "Linked:")

	badLinkResp := callLine(t, s, map[string]interface{}{
		"jsonrpc": "2.0", "id": 12, "method": "tools/call",
		"params": map[string]interface{}{
			"name": "icm_memoir_link",
			"arguments": map[string]interface{}{
				"memoir": "distsys", "from": "raft", "to": "paxos", "relation": "not_a_real_relation",
			},
		},
	})
	badResult := badLinkResp["result"].(map[string]interface{})
	assert.Equal(t, true, badResult["isError"])
}
