package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/logging"
	"github.com/soyeahso/gaia/internal/tools"
)

func serve(t *testing.T, requests ...string) []map[string]any {
	t.Helper()
	registry := agent.NewToolRegistry()
	require.NoError(t, registry.Register(tools.NewCityCheck(config.DefaultCities)))

	var out bytes.Buffer
	srv := newMCPServer(registry, &out, logging.New(nil, "silent"))
	require.NoError(t, srv.Run(context.Background(), strings.NewReader(strings.Join(requests, "\n"))))

	var responses []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp map[string]any
		require.NoError(t, json.UnmarshalFromString(line, &resp), line)
		responses = append(responses, resp)
	}
	return responses
}

func TestInitializeAndList(t *testing.T) {
	resps := serve(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	require.Len(t, resps, 2)

	initRes := resps[0]["result"].(map[string]any)
	assert.Equal(t, mcpProtocolVersion, initRes["protocolVersion"])
	assert.Equal(t, "gaia-places", initRes["serverInfo"].(map[string]any)["name"])

	list := resps[1]["result"].(map[string]any)["tools"].([]any)
	require.Len(t, list, 1)
	tool := list[0].(map[string]any)
	assert.Equal(t, tools.CityCheckToolName, tool["name"])
	assert.Equal(t, "object", tool["inputSchema"].(map[string]any)["type"])
}

func TestCallTool(t *testing.T) {
	resps := serve(t,
		`{"jsonrpc":"2.0","id":"a","method":"tools/call","params":{"name":"verificar_ciudades_clapzy","arguments":{"city":"bogota"}}}`,
	)
	require.Len(t, resps, 1)
	assert.Equal(t, "a", resps[0]["id"])

	result := resps[0]["result"].(map[string]any)
	assert.Nil(t, result["isError"])
	text := result["content"].([]any)[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, `"matched":true`)
}

func TestCallToolErrors(t *testing.T) {
	resps := serve(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"verificar_ciudades_clapzy","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`not json`,
	)
	require.Len(t, resps, 4)

	assert.Equal(t, true, resps[0]["result"].(map[string]any)["isError"])
	assert.Equal(t, float64(codeInvalidParams), resps[1]["error"].(map[string]any)["code"])
	assert.Equal(t, float64(codeMethodNotFound), resps[2]["error"].(map[string]any)["code"])
	assert.Equal(t, float64(codeParseError), resps[3]["error"].(map[string]any)["code"])
	assert.Nil(t, resps[3]["id"])
}
