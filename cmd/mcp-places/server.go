package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/logging"
	"github.com/soyeahso/gaia/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const mcpProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      jsoniter.RawMessage `json:"id,omitempty"`
	Method  string              `json:"method"`
	Params  jsoniter.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      jsoniter.RawMessage `json:"id"`
	Result  any                 `json:"result,omitempty"`
	Error   *rpcError           `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type callToolParams struct {
	Name      string              `json:"name"`
	Arguments jsoniter.RawMessage `json:"arguments"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// mcpServer serves the lookup tools over newline-delimited JSON-RPC.
type mcpServer struct {
	tools *agent.ToolRegistry
	log   *logging.Logger

	mu  sync.Mutex
	out io.Writer
}

func newMCPServer(tools *agent.ToolRegistry, out io.Writer, log *logging.Logger) *mcpServer {
	return &mcpServer{tools: tools, out: out, log: log.Sub("mcp")}
}

// Run reads requests from in until EOF or ctx is done.
func (s *mcpServer) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handle(ctx, line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}

func (s *mcpServer) handle(ctx context.Context, line []byte) {
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Warn().Err(err).Msg("parse error")
		s.sendError(nil, codeParseError, "Parse error", err.Error())
		return
	}
	s.log.Debug().Str("method", req.Method).Msg("request")

	switch req.Method {
	case "initialize":
		s.send(req.ID, map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]string{"name": "gaia-places", "version": version.Version},
		})
	case "tools/list":
		s.send(req.ID, map[string]any{"tools": s.toolInfos()})
	case "tools/call":
		s.callTool(ctx, req)
	case "ping":
		s.send(req.ID, map[string]any{})
	default:
		if len(req.ID) == 0 {
			// Notifications get no reply.
			return
		}
		s.sendError(req.ID, codeMethodNotFound, "Method not found", "unknown method: "+req.Method)
	}
}

func (s *mcpServer) toolInfos() []toolInfo {
	defs := s.tools.Definitions()
	infos := make([]toolInfo, 0, len(defs))
	for _, d := range defs {
		// Decoded so the schema is re-encoded on a single line.
		schema := map[string]any{"type": "object"}
		if err := json.UnmarshalFromString(d.InputSchema, &schema); err != nil {
			s.log.Warn().Err(err).Str("tool", d.Name).Msg("bad input schema")
		}
		infos = append(infos, toolInfo{Name: d.Name, Description: d.Description, InputSchema: schema})
	}
	return infos
}

func (s *mcpServer) callTool(ctx context.Context, req rpcRequest) {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	if _, ok := s.tools.Get(params.Name); !ok {
		s.sendError(req.ID, codeInvalidParams, "Unknown tool", "tool not found: "+params.Name)
		return
	}

	out, err := s.tools.Execute(ctx, params.Name, string(params.Arguments))
	if err != nil {
		s.log.Warn().Err(err).Str("tool", params.Name).Msg("tool call failed")
		s.send(req.ID, toolResult{Content: []contentItem{{Type: "text", Text: err.Error()}}, IsError: true})
		return
	}
	s.log.Info().Str("tool", params.Name).Int("bytes", len(out)).Msg("tool call")
	s.send(req.ID, toolResult{Content: []contentItem{{Type: "text", Text: out}}})
}

func (s *mcpServer) send(id jsoniter.RawMessage, result any) {
	s.write(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *mcpServer) sendError(id jsoniter.RawMessage, code int, message string, data any) {
	s.write(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}})
}

func (s *mcpServer) write(resp rpcResponse) {
	if resp.ID == nil {
		resp.ID = jsoniter.RawMessage("null")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshaling response")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.out, "%s\n", data); err != nil {
		s.log.Error().Err(err).Msg("writing response")
	}
}
