// Package mcp exposes the agent over the Model Context Protocol so LLM
// clients can drive applications through perceive/act/remember tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/agent"
)

type Server struct {
	agent *agent.Agent
	kv    schemas.KVStore
	log   *zap.Logger
}

func NewServer(ag *agent.Agent, kv schemas.KVStore, logger *zap.Logger) *Server {
	return &Server{agent: ag, kv: kv, log: logger.Named("mcp")}
}

// Register adds the pilot tools to an MCP server.
func (s *Server) Register(srv *mcp.Server) {
	s.registerPerceiveTool(srv)
	s.registerActTool(srv)
	s.registerRememberTool(srv)
	s.registerRecentTool(srv)
	s.registerForgetTool(srv)
}

// Serve runs the server over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context, impl *mcp.Implementation) error {
	srv := mcp.NewServer(impl, nil)
	s.Register(srv)
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

// --- perceive ---

type perceiveReq struct {
	App string `json:"app"`
}

func (s *Server) registerPerceiveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_perceive",
		Description: "Capture the current UI state of an application: element tree, windows and buffered change events, rendered as text.",
		InputSchema: inputSchema(map[string]any{
			"app": map[string]any{"type": "string", "description": "Application identifier, e.g. a URL"},
		}, []string{"app"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r perceiveReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		if r.App == "" {
			return errorResult(errors.New("app is required")), nil
		}

		snap, err := s.agent.Perceive(ctx, r.App)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(agent.RenderSnapshot(snap)), nil
	})
}

// --- act ---

type actReq struct {
	App      string `json:"app"`
	Intent   string `json:"intent"`
	Corrects string `json:"corrects"`
}

func (s *Server) registerActTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_act",
		Description: "Execute a natural-language intent against an application, e.g. 'click Save' or 'type hello then press Enter'. Returns a report of what changed.",
		InputSchema: inputSchema(map[string]any{
			"app":      map[string]any{"type": "string", "description": "Application identifier"},
			"intent":   map[string]any{"type": "string", "description": "Intent text, segments chained with ';' or 'then'"},
			"corrects": map[string]any{"type": "string", "description": "When retrying a failed target: the descriptor that failed, so a success teaches the substitution"},
		}, []string{"app", "intent"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r actReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		if r.App == "" || r.Intent == "" {
			return errorResult(errors.New("app and intent are required")), nil
		}

		result, err := s.agent.ActCorrecting(ctx, r.App, r.Intent, r.Corrects)
		if err != nil {
			s.log.Debug("Act finished with error",
				zap.String("app", r.App), zap.Error(err))
		}
		// A partial failure still carries the per-segment report; the
		// client reads the failing segment from the rendered text.
		if result == nil {
			return errorResult(err), nil
		}
		return textResult(agent.RenderResult(result)), nil
	})
}

// --- remember ---

type rememberReq struct {
	Op     string          `json:"op"`
	Key    string          `json:"key,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Prefix string          `json:"prefix,omitempty"`
}

func (s *Server) registerRememberTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_remember",
		Description: "Read or edit the persistent memory store. Ops: get, set, list, delete, clear.",
		InputSchema: inputSchema(map[string]any{
			"op":     map[string]any{"type": "string", "enum": []string{"get", "set", "list", "delete", "clear"}},
			"key":    map[string]any{"type": "string", "description": "Key for get/set/delete"},
			"value":  map[string]any{"description": "JSON value for set"},
			"prefix": map[string]any{"type": "string", "description": "Key prefix filter for list"},
		}, []string{"op"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r rememberReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}

		switch r.Op {
		case "get":
			if r.Key == "" {
				return errorResult(errors.New("key is required for get")), nil
			}
			value, ok, err := s.kv.Get(ctx, r.Key)
			if err != nil {
				return errorResult(err), nil
			}
			if !ok {
				return errorResult(fmt.Errorf("no value stored for %q", r.Key)), nil
			}
			return textResult(string(value)), nil

		case "set":
			if r.Key == "" || len(r.Value) == 0 {
				return errorResult(errors.New("key and value are required for set")), nil
			}
			if err := s.kv.Set(ctx, r.Key, []byte(r.Value)); err != nil {
				return errorResult(err), nil
			}
			return textResult(fmt.Sprintf("stored %s", r.Key)), nil

		case "list":
			keys, err := s.kv.List(ctx, r.Prefix)
			if err != nil {
				return errorResult(err), nil
			}
			data, err := json.Marshal(map[string]any{"keys": keys})
			if err != nil {
				return errorResult(err), nil
			}
			return textResult(string(data)), nil

		case "delete":
			if r.Key == "" {
				return errorResult(errors.New("key is required for delete")), nil
			}
			if err := s.kv.Delete(ctx, r.Key); err != nil {
				return errorResult(err), nil
			}
			return textResult(fmt.Sprintf("deleted %s", r.Key)), nil

		case "clear":
			if err := s.kv.Clear(ctx); err != nil {
				return errorResult(err), nil
			}
			return textResult("store cleared"), nil

		default:
			return errorResult(fmt.Errorf("unknown op %q", r.Op)), nil
		}
	})
}

// --- recent ---

type recentReq struct {
	Limit int `json:"limit"`
}

func (s *Server) registerRecentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_recent",
		Description: "List the most recent journaled actions, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum entries to return (default 20)"},
		}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r recentReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		if r.Limit <= 0 {
			r.Limit = 20
		}

		entries, err := s.agent.Recent(ctx, r.Limit)
		if err != nil {
			return errorResult(err), nil
		}
		data, err := json.Marshal(map[string]any{"entries": entries})
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(string(data)), nil
	})
}

// --- forget ---

type forgetReq struct {
	App string `json:"app"`
}

func (s *Server) registerForgetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pilot_forget",
		Description: "Clear learned label translations and shortcut preferences for one application. The action journal is kept.",
		InputSchema: inputSchema(map[string]any{
			"app": map[string]any{"type": "string", "description": "Application identifier"},
		}, []string{"app"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r forgetReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		if r.App == "" {
			return errorResult(errors.New("app is required")), nil
		}

		if err := s.agent.Forget(ctx, r.App); err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("cleared learned state for %s", r.App)), nil
	})
}
