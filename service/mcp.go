package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/automarker/highlight"
)

// RegisterMCP registers the automarker tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerOpenTool(srv)
	s.registerHighlightTool(srv)
	s.registerPageInfoTool(srv)
	s.registerStrategyTool(srv)
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

// registerTool wires one tool: decode arguments, run the endpoint, marshal
// the response as text content. Tool failures go through SetError, never a
// JSON-RPC protocol error.
func registerTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if req.Params.Arguments != nil {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		resp, err := endpoint(ctx, &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- open ---

type mcpOpenReq struct {
	URL  string `json:"url"`
	Mode string `json:"mode,omitempty"`
}

func (s *Service) registerOpenTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "automarker_open",
		Description: "Open a page session and highlight the configured keywords in it.",
		InputSchema: inputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "Page URL (http or https)"},
			"mode": map[string]any{"type": "string", "description": "fetch (default) or live", "enum": []string{"fetch", "live"}},
		}, []string{"url"}),
	}

	registerTool(srv, tool, func(ctx context.Context, r *mcpOpenReq) (any, error) {
		mode, err := ParseMode(r.Mode)
		if err != nil {
			return nil, err
		}
		sess, _, err := s.Open(ctx, r.URL, mode)
		if err != nil {
			return nil, err
		}
		return s.PageInfo(sess.ID)
	})
}

// --- highlight ---

type mcpHighlightReq struct {
	SessionID string                  `json:"session_id"`
	Slots     []highlight.KeywordSlot `json:"slots"`
	Negatives []string                `json:"negatives"`
	Enabled   bool                    `json:"enabled"`
}

func (s *Service) registerHighlightTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "automarker_highlight",
		Description: "Replace a session's keyword state wholesale and return the highlight match count.",
		InputSchema: inputSchema(map[string]any{
			"session_id": map[string]any{"type": "string"},
			"slots": map[string]any{
				"type":        "array",
				"description": "Keyword slots: {keyword, color, origin}",
				"items":       map[string]any{"type": "object"},
			},
			"negatives": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"enabled": map[string]any{"type": "boolean"},
		}, []string{"session_id"}),
	}

	registerTool(srv, tool, func(ctx context.Context, r *mcpHighlightReq) (any, error) {
		n, err := s.Highlight(ctx, r.SessionID, highlight.State{
			Slots:     r.Slots,
			Negatives: r.Negatives,
			Enabled:   r.Enabled,
		})
		if err != nil {
			return nil, err
		}
		return map[string]int{"matches": n}, nil
	})
}

// --- page info ---

type mcpPageInfoReq struct {
	SessionID string `json:"session_id"`
}

func (s *Service) registerPageInfoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "automarker_page_info",
		Description: "Return URL, title, detected search query and highlight count for a session.",
		InputSchema: inputSchema(map[string]any{
			"session_id": map[string]any{"type": "string"},
		}, []string{"session_id"}),
	}

	registerTool(srv, tool, func(_ context.Context, r *mcpPageInfoReq) (any, error) {
		return s.PageInfo(r.SessionID)
	})
}

// --- strategy ---

type mcpStrategyReq struct {
	Theme string `json:"theme"`
}

func (s *Service) registerStrategyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "automarker_strategy",
		Description: "Build a keyword strategy for a research theme via the configured text-generation provider and store it as the active configuration.",
		InputSchema: inputSchema(map[string]any{
			"theme": map[string]any{"type": "string", "description": "Research theme"},
		}, []string{"theme"}),
	}

	registerTool(srv, tool, func(ctx context.Context, r *mcpStrategyReq) (any, error) {
		return s.BuildStrategy(ctx, r.Theme)
	})
}
