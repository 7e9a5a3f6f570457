package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/parsegate/parsegate/filetype"
)

// RegisterMCP registers the gateway tools on an MCP server. Arguments arrive
// as json.RawMessage in req.Params.Arguments; tool-level failures go through
// result.SetError, never as protocol errors.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerDetectTool(srv)
	s.registerParseTool(srv)
}

func inputSchema(properties map[string]any, required []string) json.RawMessage {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("gateway: marshal input schema: %v", err))
	}
	return data
}

type fileToolReq struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

func (r *fileToolReq) decode() ([]byte, error) {
	if r.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	content, err := base64.StdEncoding.DecodeString(r.Content)
	if err != nil {
		return nil, fmt.Errorf("content is not valid base64: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("content is empty")
	}
	return content, nil
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func (s *Service) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "parsegate_detect",
		Description: "Classify a file into its document category (document, spreadsheet, presentation, pdf, image, plain_text, markdown) from its content and filename.",
		InputSchema: inputSchema(map[string]any{
			"filename": map[string]any{"type": "string", "description": "Original filename"},
			"content":  map[string]any{"type": "string", "description": "File content, base64-encoded"},
		}, []string{"filename", "content"}),
	}

	srv.AddTool(tool, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r fileToolReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return toolError(fmt.Errorf("parsegate_detect: invalid arguments: %w", err)), nil
		}
		content, err := r.decode()
		if err != nil {
			return toolError(fmt.Errorf("parsegate_detect: %w", err)), nil
		}
		info, err := filetype.Detect(content, r.Filename)
		if err != nil {
			return toolError(err), nil
		}
		return toolJSON(map[string]string{
			"mime":     info.MIME,
			"category": string(info.Category),
		})
	})
}

func (s *Service) registerParseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "parsegate_parse",
		Description: "Parse a document to markdown using the active parser profile.",
		InputSchema: inputSchema(map[string]any{
			"filename": map[string]any{"type": "string", "description": "Original filename"},
			"content":  map[string]any{"type": "string", "description": "File content, base64-encoded"},
		}, []string{"filename", "content"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r fileToolReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return toolError(fmt.Errorf("parsegate_parse: invalid arguments: %w", err)), nil
		}
		content, err := r.decode()
		if err != nil {
			return toolError(fmt.Errorf("parsegate_parse: %w", err)), nil
		}
		info, err := filetype.Detect(content, r.Filename)
		if err != nil {
			return toolError(err), nil
		}

		var markdown string
		switch s.profile {
		case ProfileHybrid:
			markdown, err = s.parseHybrid(ctx, content, info)
		case ProfileStructuredOnly:
			markdown, err = s.parseStructured(ctx, content, info)
		case ProfileVLMOnly:
			markdown, err = s.parseVLM(ctx, content, info, s.cfg.Convert.DPI)
		case ProfileFallbackText:
			markdown, err = s.parseFallback(ctx, content, info)
		}
		if err != nil {
			return toolError(err), nil
		}
		return toolJSON(ParseResult{Filename: info.OriginalFilename, Markdown: markdown})
	})
}
