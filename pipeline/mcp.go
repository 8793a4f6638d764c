package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/maquette/auth"
	"github.com/hazyhaar/maquette/kit"
	"github.com/hazyhaar/maquette/report"
)

// RegisterMCP registers the comparison tools on an MCP server.
func (r *Runner) RegisterMCP(srv *mcp.Server) {
	r.registerCompareTool(srv)
	r.registerExtractTool(srv)
	r.registerReportTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- compare ---

type compareToolRequest struct {
	SourceRef         string `json:"source_ref"`
	NodeRef           string `json:"node_ref,omitempty"`
	ImplementationURL string `json:"implementation_url"`
	AuthType          string `json:"auth_type,omitempty"`
	AuthUsername      string `json:"auth_username,omitempty"`
	AuthSecret        string `json:"auth_secret,omitempty"`
	TimeoutSeconds    int    `json:"timeout_seconds,omitempty"`
	Screenshot        bool   `json:"screenshot,omitempty"`
}

func (tr compareToolRequest) toRequest() Request {
	return Request{
		SourceRef:         tr.SourceRef,
		NodeRef:           tr.NodeRef,
		ImplementationURL: tr.ImplementationURL,
		Credentials: auth.Credentials{
			Type:     auth.Type(tr.AuthType),
			Username: tr.AuthUsername,
			Secret:   tr.AuthSecret,
		},
		Timeout:    time.Duration(tr.TimeoutSeconds) * time.Second,
		Screenshot: tr.Screenshot,
	}
}

func (r *Runner) registerCompareTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "maquette_compare",
		Description: "Compare a design file's tokens against a live implementation URL. Returns matched/missing/extra tokens per category with similarity scores.",
		InputSchema: inputSchema(map[string]any{
			"source_ref":         map[string]any{"type": "string", "description": "Design file reference"},
			"node_ref":           map[string]any{"type": "string", "description": "Optional node subtree within the file"},
			"implementation_url": map[string]any{"type": "string", "description": "Live implementation URL"},
			"auth_type":          map[string]any{"type": "string", "enum": []any{"basic", "form"}, "description": "Optional authentication type"},
			"auth_username":      map[string]any{"type": "string"},
			"auth_secret":        map[string]any{"type": "string"},
			"timeout_seconds":    map[string]any{"type": "integer", "description": "Request deadline override"},
			"screenshot":         map[string]any{"type": "boolean", "description": "Capture a full-page screenshot"},
		}, []string{"source_ref", "implementation_url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		tr := req.(*compareToolRequest)
		rep, err := r.RunComparison(ctx, tr.toRequest())
		if err != nil {
			return nil, err
		}
		return rep, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var tr compareToolRequest
		if err := json.Unmarshal(req.Params.Arguments, &tr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &tr,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithTransport(ctx, "mcp") },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- extract ---

type extractToolRequest struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (r *Runner) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "maquette_extract",
		Description: "Extract the normalized design tokens (elements, colors, typography, spacing) from a live URL without comparing.",
		InputSchema: inputSchema(map[string]any{
			"url":             map[string]any{"type": "string", "description": "Page URL to extract"},
			"timeout_seconds": map[string]any{"type": "integer"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		tr := req.(*extractToolRequest)
		doc, err := r.ExtractTokens(ctx, tr.URL, time.Duration(tr.TimeoutSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var tr extractToolRequest
		if err := json.Unmarshal(req.Params.Arguments, &tr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &tr,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithTransport(ctx, "mcp") },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- report ---

type reportToolRequest struct {
	ID     string `json:"id"`
	Format string `json:"format,omitempty"` // json (default) or markdown
}

func (r *Runner) registerReportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "maquette_report",
		Description: "Fetch a stored comparison report by id, as JSON or Markdown.",
		InputSchema: inputSchema(map[string]any{
			"id":     map[string]any{"type": "string", "description": "Report id (rep_...)"},
			"format": map[string]any{"type": "string", "enum": []any{"json", "markdown"}},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		tr := req.(*reportToolRequest)
		if r.store == nil {
			return nil, fmt.Errorf("pipeline: report store not configured")
		}
		rep, err := r.store.Get(ctx, tr.ID)
		if err != nil {
			return nil, err
		}
		if tr.Format == "markdown" {
			md, err := report.RenderMarkdown(rep)
			if err != nil {
				return nil, err
			}
			return map[string]string{"markdown": md}, nil
		}
		return rep, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var tr reportToolRequest
		if err := json.Unmarshal(req.Params.Arguments, &tr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &tr,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithTransport(ctx, "mcp") },
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
