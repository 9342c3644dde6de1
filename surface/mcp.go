package surface

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lumava/surfcast/kit"
)

// RegisterMCP registers surface tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerCreateTool(srv)
	svc.registerUpdateTool(srv)
	svc.registerDataTool(srv)
	svc.registerCloseTool(srv)
	svc.registerListTool(srv)
	svc.registerGetTool(srv)
}

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

// --- create ---

type createReq struct {
	Name   string `json:"name"`
	Size   string `json:"size"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
}

func (svc *Service) registerCreateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surface_create",
		Description: "Create a new surface and return its id and viewer URLs. Viewers opening the URL render the surface live.",
		InputSchema: inputSchema(map[string]any{
			"name":   map[string]any{"type": "string", "description": "Optional display name"},
			"size":   map[string]any{"type": "string", "description": "Size preset: tv_1080p, tv_4k, phone, tablet, square, auto, custom"},
			"width":  map[string]any{"type": "integer", "description": "Explicit width in pixels (implies custom size)"},
			"height": map[string]any{"type": "integer", "description": "Explicit height in pixels (implies custom size)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*createReq)
		params := CreateParams{Name: r.Name, Preset: r.Size}
		if r.Width != nil || r.Height != nil {
			params.Size = &Size{Width: r.Width, Height: r.Height, Preset: PresetCustom, ScaleMode: ScaleFit}
		}
		return svc.Create(ctx, params)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r createReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- update components ---

type updateReq struct {
	SurfaceID  string          `json:"surface_id"`
	Components json.RawMessage `json:"components"`
}

func (svc *Service) registerUpdateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surface_update",
		Description: "Replace a surface's component tree wholesale. Components reference data model values through {{/path}} templates in their text.",
		InputSchema: inputSchema(map[string]any{
			"surface_id": map[string]any{"type": "string", "description": "Target surface id"},
			"components": map[string]any{"type": "array", "description": "Full ordered component list; each item needs an id and a component type"},
		}, []string{"surface_id", "components"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*updateReq)
		var components []Component
		if len(r.Components) > 0 {
			if err := json.Unmarshal(r.Components, &components); err != nil {
				return nil, err
			}
		}
		if err := svc.UpdateComponents(ctx, r.SurfaceID, components); err != nil {
			return nil, err
		}
		return map[string]any{"surface_id": r.SurfaceID, "component_count": len(components)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r updateReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- patch data ---

type dataReq struct {
	SurfaceID string `json:"surface_id"`
	Path      string `json:"path"`
	Value     any    `json:"value"`
}

func (svc *Service) registerDataTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surface_data",
		Description: "Write one value at a slash-delimited path in a surface's data model, e.g. path /user/name. The root path is rejected.",
		InputSchema: inputSchema(map[string]any{
			"surface_id": map[string]any{"type": "string", "description": "Target surface id"},
			"path":       map[string]any{"type": "string", "description": "Slash-delimited path, e.g. /counter or /user/name"},
			"value":      map[string]any{"description": "JSON value to store at the path"},
		}, []string{"surface_id", "path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*dataReq)
		if err := svc.PatchData(ctx, r.SurfaceID, r.Path, r.Value); err != nil {
			return nil, err
		}
		return map[string]any{"surface_id": r.SurfaceID, "path": r.Path}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r dataReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- close ---

type closeReq struct {
	SurfaceID string `json:"surface_id"`
}

func (svc *Service) registerCloseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surface_close",
		Description: "Close a surface: viewers are notified and disconnected, and the surface is deleted.",
		InputSchema: inputSchema(map[string]any{
			"surface_id": map[string]any{"type": "string", "description": "Target surface id"},
		}, []string{"surface_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*closeReq)
		if err := svc.Close(ctx, r.SurfaceID); err != nil {
			return nil, err
		}
		return map[string]any{"surface_id": r.SurfaceID, "closed": true}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r closeReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- list ---

func (svc *Service) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surface_list",
		Description: "List all live surfaces with their subscriber counts.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return map[string]any{"surfaces": svc.List(ctx)}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- get ---

type getReq struct {
	SurfaceID string `json:"surface_id"`
}

func (svc *Service) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "surface_get",
		Description: "Get a surface's full state: components, data model and timestamps.",
		InputSchema: inputSchema(map[string]any{
			"surface_id": map[string]any{"type": "string", "description": "Target surface id"},
		}, []string{"surface_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getReq)
		return svc.Get(ctx, r.SurfaceID)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r getReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
