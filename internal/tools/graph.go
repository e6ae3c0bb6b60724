package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/graph"
)

// propsArg extracts a flat string map. Non-string values are formatted.
func propsArg(req mcp.CallToolRequest, key string) map[string]string {
	raw, ok := req.GetArguments()[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// ─── AddEntityTool ───────────────────────────────────────────────────────────

// AddEntityTool handles the twining_add_entity MCP tool.
type AddEntityTool struct {
	graph *graph.Engine
}

// NewAddEntityTool creates an AddEntityTool.
func NewAddEntityTool(g *graph.Engine) *AddEntityTool {
	return &AddEntityTool{graph: g}
}

// Definition returns the MCP tool definition for twining_add_entity.
func (t *AddEntityTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_add_entity",
		mcp.WithDescription(
			"Add a code entity to the knowledge graph, or merge properties into an existing "+
				"entity with the same name and type.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Entity name, e.g. a file path or function name"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Entity type, usually one of: "+strings.Join(graph.EntityTypes, ", ")),
		),
		mcp.WithObject("properties",
			mcp.Description("String key/value properties"),
		),
	)
}

// Handle processes the twining_add_entity tool call.
func (t *AddEntityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.graph.AddEntity(ctx,
		req.GetString("name", ""),
		req.GetString("type", ""),
		propsArg(req, "properties"),
	))
}

// ─── AddRelationTool ─────────────────────────────────────────────────────────

// AddRelationTool handles the twining_add_relation MCP tool.
type AddRelationTool struct {
	graph *graph.Engine
}

// NewAddRelationTool creates an AddRelationTool.
func NewAddRelationTool(g *graph.Engine) *AddRelationTool {
	return &AddRelationTool{graph: g}
}

// Definition returns the MCP tool definition for twining_add_relation.
func (t *AddRelationTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_add_relation",
		mcp.WithDescription(
			"Link two entities. Source and target may be entity IDs or names; "+
				"a name shared by entities of different types is rejected as ambiguous.",
		),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description("Source entity ID or name"),
		),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Target entity ID or name"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Relation type, usually one of: "+strings.Join(graph.RelationTypes, ", ")),
		),
		mcp.WithObject("properties",
			mcp.Description("String key/value properties"),
		),
	)
}

// Handle processes the twining_add_relation tool call.
func (t *AddRelationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.graph.AddRelation(ctx,
		req.GetString("source", ""),
		req.GetString("target", ""),
		req.GetString("type", ""),
		propsArg(req, "properties"),
	))
}

// ─── NeighborsTool ───────────────────────────────────────────────────────────

// NeighborsTool handles the twining_neighbors MCP tool.
type NeighborsTool struct {
	graph *graph.Engine
}

// NewNeighborsTool creates a NeighborsTool.
func NewNeighborsTool(g *graph.Engine) *NeighborsTool {
	return &NeighborsTool{graph: g}
}

// Definition returns the MCP tool definition for twining_neighbors.
func (t *NeighborsTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_neighbors",
		mcp.WithDescription("Entities reachable from an entity within depth hops, in either direction."),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("Entity ID or name"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Hops to follow, 1 to 3 (default: 1)"),
		),
		mcp.WithArray("relation_types",
			mcp.Description("Only follow these relation types"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the twining_neighbors tool call.
func (t *NeighborsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.graph.Neighbors(ctx,
		req.GetString("entity", ""),
		intArg(req, "depth", 1),
		stringsArg(req, "relation_types"),
	))
}

// ─── GraphQueryTool ──────────────────────────────────────────────────────────

// GraphQueryTool handles the twining_graph_query MCP tool.
type GraphQueryTool struct {
	graph *graph.Engine
}

// NewGraphQueryTool creates a GraphQueryTool.
func NewGraphQueryTool(g *graph.Engine) *GraphQueryTool {
	return &GraphQueryTool{graph: g}
}

// Definition returns the MCP tool definition for twining_graph_query.
func (t *GraphQueryTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_graph_query",
		mcp.WithDescription("Find entities whose name or property values contain the query text."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to match, case-insensitive"),
		),
		mcp.WithArray("entity_types",
			mcp.Description("Only these entity types"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entities (default: 10)"),
		),
	)
}

// Handle processes the twining_graph_query tool call.
func (t *GraphQueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := req.GetString("query", "")
	if q == "" {
		return invalid("query is required"), nil
	}
	es, err := t.graph.Query(ctx, q, stringsArg(req, "entity_types"), intArg(req, "limit", 10))
	if err != nil {
		return errorResult(err), nil
	}
	if es == nil {
		es = []graph.Entity{}
	}
	return jsonResult(map[string]any{"entities": es})
}

// ─── PruneGraphTool ──────────────────────────────────────────────────────────

// PruneGraphTool handles the twining_prune_graph MCP tool.
type PruneGraphTool struct {
	graph *graph.Engine
}

// NewPruneGraphTool creates a PruneGraphTool.
func NewPruneGraphTool(g *graph.Engine) *PruneGraphTool {
	return &PruneGraphTool{graph: g}
}

// Definition returns the MCP tool definition for twining_prune_graph.
func (t *PruneGraphTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_prune_graph",
		mcp.WithDescription("List entities no relation touches and, unless dry_run, remove them."),
		mcp.WithArray("entity_types",
			mcp.Description("Only prune these entity types"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Report without removing (default: true)"),
		),
	)
}

// Handle processes the twining_prune_graph tool call.
func (t *PruneGraphTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.graph.Prune(ctx, stringsArg(req, "entity_types"), boolArg(req, "dry_run", true)))
}
