package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/blackboard"
)

// ─── PostTool ────────────────────────────────────────────────────────────────

// PostTool handles the twining_post MCP tool.
type PostTool struct {
	board *blackboard.Engine
}

// NewPostTool creates a PostTool.
func NewPostTool(board *blackboard.Engine) *PostTool {
	return &PostTool{board: board}
}

// Definition returns the MCP tool definition for twining_post.
func (t *PostTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_post",
		mcp.WithDescription(
			"Post an entry to the shared blackboard so other agents see it. "+
				"Use 'finding' for discoveries, 'warning' for risks, 'need' for work someone should pick up, "+
				"'question'/'answer' for coordination. Decisions go through twining_decide instead.",
		),
		mcp.WithString("entry_type",
			mcp.Required(),
			mcp.Description("One of: need, offer, finding, constraint, question, answer, status, artifact, warning"),
			mcp.Enum("need", "offer", "finding", "constraint", "question", "answer", "status", "artifact", "warning"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("One-line summary, at most 200 characters"),
		),
		mcp.WithString("detail",
			mcp.Description("Longer free-form detail"),
		),
		mcp.WithArray("tags",
			mcp.Description("Free-form tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("scope",
			mcp.Description("File path, module, or 'project' (default: project)"),
		),
		mcp.WithArray("relates_to",
			mcp.Description("IDs of entries this one responds to"),
			mcp.WithStringItems(),
		),
		mcp.WithString("agent_id",
			mcp.Description("Posting agent (default: main)"),
		),
	)
}

// Handle processes the twining_post tool call.
func (t *PostTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.board.Post(ctx, blackboard.PostInput{
		EntryType: req.GetString("entry_type", ""),
		Summary:   req.GetString("summary", ""),
		Detail:    req.GetString("detail", ""),
		Tags:      stringsArg(req, "tags"),
		Scope:     req.GetString("scope", ""),
		RelatesTo: stringsArg(req, "relates_to"),
		AgentID:   req.GetString("agent_id", ""),
	}))
}

// ─── ReadTool ────────────────────────────────────────────────────────────────

// ReadTool handles the twining_read MCP tool.
type ReadTool struct {
	board *blackboard.Engine
}

// NewReadTool creates a ReadTool.
func NewReadTool(board *blackboard.Engine) *ReadTool {
	return &ReadTool{board: board}
}

// Definition returns the MCP tool definition for twining_read.
func (t *ReadTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_read",
		mcp.WithDescription("Read blackboard entries filtered by type, tags, scope and time. Returns the newest entries in log order."),
		mcp.WithArray("entry_types",
			mcp.Description("Only these entry types"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("tags",
			mcp.Description("Entries carrying any of these tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("scope",
			mcp.Description("Entries whose scope overlaps this one"),
		),
		mcp.WithString("since",
			mcp.Description("ISO 8601 timestamp; only entries at or after it"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return (default: 50)"),
		),
	)
}

// Handle processes the twining_read tool call.
func (t *ReadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.board.Read(blackboard.ReadOptions{
		EntryTypes: stringsArg(req, "entry_types"),
		Tags:       stringsArg(req, "tags"),
		Scope:      req.GetString("scope", ""),
		Since:      req.GetString("since", ""),
		Limit:      intArg(req, "limit", 0),
	}))
}

// ─── QueryTool ───────────────────────────────────────────────────────────────

// QueryTool handles the twining_query MCP tool.
type QueryTool struct {
	board *blackboard.Engine
}

// NewQueryTool creates a QueryTool.
func NewQueryTool(board *blackboard.Engine) *QueryTool {
	return &QueryTool{board: board}
}

// Definition returns the MCP tool definition for twining_query.
func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_query",
		mcp.WithDescription("Search blackboard entries by relevance to free text."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for"),
		),
		mcp.WithArray("entry_types",
			mcp.Description("Only these entry types"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 10)"),
		),
	)
}

// Handle processes the twining_query tool call.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := req.GetString("query", "")
	if q == "" {
		return invalid("query is required"), nil
	}
	results, err := t.board.Query(ctx, q, stringsArg(req, "entry_types"), intArg(req, "limit", 10))
	return respond(map[string]any{"results": results}, err)
}

// ─── RecentTool ──────────────────────────────────────────────────────────────

// RecentTool handles the twining_recent MCP tool.
type RecentTool struct {
	board *blackboard.Engine
}

// NewRecentTool creates a RecentTool.
func NewRecentTool(board *blackboard.Engine) *RecentTool {
	return &RecentTool{board: board}
}

// Definition returns the MCP tool definition for twining_recent.
func (t *RecentTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_recent",
		mcp.WithDescription("Latest blackboard entries, newest first."),
		mcp.WithNumber("n",
			mcp.Description("How many entries (default: 20)"),
		),
		mcp.WithArray("entry_types",
			mcp.Description("Only these entry types"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the twining_recent tool call.
func (t *RecentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := t.board.Recent(intArg(req, "n", 20), stringsArg(req, "entry_types"))
	return respond(map[string]any{"entries": entries}, err)
}

// ─── DismissTool ─────────────────────────────────────────────────────────────

// DismissTool handles the twining_dismiss MCP tool.
type DismissTool struct {
	board *blackboard.Engine
}

// NewDismissTool creates a DismissTool.
func NewDismissTool(board *blackboard.Engine) *DismissTool {
	return &DismissTool{board: board}
}

// Definition returns the MCP tool definition for twining_dismiss.
func (t *DismissTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_dismiss",
		mcp.WithDescription("Remove blackboard entries that are no longer relevant. Unknown ids are reported, not rejected."),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Entry IDs to remove"),
			mcp.WithStringItems(),
		),
		mcp.WithString("agent_id",
			mcp.Description("Calling agent"),
		),
	)
}

// Handle processes the twining_dismiss tool call.
func (t *DismissTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.board.Dismiss(ctx, stringsArg(req, "ids")))
}
