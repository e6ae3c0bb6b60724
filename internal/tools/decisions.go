package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/decisions"
)

// ─── DecideTool ──────────────────────────────────────────────────────────────

// DecideTool handles the twining_decide MCP tool.
type DecideTool struct {
	engine *decisions.Engine
}

// NewDecideTool creates a DecideTool.
func NewDecideTool(e *decisions.Engine) *DecideTool {
	return &DecideTool{engine: e}
}

// Definition returns the MCP tool definition for twining_decide.
func (t *DecideTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_decide",
		mcp.WithDescription(
			"Record a decision with its rationale and rejected alternatives. "+
				"The decision is cross-posted to the blackboard. If an active decision in an overlapping "+
				"scope and the same domain says something different, the new one is stored as provisional "+
				"and a warning is posted naming the conflicts.",
		),
		mcp.WithString("domain",
			mcp.Required(),
			mcp.Description("Area of concern, e.g. 'architecture', 'testing', 'api'"),
		),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("File path, module, or 'project'"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("One-line summary, at most 200 characters"),
		),
		mcp.WithString("context",
			mcp.Required(),
			mcp.Description("Situation that forced the decision"),
		),
		mcp.WithString("rationale",
			mcp.Required(),
			mcp.Description("Why this option was chosen"),
		),
		mcp.WithArray("constraints",
			mcp.Description("Constraints the decision respects"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("alternatives",
			mcp.Description("Options considered and rejected"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"option":          map[string]any{"type": "string"},
					"pros":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"cons":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"reason_rejected": map[string]any{"type": "string"},
				},
				"required": []string{"option"},
			}),
		),
		mcp.WithArray("depends_on",
			mcp.Description("IDs of decisions this one builds on"),
			mcp.WithStringItems(),
		),
		mcp.WithString("supersedes",
			mcp.Description("ID of a decision this one replaces"),
		),
		mcp.WithString("confidence",
			mcp.Description("high, medium or low (default: medium)"),
			mcp.Enum("high", "medium", "low"),
		),
		mcp.WithBoolean("reversible",
			mcp.Description("Whether the decision is cheap to undo (default: true)"),
		),
		mcp.WithArray("affected_files",
			mcp.Description("Files the decision touches"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("affected_symbols",
			mcp.Description("Functions, types or symbols the decision touches"),
			mcp.WithStringItems(),
		),
		mcp.WithString("commit_hash",
			mcp.Description("Commit that implements the decision"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Deciding agent (default: main)"),
		),
	)
}

// Handle processes the twining_decide tool call.
func (t *DecideTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in decisions.DecideInput
	if err := bindArgs(req, &in); err != nil {
		return errorResult(err), nil
	}
	return respond(t.engine.Decide(ctx, in))
}

// ─── WhyTool ─────────────────────────────────────────────────────────────────

// WhyTool handles the twining_why MCP tool.
type WhyTool struct {
	engine *decisions.Engine
}

// NewWhyTool creates a WhyTool.
func NewWhyTool(e *decisions.Engine) *WhyTool {
	return &WhyTool{engine: e}
}

// Definition returns the MCP tool definition for twining_why.
func (t *WhyTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_why",
		mcp.WithDescription("Explain which decisions govern a file, module or scope, newest first."),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("File path or module to explain"),
		),
	)
}

// Handle processes the twining_why tool call.
func (t *WhyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc := req.GetString("scope", "")
	if sc == "" {
		return invalid("scope is required"), nil
	}
	return respond(t.engine.Why(ctx, sc))
}

// ─── TraceTool ───────────────────────────────────────────────────────────────

// TraceTool handles the twining_trace MCP tool.
type TraceTool struct {
	engine *decisions.Engine
}

// NewTraceTool creates a TraceTool.
func NewTraceTool(e *decisions.Engine) *TraceTool {
	return &TraceTool{engine: e}
}

// Definition returns the MCP tool definition for twining_trace.
func (t *TraceTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_trace",
		mcp.WithDescription("Follow a decision's depends_on chain upstream, its dependents downstream, or both."),
		mcp.WithString("decision_id",
			mcp.Required(),
			mcp.Description("Decision to start from"),
		),
		mcp.WithString("direction",
			mcp.Description("upstream, downstream or both (default: both)"),
			mcp.Enum(decisions.DirectionUpstream, decisions.DirectionDownstream, decisions.DirectionBoth),
		),
	)
}

// Handle processes the twining_trace tool call.
func (t *TraceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.engine.Trace(ctx,
		req.GetString("decision_id", ""),
		req.GetString("direction", decisions.DirectionBoth),
	))
}

// ─── ReconsiderTool ──────────────────────────────────────────────────────────

// ReconsiderTool handles the twining_reconsider MCP tool.
type ReconsiderTool struct {
	engine *decisions.Engine
}

// NewReconsiderTool creates a ReconsiderTool.
func NewReconsiderTool(e *decisions.Engine) *ReconsiderTool {
	return &ReconsiderTool{engine: e}
}

// Definition returns the MCP tool definition for twining_reconsider.
func (t *ReconsiderTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_reconsider",
		mcp.WithDescription(
			"Flag an active decision for reconsideration. It drops back to provisional "+
				"and a warning lists how many decisions depend on it.",
		),
		mcp.WithString("decision_id",
			mcp.Required(),
			mcp.Description("Decision to reconsider"),
		),
		mcp.WithString("new_context",
			mcp.Required(),
			mcp.Description("What changed since the decision was made"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Calling agent"),
		),
	)
}

// Handle processes the twining_reconsider tool call.
func (t *ReconsiderTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.engine.Reconsider(ctx,
		req.GetString("decision_id", ""),
		req.GetString("new_context", ""),
		req.GetString("agent_id", ""),
	))
}

// ─── OverrideTool ────────────────────────────────────────────────────────────

// OverrideTool handles the twining_override MCP tool.
type OverrideTool struct {
	engine *decisions.Engine
}

// NewOverrideTool creates an OverrideTool.
func NewOverrideTool(e *decisions.Engine) *OverrideTool {
	return &OverrideTool{engine: e}
}

// Definition returns the MCP tool definition for twining_override.
func (t *OverrideTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_override",
		mcp.WithDescription(
			"Override a decision. Optionally records a replacement decision in the same "+
				"domain and scope. Overridden is terminal.",
		),
		mcp.WithString("decision_id",
			mcp.Required(),
			mcp.Description("Decision to override"),
		),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("Why it is being overridden"),
		),
		mcp.WithString("new_decision",
			mcp.Description("Summary of the replacement decision, if any"),
		),
		mcp.WithString("overridden_by",
			mcp.Description("Who overrode it (default: human)"),
		),
	)
}

// Handle processes the twining_override tool call.
func (t *OverrideTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.engine.Override(ctx, decisions.OverrideInput{
		DecisionID:   req.GetString("decision_id", ""),
		Reason:       req.GetString("reason", ""),
		NewSummary:   req.GetString("new_decision", ""),
		OverriddenBy: req.GetString("overridden_by", ""),
	}))
}

// ─── PromoteTool ─────────────────────────────────────────────────────────────

// PromoteTool handles the twining_promote MCP tool.
type PromoteTool struct {
	engine *decisions.Engine
}

// NewPromoteTool creates a PromoteTool.
func NewPromoteTool(e *decisions.Engine) *PromoteTool {
	return &PromoteTool{engine: e}
}

// Definition returns the MCP tool definition for twining_promote.
func (t *PromoteTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_promote",
		mcp.WithDescription("Promote provisional decisions to active. Each id is reported under exactly one outcome."),
		mcp.WithArray("decision_ids",
			mcp.Required(),
			mcp.Description("Decisions to promote"),
			mcp.WithStringItems(),
		),
		mcp.WithString("agent_id",
			mcp.Description("Calling agent"),
		),
	)
}

// Handle processes the twining_promote tool call.
func (t *PromoteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.engine.Promote(ctx, stringsArg(req, "decision_ids"), req.GetString("agent_id", "")))
}

// ─── LinkCommitTool ──────────────────────────────────────────────────────────

// LinkCommitTool handles the twining_link_commit MCP tool.
type LinkCommitTool struct {
	engine *decisions.Engine
}

// NewLinkCommitTool creates a LinkCommitTool.
func NewLinkCommitTool(e *decisions.Engine) *LinkCommitTool {
	return &LinkCommitTool{engine: e}
}

// Definition returns the MCP tool definition for twining_link_commit.
func (t *LinkCommitTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_link_commit",
		mcp.WithDescription("Attach a commit hash to an existing decision."),
		mcp.WithString("decision_id",
			mcp.Required(),
			mcp.Description("Decision to link"),
		),
		mcp.WithString("commit_hash",
			mcp.Required(),
			mcp.Description("Commit hash"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Calling agent"),
		),
	)
}

// Handle processes the twining_link_commit tool call.
func (t *LinkCommitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, err := t.engine.LinkCommit(ctx,
		req.GetString("decision_id", ""),
		req.GetString("commit_hash", ""),
		req.GetString("agent_id", ""),
	)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"linked": true, "decision_id": d.ID, "commit_hashes": d.CommitHashes})
}

// ─── CommitsTool ─────────────────────────────────────────────────────────────

// CommitsTool handles the twining_commits MCP tool.
type CommitsTool struct {
	engine *decisions.Engine
}

// NewCommitsTool creates a CommitsTool.
func NewCommitsTool(e *decisions.Engine) *CommitsTool {
	return &CommitsTool{engine: e}
}

// Definition returns the MCP tool definition for twining_commits.
func (t *CommitsTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_commits",
		mcp.WithDescription("List the decisions linked to a commit hash."),
		mcp.WithString("commit_hash",
			mcp.Required(),
			mcp.Description("Commit hash to look up"),
		),
	)
}

// Handle processes the twining_commits tool call.
func (t *CommitsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash := req.GetString("commit_hash", "")
	if hash == "" {
		return invalid("commit_hash is required"), nil
	}
	ds, err := t.engine.CommitDecisions(ctx, hash)
	if err != nil {
		return errorResult(err), nil
	}
	if ds == nil {
		ds = []decisions.Decision{}
	}
	return jsonResult(map[string]any{"commit_hash": hash, "decisions": ds})
}
