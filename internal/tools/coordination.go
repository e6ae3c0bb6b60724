package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/coordination"
	"github.com/HendryAvila/twining/internal/handoffs"
)

// ─── RegisterTool ────────────────────────────────────────────────────────────

// RegisterTool handles the twining_register MCP tool.
type RegisterTool struct {
	coord *coordination.Engine
}

// NewRegisterTool creates a RegisterTool.
func NewRegisterTool(c *coordination.Engine) *RegisterTool {
	return &RegisterTool{coord: c}
}

// Definition returns the MCP tool definition for twining_register.
func (t *RegisterTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_register",
		mcp.WithDescription(
			"Register this agent and what it can do. Registering again merges capabilities "+
				"and refreshes last_active; omitted role and description keep their stored values.",
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Unique agent name"),
		),
		mcp.WithArray("capabilities",
			mcp.Description("Capability tags, e.g. 'go', 'testing', 'frontend'"),
			mcp.WithStringItems(),
		),
		mcp.WithString("role",
			mcp.Description("Short role, e.g. 'reviewer'"),
		),
		mcp.WithString("description",
			mcp.Description("Free-form description"),
		),
	)
}

// Handle processes the twining_register tool call.
func (t *RegisterTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.coord.Register(ctx, agents.Registration{
		AgentID:      req.GetString("agent_id", ""),
		Capabilities: stringsArg(req, "capabilities"),
		Role:         stringPtrArg(req, "role"),
		Description:  stringPtrArg(req, "description"),
	}))
}

// ─── AgentsTool ──────────────────────────────────────────────────────────────

// AgentsTool handles the twining_agents MCP tool.
type AgentsTool struct {
	coord *coordination.Engine
}

// NewAgentsTool creates an AgentsTool.
func NewAgentsTool(c *coordination.Engine) *AgentsTool {
	return &AgentsTool{coord: c}
}

// Definition returns the MCP tool definition for twining_agents.
func (t *AgentsTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_agents",
		mcp.WithDescription("List registered agents with their liveness (active, idle, gone)."),
		mcp.WithBoolean("include_gone",
			mcp.Description("Include agents not seen for a long time (default: true)"),
		),
	)
}

// Handle processes the twining_agents tool call.
func (t *AgentsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.coord.Discover(ctx, coordination.DiscoverInput{IncludeGone: boolPtrArg(req, "include_gone")})
	if err != nil {
		return errorResult(err), nil
	}
	active := 0
	for _, a := range res.Agents {
		if a.Liveness == agents.Active {
			active++
		}
	}
	return jsonResult(map[string]any{
		"agents":       res.Agents,
		"total_count":  res.TotalRegistered,
		"active_count": active,
	})
}

// ─── DiscoverTool ────────────────────────────────────────────────────────────

// DiscoverTool handles the twining_discover MCP tool.
type DiscoverTool struct {
	coord *coordination.Engine
}

// NewDiscoverTool creates a DiscoverTool.
func NewDiscoverTool(c *coordination.Engine) *DiscoverTool {
	return &DiscoverTool{coord: c}
}

// Definition returns the MCP tool definition for twining_discover.
func (t *DiscoverTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_discover",
		mcp.WithDescription(
			"Rank agents by how well their capabilities match what is needed, "+
				"weighted toward agents that are still active.",
		),
		mcp.WithArray("required_capabilities",
			mcp.Required(),
			mcp.Description("Capabilities the work needs"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("include_gone",
			mcp.Description("Include gone agents (default: true)"),
		),
		mcp.WithNumber("min_score",
			mcp.Description("Drop agents scoring below this, 0 to 1 (default: 0)"),
		),
	)
}

// Handle processes the twining_discover tool call.
func (t *DiscoverTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.coord.Discover(ctx, coordination.DiscoverInput{
		RequiredCapabilities: stringsArg(req, "required_capabilities"),
		IncludeGone:          boolPtrArg(req, "include_gone"),
		MinScore:             floatArg(req, "min_score", 0),
	}))
}

// ─── DelegateTool ────────────────────────────────────────────────────────────

// DelegateTool handles the twining_delegate MCP tool.
type DelegateTool struct {
	coord *coordination.Engine
}

// NewDelegateTool creates a DelegateTool.
func NewDelegateTool(c *coordination.Engine) *DelegateTool {
	return &DelegateTool{coord: c}
}

// Definition returns the MCP tool definition for twining_delegate.
func (t *DelegateTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_delegate",
		mcp.WithDescription(
			"Ask for help: posts a need with delegation details and an expiry, "+
				"and suggests agents whose capabilities match.",
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("What needs doing, at most 200 characters"),
		),
		mcp.WithArray("required_capabilities",
			mcp.Required(),
			mcp.Description("Capabilities the work needs"),
			mcp.WithStringItems(),
		),
		mcp.WithString("urgency",
			mcp.Description("high, normal or low (default: normal); sets the expiry"),
			mcp.Enum(coordination.UrgencyHigh, coordination.UrgencyNormal, coordination.UrgencyLow),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Explicit expiry in milliseconds, overriding urgency"),
		),
		mcp.WithString("scope",
			mcp.Description("File path, module, or 'project'"),
		),
		mcp.WithArray("tags",
			mcp.Description("Extra tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("agent_id",
			mcp.Description("Delegating agent (default: main)"),
		),
	)
}

// Handle processes the twining_delegate tool call.
func (t *DelegateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.coord.PostDelegation(ctx, coordination.DelegationInput{
		Summary:              req.GetString("summary", ""),
		RequiredCapabilities: stringsArg(req, "required_capabilities"),
		Urgency:              req.GetString("urgency", ""),
		TimeoutMs:            int64(intArg(req, "timeout_ms", 0)),
		Scope:                req.GetString("scope", ""),
		Tags:                 stringsArg(req, "tags"),
		AgentID:              req.GetString("agent_id", ""),
	}))
}

// ─── HandoffTool ─────────────────────────────────────────────────────────────

// HandoffTool handles the twining_handoff MCP tool.
type HandoffTool struct {
	coord *coordination.Engine
}

// NewHandoffTool creates a HandoffTool.
func NewHandoffTool(c *coordination.Engine) *HandoffTool {
	return &HandoffTool{coord: c}
}

// Definition returns the MCP tool definition for twining_handoff.
func (t *HandoffTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_handoff",
		mcp.WithDescription(
			"Hand work over to another agent with the results so far. "+
				"Unless a snapshot is given, the decisions, warnings and findings for the scope "+
				"are captured automatically.",
		),
		mcp.WithString("source_agent",
			mcp.Required(),
			mcp.Description("Agent handing off"),
		),
		mcp.WithString("target_agent",
			mcp.Description("Agent expected to pick it up; empty for anyone"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("What is being handed over"),
		),
		mcp.WithString("scope",
			mcp.Description("File path, module, or 'project'"),
		),
		mcp.WithArray("results",
			mcp.Description("Work items and their outcome"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{"type": "string"},
					"status":      map[string]any{"type": "string", "enum": []string{"completed", "partial", "blocked", "failed"}},
					"artifacts":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"notes":       map[string]any{"type": "string"},
				},
				"required": []string{"description", "status"},
			}),
		),
		mcp.WithBoolean("auto_snapshot",
			mcp.Description("Capture scope context automatically (default: true)"),
		),
	)
}

// Handle processes the twining_handoff tool call.
func (t *HandoffTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in coordination.HandoffInput
	if err := bindArgs(req, &in); err != nil {
		return errorResult(err), nil
	}
	rec, err := t.coord.CreateHandoff(ctx, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"id":            rec.ID,
		"created_at":    rec.CreatedAt,
		"result_status": handoffs.ResultStatus(rec.Results),
		"snapshot":      rec.ContextSnapshot,
	})
}

// ─── AcknowledgeTool ─────────────────────────────────────────────────────────

// AcknowledgeTool handles the twining_acknowledge MCP tool.
type AcknowledgeTool struct {
	coord *coordination.Engine
}

// NewAcknowledgeTool creates an AcknowledgeTool.
func NewAcknowledgeTool(c *coordination.Engine) *AcknowledgeTool {
	return &AcknowledgeTool{coord: c}
}

// Definition returns the MCP tool definition for twining_acknowledge.
func (t *AcknowledgeTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_acknowledge",
		mcp.WithDescription("Mark a handoff as picked up."),
		mcp.WithString("handoff_id",
			mcp.Required(),
			mcp.Description("Handoff to acknowledge"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Agent picking it up"),
		),
	)
}

// Handle processes the twining_acknowledge tool call.
func (t *AcknowledgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.coord.AcknowledgeHandoff(ctx, req.GetString("handoff_id", ""), req.GetString("agent_id", "")))
}

// ─── HandoffsTool ────────────────────────────────────────────────────────────

// HandoffsTool handles the twining_handoffs MCP tool.
type HandoffsTool struct {
	coord *coordination.Engine
}

// NewHandoffsTool creates a HandoffsTool.
func NewHandoffsTool(c *coordination.Engine) *HandoffsTool {
	return &HandoffsTool{coord: c}
}

// Definition returns the MCP tool definition for twining_handoffs.
func (t *HandoffsTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_handoffs",
		mcp.WithDescription("List handoffs, newest first."),
		mcp.WithString("source_agent",
			mcp.Description("Only handoffs from this agent"),
		),
		mcp.WithString("target_agent",
			mcp.Description("Only handoffs to this agent"),
		),
		mcp.WithString("scope",
			mcp.Description("Only handoffs whose scope overlaps this one"),
		),
		mcp.WithString("since",
			mcp.Description("ISO 8601 timestamp"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum handoffs (default: 20)"),
		),
	)
}

// Handle processes the twining_handoffs tool call.
func (t *HandoffsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := t.coord.ListHandoffs(handoffs.ListOptions{
		SourceAgent: req.GetString("source_agent", ""),
		TargetAgent: req.GetString("target_agent", ""),
		Scope:       req.GetString("scope", ""),
		Since:       req.GetString("since", ""),
		Limit:       intArg(req, "limit", 20),
	})
	if err != nil {
		return errorResult(err), nil
	}
	if list == nil {
		list = []handoffs.IndexEntry{}
	}
	return jsonResult(map[string]any{"handoffs": list, "total_count": len(list)})
}
