package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/assemble"
)

// AssembleTool handles the twining_assemble MCP tool.
// It builds a token-budgeted briefing for a task.
type AssembleTool struct {
	assembler *assemble.Assembler
}

// NewAssembleTool creates an AssembleTool with its dependencies.
func NewAssembleTool(a *assemble.Assembler) *AssembleTool {
	return &AssembleTool{assembler: a}
}

// Definition returns the MCP tool definition for registration.
func (t *AssembleTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_assemble",
		mcp.WithDescription(
			"Assemble the context an agent needs before working on a task: "+
				"decisions in force, open needs, recent findings, warnings and questions for the scope, "+
				"plus related graph entities, recent handoffs and agents able to help. "+
				"Items are ranked by recency, relevance, confidence and graph connectivity and cut to fit max_tokens. "+
				"Call this BEFORE making decisions; twining_decide flags decisions made without it.",
		),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("What you are about to do"),
		),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("File path, module, or 'project'"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget for the briefing (default from config, 4000)"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Assembling agent (default: main)"),
		),
	)
}

// Handle processes the twining_assemble tool call.
func (t *AssembleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := strings.TrimSpace(req.GetString("task", ""))
	if task == "" {
		return invalid("task is required"), nil
	}
	return respond(t.assembler.Assemble(ctx, assemble.Input{
		Task:      task,
		Scope:     req.GetString("scope", ""),
		MaxTokens: intArg(req, "max_tokens", 0),
		AgentID:   req.GetString("agent_id", ""),
	}))
}

// SummarizeTool handles the twining_summarize MCP tool.
type SummarizeTool struct {
	assembler *assemble.Assembler
}

// NewSummarizeTool creates a SummarizeTool.
func NewSummarizeTool(a *assemble.Assembler) *SummarizeTool {
	return &SummarizeTool{assembler: a}
}

// Definition returns the MCP tool definition for registration.
func (t *SummarizeTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_summarize",
		mcp.WithDescription(
			"Counts for a scope: active and provisional decisions, open needs, active warnings, "+
				"unanswered questions, and the last 24 hours of activity.",
		),
		mcp.WithString("scope",
			mcp.Description("File path or module. Leave empty or 'project' for everything."),
		),
	)
}

// Handle processes the twining_summarize tool call.
func (t *SummarizeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.assembler.Summarize(ctx, req.GetString("scope", "")))
}

// WhatChangedTool handles the twining_what_changed MCP tool.
type WhatChangedTool struct {
	assembler *assemble.Assembler
}

// NewWhatChangedTool creates a WhatChangedTool.
func NewWhatChangedTool(a *assemble.Assembler) *WhatChangedTool {
	return &WhatChangedTool{assembler: a}
}

// Definition returns the MCP tool definition for registration.
func (t *WhatChangedTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_what_changed",
		mcp.WithDescription(
			"Everything that happened since a timestamp: new decisions, new blackboard entries, "+
				"and decisions that were overridden or flagged for reconsideration.",
		),
		mcp.WithString("since",
			mcp.Required(),
			mcp.Description("ISO 8601 timestamp"),
		),
		mcp.WithString("scope",
			mcp.Description("Restrict to a scope"),
		),
	)
}

// Handle processes the twining_what_changed tool call.
func (t *WhatChangedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.assembler.WhatChanged(ctx, req.GetString("since", ""), req.GetString("scope", "")))
}
