package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/archive"
	"github.com/HendryAvila/twining/internal/export"
	"github.com/HendryAvila/twining/internal/status"
	"github.com/HendryAvila/twining/internal/verify"
)

// StatusTool handles the twining_status MCP tool.
type StatusTool struct {
	reporter *status.Reporter
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(r *status.Reporter) *StatusTool {
	return &StatusTool{reporter: r}
}

// Definition returns the MCP tool definition for twining_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_status",
		mcp.WithDescription(
			"Project health at a glance: entry, decision, graph and agent counts, last activity, "+
				"whether the blackboard needs archiving, and warnings such as stale provisional decisions.",
		),
	)
}

// Handle processes the twining_status tool call.
func (t *StatusTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.reporter.Report(ctx))
}

// ArchiveTool handles the twining_archive MCP tool.
type ArchiveTool struct {
	archiver *archive.Archiver
}

// NewArchiveTool creates an ArchiveTool.
func NewArchiveTool(a *archive.Archiver) *ArchiveTool {
	return &ArchiveTool{archiver: a}
}

// Definition returns the MCP tool definition for twining_archive.
func (t *ArchiveTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_archive",
		mcp.WithDescription(
			"Move blackboard entries older than a cutoff into the archive. "+
				"Decision entries are kept unless keep_decisions is false.",
		),
		mcp.WithString("before",
			mcp.Description("ISO 8601 cutoff (default: now)"),
		),
		mcp.WithBoolean("keep_decisions",
			mcp.Description("Keep decision entries on the blackboard (default: true)"),
		),
		mcp.WithBoolean("summarize",
			mcp.Description("Post a summary finding of what was archived (default: true)"),
		),
	)
}

// Handle processes the twining_archive tool call.
func (t *ArchiveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.archiver.Archive(ctx, archive.Input{
		Before:        req.GetString("before", ""),
		KeepDecisions: boolPtrArg(req, "keep_decisions"),
		Summarize:     boolPtrArg(req, "summarize"),
	}))
}

// ExportTool handles the twining_export MCP tool.
type ExportTool struct {
	exporter *export.Exporter
}

// NewExportTool creates an ExportTool.
func NewExportTool(x *export.Exporter) *ExportTool {
	return &ExportTool{exporter: x}
}

// Definition returns the MCP tool definition for twining_export.
func (t *ExportTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_export",
		mcp.WithDescription("Render decisions, blackboard entries and the knowledge graph as one markdown document."),
		mcp.WithString("scope",
			mcp.Description("Restrict the export to a scope (default: everything)"),
		),
	)
}

// Handle processes the twining_export tool call.
func (t *ExportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.exporter.Markdown(ctx, req.GetString("scope", "")))
}

// VerifyTool handles the twining_verify MCP tool.
type VerifyTool struct {
	engine *verify.Engine
}

// NewVerifyTool creates a VerifyTool.
func NewVerifyTool(e *verify.Engine) *VerifyTool {
	return &VerifyTool{engine: e}
}

// Definition returns the MCP tool definition for twining_verify.
func (t *VerifyTool) Definition() mcp.Tool {
	return mcp.NewTool("twining_verify",
		mcp.WithDescription(
			"Check a scope before calling work done: are decisions covered by tests, "+
				"are warnings acknowledged, were decisions made after assembling context. "+
				"The outcome is posted as a finding.",
		),
		mcp.WithString("scope",
			mcp.Required(),
			mcp.Description("File path, module, or 'project'"),
		),
		mcp.WithArray("checks",
			mcp.Description("Checks to run (default: all)"),
			mcp.WithStringItems(mcp.Enum(verify.AllChecks...)),
		),
		mcp.WithString("agent_id",
			mcp.Description("Verifying agent (default: main)"),
		),
	)
}

// Handle processes the twining_verify tool call.
func (t *VerifyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.engine.Verify(ctx, verify.Input{
		Scope:   req.GetString("scope", ""),
		Checks:  stringsArg(req, "checks"),
		AgentID: req.GetString("agent_id", ""),
	}))
}
