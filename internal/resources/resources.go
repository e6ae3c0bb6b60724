// Package resources implements MCP resource handlers for twining.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (twining://...) following MCP conventions.
package resources

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/status"
)

// Resource URIs.
const (
	StatusURI    = "twining://status"
	DecisionsURI = "twining://decisions"
)

// Handler manages twining resource endpoints.
type Handler struct {
	reporter  *status.Reporter
	decisions *decisions.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(r *status.Reporter, d *decisions.Store) *Handler {
	return &Handler{reporter: r, decisions: d}
}

// StatusResource returns the MCP resource definition for project status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		StatusURI,
		"Twining Status",
		mcp.WithResourceDescription("Entry, decision, graph and agent counts with health warnings"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the current status report as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	rep, err := h.reporter.Report(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, rep)
}

// DecisionsResource returns the MCP resource definition for the decision index.
func (h *Handler) DecisionsResource() mcp.Resource {
	return mcp.NewResource(
		DecisionsURI,
		"Twining Decisions",
		mcp.WithResourceDescription("Index of every recorded decision with its scope and status"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleDecisions returns the decision index as JSON.
func (h *Handler) HandleDecisions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	idx, err := h.decisions.Index()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	if idx == nil {
		idx = []decisions.IndexEntry{}
	}
	return jsonResource(req.Params.URI, idx)
}
