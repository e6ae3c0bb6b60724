package resources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/graph"
	"github.com/HendryAvila/twining/internal/status"
)

func newTestHandler(t *testing.T) (*Handler, *decisions.Engine) {
	t.Helper()
	dir := t.TempDir()
	board := blackboard.NewEngine(blackboard.NewStore(dir))
	dstore := decisions.NewStore(dir)
	rep := status.New(dir, board.Store(), dstore, graph.NewStore(dir), agents.NewStore(dir), config.Default())
	return NewHandler(rep, dstore), decisions.NewEngine(dstore, board)
}

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func text(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	return tc
}

func TestHandleStatus(t *testing.T) {
	h, _ := newTestHandler(t)
	contents, err := h.HandleStatus(context.Background(), readReq(StatusURI))
	if err != nil {
		t.Fatalf("HandleStatus: %v", err)
	}
	tc := text(t, contents)
	if tc.MIMEType != "application/json" || tc.URI != StatusURI {
		t.Errorf("content = %+v", tc)
	}
	var rep status.Report
	if err := json.Unmarshal([]byte(tc.Text), &rep); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
}

func TestHandleDecisions(t *testing.T) {
	h, dec := newTestHandler(t)

	contents, err := h.HandleDecisions(context.Background(), readReq(DecisionsURI))
	if err != nil {
		t.Fatalf("HandleDecisions: %v", err)
	}
	if got := text(t, contents).Text; got != "[]" {
		t.Errorf("empty index = %q, want []", got)
	}

	if _, err := dec.Decide(context.Background(), decisions.DecideInput{
		Domain: "api", Scope: "src/api/", Summary: "REST over gRPC", Context: "browsers", Rationale: "tooling",
	}); err != nil {
		t.Fatal(err)
	}
	contents, err = h.HandleDecisions(context.Background(), readReq(DecisionsURI))
	if err != nil {
		t.Fatal(err)
	}
	var idx []decisions.IndexEntry
	if err := json.Unmarshal([]byte(text(t, contents).Text), &idx); err != nil {
		t.Fatalf("index is not JSON: %v", err)
	}
	if len(idx) != 1 || idx[0].Summary != "REST over gRPC" {
		t.Errorf("index = %+v", idx)
	}
}

func TestResourceDefinitions(t *testing.T) {
	h, _ := newTestHandler(t)
	if r := h.StatusResource(); r.URI != StatusURI {
		t.Errorf("status URI = %q", r.URI)
	}
	if r := h.DecisionsResource(); r.URI != DecisionsURI {
		t.Errorf("decisions URI = %q", r.URI)
	}
}
