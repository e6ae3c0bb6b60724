// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the stores and engines for one
// project and injects them into the tools, prompts and resources that
// depend on them. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/archive"
	"github.com/HendryAvila/twining/internal/assemble"
	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/coordination"
	"github.com/HendryAvila/twining/internal/decisions"
	"github.com/HendryAvila/twining/internal/export"
	"github.com/HendryAvila/twining/internal/graph"
	"github.com/HendryAvila/twining/internal/handoffs"
	"github.com/HendryAvila/twining/internal/notify"
	"github.com/HendryAvila/twining/internal/pending"
	"github.com/HendryAvila/twining/internal/planning"
	"github.com/HendryAvila/twining/internal/prompts"
	"github.com/HendryAvila/twining/internal/resources"
	"github.com/HendryAvila/twining/internal/search"
	"github.com/HendryAvila/twining/internal/status"
	"github.com/HendryAvila/twining/internal/templates"
	"github.com/HendryAvila/twining/internal/tokens"
	"github.com/HendryAvila/twining/internal/tools"
	"github.com/HendryAvila/twining/internal/verify"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Stack holds every store and engine of one project.
type Stack struct {
	ProjectRoot string
	Dir         string
	Config      config.Config

	Board        *blackboard.Engine
	Decisions    *decisions.Engine
	Graph        *graph.Engine
	Agents       *agents.Store
	Handoffs     *handoffs.Store
	Coordination *coordination.Engine
	Assembler    *assemble.Assembler
	Archiver     *archive.Archiver
	Verifier     *verify.Engine
	Exporter     *export.Exporter
	Status       *status.Reporter
	Pending      *pending.Processor
	Renderer     templates.Renderer

	closers []func() error
}

// Open initializes the twining directory under projectRoot if needed and
// builds the stack. Optional subsystems (relevance index, Redis events,
// tiktoken) degrade with a warning instead of failing.
func Open(projectRoot string) (*Stack, error) {
	dir, err := config.Init(projectRoot)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		log.Printf("WARNING: %v; using defaults", err)
		cfg = config.Default()
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("creating template renderer: %w", err)
	}

	st := &Stack{ProjectRoot: projectRoot, Dir: dir, Config: cfg, Renderer: renderer}

	// --- Stores and engines ---

	st.Board = blackboard.NewEngine(blackboard.NewStore(dir))
	dstore := decisions.NewStore(dir)
	st.Decisions = decisions.NewEngine(dstore, st.Board)
	gstore := graph.NewStore(dir)
	st.Graph = graph.NewEngine(gstore)
	st.Agents = agents.NewStore(dir)
	st.Handoffs = handoffs.NewStore(dir)
	st.Coordination = coordination.NewEngine(st.Agents, st.Handoffs, st.Board, dstore, cfg)

	st.Assembler = assemble.New(dstore, st.Board.Store(), st.Graph, cfg)
	st.Assembler.SetHandoffs(st.Handoffs)
	st.Assembler.SetAgents(st.Agents)
	st.Assembler.SetPlanning(planning.NewBridge(projectRoot))
	st.Decisions.SetAssemblyChecker(st.Assembler.Tracker())

	counter, err := tokens.New(cfg.ContextAssembly.Tokenizer)
	if err != nil {
		log.Printf("WARNING: tokenizer %q unavailable, using heuristic: %v", cfg.ContextAssembly.Tokenizer, err)
	} else {
		st.Assembler.SetCounter(counter)
	}

	st.Archiver = archive.New(dir, st.Board)
	st.Verifier = verify.NewEngine(dstore, st.Board, st.Graph)
	st.Exporter = export.New(st.Board.Store(), dstore, gstore, renderer)
	st.Status = status.New(projectRoot, st.Board.Store(), dstore, gstore, st.Agents, cfg)
	st.Pending = pending.New(dir, st.Board, st.Archiver)

	// --- Relevance index ---
	//
	// Without the index every engine keeps ranking by keywords.

	if ix, err := search.Open(dir); err != nil {
		log.Printf("WARNING: relevance index disabled: %v", err)
	} else {
		st.Board.SetSearcher(ix)
		st.Decisions.SetSearcher(ix)
		st.Assembler.SetRanker(ix)
		st.closers = append(st.closers, ix.Close)
	}

	// --- Event fan-out ---

	if cfg.Notify.RedisAddr != "" {
		pub, err := notify.NewRedisPublisher(&redis.Options{Addr: cfg.Notify.RedisAddr}, cfg.Notify.Channel)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = pub.Ping(ctx)
			cancel()
			if err != nil {
				_ = pub.Close()
			}
		}
		if err != nil {
			log.Printf("WARNING: event notifications disabled: %v", err)
		} else {
			st.Board.SetNotifier(pub)
			st.Decisions.SetNotifier(pub)
			st.closers = append(st.closers, pub.Close)
		}
	}

	return st, nil
}

// Close releases the index and the Redis connection.
func (st *Stack) Close() {
	for _, c := range st.closers {
		if err := c(); err != nil {
			log.Printf("WARNING: close: %v", err)
		}
	}
	st.closers = nil
}

// Tool is what every handler in the tools package provides.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates and configures the MCP server for projectRoot with all tools,
// prompts, and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function closes the index and Redis connections and
// must be called on shutdown (typically via defer). It is always non-nil.
func New(projectRoot string) (*server.MCPServer, func(), error) {
	st, err := Open(projectRoot)
	if err != nil {
		return nil, noop, err
	}

	// Entries queued by hooks while no server was running.
	if res := st.Pending.Run(context.Background()); res.PostsProcessed+res.ActionsProcessed > 0 {
		log.Printf("processed %d queued posts and %d queued actions", res.PostsProcessed, res.ActionsProcessed)
	}
	if archive.NeedsArchive(countEntries(st), st.Config) {
		log.Printf("WARNING: blackboard has more than %d entries; run twining_archive", st.Config.Archive.MaxBlackboardEntriesBeforeArchive)
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"twining",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---
	//
	// Every handler refreshes the calling agent's last_active.

	for _, t := range Tools(st) {
		s.AddTool(t.Definition(), server.ToolHandlerFunc(tools.TouchAgents(st.Agents, t.Handle)))
	}

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(st.Status, st.Decisions.Store())
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)
	s.AddResource(resourceHandler.DecisionsResource(), resourceHandler.HandleDecisions)

	return s, st.Close, nil
}

// Tools builds every twining_* tool over st, in registration order.
func Tools(st *Stack) []Tool {
	return []Tool{
		// --- Blackboard ---
		tools.NewPostTool(st.Board),
		tools.NewReadTool(st.Board),
		tools.NewQueryTool(st.Board),
		tools.NewRecentTool(st.Board),
		tools.NewDismissTool(st.Board),

		// --- Decisions ---
		tools.NewDecideTool(st.Decisions),
		tools.NewWhyTool(st.Decisions),
		tools.NewTraceTool(st.Decisions),
		tools.NewReconsiderTool(st.Decisions),
		tools.NewOverrideTool(st.Decisions),
		tools.NewPromoteTool(st.Decisions),
		tools.NewLinkCommitTool(st.Decisions),
		tools.NewCommitsTool(st.Decisions),

		// --- Context ---
		tools.NewAssembleTool(st.Assembler),
		tools.NewSummarizeTool(st.Assembler),
		tools.NewWhatChangedTool(st.Assembler),

		// --- Knowledge graph ---
		tools.NewAddEntityTool(st.Graph),
		tools.NewAddRelationTool(st.Graph),
		tools.NewNeighborsTool(st.Graph),
		tools.NewGraphQueryTool(st.Graph),
		tools.NewPruneGraphTool(st.Graph),

		// --- Coordination ---
		tools.NewRegisterTool(st.Coordination),
		tools.NewAgentsTool(st.Coordination),
		tools.NewDiscoverTool(st.Coordination),
		tools.NewDelegateTool(st.Coordination),
		tools.NewHandoffTool(st.Coordination),
		tools.NewAcknowledgeTool(st.Coordination),
		tools.NewHandoffsTool(st.Coordination),

		// --- Lifecycle ---
		tools.NewStatusTool(st.Status),
		tools.NewArchiveTool(st.Archiver),
		tools.NewExportTool(st.Exporter),
		tools.NewVerifyTool(st.Verifier),
	}
}

func countEntries(st *Stack) int {
	all, err := st.Board.Store().All()
	if err != nil {
		log.Printf("WARNING: count blackboard entries: %v", err)
		return 0
	}
	return len(all)
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use twining effectively.
func serverInstructions() string {
	return `You have access to twining, a shared memory for agents working on the same codebase.

## What twining holds
- A BLACKBOARD of short entries: findings, warnings, needs, offers, questions, answers, status, artifacts
- A DECISION LOG with rationale, rejected alternatives, dependencies and commit links
- A KNOWLEDGE GRAPH of code entities (files, modules, functions) and how they relate
- An AGENT REGISTRY with capabilities, plus delegations and handoffs between agents

## Before you work
1. twining_register once per session with your agent_id and capabilities
2. twining_assemble with the task and scope you are about to touch
   Read every active decision and warning it returns. Decisions made without
   assembling first are flagged.

## While you work
- twining_decide for any choice another agent would need to know about.
  Always include what you rejected and why.
- twining_post for findings, warnings and needs. Keep summaries to one line.
- twining_why before changing a file to see which decisions govern it.
- twining_add_entity / twining_add_relation when you learn how code fits together.
  Use tested_by relations so verification can see test coverage.

## When decisions collide
A decision in the same domain and overlapping scope as an active one is stored
as provisional and a warning is posted. Do not silently pick one: ask the
human, then twining_promote or twining_override.

## Before you stop
- twining_verify on the scope you worked in
- twining_handoff with results (completed, partial, blocked, failed) if work remains
- twining_link_commit when your decisions land in a commit

## Scopes
A scope is a path prefix such as "src/auth/" or a file such as "src/auth/jwt.go".
Scopes overlap when one is a prefix of the other. "project" means everything.

Every tool returns JSON. Errors carry {"error": true, "message", "code"} with code
INVALID_INPUT, NOT_FOUND, AMBIGUOUS_ENTITY or INTERNAL_ERROR.`
}
