// Package tools implements the twining_* MCP tool handlers.
//
// Each tool is a struct holding the engine it adapts, injected through its
// constructor. Definition returns the mcp.Tool schema and Handle converts
// arguments, calls the engine, and renders the result:
// - success is the result serialized as indented JSON text
// - failure is a tool error whose text is {"error":true,"message":...,"code":...}
//
// Tools never return a Go error; the client always gets a result it can read.
package tools

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/twining/internal/agents"
	"github.com/HendryAvila/twining/internal/apperr"
)

// Handler is the signature every tool's Handle method has.
type Handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ─── Results ─────────────────────────────────────────────────────────────────

type errorPayload struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(apperr.Internal(err, "encode result")), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult renders err as the structured tool error.
func errorResult(err error) *mcp.CallToolResult {
	data, _ := json.Marshal(errorPayload{
		Error:   true,
		Message: apperr.MessageOf(err),
		Code:    string(apperr.CodeOf(err)),
	})
	return mcp.NewToolResultError(string(data))
}

// invalid is shorthand for an INVALID_INPUT tool error.
func invalid(format string, args ...any) *mcp.CallToolResult {
	return errorResult(apperr.Invalid(format, args...))
}

// respond renders an engine call's outcome.
func respond(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(v)
}

// ─── Arguments ───────────────────────────────────────────────────────────────

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// floatArg extracts a number argument.
func floatArg(req mcp.CallToolRequest, key string, defaultVal float64) float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return v
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// boolPtrArg returns nil when the argument is absent.
func boolPtrArg(req mcp.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// stringPtrArg returns nil when the argument is absent.
func stringPtrArg(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// stringsArg extracts a string array. A plain string is split on commas so
// clients that cannot send arrays still work.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	switch v := req.GetArguments()[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// bindArgs decodes the whole argument object into v through its json tags.
func bindArgs(req mcp.CallToolRequest, v any) error {
	data, err := json.Marshal(req.GetArguments())
	if err != nil {
		return apperr.Invalid("arguments are not valid JSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Invalid("invalid arguments: %v", err)
	}
	return nil
}

// ─── Agent activity ──────────────────────────────────────────────────────────

// TouchAgents wraps h so that any call carrying agent_id refreshes that
// agent's last_active, registering it on first sight. Failures are logged.
func TouchAgents(store *agents.Store, h Handler) Handler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if id := strings.TrimSpace(req.GetString("agent_id", "")); id != "" && store != nil {
			if _, err := store.Touch(ctx, id); err != nil {
				log.Printf("WARNING: touch agent %s: %v", id, err)
			}
		}
		return h(ctx, req)
	}
}
