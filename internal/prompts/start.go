// Package prompts implements MCP prompt handlers for twining.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the twining-start MCP prompt.
// It walks an agent through joining the project before it starts work.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("twining-start",
		mcp.WithPromptDescription(
			"Start work on a task with shared context: register, assemble what other agents "+
				"already know about the scope, and record decisions as you go.",
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("What you are about to work on"),
		),
		mcp.WithArgument("scope",
			mcp.ArgumentDescription("File path or module the task touches. Default: project"),
		),
		mcp.WithArgument("agent_id",
			mcp.ArgumentDescription("Your agent name. Default: main"),
		),
	)
}

// Handle processes the twining-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	task := argOr(args, "task", "the task I describe next")
	sc := argOr(args, "scope", "project")
	agent := argOr(args, "agent_id", "main")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Start task: %s", task),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want you to work on %s in scope '%s' as agent '%s'.\n\n"+
						"Before changing anything:\n"+
						"1. Run `twining_register` with agent_id='%s' and the capabilities you bring\n"+
						"2. Run `twining_assemble` with task and scope='%s' and read every active decision and warning\n"+
						"3. If a handoff is addressed to you, run `twining_acknowledge` on it\n\n"+
						"While working:\n"+
						"- Record choices with `twining_decide`, including the alternatives you rejected\n"+
						"- Post discoveries with `twining_post` (finding, warning, need, question)\n"+
						"- Ask for help with `twining_delegate` when the work needs capabilities you lack\n\n"+
						"Before finishing, run `twining_verify` on the scope and hand off open work with `twining_handoff`.",
					task, sc, agent, agent, sc,
				)),
			},
		},
	}, nil
}

func argOr(args map[string]string, key, def string) string {
	if v, ok := args[key]; ok && v != "" {
		return v
	}
	return def
}
