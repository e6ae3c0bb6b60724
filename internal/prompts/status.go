package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the twining-status MCP prompt.
// It instructs the AI to read and present the coordination state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("twining-status",
		mcp.WithPromptDescription(
			"Check the health of the shared project state: decisions, open needs, "+
				"warnings, agents, and whether the blackboard needs archiving.",
		),
	)
}

// Handle processes the twining-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Twining Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `twining_status` and `twining_summarize` to check the project.\n\n" +
						"Then:\n" +
						"1. Show the counts in a compact table\n" +
						"2. List every warning, and any provisional decision waiting for `twining_promote`\n" +
						"3. Run `twining_agents` and say who is active, idle or gone\n" +
						"4. If archiving is needed, offer to run `twining_archive`",
				),
			},
		},
	}, nil
}
