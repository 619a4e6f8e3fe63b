// Package mcpshell exposes the consultation engine as an MCP stdio
// server, so coding agents and other MCP clients can convene the
// advisor panel as a tool.
package mcpshell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/conclave-ai/conclave/pkg/engine"
	"github.com/conclave-ai/conclave/pkg/models"
	"github.com/conclave-ai/conclave/pkg/version"
)

const consultToolName = "consult"

// consultSchema mirrors the engine's option set plus the question itself.
var consultSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"question": {
			"type": "string",
			"description": "The technical question to put before the panel"
		},
		"mode": {
			"type": "string",
			"enum": ["consult", "quick"],
			"description": "consult runs the full four-round deliberation; quick stops after independent positions"
		},
		"max_rounds": {
			"type": "integer",
			"enum": [1, 4],
			"description": "Cap the deliberation regardless of mode"
		},
		"verbose": {
			"type": "boolean",
			"description": "Disable inter-round artifact filtering"
		},
		"timeout_ms": {
			"type": "integer",
			"description": "Overall deadline in milliseconds, 0 for none"
		},
		"project_path": {
			"type": "string",
			"description": "Project root or document URL loaded as shared context"
		},
		"cost_consent": {
			"type": "boolean",
			"description": "Pre-answer the cost gate for runs whose estimate exceeds the threshold"
		}
	},
	"required": ["question"]
}`)

type consultArgs struct {
	Question    string `json:"question"`
	Mode        string `json:"mode,omitempty"`
	MaxRounds   int    `json:"max_rounds,omitempty"`
	Verbose     bool   `json:"verbose,omitempty"`
	TimeoutMs   int    `json:"timeout_ms,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
	CostConsent *bool  `json:"cost_consent,omitempty"`
}

// Shell serves the consult tool over an MCP transport.
type Shell struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewShell creates a Shell over the given engine.
func NewShell(eng *engine.Engine) *Shell {
	return &Shell{
		engine: eng,
		logger: slog.Default().With("component", "mcpshell"),
	}
}

// Run serves MCP over stdio until ctx is cancelled or the peer closes
// the transport.
func (s *Shell) Run(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio", "tool", consultToolName)
	return s.newServer().Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Shell) newServer() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name: consultToolName,
		Description: "Convene a panel of three advisor models to deliberate a technical " +
			"question and return the joint verdict. Blocks until the deliberation finishes.",
		InputSchema: consultSchema,
	}, s.handleConsult)
	return server
}

func (s *Shell) handleConsult(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	args, err := parseConsultArgs(req.Params.Arguments)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	opts := &engine.Options{
		Mode:        models.Mode(args.Mode),
		MaxRounds:   args.MaxRounds,
		Verbose:     args.Verbose,
		TimeoutMs:   args.TimeoutMs,
		ProjectPath: args.ProjectPath,
		CostConsent: args.CostConsent,
		// The stdio transport owns the terminal; prompts always answer
		// from policy.
		Interactive: false,
	}

	result, runErr := s.engine.Consult(ctx, args.Question, "", opts)
	if result == nil {
		return errorResult(runErr.Error()), nil
	}

	payload, merr := json.MarshalIndent(result, "", "  ")
	if merr != nil {
		return errorResult(fmt.Sprintf("failed to serialize result: %v", merr)), nil
	}

	if runErr != nil {
		// Partial results are still worth returning alongside the error.
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{
				Text: fmt.Sprintf("%v\n\n%s", runErr, payload),
			}},
			IsError: true,
		}, nil
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(payload)}},
	}, nil
}

// parseConsultArgs decodes tool arguments, rejecting unrecognised keys
// so that misspelled options fail loudly instead of being ignored.
func parseConsultArgs(raw json.RawMessage) (*consultArgs, error) {
	args := &consultArgs{}
	if len(raw) == 0 {
		return args, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(args); err != nil {
		return nil, err
	}
	return args, nil
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}
