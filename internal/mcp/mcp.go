// Package mcp implements the Model Context Protocol server for Reprise.
//
// The MCP server exposes the same capabilities as the HTTP API through
// MCP resources and tools, allowing MCP-compatible AI agents to manage
// prompt versions, execute runs, and evaluate output.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/reprise-ai/reprise/internal/service/eval"
	"github.com/reprise-ai/reprise/internal/service/prompts"
	"github.com/reprise-ai/reprise/internal/service/runs"
)

// Server wraps the MCP server with Reprise's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	promptSvc *prompts.Service
	runSvc    *runs.Service
	evalSvc   *eval.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(promptSvc *prompts.Service, runSvc *runs.Service, evalSvc *eval.Service, logger *slog.Logger) *Server {
	s := &Server{
		promptSvc: promptSvc,
		runSvc:    runSvc,
		evalSvc:   evalSvc,
		logger:    logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"reprise",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// reprise://prompts/recent — recently registered prompts.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"reprise://prompts/recent",
			"Recent Prompts",
			mcplib.WithResourceDescription("Recently registered prompt documents"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePromptsRecent,
	)

	// reprise://prompt/{id}/events — a prompt's full event log.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"reprise://prompt/{id}/events",
			"Prompt Event Log",
			mcplib.WithTemplateDescription("Append-only event log for a specific prompt"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handlePromptEvents,
	)
}

func (s *Server) handlePromptsRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	list, err := s.promptSvc.List(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent prompts: %w", err)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal prompts: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "reprise://prompts/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePromptEvents(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	var rawID string
	if _, err := fmt.Sscanf(uri, "reprise://prompt/%s", &rawID); err != nil {
		return nil, fmt.Errorf("mcp: invalid prompt events URI: %s", uri)
	}
	if len(rawID) > 7 && rawID[len(rawID)-7:] == "/events" {
		rawID = rawID[:len(rawID)-7]
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("mcp: invalid prompt id in URI %s: %w", uri, err)
	}

	events, err := s.promptSvc.Events(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: prompt events: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"prompt_id": id,
		"events":    events,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal events: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
