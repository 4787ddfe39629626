package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/service/runs"
)

func (s *Server) registerTools() {
	// reprise_create_prompt — register a new prompt document.
	s.mcpServer.AddTool(
		mcplib.NewTool("reprise_create_prompt",
			mcplib.WithDescription("Register a new prompt document with an initial text version"),
			mcplib.WithString("name", mcplib.Description("Human-readable prompt name"), mcplib.Required()),
			mcplib.WithString("text", mcplib.Description("Initial prompt text")),
		),
		s.handleCreatePrompt,
	)

	// reprise_set_text — append a full-text replacement event.
	s.mcpServer.AddTool(
		mcplib.NewTool("reprise_set_text",
			mcplib.WithDescription("Append a new version of the prompt text. Prior versions remain in the event log."),
			mcplib.WithString("prompt_id", mcplib.Description("Prompt UUID"), mcplib.Required()),
			mcplib.WithString("text", mcplib.Description("Full replacement text"), mcplib.Required()),
			mcplib.WithString("note", mcplib.Description("Optional change note")),
		),
		s.handleSetText,
	)

	// reprise_get_text — project the prompt text, optionally at a past version.
	s.mcpServer.AddTool(
		mcplib.NewTool("reprise_get_text",
			mcplib.WithDescription("Get the prompt text, either current or as of a past event sequence"),
			mcplib.WithString("prompt_id", mcplib.Description("Prompt UUID"), mcplib.Required()),
			mcplib.WithNumber("at", mcplib.Description("Event sequence to project at; omit for latest")),
		),
		s.handleGetText,
	)

	// reprise_rollback — restore a prior version by appending a rollback event.
	s.mcpServer.AddTool(
		mcplib.NewTool("reprise_rollback",
			mcplib.WithDescription("Roll the prompt text back to a prior event. The log is append-only; history is preserved."),
			mcplib.WithString("prompt_id", mcplib.Description("Prompt UUID"), mcplib.Required()),
			mcplib.WithNumber("target_seq", mcplib.Description("Event sequence to restore"), mcplib.Required()),
			mcplib.WithString("note", mcplib.Description("Optional change note")),
		),
		s.handleRollback,
	)

	// reprise_save_criteria — save a new criteria snapshot version.
	s.mcpServer.AddTool(
		mcplib.NewTool("reprise_save_criteria",
			mcplib.WithDescription("Save evaluation criteria for a prompt as a new immutable snapshot version. "+
				"Items is a JSON array of {key, desc, type, weight, reference}."),
			mcplib.WithString("prompt_id", mcplib.Description("Prompt UUID"), mcplib.Required()),
			mcplib.WithString("items", mcplib.Description("Criteria items as a JSON array"), mcplib.Required()),
		),
		s.handleSaveCriteria,
	)

	// reprise_run — execute the prompt against an input.
	s.mcpServer.AddTool(
		mcplib.NewTool("reprise_run",
			mcplib.WithDescription("Execute the prompt's current text against an input and record the run"),
			mcplib.WithString("prompt_id", mcplib.Description("Prompt UUID"), mcplib.Required()),
			mcplib.WithString("input_text", mcplib.Description("Input to run the prompt against"), mcplib.Required()),
			mcplib.WithString("model", mcplib.Description("Model override")),
		),
		s.handleRun,
	)

	// reprise_evaluate — score a completed run.
	s.mcpServer.AddTool(
		mcplib.NewTool("reprise_evaluate",
			mcplib.WithDescription("Evaluate a completed run against the criteria version bound at its creation"),
			mcplib.WithString("run_id", mcplib.Description("Run UUID"), mcplib.Required()),
		),
		s.handleEvaluate,
	)
}

func (s *Server) handleCreatePrompt(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name := request.GetString("name", "")
	if name == "" {
		return errorResult("name is required"), nil
	}
	p, err := s.promptSvc.Create(ctx, name, request.GetString("text", ""))
	if err != nil {
		return errorResult(fmt.Sprintf("failed to create prompt: %v", err)), nil
	}
	return jsonResult(map[string]any{"prompt_id": p.ID, "name": p.Name, "status": "created"}), nil
}

func (s *Server) handleSetText(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("prompt_id", ""))
	if err != nil {
		return errorResult("prompt_id must be a valid UUID"), nil
	}
	text := request.GetString("text", "")
	if text == "" {
		return errorResult("text is required"), nil
	}
	e, err := s.promptSvc.AppendText(ctx, id, text, request.GetString("note", ""))
	if err != nil {
		return errorResult(fmt.Sprintf("failed to append text: %v", err)), nil
	}
	return jsonResult(map[string]any{"prompt_id": id, "seq": e.Seq, "status": "appended"}), nil
}

func (s *Server) handleGetText(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("prompt_id", ""))
	if err != nil {
		return errorResult("prompt_id must be a valid UUID"), nil
	}
	at := int64(request.GetInt("at", 0))
	text, seq, err := s.promptSvc.TextAt(ctx, id, at)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to project text: %v", err)), nil
	}
	return jsonResult(map[string]any{"prompt_id": id, "text": text, "as_of_seq": seq}), nil
}

func (s *Server) handleRollback(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("prompt_id", ""))
	if err != nil {
		return errorResult("prompt_id must be a valid UUID"), nil
	}
	target := int64(request.GetInt("target_seq", 0))
	if target < 1 {
		return errorResult("target_seq must be a positive integer"), nil
	}
	e, err := s.promptSvc.Rollback(ctx, id, target, request.GetString("note", ""))
	if err != nil {
		return errorResult(fmt.Sprintf("failed to roll back: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"prompt_id":  id,
		"seq":        e.Seq,
		"target_seq": target,
		"status":     "rolled back",
	}), nil
}

func (s *Server) handleSaveCriteria(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("prompt_id", ""))
	if err != nil {
		return errorResult("prompt_id must be a valid UUID"), nil
	}
	var items []model.CriterionItem
	if err := json.Unmarshal([]byte(request.GetString("items", "")), &items); err != nil {
		return errorResult(fmt.Sprintf("items must be a JSON array of criteria: %v", err)), nil
	}
	snap, err := s.promptSvc.SaveCriteria(ctx, id, items)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to save criteria: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"prompt_id": id,
		"version":   snap.Version,
		"items":     len(snap.Items),
		"status":    "saved",
	}), nil
}

func (s *Server) handleRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("prompt_id", ""))
	if err != nil {
		return errorResult("prompt_id must be a valid UUID"), nil
	}
	input := request.GetString("input_text", "")
	if input == "" {
		return errorResult("input_text is required"), nil
	}
	run, err := s.runSvc.Execute(ctx, runs.Input{
		PromptID:  id,
		InputText: input,
		Model:     request.GetString("model", ""),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("run failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"run_id":           run.ID,
		"prompt_event_seq": run.PromptEventSeq,
		"criteria_version": run.CriteriaVersion,
		"output_text":      run.OutputText,
		"status":           run.Status,
	}), nil
}

func (s *Server) handleEvaluate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("run_id", ""))
	if err != nil {
		return errorResult("run_id must be a valid UUID"), nil
	}
	e, err := s.evalSvc.Evaluate(ctx, id)
	if err != nil {
		return errorResult(fmt.Sprintf("evaluation failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"evaluation_id":    e.ID,
		"run_id":           e.RunID,
		"criteria_version": e.CriteriaVersion,
		"aggregate":        e.Aggregate,
		"per_criterion":    e.PerCriterion,
		"status":           e.Status,
	}), nil
}
