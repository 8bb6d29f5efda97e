// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs the assistant's turn loop: pending-action resumption,
// rule-based intent planning, tool execution with entity tracking, and the
// model fallback with routing and the hallucination guard.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAssistant/services/assistant/conversation"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/guard"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/memory"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/models"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/observability"
	"github.com/AleutianAI/AleutianAssistant/services/assistant/tools"
	"github.com/AleutianAI/AleutianAssistant/services/llm"
)

var tracer = otel.Tracer("aleutian.assistant.engine")

// maxHistory bounds the transcript window sent to a worker model.
const maxHistory = 20

// maxTranscript bounds the in-memory transcript per conversation.
const maxTranscript = 200

const systemPrompt = `You are Aleutian, a helpful AI assistant running locally on the user's computer.

File operations are performed by the assistant's tool layer before your
reply. When a file request reaches you, it means no tool matched it: ask for
the missing detail (a path or file name) instead of guessing.

NEVER claim that you created, deleted, moved, renamed, or wrote a file
yourself. You cannot. Report only what the tool results in this conversation
actually say.

Keep answers short and direct.`

const systemPromptNoTools = `You are Aleutian, a helpful AI assistant running locally on the user's computer.

IMPORTANT: You currently do NOT have access to the file system or any tools.
You CANNOT read files, list directories, or perform any system operations.
If the user asks about files or system information, politely explain that
file system access is currently disabled.
Do NOT make up or guess any file names, paths, or system information.`

// ragUsageNote follows the injected document context block.
const ragUsageNote = "Use this context to inform your response when relevant. " +
	"Cite sources when using information from documents."

// Config carries the orchestrator's collaborators.
type Config struct {
	Conversation *conversation.Context
	Executor     *tools.Executor
	PathGuard    *tools.PathGuard
	Guard        *guard.Guard
	Router       *Router
	Registry     *models.Registry
	Manager      *llm.MultiModelManager
	Retriever    memory.Retriever
	Metrics      *observability.AssistantMetrics
	Logger       *slog.Logger
}

// Orchestrator is the per-turn pipeline. One instance serves all
// conversations; per-conversation state lives in the conversation store and
// the transcript map.
//
// # Thread Safety
//
// Safe for concurrent use. Turns for the same conversation should be
// serialized by the caller (the HTTP layer does).
type Orchestrator struct {
	convo     *conversation.Context
	executor  *tools.Executor
	guard     *guard.Guard
	router    *Router
	registry  *models.Registry
	manager   *llm.MultiModelManager
	retriever memory.Retriever
	planner   *Planner
	tracker   *Tracker
	formatter *Formatter
	metrics   *observability.AssistantMetrics
	log       *slog.Logger

	mu           sync.Mutex
	transcripts  map[string][]datatypes.TurnRecord
	lastRouting  *datatypes.RoutingDecision
	toolsEnabled bool
	clients      map[llm.Provider]llm.Client
}

func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		convo:        cfg.Conversation,
		executor:     cfg.Executor,
		guard:        cfg.Guard,
		router:       cfg.Router,
		registry:     cfg.Registry,
		manager:      cfg.Manager,
		retriever:    cfg.Retriever,
		planner:      NewPlanner(cfg.Conversation, cfg.PathGuard, cfg.PathGuard.Home()),
		tracker:      NewTracker(cfg.Conversation, cfg.Logger),
		formatter:    NewFormatter(cfg.PathGuard),
		metrics:      cfg.Metrics,
		log:          cfg.Logger,
		transcripts:  make(map[string][]datatypes.TurnRecord),
		toolsEnabled: true,
		clients:      make(map[llm.Provider]llm.Client),
	}
}

// ToolsEnabled reports the global tool switch.
func (o *Orchestrator) ToolsEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.toolsEnabled
}

// SetToolsEnabled flips the global tool switch. With tools off the planner
// is bypassed and models get the no-tools system prompt.
func (o *Orchestrator) SetToolsEnabled(enabled bool) {
	o.mu.Lock()
	o.toolsEnabled = enabled
	o.mu.Unlock()
	o.log.Info("tools toggled", slog.Bool("enabled", enabled))
}

// LastRouting returns the most recent routing decision, or nil before the
// first model turn.
func (o *Orchestrator) LastRouting() *datatypes.RoutingDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRouting
}

// ClearConversation drops the transcript, tracked entities, and any pending
// action for one conversation.
func (o *Orchestrator) ClearConversation(conversationID string) error {
	o.mu.Lock()
	delete(o.transcripts, conversationID)
	o.mu.Unlock()
	return o.convo.Clear(conversationID)
}

// ClearAll drops every conversation the orchestrator has seen.
func (o *Orchestrator) ClearAll() error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.transcripts))
	for id := range o.transcripts {
		ids = append(ids, id)
	}
	o.transcripts = make(map[string][]datatypes.TurnRecord)
	o.mu.Unlock()

	for _, id := range ids {
		if err := o.convo.Clear(id); err != nil {
			return err
		}
	}
	return nil
}

// Chat runs one turn and returns the complete reply.
func (o *Orchestrator) Chat(ctx context.Context, conversationID, message string) (*datatypes.ChatResponse, error) {
	return o.turn(ctx, conversationID, message, nil)
}

// ChatStream runs one turn, delivering the reply through fn. Model output
// is buffered and guard-checked before any chunk is emitted, so a blocked
// reply streams only the clarification prompt.
func (o *Orchestrator) ChatStream(ctx context.Context, conversationID, message string,
	fn llm.StreamFunc) (*datatypes.ChatResponse, error) {

	return o.turn(ctx, conversationID, message, fn)
}

func (o *Orchestrator) turn(ctx context.Context, conversationID, message string,
	stream llm.StreamFunc) (*datatypes.ChatResponse, error) {

	ctx, span := tracer.Start(ctx, "Orchestrator.Turn")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	message = strings.TrimSpace(message)
	started := time.Now()
	hadPending := o.convo.Pending(conversationID) != nil
	o.appendTranscript(conversationID, "user", message)
	if _, err := o.convo.Store().IncrementTurn(conversationID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("advance turn: %w", err)
	}

	resp, err := o.respond(ctx, conversationID, message, stream)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if o.metrics != nil {
			o.metrics.RecordTurn(observability.OutcomeError, time.Since(started).Seconds())
		}
		return nil, err
	}
	if o.metrics != nil {
		outcome := o.classifyOutcome(conversationID, message, resp, hadPending)
		o.metrics.RecordTurn(outcome, time.Since(started).Seconds())
	}
	o.appendTranscript(conversationID, "assistant", resp.Content)
	return resp, nil
}

// classifyOutcome labels a finished turn for metrics. It is a best-effort
// read of the response shape, not part of turn semantics.
func (o *Orchestrator) classifyOutcome(conversationID, message string,
	resp *datatypes.ChatResponse, hadPending bool) observability.TurnOutcome {

	switch {
	case resp.ToolUsed != nil && hadPending:
		return observability.OutcomeConfirmed
	case resp.ToolUsed != nil:
		return observability.OutcomeTool
	case resp.ModelUsed != "":
		return observability.OutcomeModel
	case hadPending && conversation.IsCancellation(message):
		return observability.OutcomeCancelled
	}
	if pending := o.convo.Pending(conversationID); pending != nil {
		if pending.Reason == "disambiguation" {
			return observability.OutcomeDisambiguation
		}
		return observability.OutcomeConfirmationRequested
	}
	return observability.OutcomeClarification
}

func (o *Orchestrator) respond(ctx context.Context, conversationID, message string,
	stream llm.StreamFunc) (*datatypes.ChatResponse, error) {

	if resp, handled, err := o.resumePending(ctx, conversationID, message); err != nil {
		return nil, err
	} else if handled {
		return o.emit(resp, stream)
	}

	if !o.ToolsEnabled() {
		return o.modelReply(ctx, conversationID, message, stream)
	}

	plan, err := o.planner.Plan(conversationID, message)
	if err != nil {
		return nil, fmt.Errorf("plan turn: %w", err)
	}

	switch plan.Status {
	case datatypes.PlanReady:
		return o.emit(o.dispatchReady(ctx, conversationID, plan), stream)

	case datatypes.PlanNeedsDisambiguation:
		resp, err := o.parkDisambiguation(conversationID, plan)
		if err != nil {
			return nil, err
		}
		return o.emit(resp, stream)

	case datatypes.PlanNeedsClarification:
		content := o.formatter.FormatClarification(plan.ToolName, plan.MissingField)
		return o.emit(datatypes.NewChatResponse(content), stream)
	}

	return o.modelReply(ctx, conversationID, message, stream)
}

// emit delivers a non-streamed reply as a single chunk when streaming.
func (o *Orchestrator) emit(resp *datatypes.ChatResponse, stream llm.StreamFunc) (*datatypes.ChatResponse, error) {
	if stream != nil && resp.Content != "" {
		if err := stream(resp.Content); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// ===== Pending action resumption =====

// resumePending consumes the conversation's pending action when the message
// answers it: a confirmation executes, a cancellation drops it, a number or
// ordinal rebinds the target. Any other message abandons the pending action
// and falls through to normal planning.
func (o *Orchestrator) resumePending(ctx context.Context, conversationID, message string) (*datatypes.ChatResponse, bool, error) {
	pending := o.convo.Pending(conversationID)
	if pending == nil {
		return nil, false, nil
	}

	switch {
	case conversation.IsConfirmation(message):
		pending = o.convo.TakePending(conversationID)
		if pending.RebindParam != "" && pending.Params[pending.RebindParam] == "" {
			// "yes" to a candidate list: accept a single candidate, re-ask
			// otherwise.
			if len(pending.Alternatives) != 1 {
				if err := o.convo.SetPending(conversationID, pending); err != nil {
					return nil, false, err
				}
				return datatypes.NewChatResponse("Please reply with the number of the file you mean."), true, nil
			}
			return o.bindAlternative(conversationID, pending, pending.Alternatives[0])
		}
		return o.runTool(ctx, conversationID, pending.ToolName, pending.Params), true, nil

	case conversation.IsCancellation(message):
		o.convo.TakePending(conversationID)
		return datatypes.NewChatResponse("Okay, I won't do that."), true, nil
	}

	if idx, ok := selectionIndex(message); ok && pending.RebindParam != "" {
		if idx == -1 {
			idx = len(pending.Alternatives)
		}
		if idx < 1 || idx > len(pending.Alternatives) {
			return datatypes.NewChatResponse(fmt.Sprintf(
				"Please pick a number between 1 and %d.", len(pending.Alternatives))), true, nil
		}
		pending = o.convo.TakePending(conversationID)
		resp, handled, err := o.bindAlternative(conversationID, pending, pending.Alternatives[idx-1])
		if err != nil || resp != nil {
			return resp, handled, err
		}
		return o.runTool(ctx, conversationID, pending.ToolName, pending.Params), true, nil
	}

	o.convo.ClearPending(conversationID)
	return nil, false, nil
}

// bindAlternative rebinds the pending action's target. Destructive tools
// re-park for confirmation; others return (nil, ...) so the caller executes.
func (o *Orchestrator) bindAlternative(conversationID string, pending *datatypes.PendingAction,
	alt *datatypes.Entity) (*datatypes.ChatResponse, bool, error) {

	if pending.Params == nil {
		pending.Params = make(map[string]string)
	}
	pending.Params[pending.RebindParam] = alt.AbsolutePath
	pending.Entity = alt

	if !isDestructiveTool(pending.ToolName) {
		return nil, true, nil
	}

	pending.Alternatives = nil
	pending.RebindParam = ""
	pending.Reason = "confirmation"
	pending.Timestamp = time.Now()
	if err := o.convo.SetPending(conversationID, pending); err != nil {
		return nil, false, err
	}
	content := o.formatter.FormatConfirmationRequest(
		alt.AbsolutePath, pending.ToolName, pending.Params["destination"])
	return datatypes.NewChatResponse(content), true, nil
}

// selectionIndex extracts a candidate selection from a reply: a bare number
// or an ordinal word. Returns -1 for "last".
func selectionIndex(message string) (int, bool) {
	if n, err := strconv.Atoi(strings.TrimRight(strings.TrimSpace(message), ".!")); err == nil {
		return n, true
	}
	return conversation.HasOrdinal(message)
}

// ===== Ready plan dispatch =====

func (o *Orchestrator) dispatchReady(ctx context.Context, conversationID string,
	plan *datatypes.Plan) *datatypes.ChatResponse {

	if !o.executor.Registry().IsEnabled(plan.ToolName) {
		return datatypes.NewChatResponse(o.formatter.FormatToolUnavailable(plan.ToolName))
	}

	if requiresConfirmation(plan) {
		resp, err := o.parkConfirmation(conversationID, plan)
		if err != nil {
			o.log.Error("failed to park pending action", slog.Any("error", err))
			return datatypes.NewChatResponse("Something went wrong preparing that action. Please retry.")
		}
		return resp
	}
	return o.runTool(ctx, conversationID, plan.ToolName, plan.Params)
}

// requiresConfirmation implements the confirmation rule: destructive
// actions confirm unless the target came verbatim from the user's message.
// Pattern deletes confirm unconditionally (they fan out to many files).
func requiresConfirmation(plan *datatypes.Plan) bool {
	if !plan.Destructive {
		return false
	}
	if plan.ToolName == "delete_by_pattern" {
		return true
	}
	return plan.Reference != nil
}

func isDestructiveTool(name string) bool {
	switch name {
	case "delete_file", "delete_by_pattern", "move_file":
		return true
	}
	return false
}

func (o *Orchestrator) parkConfirmation(conversationID string, plan *datatypes.Plan) (*datatypes.ChatResponse, error) {
	pending := &datatypes.PendingAction{
		ToolName:  plan.ToolName,
		Params:    plan.Params,
		Reason:    plan.RuleName,
		Timestamp: time.Now(),
	}
	if plan.Reference != nil {
		pending.Entity = plan.Reference.Entity
	}
	if err := o.convo.SetPending(conversationID, pending); err != nil {
		return nil, err
	}

	path := plan.Params[primaryParam(plan.ToolName)]
	if plan.ToolName == "delete_by_pattern" {
		path = filepath.Join(plan.Params["directory"], plan.Params["pattern"])
	}
	content := o.formatter.FormatConfirmationRequest(
		path, confirmationAction(plan), plan.Params["destination"])
	return datatypes.NewChatResponse(content), nil
}

func (o *Orchestrator) parkDisambiguation(conversationID string, plan *datatypes.Plan) (*datatypes.ChatResponse, error) {
	params := plan.Params
	if params == nil {
		params = make(map[string]string)
	}
	pending := &datatypes.PendingAction{
		ToolName:     plan.ToolName,
		Params:       params,
		Reason:       "disambiguation",
		Timestamp:    time.Now(),
		Alternatives: plan.Alternatives,
		RebindParam:  plan.RebindParam,
	}
	if err := o.convo.SetPending(conversationID, pending); err != nil {
		return nil, err
	}
	content := o.formatter.FormatDisambiguation(plan.Alternatives, actionVerb(plan.ToolName))
	return datatypes.NewChatResponse(content), nil
}

// confirmationAction maps a plan onto the confirmation verb key; a move
// within one directory reads as a rename.
func confirmationAction(plan *datatypes.Plan) string {
	if plan.ToolName == "move_file" {
		source := plan.Params["source"]
		dest := plan.Params["destination"]
		if source != "" && dest != "" && filepath.Dir(source) == filepath.Dir(dest) {
			return "rename"
		}
	}
	return plan.ToolName
}

// primaryParam names the tool parameter holding the action's target.
func primaryParam(toolName string) string {
	switch toolName {
	case "move_file", "copy_file":
		return "source"
	case "search_files", "delete_by_pattern", "organize_files":
		return "directory"
	}
	return "path"
}

func actionVerb(toolName string) string {
	switch toolName {
	case "delete_file", "delete_by_pattern":
		return "delete"
	case "move_file":
		return "move"
	case "copy_file":
		return "copy"
	case "read_file":
		return "read"
	case "write_file":
		return "edit"
	}
	return "use"
}

func (o *Orchestrator) runTool(ctx context.Context, conversationID, name string,
	params map[string]string) *datatypes.ChatResponse {

	result := o.executor.Execute(ctx, name, params)
	o.tracker.Track(conversationID, result)
	if o.metrics != nil {
		o.metrics.RecordToolExecution(name, result.OK())
	}
	resp := datatypes.NewChatResponse(o.formatter.FormatToolResult(result))
	resp.ToolUsed = result
	return resp
}

// ===== Model fallback =====

func (o *Orchestrator) modelReply(ctx context.Context, conversationID, message string,
	stream llm.StreamFunc) (*datatypes.ChatResponse, error) {

	ctx, span := tracer.Start(ctx, "Orchestrator.ModelReply")
	defer span.End()

	decision, err := o.router.Route(ctx, message)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.lastRouting = decision
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.RecordRouting(decision.ModelID, string(decision.Capability))
	}
	span.SetAttributes(attribute.String("llm.model", decision.ModelID))

	model := o.registry.Get(decision.ModelID)
	if model == nil {
		model = o.registry.Router()
	}
	messages := o.buildMessages(ctx, conversationID, message)

	var raw string
	var chunks []string
	if stream != nil {
		var b strings.Builder
		err = o.chatStreamWith(ctx, model, messages, func(chunk string) error {
			chunks = append(chunks, chunk)
			b.WriteString(chunk)
			return nil
		})
		raw = b.String()
	} else {
		raw, err = o.chatWith(ctx, model, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("model chat: %w", err)
	}

	content := SanitizeText(raw)
	content, finding, replaced := o.guard.Validate(content, false)
	if replaced {
		o.log.Warn("blocked hallucinated action claim",
			slog.String("pattern", finding.PatternID),
			slog.String("matched", finding.Matched),
			slog.String("model", decision.ModelID))
		if o.metrics != nil {
			o.metrics.RecordGuardBlock(finding.PatternID)
		}
		chunks = []string{content}
	} else if raw != content {
		// Sanitization changed the text; the buffered chunks no longer
		// match it.
		chunks = []string{content}
	}

	if stream != nil {
		for _, chunk := range chunks {
			if err := stream(chunk); err != nil {
				return nil, err
			}
		}
	}

	resp := datatypes.NewChatResponse(content)
	resp.ModelUsed = decision.ModelID
	resp.ModelName = decision.ModelName
	resp.RoutingReason = decision.Reason
	return resp, nil
}

func (o *Orchestrator) buildMessages(ctx context.Context, conversationID, userMessage string) []datatypes.Message {
	system := systemPromptNoTools
	if o.ToolsEnabled() {
		system = systemPrompt + "\n\n" + o.executor.Registry().Prompt()
	}

	if o.retriever != nil {
		ragContext, err := o.retriever.RetrieveContext(ctx, userMessage)
		if err != nil {
			o.log.Warn("document context retrieval failed", slog.Any("error", err))
		} else if ragContext != "" {
			system += "\n\n" + ragContext + "\n\n" + ragUsageNote
		}
	}

	messages := []datatypes.Message{{Role: "system", Content: system}}
	for _, turn := range o.recentTranscript(conversationID, maxHistory) {
		messages = append(messages, datatypes.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

// chatWith sends the prompt to the worker through the backend that serves
// it. Ollama models go through the manager so keep_alive stays in force.
func (o *Orchestrator) chatWith(ctx context.Context, model *models.RegisteredModel,
	messages []datatypes.Message) (string, error) {

	params := o.paramsFor(model)
	if model.Provider == llm.ProviderOllama {
		return o.manager.Chat(ctx, model.ModelRef, messages, params)
	}
	client, err := o.clientFor(model.Provider)
	if err != nil {
		return "", err
	}
	return client.Chat(ctx, messages, params)
}

func (o *Orchestrator) chatStreamWith(ctx context.Context, model *models.RegisteredModel,
	messages []datatypes.Message, fn llm.StreamFunc) error {

	params := o.paramsFor(model)
	if model.Provider == llm.ProviderOllama {
		return o.manager.ChatStream(ctx, model.ModelRef, messages, params, fn)
	}
	client, err := o.clientFor(model.Provider)
	if err != nil {
		return err
	}
	return client.ChatStream(ctx, messages, params, fn)
}

func (o *Orchestrator) paramsFor(model *models.RegisteredModel) llm.GenerationParams {
	params := llm.GenerationParams{}
	if model.ContextLength > 0 {
		numCtx := model.ContextLength
		params.NumCtx = &numCtx
	}
	return params
}

func (o *Orchestrator) clientFor(provider llm.Provider) (llm.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if client, ok := o.clients[provider]; ok {
		return client, nil
	}
	client, err := llm.NewClient(provider)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}
	o.clients[provider] = client
	return client, nil
}

// ===== Transcript =====

func (o *Orchestrator) appendTranscript(conversationID, role, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	records := append(o.transcripts[conversationID], datatypes.TurnRecord{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(records) > maxTranscript {
		records = records[len(records)-maxTranscript:]
	}
	o.transcripts[conversationID] = records
}

func (o *Orchestrator) recentTranscript(conversationID string, limit int) []datatypes.TurnRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	records := o.transcripts[conversationID]
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]datatypes.TurnRecord, len(records))
	copy(out, records)
	return out
}
