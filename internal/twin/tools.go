package twin

import (
	"context"
	"errors"
	"fmt"

	"twind/internal/store"
	"twind/internal/subchat"
	"twind/internal/tools"
	"twind/internal/types"
)

// Content limits keep subchat opening prompts bounded.
const (
	maxDocumentChars = 5000
	maxModelChars    = 3000
)

// RegisterTools registers the six persona tools with the router.
func (t *Twin) RegisterTools(reg *tools.Registry) error {
	defs := []tools.Tool{
		{
			Name:        "upload_personality_document",
			Description: "Analyze a training document and fold findings into the personality model.",
			Schema: tools.Schema{
				Required: []string{"doc_path", "doc_type", "extract_focus"},
				Properties: map[string]tools.Property{
					"doc_path":      {Type: "string", Description: "Document path in the docstore"},
					"doc_type":      {Type: "string", Description: "Kind of document", Enum: []string{"emails", "writing", "memos", "chat", "other"}},
					"extract_focus": {Type: "string", Description: "What to extract", Enum: []string{"style", "values", "knowledge", "all"}},
				},
			},
			Handler: t.handleUploadDocument,
		},
		{
			Name:        "generate_twin_response",
			Description: "Generate a reply to a message in the owner's voice.",
			Schema: tools.Schema{
				Required: []string{"message", "context", "urgency"},
				Properties: map[string]tools.Property{
					"message": {Type: "string", Description: "The message to respond to"},
					"context": {Type: "string", Description: "Surrounding conversation context", Nullable: true},
					"urgency": {Type: "string", Description: "How urgent the request is", Enum: []string{"low", "medium", "high"}},
				},
			},
			Handler: t.handleGenerateResponse,
		},
		{
			Name:        "notify_art",
			Description: "Notify the owner about a conversation the twin handled.",
			Schema: tools.Schema{
				Required: []string{"summary", "requester", "twin_response", "needs_approval"},
				Properties: map[string]tools.Property{
					"summary":        {Type: "string", Description: "Short summary of the conversation"},
					"requester":      {Type: "string", Description: "Who made the request"},
					"twin_response":  {Type: "string", Description: "What the twin responded"},
					"needs_approval": {Type: "boolean", Description: "Whether the owner must approve before the response stands"},
				},
			},
			Handler: t.handleNotify,
		},
		{
			Name:        "check_calendar",
			Description: "Check the owner's calendar.",
			Schema: tools.Schema{
				Required: []string{"timeframe", "purpose"},
				Properties: map[string]tools.Property{
					"timeframe": {Type: "string", Description: "Window to check", Enum: []string{"now", "today", "this_week", "next_week"}},
					"purpose":   {Type: "string", Description: "Why the calendar is needed", Enum: []string{"availability", "context", "schedule_meeting"}},
				},
			},
			Handler: t.handleCheckCalendar,
		},
		{
			Name:        "learn_from_correction",
			Description: "Record an owner correction and analyze what to learn from it.",
			Schema: tools.Schema{
				Required: []string{"original_response", "correct_response", "context"},
				Properties: map[string]tools.Property{
					"original_response": {Type: "string", Description: "What the twin originally said"},
					"correct_response":  {Type: "string", Description: "What the owner says it should have been"},
					"context":           {Type: "string", Description: "Surrounding context of the correction"},
				},
			},
			Handler: t.handleLearnFromCorrection,
		},
		{
			Name:        "personality_model",
			Description: "Read or update the persona's personality model.",
			Schema: tools.Schema{
				Required: []string{"op", "section", "content"},
				Properties: map[string]tools.Property{
					"op":      {Type: "string", Description: "Operation to perform", Enum: []string{"read", "update"}},
					"section": {Type: "string", Description: "Section to update", Nullable: true},
					"content": {Type: "string", Description: "New section content", Nullable: true},
				},
			},
			Handler: t.handlePersonalityModel,
		},
	}

	for i := range defs {
		if err := reg.Register(&defs[i]); err != nil {
			return err
		}
	}
	return nil
}

// handleUploadDocument reads the training document and delegates trait
// extraction to an extractor subchat.
func (t *Twin) handleUploadDocument(ctx context.Context, call types.ToolCall) (tools.Outcome, error) {
	docPath := call.StringArg("doc_path")
	content, err := t.docs.Read(docPath)
	if err != nil {
		return tools.Outcome{}, fmt.Errorf("cannot analyze %s: %w", docPath, err)
	}

	opening := fmt.Sprintf(
		"Analyze this %s document with focus on %s.\n\nDocument content:\n%s\n\n"+
			"Report your findings and which personality model section each belongs in.",
		call.StringArg("doc_type"), call.StringArg("extract_focus"),
		truncate(content, maxDocumentChars))

	ids, err := t.engine.SpawnMany(ctx, call.ID, subchat.RoleExtractor, []subchat.Request{{
		Opening: opening,
		Title:   fmt.Sprintf("Extract from %s", truncate(docPath, 100)),
	}})
	if err != nil {
		return tools.Outcome{}, err
	}
	return tools.Suspend(ids...), nil
}

// handleGenerateResponse delegates reply drafting to a responder subchat
// seeded with the current personality model.
func (t *Twin) handleGenerateResponse(ctx context.Context, call types.ToolCall) (tools.Outcome, error) {
	snapshot := "{}"
	if model, err := t.store.ReadModel(t.cfg.Persona); err == nil {
		doc, jerr := model.JSON()
		if jerr != nil {
			return tools.Outcome{}, jerr
		}
		snapshot = truncate(doc, maxModelChars)
	} else if !errors.Is(err, store.ErrModelNotFound) {
		return tools.Outcome{}, err
	}

	message := call.StringArg("message")
	opening := fmt.Sprintf(
		"Draft a reply as %s.\n\nPersonality model:\n%s\n\nIncoming message:\n%s\n\n"+
			"Context: %s\nUrgency: %s\n\n"+
			"State your response and your confidence in it. If your confidence "+
			"is below %d, include a natural disclaimer.",
		t.cfg.OwnerName, snapshot, message,
		call.StringArg("context"), call.StringArg("urgency"),
		t.cfg.ConfidenceThreshold)

	ids, err := t.engine.SpawnMany(ctx, call.ID, subchat.RoleResponder, []subchat.Request{{
		Opening: opening,
		Title:   fmt.Sprintf("Respond to: %s", truncate(message, 100)),
	}})
	if err != nil {
		return tools.Outcome{}, err
	}
	return tools.Suspend(ids...), nil
}

func (t *Twin) handleNotify(ctx context.Context, call types.ToolCall) (tools.Outcome, error) {
	result := t.Notify(ctx,
		call.StringArg("summary"),
		call.StringArg("requester"),
		call.StringArg("twin_response"),
		call.BoolArg("needs_approval"))
	return tools.Done(result), nil
}

// handleCheckCalendar is a stub; real calendar access needs OAuth setup.
func (t *Twin) handleCheckCalendar(ctx context.Context, call types.ToolCall) (tools.Outcome, error) {
	return tools.Done(fmt.Sprintf(
		"Calendar integration pending - would check %s for %s. Requires Google Calendar API OAuth setup.",
		call.StringArg("timeframe"), call.StringArg("purpose"))), nil
}

// handleLearnFromCorrection records the correction, then delegates analysis
// to a learner subchat. The correction row is marked processed when the
// call resumes.
func (t *Twin) handleLearnFromCorrection(ctx context.Context, call types.ToolCall) (tools.Outcome, error) {
	original := call.StringArg("original_response")
	correct := call.StringArg("correct_response")
	situation := call.StringArg("context")

	correctionID, err := t.store.AppendCorrection(t.cfg.Persona, store.CorrectionRecord{
		OriginalResponse: original,
		CorrectResponse:  correct,
		Context:          situation,
	})
	if err != nil {
		return tools.Outcome{}, err
	}

	opening := fmt.Sprintf(
		"The twin responded:\n%s\n\n%s corrected it to:\n%s\n\nContext: %s\n\n"+
			"Identify the learning_type and the principle behind the correction, "+
			"and which personality model section should change.",
		original, t.cfg.OwnerName, correct, situation)

	ids, err := t.engine.SpawnMany(ctx, call.ID, subchat.RoleLearner, []subchat.Request{{
		Opening: opening,
		Title:   fmt.Sprintf("Learn from correction #%d", correctionID),
	}})
	if err != nil {
		return tools.Outcome{}, err
	}

	t.mu.Lock()
	t.pendingLearn[call.ID] = correctionID
	t.mu.Unlock()

	return tools.Suspend(ids...), nil
}

func (t *Twin) handlePersonalityModel(ctx context.Context, call types.ToolCall) (tools.Outcome, error) {
	switch call.StringArg("op") {
	case "read":
		model, err := t.store.ReadModel(t.cfg.Persona)
		if err != nil {
			return tools.Outcome{}, err
		}
		doc, err := model.JSON()
		if err != nil {
			return tools.Outcome{}, err
		}
		return tools.Done(doc), nil

	case "update":
		model, err := t.store.UpdateSection(t.cfg.Persona,
			call.StringArg("section"), call.StringArg("content"))
		if err != nil {
			return tools.Outcome{}, err
		}
		doc, err := model.JSON()
		if err != nil {
			return tools.Outcome{}, err
		}
		return tools.Done(doc), nil

	default:
		// Unreachable: the enum constraint rejects other values first.
		return tools.Outcome{}, fmt.Errorf("unknown op %q", call.StringArg("op"))
	}
}
