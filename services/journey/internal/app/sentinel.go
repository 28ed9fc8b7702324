package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/Discovita/testing-grounds/internal/util"
	"github.com/Discovita/testing-grounds/pkg/ai"
	"github.com/Discovita/testing-grounds/pkg/domain"
)

// The sentinel watches each turn for an answer to the one question currently
// being asked. It records at most one checkpoint per turn and leaves journey
// progression (current milestone, status) to explicit transitions.

const updateJourneyFunctionName = "update_journey"

// Extraction reports what the sentinel did with a turn.
type Extraction struct {
	Attempted  bool   `json:"attempted"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Value      string `json:"value,omitempty"`
	Applied    bool   `json:"applied"`
	Source     string `json:"source,omitempty"`
	Note       string `json:"note,omitempty"`
}

// UpdateJourneyFunction describes the single tool offered to the extraction
// model. One call records one checkpoint value.
func UpdateJourneyFunction(s Schema) ai.FunctionDef {
	return ai.FunctionDef{
		Name:        updateJourneyFunctionName,
		Description: "Update the user's renovation journey with extracted information. Only one field can be updated at a time.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"journey_id": map[string]any{
					"type":        "string",
					"description": "The ID of the journey to update",
				},
				"checkpoint_name": map[string]any{
					"type":        "string",
					"description": "The specific checkpoint to update",
					"enum":        s.CheckpointNames(),
				},
				"value": map[string]any{
					"type":        "string",
					"description": "The value extracted from the user's message for the specified checkpoint",
				},
			},
			"required":             []string{"journey_id", "checkpoint_name", "value"},
			"additionalProperties": false,
		},
	}
}

// extractionPrompt builds the system message for the analysis call: current
// journey state, the one question being asked, the recent conversation and
// checkpoint-specific guidance.
func extractionPrompt(j domain.Journey, s Schema, window []domain.Message) string {
	nextCheckpoint := "All checkpoints for current milestone completed"
	nextQuestion := "No pending questions for current milestone"
	guidance := ""
	if cp, ok := activeCheckpoint(j, s); ok {
		nextCheckpoint = cp.Name
		nextQuestion = cp.Question
		guidance = cp.Guidance
	}

	var history strings.Builder
	for _, msg := range window {
		role := "User"
		if msg.Speaker == domain.SpeakerAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&history, "\n%s: %s", role, msg.Content)
	}

	prompt := fmt.Sprintf(`You are a Journey Sentinel that analyzes conversations to extract information about a user's renovation project.

CURRENT JOURNEY STATE:
- User ID: %s
- Journey ID: %s
- Current Milestone: %d
- Completed checkpoints: %s

NEXT INFORMATION NEEDED:
- Checkpoint: %s
- Question: %s

Your task is to analyze the conversation and determine if the user has provided information about their renovation journey. If you find relevant information, use the update_journey function to save it.
Here is the conversation history to analyze:
%s

GUIDELINES:
1. Focus ONLY on extracting information for the CURRENT checkpoint
2. Be conservative - only extract information if you are confident it directly answers the needed question
3. Do not make assumptions or extract unrelated information
4. If no relevant information is found, do not call any functions

FUNCTION USAGE:
- Call update_journey with three parameters:
  - journey_id: %s (always use this exact ID)
  - checkpoint_name: The name of the checkpoint (e.g., "room", "budget_range")
  - value: The value you extracted from the conversation
- Example: update_journey(journey_id=%s, checkpoint_name="room", value="kitchen")
- Only call this function when you've identified a clear answer to the current checkpoint question
`,
		j.UserID, j.ID, j.CurrentMilestone, allCheckpointsText(j, s),
		nextCheckpoint, nextQuestion, history.String(), j.ID, j.ID)

	if guidance != "" {
		prompt += "\n\n" + guidance
	}
	return prompt
}

// allCheckpointsText lists every recorded checkpoint as "name: value" pairs,
// or "None" when nothing is recorded yet.
func allCheckpointsText(j domain.Journey, s Schema) string {
	var parts []string
	for _, m := range s.Milestones {
		for _, cp := range m.Checkpoints {
			if v := cp.Get(j); v != "" {
				parts = append(parts, cp.Name+": "+v)
			}
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ", ")
}

// analyzeTurn runs checkpoint extraction over the recent message window and
// applies at most one write. Called with the journey lock held. Model
// failures never surface to the caller; with the keyword fallback enabled
// they degrade to a literal scan of the new message.
func (a *App) analyzeTurn(ctx context.Context, j domain.Journey, window []domain.Message, userText string) (domain.Journey, Extraction) {
	log := util.LoggerFromContext(ctx)

	active, ok := activeCheckpoint(j, a.schema)
	if !ok {
		return j, Extraction{Note: "current milestone already satisfied"}
	}

	prompt := extractionPrompt(j, a.schema, window)
	call, err := a.extractor.CallFunction(ctx, prompt, nil, UpdateJourneyFunction(a.schema))
	if err != nil {
		log.Warn("checkpoint extraction unavailable",
			"journey_id", j.ID,
			"checkpoint", active.Name,
			"error", fmt.Errorf("%w: %v", ErrExtractionUnavailable, err),
		)
		a.metrics.ExtractionFailures.Inc()
		if a.fallbackKeywords {
			return a.keywordFallback(ctx, j, active, userText)
		}
		return j, Extraction{Attempted: true, Note: "extraction unavailable"}
	}
	if call == nil {
		log.Info("sentinel found nothing to extract", "journey_id", j.ID, "checkpoint", active.Name)
		return j, Extraction{Attempted: true, Source: "sentinel", Note: "no function call"}
	}
	if call.Name != updateJourneyFunctionName {
		log.Warn("sentinel called unexpected function", "journey_id", j.ID, "function", call.Name)
		return j, Extraction{Attempted: true, Source: "sentinel", Note: "unexpected function"}
	}

	name, _ := call.Arguments["checkpoint_name"].(string)
	raw, _ := call.Arguments["value"].(string)
	if id, ok := call.Arguments["journey_id"].(string); ok && id != "" && id != j.ID {
		log.Warn("sentinel targeted a different journey, ignoring", "journey_id", j.ID, "targeted", id)
		return j, Extraction{Attempted: true, Source: "sentinel", Note: "journey mismatch"}
	}
	if name == "" || raw == "" {
		log.Warn("sentinel call missing arguments", "journey_id", j.ID)
		return j, Extraction{Attempted: true, Source: "sentinel", Note: "missing arguments"}
	}
	if name != active.Name {
		log.Info("sentinel extracted a non-active checkpoint, ignoring",
			"journey_id", j.ID,
			"extracted", name,
			"active", active.Name,
		)
		return j, Extraction{Attempted: true, Source: "sentinel", Checkpoint: name, Note: "not the active checkpoint"}
	}

	value := normalizeValue(active, raw)
	updated, applied, err := a.applyCheckpoint(ctx, j, active, value, "sentinel")
	if err != nil {
		log.Error("record extracted checkpoint", "journey_id", j.ID, "checkpoint", active.Name, "error", err)
		return j, Extraction{Attempted: true, Source: "sentinel", Checkpoint: active.Name, Value: value, Note: "persist failed"}
	}
	ext := Extraction{Attempted: true, Source: "sentinel", Checkpoint: active.Name, Value: value, Applied: applied}
	if !applied {
		ext.Note = "already recorded"
	}
	return updated, ext
}

// keywordFallback scans the new user message for literal keywords tied to the
// active checkpoint. Fallback values are already canonical, so they are
// written as-is.
func (a *App) keywordFallback(ctx context.Context, j domain.Journey, active CheckpointDef, text string) (domain.Journey, Extraction) {
	log := util.LoggerFromContext(ctx)
	a.metrics.KeywordFallbacks.Inc()
	lower := strings.ToLower(text)
	for _, rule := range active.Fallback {
		if !strings.Contains(lower, rule.Keyword) {
			continue
		}
		updated, applied, err := a.applyCheckpoint(ctx, j, active, rule.Value, "keyword")
		if err != nil {
			log.Error("record fallback checkpoint", "journey_id", j.ID, "checkpoint", active.Name, "error", err)
			return j, Extraction{Attempted: true, Source: "keyword", Checkpoint: active.Name, Value: rule.Value, Note: "persist failed"}
		}
		ext := Extraction{Attempted: true, Source: "keyword", Checkpoint: active.Name, Value: rule.Value, Applied: applied}
		if !applied {
			ext.Note = "already recorded"
		}
		return updated, ext
	}
	return j, Extraction{Attempted: true, Source: "keyword", Note: "no keyword match"}
}

// applyCheckpoint writes a checkpoint value if it is still unset and stamps
// the owning milestone when the write finished it. Values are recorded at
// most once; a repeat reports applied=false, never an error.
func (a *App) applyCheckpoint(ctx context.Context, j domain.Journey, cp CheckpointDef, value, source string) (domain.Journey, bool, error) {
	log := util.LoggerFromContext(ctx)
	if existing := cp.Get(j); existing != "" {
		log.Info("checkpoint already recorded, keeping first value",
			"journey_id", j.ID,
			"checkpoint", cp.Name,
			"kept", existing,
			"discarded", value,
		)
		a.metrics.RedundantWrites.Inc()
		return j, false, nil
	}

	now := a.now()
	cp.Set(&j, value)
	j.UpdatedAt = now
	stamped := stampMilestone(&j, a.schema, cp.Name, now)
	if err := a.store.SaveJourney(j); err != nil {
		return j, false, fmt.Errorf("save journey: %w", err)
	}
	a.metrics.CheckpointWrites.WithLabelValues(source).Inc()
	log.Info("checkpoint recorded",
		"journey_id", j.ID,
		"checkpoint", cp.Name,
		"value", value,
		"source", source,
	)
	a.recordEvent(ctx, j, domain.EventCheckpointRecorded, map[string]any{
		"checkpoint": cp.Name,
		"value":      value,
		"source":     source,
	})
	if stamped {
		m, _ := a.schema.MilestoneOf(cp.Name)
		log.Info("milestone completed", "journey_id", j.ID, "milestone", m.Index, "title", m.Title)
		a.recordEvent(ctx, j, domain.EventMilestoneCompleted, map[string]any{
			"milestone": m.Index,
			"title":     m.Title,
		})
	}
	return j, true, nil
}
