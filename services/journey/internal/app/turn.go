package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Discovita/testing-grounds/internal/util"
	"github.com/Discovita/testing-grounds/pkg/ai"
	"github.com/Discovita/testing-grounds/pkg/domain"
)

// TurnResult is the outcome of one processed conversation turn.
type TurnResult struct {
	Journey          domain.Journey `json:"journey"`
	AssistantMessage domain.Message `json:"assistantMessage"`
	Extraction       Extraction     `json:"extraction"`
}

// ProcessTurn runs one conversation turn: persist the user's message, let the
// sentinel extract the active checkpoint, then generate and persist the
// assistant reply from a prompt matching the (possibly updated) journey
// state. Turns for the same journey are serialized; a completed journey still
// converses, an abandoned one does not.
//
// If reply generation fails the turn returns ErrGenerationFailure with the
// user message and any checkpoint write already committed, so a retry does
// not lose progress.
func (a *App) ProcessTurn(ctx context.Context, userID, journeyID, text string) (TurnResult, error) {
	var result TurnResult
	err := a.locks.WithLock(ctx, journeyID, func(ctx context.Context) error {
		r, err := a.processTurn(ctx, userID, journeyID, text)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (a *App) processTurn(ctx context.Context, userID, journeyID, text string) (TurnResult, error) {
	log := util.LoggerFromContext(ctx)
	started := time.Now()

	if _, ok, err := a.store.GetUser(userID); err != nil {
		return TurnResult{}, fmt.Errorf("load user: %w", err)
	} else if !ok {
		return TurnResult{}, ErrUserNotFound
	}
	j, ok, err := a.store.GetJourney(journeyID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load journey: %w", err)
	}
	if !ok {
		return TurnResult{}, ErrJourneyNotFound
	}
	if j.UserID != userID {
		return TurnResult{}, ErrJourneyForbidden
	}
	if j.Status == domain.StatusAbandoned {
		return TurnResult{}, ErrJourneyInactive
	}

	userMsg := domain.Message{
		ID:               uuid.NewString(),
		UserID:           userID,
		JourneyID:        journeyID,
		Speaker:          domain.SpeakerUser,
		Content:          text,
		CurrentMilestone: j.CurrentMilestone,
		CreatedAt:        a.now(),
	}
	if err := a.store.AppendMessage(userMsg); err != nil {
		return TurnResult{}, fmt.Errorf("append user message: %w", err)
	}

	window, err := a.store.RecentMessages(journeyID, a.sentinelWindow)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load sentinel window: %w", err)
	}
	_, extraction := a.analyzeTurn(ctx, j, window, text)

	// Re-read so the reply is generated against exactly what was persisted.
	j, ok, err = a.store.GetJourney(journeyID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("reload journey: %w", err)
	}
	if !ok {
		return TurnResult{}, ErrJourneyNotFound
	}

	promptName, tmpl := selectPrompt(j, a.schema, a.prompts)
	system := renderPrompt(tmpl, j, a.schema)
	log.Info("selected prompt",
		"journey_id", j.ID,
		"prompt", promptName,
		"milestone", j.CurrentMilestone,
		"status", string(j.Status),
	)

	recent, err := a.store.RecentMessages(journeyID, a.historyLimit)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load history: %w", err)
	}
	history := make([]ai.ChatMessage, 0, len(recent))
	for _, m := range recent {
		role := ai.RoleUser
		if m.Speaker == domain.SpeakerAssistant {
			role = ai.RoleAssistant
		}
		history = append(history, ai.ChatMessage{Role: role, Content: m.Content})
	}

	reply, err := a.generator.GenerateChat(ctx, system, history)
	if err != nil {
		a.metrics.GenerationFailures.Inc()
		log.Error("generate assistant reply", "journey_id", j.ID, "error", err)
		return TurnResult{}, fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}

	assistantMsg := domain.Message{
		ID:               uuid.NewString(),
		UserID:           userID,
		JourneyID:        journeyID,
		Speaker:          domain.SpeakerAssistant,
		Content:          reply,
		CurrentMilestone: j.CurrentMilestone,
		CreatedAt:        a.now(),
	}
	if err := a.store.AppendMessage(assistantMsg); err != nil {
		return TurnResult{}, fmt.Errorf("append assistant message: %w", err)
	}

	a.metrics.TurnsProcessed.Inc()
	a.metrics.TurnDuration.Observe(time.Since(started).Seconds())
	return TurnResult{Journey: j, AssistantMessage: assistantMsg, Extraction: extraction}, nil
}
