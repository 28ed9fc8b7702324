package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/Discovita/testing-grounds/pkg/ai"
	"github.com/Discovita/testing-grounds/pkg/domain"
	"github.com/Discovita/testing-grounds/pkg/store"
)

type generatorCall struct {
	system  string
	history []ai.ChatMessage
}

// fakeGenerator records every request and answers with a fixed reply.
type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []generatorCall
}

func (g *fakeGenerator) GenerateChat(_ context.Context, systemPrompt string, history []ai.ChatMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generatorCall{system: systemPrompt, history: history})
	if g.err != nil {
		return "", g.err
	}
	if g.reply == "" {
		return "Understood.", nil
	}
	return g.reply, nil
}

func (g *fakeGenerator) lastCall(t *testing.T) generatorCall {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		t.Fatal("generator was never called")
	}
	return g.calls[len(g.calls)-1]
}

type extractorResult struct {
	call *ai.FunctionCall
	err  error
}

// fakeExtractor pops scripted results per call and keeps the prompts it saw.
// Once the script runs out it reports "nothing found".
type fakeExtractor struct {
	mu      sync.Mutex
	script  []extractorResult
	prompts []string
}

func (e *fakeExtractor) CallFunction(_ context.Context, systemPrompt string, _ []ai.ChatMessage, _ ai.FunctionDef) (*ai.FunctionCall, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompts = append(e.prompts, systemPrompt)
	if len(e.script) == 0 {
		return nil, nil
	}
	r := e.script[0]
	e.script = e.script[1:]
	return r.call, r.err
}

func (e *fakeExtractor) lastPrompt(t *testing.T) string {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prompts) == 0 {
		t.Fatal("extractor was never called")
	}
	return e.prompts[len(e.prompts)-1]
}

func updateCall(journeyID, checkpoint, value string) *ai.FunctionCall {
	return &ai.FunctionCall{
		Name: updateJourneyFunctionName,
		Arguments: map[string]any{
			"journey_id":      journeyID,
			"checkpoint_name": checkpoint,
			"value":           value,
		},
	}
}

func newTestApp(t *testing.T, gen ai.TextGenerator, ext ai.FunctionCaller) (*App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	a, err := New(Config{
		Store:            st,
		Generator:        gen,
		Extractor:        ext,
		FallbackKeywords: true,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, st
}

func startJourney(t *testing.T, a *App) (domain.User, domain.Journey) {
	t.Helper()
	res, err := a.StartSession(context.Background(), SessionInput{FirstName: "Dana", LastName: "Reyes"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if !res.JourneyCreated {
		t.Fatal("fresh session did not create a journey")
	}
	return res.User, res.Journey
}

func TestStartSessionCreatesThenResumes(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{}, &fakeExtractor{})
	ctx := context.Background()

	user, journey := startJourney(t, a)
	if journey.CurrentMilestone != 1 || journey.Status != domain.StatusInProgress {
		t.Fatalf("new journey state: milestone=%d status=%s", journey.CurrentMilestone, journey.Status)
	}

	resumed, err := a.ResumeSession(ctx, user.ID)
	if err != nil {
		t.Fatalf("resume session: %v", err)
	}
	if resumed.JourneyCreated {
		t.Fatal("resume created a second journey")
	}
	if resumed.Journey.ID != journey.ID {
		t.Fatalf("resume returned journey %s, want %s", resumed.Journey.ID, journey.ID)
	}

	if _, err := a.ResumeSession(ctx, "missing-user"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("resume for unknown user: got %v", err)
	}

	// Starting with an unknown id falls back to creating a fresh user
	// instead of failing.
	fresh, err := a.StartSession(ctx, SessionInput{UserID: "missing-user", FirstName: "Sam"})
	if err != nil {
		t.Fatalf("start session with unknown id: %v", err)
	}
	if fresh.User.ID == "" || fresh.User.ID == "missing-user" {
		t.Fatalf("expected a newly minted user id, got %q", fresh.User.ID)
	}
	if !fresh.JourneyCreated {
		t.Fatal("fresh user should get a new journey")
	}
}

func TestProcessTurnRecordsMessagesAndCheckpoint(t *testing.T) {
	gen := &fakeGenerator{reply: "Great choice! Why do you want to renovate it?"}
	ext := &fakeExtractor{}
	a, st := newTestApp(t, gen, ext)
	ctx := context.Background()

	user, journey := startJourney(t, a)
	ext.script = []extractorResult{{call: updateCall(journey.ID, "room", "Kitchen")}}

	result, err := a.ProcessTurn(ctx, user.ID, journey.ID, "I want to redo my kitchen")
	if err != nil {
		t.Fatalf("process turn: %v", err)
	}

	if result.Journey.Room != "kitchen" {
		t.Fatalf("room = %q, want kitchen", result.Journey.Room)
	}
	if !result.Extraction.Applied || result.Extraction.Source != "sentinel" {
		t.Fatalf("extraction = %+v", result.Extraction)
	}
	if result.AssistantMessage.Content != gen.reply {
		t.Fatalf("assistant reply = %q", result.AssistantMessage.Content)
	}

	msgs, err := st.RecentMessages(journey.ID, 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages, want 2", len(msgs))
	}
	if msgs[0].Speaker != domain.SpeakerUser || msgs[1].Speaker != domain.SpeakerAssistant {
		t.Fatalf("message order wrong: %s then %s", msgs[0].Speaker, msgs[1].Speaker)
	}

	call := gen.lastCall(t)
	if !strings.Contains(call.system, "Milestone 1") {
		t.Fatalf("system prompt not milestone 1:\n%s", call.system)
	}
	if len(call.history) != 1 || call.history[0].Role != ai.RoleUser {
		t.Fatalf("generation history = %+v", call.history)
	}
	if call.history[0].Content != "I want to redo my kitchen" {
		t.Fatalf("history content = %q", call.history[0].Content)
	}
}

func TestProcessTurnValidatesOwnershipAndState(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{}, &fakeExtractor{})
	ctx := context.Background()

	user, journey := startJourney(t, a)
	other, err := a.CreateUser(ctx, "Sam", "Okafor")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := a.ProcessTurn(ctx, "missing", journey.ID, "hi"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: got %v", err)
	}
	if _, err := a.ProcessTurn(ctx, user.ID, "missing", "hi"); !errors.Is(err, ErrJourneyNotFound) {
		t.Fatalf("unknown journey: got %v", err)
	}
	if _, err := a.ProcessTurn(ctx, other.ID, journey.ID, "hi"); !errors.Is(err, ErrJourneyForbidden) {
		t.Fatalf("foreign journey: got %v", err)
	}

	if _, err := a.AbandonJourney(ctx, journey.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := a.ProcessTurn(ctx, user.ID, journey.ID, "hi"); !errors.Is(err, ErrJourneyInactive) {
		t.Fatalf("abandoned journey: got %v", err)
	}
}

func TestProcessTurnGenerationFailureKeepsWrites(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("model unavailable")}
	ext := &fakeExtractor{}
	a, st := newTestApp(t, gen, ext)
	ctx := context.Background()

	user, journey := startJourney(t, a)
	ext.script = []extractorResult{{call: updateCall(journey.ID, "room", "kitchen")}}

	_, err := a.ProcessTurn(ctx, user.ID, journey.ID, "let's do the kitchen")
	if !errors.Is(err, ErrGenerationFailure) {
		t.Fatalf("got %v, want ErrGenerationFailure", err)
	}

	j, ok, err := st.GetJourney(journey.ID)
	if err != nil || !ok {
		t.Fatalf("reload journey: ok=%v err=%v", ok, err)
	}
	if j.Room != "kitchen" {
		t.Fatal("checkpoint write lost on generation failure")
	}
	msgs, err := st.RecentMessages(journey.ID, 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Speaker != domain.SpeakerUser {
		t.Fatalf("stored messages = %d, want only the user message", len(msgs))
	}
}

func TestSaveCheckpointDirect(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{}, &fakeExtractor{})
	ctx := context.Background()
	_, journey := startJourney(t, a)

	if _, err := a.SaveCheckpoint(ctx, journey.ID, "favorite_color", "blue"); !errors.Is(err, ErrUnknownCheckpoint) {
		t.Fatalf("unknown checkpoint: got %v", err)
	}

	res, err := a.SaveCheckpoint(ctx, journey.ID, "budget_range", "Really Expensive")
	if err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if !res.Applied || res.Value != "high" {
		t.Fatalf("result = %+v, want applied high", res)
	}
	if res.Journey.BudgetRange != "high" {
		t.Fatalf("journey budget = %q", res.Journey.BudgetRange)
	}

	res, err = a.SaveCheckpoint(ctx, journey.ID, "budget_range", "cheap actually")
	if err != nil {
		t.Fatalf("repeat save: %v", err)
	}
	if res.Applied {
		t.Fatal("second write overwrote the first value")
	}
	if res.Journey.BudgetRange != "high" {
		t.Fatalf("budget changed to %q", res.Journey.BudgetRange)
	}
}

func TestGuardedTransitionsThroughApp(t *testing.T) {
	a, st := newTestApp(t, &fakeGenerator{}, &fakeExtractor{})
	ctx := context.Background()
	_, journey := startJourney(t, a)

	if _, err := a.AdvanceMilestone(ctx, journey.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance on empty milestone: got %v", err)
	}
	if _, err := a.CompleteJourney(ctx, journey.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete on milestone 1: got %v", err)
	}

	mustSave := func(name, value string) {
		t.Helper()
		if _, err := a.SaveCheckpoint(ctx, journey.ID, name, value); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	mustSave("room", "kitchen")
	mustSave("renovation_purpose", "functional")

	j, err := a.AdvanceMilestone(ctx, journey.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if j.CurrentMilestone != 2 {
		t.Fatalf("milestone = %d, want 2", j.CurrentMilestone)
	}

	mustSave("budget_range", "medium")
	mustSave("timeline", "weeks")
	if j, err = a.AdvanceMilestone(ctx, journey.ID); err != nil || j.CurrentMilestone != 3 {
		t.Fatalf("advance to 3: milestone=%d err=%v", j.CurrentMilestone, err)
	}

	mustSave("style_preference", "modern")
	mustSave("priority_feature", "storage")
	j, err = a.CompleteJourney(ctx, journey.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", j.Status)
	}
	if !j.Milestone1Completed || !j.Milestone2Completed || !j.Milestone3Completed {
		t.Fatal("milestone flags incomplete on completed journey")
	}

	events, err := st.ListJourneyEvents(journey.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, string(ev.Kind))
	}
	joined := strings.Join(kinds, ",")
	for _, want := range []string{"journey_started", "checkpoint_recorded", "milestone_completed", "milestone_advanced", "journey_completed"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("event %s missing from %s", want, joined)
		}
	}
}

func TestCompletedJourneyStillConverses(t *testing.T) {
	gen := &fakeGenerator{reply: "Congratulations again on the plan!"}
	a, _ := newTestApp(t, gen, &fakeExtractor{})
	ctx := context.Background()
	user, journey := startJourney(t, a)

	for _, cp := range []struct{ name, value string }{
		{"room", "kitchen"}, {"renovation_purpose", "functional"},
		{"budget_range", "medium"}, {"timeline", "weeks"},
		{"style_preference", "modern"}, {"priority_feature", "storage"},
	} {
		if _, err := a.SaveCheckpoint(ctx, journey.ID, cp.name, cp.value); err != nil {
			t.Fatalf("save %s: %v", cp.name, err)
		}
	}
	if _, err := a.AdvanceMilestone(ctx, journey.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := a.AdvanceMilestone(ctx, journey.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := a.CompleteJourney(ctx, journey.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	result, err := a.ProcessTurn(ctx, user.ID, journey.ID, "What flooring should I pick?")
	if err != nil {
		t.Fatalf("turn on completed journey: %v", err)
	}
	if result.Extraction.Applied {
		t.Fatal("completed journey recorded an extraction")
	}
	if !strings.Contains(gen.lastCall(t).system, "completed their renovation journey") {
		t.Fatal("completed journey not using the wrap-up prompt")
	}
}

func TestJourneyStateSummaries(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{}, &fakeExtractor{})
	ctx := context.Background()

	user, err := a.CreateUser(ctx, "Lee", "Nakano")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	state, err := a.JourneyState(ctx, user.ID)
	if err != nil {
		t.Fatalf("journey state: %v", err)
	}
	if state.HasJourney {
		t.Fatal("state reports a journey before one exists")
	}

	journey, created, err := a.CreateJourney(ctx, user.ID)
	if err != nil || !created {
		t.Fatalf("create journey: created=%v err=%v", created, err)
	}
	if _, created, err = a.CreateJourney(ctx, user.ID); err != nil || created {
		t.Fatalf("second create forked a journey: created=%v err=%v", created, err)
	}

	if _, err := a.SaveCheckpoint(ctx, journey.ID, "room", "attic"); err != nil {
		t.Fatalf("save room: %v", err)
	}
	state, err = a.JourneyState(ctx, user.ID)
	if err != nil {
		t.Fatalf("journey state: %v", err)
	}
	if !state.HasJourney || state.JourneyID != journey.ID {
		t.Fatalf("state = %+v", state)
	}
	if state.Milestone != 1 || state.MilestoneTitle != "Project Basics" {
		t.Fatalf("milestone summary = %d %q", state.Milestone, state.MilestoneTitle)
	}
	if len(state.CompletedCheckpoints) != 1 || state.CompletedCheckpoints[0] != "room" {
		t.Fatalf("completed = %v", state.CompletedCheckpoints)
	}
	if state.MilestoneCompleted {
		t.Fatal("milestone reported complete with purpose missing")
	}
}

func TestProcessTurnSerializesPerJourney(t *testing.T) {
	gen := &fakeGenerator{}
	ext := &fakeExtractor{}
	a, st := newTestApp(t, gen, ext)
	ctx := context.Background()
	user, journey := startJourney(t, a)

	const turns = 8
	var g errgroup.Group
	for i := 0; i < turns; i++ {
		i := i
		g.Go(func() error {
			_, err := a.ProcessTurn(ctx, user.ID, journey.ID, fmt.Sprintf("message %d", i))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent turns: %v", err)
	}

	msgs, err := st.RecentMessages(journey.ID, turns*2)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != turns*2 {
		t.Fatalf("stored %d messages, want %d", len(msgs), turns*2)
	}
	// under the per-journey lock each turn's pair is adjacent
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Speaker != domain.SpeakerUser || msgs[i+1].Speaker != domain.SpeakerAssistant {
			t.Fatalf("turn %d interleaved: %s then %s", i/2, msgs[i].Speaker, msgs[i+1].Speaker)
		}
	}
}

func TestUserAttributesSideChannel(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{}, &fakeExtractor{})
	ctx := context.Background()
	user, journey := startJourney(t, a)

	attr, err := a.RecordUserAttribute(ctx, user.ID, "has_pets", "two cats", "")
	if err != nil {
		t.Fatalf("record attribute: %v", err)
	}
	if attr.Key != "has_pets" {
		t.Fatalf("attribute key = %q", attr.Key)
	}

	attrs, err := a.UserAttributes(ctx, user.ID)
	if err != nil {
		t.Fatalf("list attributes: %v", err)
	}
	if len(attrs) != 1 {
		t.Fatalf("attributes = %d, want 1", len(attrs))
	}

	j, err := a.GetJourney(ctx, journey.ID)
	if err != nil {
		t.Fatalf("get journey: %v", err)
	}
	if j.CurrentMilestone != 1 || j.Room != "" {
		t.Fatal("attribute write touched journey progression")
	}
}
