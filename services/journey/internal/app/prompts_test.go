package app

import (
	"strings"
	"testing"
	"time"

	"github.com/Discovita/testing-grounds/pkg/domain"
)

func TestSelectPromptPrecedence(t *testing.T) {
	s := DefaultSchema()
	c := defaultPromptCatalog()
	now := time.Now().UTC()

	j := testJourney(domain.StatusInProgress, 1)
	name, _ := selectPrompt(j, s, c)
	if name != "milestone_1_intro" {
		t.Fatalf("empty journey: got %s", name)
	}

	j.Room = "kitchen"
	name, _ = selectPrompt(j, s, c)
	if name != "milestone_1_room_known" {
		t.Fatalf("room known: got %s", name)
	}

	j.Room = ""
	j.RenovationPurpose = "functional"
	name, _ = selectPrompt(j, s, c)
	if name != "milestone_1_renovation_purpose_known" {
		t.Fatalf("purpose known: got %s", name)
	}

	j.Room = "kitchen"
	stampMilestone(&j, s, "room", now)
	name, _ = selectPrompt(j, s, c)
	if name != "milestone_1_complete" {
		t.Fatalf("milestone 1 stamped: got %s", name)
	}

	if err := advanceJourney(&j, s, now); err != nil {
		t.Fatalf("advance: %v", err)
	}
	name, _ = selectPrompt(j, s, c)
	if name != "milestone_2_intro" {
		t.Fatalf("milestone 2 empty: got %s", name)
	}

	j.Timeline = "weeks"
	name, _ = selectPrompt(j, s, c)
	if name != "milestone_2_timeline_known" {
		t.Fatalf("timeline known: got %s", name)
	}

	j.BudgetRange = "medium"
	stampMilestone(&j, s, "budget_range", now)
	if err := advanceJourney(&j, s, now); err != nil {
		t.Fatalf("advance: %v", err)
	}

	j.StylePreference = "modern"
	name, _ = selectPrompt(j, s, c)
	if name != "milestone_3_style_preference_known" {
		t.Fatalf("style known: got %s", name)
	}

	j.PriorityFeature = "storage"
	stampMilestone(&j, s, "priority_feature", now)
	name, _ = selectPrompt(j, s, c)
	if name != "milestone_3_complete" {
		t.Fatalf("milestone 3 stamped, journey open: got %s", name)
	}

	if err := completeJourney(&j, s, now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	name, _ = selectPrompt(j, s, c)
	if name != "journey_complete" {
		t.Fatalf("completed journey: got %s", name)
	}
}

func TestSelectPromptFallsBackOnUnexpectedState(t *testing.T) {
	s := DefaultSchema()
	c := defaultPromptCatalog()

	j := testJourney(domain.StatusInProgress, 7)
	name, tmpl := selectPrompt(j, s, c)
	if name != "default" {
		t.Fatalf("out-of-range milestone: got %s", name)
	}
	if !strings.Contains(tmpl, "unexpected") {
		t.Fatal("fallback template missing its disclaimer")
	}
}

func TestRenderPromptSubstitutesEverything(t *testing.T) {
	s := DefaultSchema()
	c := defaultPromptCatalog()
	now := time.Now().UTC()

	j := testJourney(domain.StatusInProgress, 1)
	j.Room = "kitchen"
	j.RenovationPurpose = "functional"
	stampMilestone(&j, s, "room", now)

	name, tmpl := selectPrompt(j, s, c)
	if name != "milestone_1_complete" {
		t.Fatalf("selected %s", name)
	}
	rendered := renderPrompt(tmpl, j, s)

	if !strings.Contains(rendered, "their kitchen for functional purposes") {
		t.Fatalf("checkpoint values not substituted:\n%s", rendered)
	}
	if strings.Contains(rendered, "{room}") || strings.Contains(rendered, "{context}") || strings.Contains(rendered, "{completed_checkpoints}") {
		t.Fatalf("unreplaced placeholders remain:\n%s", rendered)
	}
	if !strings.Contains(rendered, `"milestone":1`) {
		t.Fatalf("context summary missing milestone:\n%s", rendered)
	}
	if !strings.Contains(rendered, `"room":"kitchen"`) {
		t.Fatalf("context summary missing room:\n%s", rendered)
	}
	if !strings.Contains(rendered, `["room","renovation_purpose"]`) {
		t.Fatalf("completed checkpoint list missing:\n%s", rendered)
	}
}

func TestPromptContextScopedToReachedMilestones(t *testing.T) {
	s := DefaultSchema()

	j := testJourney(domain.StatusInProgress, 1)
	j.Room = "kitchen"
	j.StylePreference = "modern" // recorded ahead of its milestone via the direct path

	ctx := buildPromptContext(j, s)
	if _, ok := ctx["style_preference"]; ok {
		t.Fatal("context leaked a value from an unreached milestone")
	}
	if ctx["room"] != "kitchen" {
		t.Fatalf("context room = %v", ctx["room"])
	}

	j.CurrentMilestone = 3
	ctx = buildPromptContext(j, s)
	if ctx["style_preference"] != "modern" {
		t.Fatal("context missing value after its milestone was reached")
	}
}

func TestCompletedCheckpointsScopedToCurrentMilestone(t *testing.T) {
	s := DefaultSchema()

	j := testJourney(domain.StatusInProgress, 2)
	j.Room = "kitchen"
	j.RenovationPurpose = "functional"
	j.BudgetRange = "high"

	got := completedCheckpoints(j, s)
	if len(got) != 1 || got[0] != "budget_range" {
		t.Fatalf("completed checkpoints = %v, want [budget_range]", got)
	}
}
