package app

import (
	"errors"
	"testing"
	"time"

	"github.com/Discovita/testing-grounds/pkg/domain"
)

func testJourney(status domain.JourneyStatus, milestone int) domain.Journey {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return domain.Journey{
		ID:               "j-state",
		UserID:           "u-state",
		CurrentMilestone: milestone,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestStampMilestoneRequiresEveryCheckpoint(t *testing.T) {
	s := DefaultSchema()
	j := testJourney(domain.StatusInProgress, 1)
	now := time.Now().UTC()

	j.Room = "kitchen"
	if stampMilestone(&j, s, "room", now) {
		t.Fatal("milestone stamped with renovation_purpose still missing")
	}
	if j.Milestone1Completed {
		t.Fatal("completion flag set early")
	}

	j.RenovationPurpose = "functional"
	if !stampMilestone(&j, s, "renovation_purpose", now) {
		t.Fatal("milestone not stamped after final checkpoint")
	}
	if !j.Milestone1Completed || j.Milestone1CompletedAt == nil {
		t.Fatal("completion flag or timestamp missing")
	}
	if j.CurrentMilestone != 1 {
		t.Fatalf("stamping moved current milestone to %d", j.CurrentMilestone)
	}
	if j.Status != domain.StatusInProgress {
		t.Fatalf("stamping changed status to %s", j.Status)
	}

	if stampMilestone(&j, s, "renovation_purpose", now.Add(time.Minute)) {
		t.Fatal("milestone stamped twice")
	}
}

func TestAdvanceRequiresSatisfiedMilestone(t *testing.T) {
	s := DefaultSchema()
	j := testJourney(domain.StatusInProgress, 1)
	now := time.Now().UTC()

	if err := advanceJourney(&j, s, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance on empty milestone: got %v, want ErrInvalidTransition", err)
	}

	j.Room = "kitchen"
	if err := advanceJourney(&j, s, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance on half-filled milestone: got %v", err)
	}

	j.RenovationPurpose = "functional"
	if err := advanceJourney(&j, s, now); err != nil {
		t.Fatalf("advance on satisfied milestone: %v", err)
	}
	if j.CurrentMilestone != 2 {
		t.Fatalf("current milestone = %d, want 2", j.CurrentMilestone)
	}
}

func TestAdvanceStopsAtFinalMilestone(t *testing.T) {
	s := DefaultSchema()
	j := testJourney(domain.StatusInProgress, 3)
	j.Room = "kitchen"
	j.RenovationPurpose = "functional"
	j.BudgetRange = "medium"
	j.Timeline = "weeks"
	j.StylePreference = "modern"
	j.PriorityFeature = "storage"

	if err := advanceJourney(&j, s, time.Now().UTC()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance past final milestone: got %v, want ErrInvalidTransition", err)
	}
	if j.CurrentMilestone != 3 {
		t.Fatalf("current milestone = %d, want 3", j.CurrentMilestone)
	}
}

func TestCompleteRequiresFinalMilestoneSatisfied(t *testing.T) {
	s := DefaultSchema()
	now := time.Now().UTC()

	j := testJourney(domain.StatusInProgress, 1)
	if err := completeJourney(&j, s, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete on milestone 1: got %v", err)
	}

	j = testJourney(domain.StatusInProgress, 3)
	j.StylePreference = "modern"
	if err := completeJourney(&j, s, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete with priority_feature missing: got %v", err)
	}

	j.PriorityFeature = "storage"
	if err := completeJourney(&j, s, now); err != nil {
		t.Fatalf("complete on satisfied final milestone: %v", err)
	}
	if j.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", j.Status)
	}

	if err := completeJourney(&j, s, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete twice: got %v", err)
	}
}

func TestAbandonIsAbsorbing(t *testing.T) {
	s := DefaultSchema()
	now := time.Now().UTC()

	j := testJourney(domain.StatusInProgress, 2)
	if err := abandonJourney(&j, now); err != nil {
		t.Fatalf("abandon in-progress journey: %v", err)
	}
	if j.Status != domain.StatusAbandoned {
		t.Fatalf("status = %s, want abandoned", j.Status)
	}

	if err := abandonJourney(&j, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("abandon twice: got %v", err)
	}
	if err := advanceJourney(&j, s, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance after abandon: got %v", err)
	}
	if err := completeJourney(&j, s, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete after abandon: got %v", err)
	}
}

func TestActiveCheckpointFollowsMilestoneOrder(t *testing.T) {
	s := DefaultSchema()
	j := testJourney(domain.StatusInProgress, 1)

	cp, ok := activeCheckpoint(j, s)
	if !ok || cp.Name != "room" {
		t.Fatalf("active checkpoint = %q, want room", cp.Name)
	}

	j.Room = "kitchen"
	cp, ok = activeCheckpoint(j, s)
	if !ok || cp.Name != "renovation_purpose" {
		t.Fatalf("active checkpoint = %q, want renovation_purpose", cp.Name)
	}

	j.RenovationPurpose = "repair"
	if _, ok = activeCheckpoint(j, s); ok {
		t.Fatal("satisfied milestone still reports an active checkpoint")
	}

	j.CurrentMilestone = 2
	cp, ok = activeCheckpoint(j, s)
	if !ok || cp.Name != "budget_range" {
		t.Fatalf("active checkpoint = %q, want budget_range", cp.Name)
	}
}

func TestNormalizeValueCanonicalizes(t *testing.T) {
	s := DefaultSchema()
	cases := []struct {
		checkpoint string
		raw        string
		want       string
	}{
		{"room", "My Master Bedroom", "bedroom"},
		{"room", "the wine cellar", "the wine cellar"},
		{"renovation_purpose", "make it look beautiful", "aesthetic"},
		{"renovation_purpose", "Fix the broken tiles", "repair"},
		{"budget_range", "pretty affordable", "low"},
		{"budget_range", "no idea yet", "medium"},
		{"timeline", "ASAP please", "weeks"},
		{"timeline", "somewhere around six months", "months"},
		{"style_preference", "clean contemporary lines", "modern"},
		{"style_preference", "simple and uncluttered", "minimalist"},
		{"priority_feature", "more cabinet room", "storage"},
		{"priority_feature", "an open area", "space"},
		{"priority_feature", "smart home tech", "smart features"},
	}
	for _, tc := range cases {
		cp, ok := s.Checkpoint(tc.checkpoint)
		if !ok {
			t.Fatalf("checkpoint %q missing from schema", tc.checkpoint)
		}
		if got := normalizeValue(cp, tc.raw); got != tc.want {
			t.Fatalf("normalize %s %q = %q, want %q", tc.checkpoint, tc.raw, got, tc.want)
		}
	}
}
