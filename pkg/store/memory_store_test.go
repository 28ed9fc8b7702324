package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/Discovita/testing-grounds/pkg/domain"
)

var _ Store = (*MemoryStore)(nil)

func TestMemoryStoreUserLifecycle(t *testing.T) {
	s := NewMemoryStore()

	if err := s.SaveUser(domain.User{ID: "u1", FirstName: "Ada", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := s.SaveUser(domain.User{ID: "u2", FirstName: "Grace", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("save user: %v", err)
	}

	u, ok, err := s.GetUser("u1")
	if err != nil || !ok {
		t.Fatalf("get user: ok=%v err=%v", ok, err)
	}
	if u.FirstName != "Ada" {
		t.Fatalf("unexpected user: %+v", u)
	}

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0].ID != "u2" {
		t.Fatalf("expected newest-first listing, got %+v", users)
	}

	if _, ok, _ := s.GetUser("missing"); ok {
		t.Fatalf("expected missing user to report absent")
	}
}

func TestMemoryStoreDeleteUserCascades(t *testing.T) {
	s := seededStore(t)

	if err := s.DeleteUser("u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if _, ok, _ := s.GetUser("u1"); ok {
		t.Fatalf("user survived delete")
	}
	if _, ok, _ := s.GetJourney("j1"); ok {
		t.Fatalf("journey survived delete")
	}
	msgs, err := s.RecentMessages("j1", 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages survived delete: %+v", msgs)
	}
	attrs, _ := s.ListUserAttributes("u1")
	if len(attrs) != 0 {
		t.Fatalf("attributes survived delete: %+v", attrs)
	}
	events, _ := s.ListJourneyEvents("j1")
	if len(events) != 0 {
		t.Fatalf("events survived delete: %+v", events)
	}

	all, _ := s.AllMessages(100, 0)
	for _, msg := range all {
		if msg.UserID == "u1" {
			t.Fatalf("global message list still holds deleted user's message: %+v", msg)
		}
	}
}

func TestMemoryStoreJourneyRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()

	in := domain.Journey{
		ID:                    "j1",
		UserID:                "u1",
		CurrentMilestone:      2,
		Status:                domain.StatusInProgress,
		Room:                  "kitchen",
		RenovationPurpose:     "functional",
		BudgetRange:           "medium",
		Milestone1Completed:   true,
		Milestone1CompletedAt: &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.SaveJourney(in); err != nil {
		t.Fatalf("save journey: %v", err)
	}

	out, ok, err := s.GetJourney("j1")
	if err != nil || !ok {
		t.Fatalf("get journey: ok=%v err=%v", ok, err)
	}
	if out.Room != "kitchen" || out.RenovationPurpose != "functional" || out.BudgetRange != "medium" {
		t.Fatalf("checkpoint fields lost in round trip: %+v", out)
	}
	if out.Timeline != "" || out.StylePreference != "" || out.PriorityFeature != "" {
		t.Fatalf("unset checkpoints came back non-empty: %+v", out)
	}
	if !out.Milestone1Completed || out.Milestone1CompletedAt == nil {
		t.Fatalf("milestone stamp lost in round trip: %+v", out)
	}
	if out.Milestone2Completed || out.Milestone3Completed {
		t.Fatalf("unstamped milestones came back completed: %+v", out)
	}
}

func TestMemoryStoreActiveJourney(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()

	first := domain.Journey{ID: "j1", UserID: "u1", CurrentMilestone: 3, Status: domain.StatusCompleted, CreatedAt: now}
	second := domain.Journey{ID: "j2", UserID: "u1", CurrentMilestone: 1, Status: domain.StatusInProgress, CreatedAt: now.Add(time.Second)}
	for _, j := range []domain.Journey{first, second} {
		if err := s.SaveJourney(j); err != nil {
			t.Fatalf("save journey: %v", err)
		}
	}

	active, ok, err := s.ActiveJourney("u1")
	if err != nil || !ok {
		t.Fatalf("active journey: ok=%v err=%v", ok, err)
	}
	if active.ID != "j2" {
		t.Fatalf("expected in-progress journey, got %+v", active)
	}

	second.Status = domain.StatusAbandoned
	if err := s.SaveJourney(second); err != nil {
		t.Fatalf("save journey: %v", err)
	}
	if _, ok, _ := s.ActiveJourney("u1"); ok {
		t.Fatalf("expected no active journey after abandoning")
	}
}

func TestMemoryStoreRecentMessagesWindow(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i := 0; i < 8; i++ {
		msg := domain.Message{
			ID:        fmt.Sprintf("m%d", i),
			UserID:    "u1",
			JourneyID: "j1",
			Speaker:   domain.SpeakerUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendMessage(msg); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}

	recent, err := s.RecentMessages("j1", 5)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(recent))
	}
	if recent[0].ID != "m3" || recent[4].ID != "m7" {
		t.Fatalf("expected chronological tail of the log, got %+v", recent)
	}

	all, err := s.AllMessages(3, 2)
	if err != nil {
		t.Fatalf("all messages: %v", err)
	}
	if len(all) != 3 || all[0].ID != "m5" {
		t.Fatalf("expected newest-first page starting at m5, got %+v", all)
	}
}

func TestMemoryStoreAttributesAndEvents(t *testing.T) {
	s := NewMemoryStore()

	for i := 0; i < 2; i++ {
		err := s.AppendUserAttribute(domain.UserAttribute{
			ID:        fmt.Sprintf("a%d", i),
			UserID:    "u1",
			Key:       "pet",
			Value:     fmt.Sprintf("cat-%d", i),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("append attribute: %v", err)
		}
	}
	attrs, err := s.ListUserAttributes("u1")
	if err != nil {
		t.Fatalf("list attributes: %v", err)
	}
	if len(attrs) != 2 || attrs[0].Value != "cat-0" {
		t.Fatalf("expected append-only attributes in order, got %+v", attrs)
	}

	ev := domain.JourneyEvent{
		ID:        "e1",
		JourneyID: "j1",
		Kind:      domain.EventCheckpointRecorded,
		Payload:   map[string]any{"checkpoint": "room", "value": "kitchen"},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.AppendJourneyEvent(ev); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := s.ListJourneyEvents("j1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != domain.EventCheckpointRecorded {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.SaveUser(domain.User{ID: "u1", CreatedAt: now}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := s.SaveJourney(domain.Journey{ID: "j1", UserID: "u1", CurrentMilestone: 1, Status: domain.StatusInProgress, CreatedAt: now}); err != nil {
		t.Fatalf("save journey: %v", err)
	}
	if err := s.AppendMessage(domain.Message{ID: "m1", UserID: "u1", JourneyID: "j1", Speaker: domain.SpeakerUser, Content: "hi", CreatedAt: now}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	if err := s.AppendUserAttribute(domain.UserAttribute{ID: "a1", UserID: "u1", Key: "pet", Value: "cat", CreatedAt: now}); err != nil {
		t.Fatalf("append attribute: %v", err)
	}
	if err := s.AppendJourneyEvent(domain.JourneyEvent{ID: "e1", JourneyID: "j1", Kind: domain.EventJourneyStarted, CreatedAt: now}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	return s
}
