package domain

import "time"

type JourneyStatus string

const (
	StatusInProgress JourneyStatus = "in_progress"
	StatusCompleted  JourneyStatus = "completed"
	StatusAbandoned  JourneyStatus = "abandoned"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

type EventKind string

const (
	EventJourneyStarted     EventKind = "journey_started"
	EventCheckpointRecorded EventKind = "checkpoint_recorded"
	EventMilestoneCompleted EventKind = "milestone_completed"
	EventMilestoneAdvanced  EventKind = "milestone_advanced"
	EventJourneyCompleted   EventKind = "journey_completed"
	EventJourneyAbandoned   EventKind = "journey_abandoned"
)

type User struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Journey tracks one user's progress through the milestone sequence.
// Checkpoint fields start empty and are written at most once; the
// per-milestone completed flags flip false->true only when every checkpoint
// of that milestone is set.
type Journey struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId"`
	CurrentMilestone int           `json:"currentMilestone"`
	Status           JourneyStatus `json:"status"`

	Room              string `json:"room,omitempty"`
	RenovationPurpose string `json:"renovationPurpose,omitempty"`
	BudgetRange       string `json:"budgetRange,omitempty"`
	Timeline          string `json:"timeline,omitempty"`
	StylePreference   string `json:"stylePreference,omitempty"`
	PriorityFeature   string `json:"priorityFeature,omitempty"`

	Milestone1Completed   bool       `json:"milestone1Completed"`
	Milestone1CompletedAt *time.Time `json:"milestone1CompletedAt,omitempty"`
	Milestone2Completed   bool       `json:"milestone2Completed"`
	Milestone2CompletedAt *time.Time `json:"milestone2CompletedAt,omitempty"`
	Milestone3Completed   bool       `json:"milestone3Completed"`
	Milestone3CompletedAt *time.Time `json:"milestone3CompletedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the journey can no longer change state.
func (j Journey) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusAbandoned
}

type Message struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	JourneyID        string    `json:"journeyId"`
	Speaker          Speaker   `json:"speaker"`
	Content          string    `json:"content"`
	CurrentMilestone int       `json:"currentMilestone"`
	CreatedAt        time.Time `json:"createdAt"`
}

// UserAttribute is a side-channel fact picked up from conversation. It never
// participates in milestone progression.
type UserAttribute struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Key             string    `json:"key"`
	Value           string    `json:"value"`
	SourceMessageID string    `json:"sourceMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// JourneyEvent is an append-only record of a state transition. Events are
// written by the operation that performed the transition and are never read
// back to drive one.
type JourneyEvent struct {
	ID        string         `json:"id"`
	JourneyID string         `json:"journeyId"`
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
