package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Discovita/testing-grounds/internal/util"
	"github.com/Discovita/testing-grounds/pkg/ai"
	"github.com/Discovita/testing-grounds/pkg/domain"
	"github.com/Discovita/testing-grounds/pkg/lock"
	"github.com/Discovita/testing-grounds/pkg/store"
	"github.com/Discovita/testing-grounds/services/journey/internal/events"
	"github.com/Discovita/testing-grounds/services/journey/internal/metrics"
)

const (
	defaultSentinelWindow = 5
	defaultHistoryLimit   = 10
)

// Config holds runtime configuration for the core application.
type Config struct {
	// Store overrides database-backed persistence; when nil a GORM store is
	// opened from DBDriver and DSN.
	Store    store.Store
	DBDriver string
	DSN      string

	GenerationProvider string
	GenerationBaseURL  string
	GenerationAPIKey   string
	GenerationModel    string
	GeminiAPIKey       string
	OllamaBaseURL      string

	ExtractionProvider string
	ExtractionBaseURL  string
	ExtractionAPIKey   string
	ExtractionModel    string

	// FallbackKeywords turns on the literal keyword scan when the extraction
	// model is unreachable.
	FallbackKeywords bool
	// SchemaFile optionally overrides milestone titles, questions and
	// guidance text.
	SchemaFile string

	SentinelWindow int
	HistoryLimit   int

	// Generator and Extractor override the provider-derived clients, mainly
	// for tests.
	Generator ai.TextGenerator
	Extractor ai.FunctionCaller

	Locker  lock.DistributedLocker
	Events  events.Publisher
	Metrics *metrics.Metrics
}

// App is the core application service wiring storage, locking, the sentinel
// and reply generation together.
type App struct {
	store     store.Store
	locks     *lock.Manager
	generator ai.TextGenerator
	extractor ai.FunctionCaller
	schema    Schema
	prompts   promptCatalog
	events    events.Publisher
	metrics   *metrics.Metrics

	sentinelWindow   int
	historyLimit     int
	fallbackKeywords bool

	now func() time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database DSN required")
		}
		driver := cfg.DBDriver
		if driver == "" {
			driver = "sqlite"
		}
		var err error
		dataStore, err = store.NewGormStore(driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
	}

	schema, err := LoadSchema(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}

	generator := cfg.Generator
	if generator == nil {
		generator, err = NewGenerator(cfg)
		if err != nil {
			return nil, err
		}
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor, err = NewExtractor(cfg)
		if err != nil {
			return nil, err
		}
	}

	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	var lockOpts []lock.Option
	if cfg.Locker != nil {
		lockOpts = append(lockOpts, lock.WithLocker(cfg.Locker))
	}

	sentinelWindow := cfg.SentinelWindow
	if sentinelWindow <= 0 {
		sentinelWindow = defaultSentinelWindow
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	return &App{
		store:            dataStore,
		locks:            lock.NewManager(lockOpts...),
		generator:        generator,
		extractor:        extractor,
		schema:           schema,
		prompts:          defaultPromptCatalog(),
		events:           publisher,
		metrics:          m,
		sentinelWindow:   sentinelWindow,
		historyLimit:     historyLimit,
		fallbackKeywords: cfg.FallbackKeywords,
		now:              func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewGenerator builds the reply generator for the configured provider.
func NewGenerator(cfg Config) (ai.TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))
	if provider == "" {
		provider = "openai"
	}
	if cfg.GenerationModel == "" {
		return nil, fmt.Errorf("generation model required")
	}
	switch provider {
	case "openai":
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil
	case "langchain":
		return ai.NewLangChainGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel)
	case "ollama":
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.OllamaBaseURL), cfg.GenerationModel), nil
	case "gemini":
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}

// NewExtractor builds the function-calling extraction client for the
// configured provider.
func NewExtractor(cfg Config) (ai.FunctionCaller, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.ExtractionProvider))
	if provider == "" {
		provider = "openai"
	}
	if cfg.ExtractionModel == "" {
		return nil, fmt.Errorf("extraction model required")
	}
	switch provider {
	case "openai":
		return ai.NewOpenAICompatExtractor(cfg.ExtractionBaseURL, cfg.ExtractionAPIKey, cfg.ExtractionModel), nil
	case "langchain":
		return ai.NewLangChainExtractor(cfg.ExtractionBaseURL, cfg.ExtractionAPIKey, cfg.ExtractionModel)
	default:
		return nil, fmt.Errorf("unknown extraction provider: %s", provider)
	}
}

// Schema exposes the active journey schema, mainly for handlers that need
// checkpoint names.
func (a *App) Schema() Schema {
	return a.schema
}

// recordEvent persists an audit event and forwards it to the event bus.
// Audit failures are logged and do not fail the operation that produced
// them.
func (a *App) recordEvent(ctx context.Context, j domain.Journey, kind domain.EventKind, payload map[string]any) {
	ev := domain.JourneyEvent{
		ID:        uuid.NewString(),
		JourneyID: j.ID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: a.now(),
	}
	if err := a.store.AppendJourneyEvent(ev); err != nil {
		util.LoggerFromContext(ctx).Error("append journey event",
			"journey_id", j.ID,
			"kind", string(kind),
			"error", err,
		)
	}
	a.events.Publish(ctx, ev)
}

// SessionInput identifies or describes the user starting a session.
type SessionInput struct {
	UserID    string `json:"userId,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// SessionResult bundles what a client needs to render a conversation.
type SessionResult struct {
	User           domain.User      `json:"user"`
	Journey        domain.Journey   `json:"journey"`
	Messages       []domain.Message `json:"messages"`
	JourneyCreated bool             `json:"journeyCreated"`
}

// StartSession resolves or creates the user, then resolves or creates their
// active journey. An absent or unknown user id starts a fresh user, so
// clients can always open a conversation; starting a session twice resumes
// rather than forking a second active journey.
func (a *App) StartSession(ctx context.Context, in SessionInput) (SessionResult, error) {
	var user domain.User
	if in.UserID != "" {
		u, ok, err := a.store.GetUser(in.UserID)
		if err != nil {
			return SessionResult{}, fmt.Errorf("load user: %w", err)
		}
		if ok {
			user = u
		}
	}
	if user.ID == "" {
		user = domain.User{
			ID:        uuid.NewString(),
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
			CreatedAt: a.now(),
		}
		if err := a.store.SaveUser(user); err != nil {
			return SessionResult{}, fmt.Errorf("save user: %w", err)
		}
	}
	return a.sessionFor(ctx, user)
}

// ResumeSession loads an existing user's active journey and recent messages.
// Unlike StartSession it never creates the user.
func (a *App) ResumeSession(ctx context.Context, userID string) (SessionResult, error) {
	user, ok, err := a.store.GetUser(userID)
	if err != nil {
		return SessionResult{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return SessionResult{}, ErrUserNotFound
	}
	return a.sessionFor(ctx, user)
}

func (a *App) sessionFor(ctx context.Context, user domain.User) (SessionResult, error) {
	var result SessionResult
	err := a.locks.WithLock(ctx, "user:"+user.ID, func(ctx context.Context) error {
		journey, created, err := a.ensureActiveJourney(ctx, user.ID)
		if err != nil {
			return err
		}
		messages, err := a.store.RecentMessages(journey.ID, a.historyLimit)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		result = SessionResult{
			User:           user,
			Journey:        journey,
			Messages:       messages,
			JourneyCreated: created,
		}
		return nil
	})
	if err != nil {
		return SessionResult{}, err
	}
	return result, nil
}

// ensureActiveJourney returns the user's in-progress journey, creating one
// when none exists. Callers hold the per-user lock.
func (a *App) ensureActiveJourney(ctx context.Context, userID string) (domain.Journey, bool, error) {
	if j, ok, err := a.store.ActiveJourney(userID); err != nil {
		return domain.Journey{}, false, fmt.Errorf("load active journey: %w", err)
	} else if ok {
		return j, false, nil
	}

	now := a.now()
	j := domain.Journey{
		ID:               uuid.NewString(),
		UserID:           userID,
		CurrentMilestone: 1,
		Status:           domain.StatusInProgress,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.store.SaveJourney(j); err != nil {
		return domain.Journey{}, false, fmt.Errorf("save journey: %w", err)
	}
	util.LoggerFromContext(ctx).Info("journey started", "journey_id", j.ID, "user_id", userID)
	a.recordEvent(ctx, j, domain.EventJourneyStarted, nil)
	return j, true, nil
}

// JourneyState is a light progress summary for driving client UI.
type JourneyState struct {
	HasJourney           bool     `json:"hasJourney"`
	JourneyID            string   `json:"journeyId,omitempty"`
	Status               string   `json:"status,omitempty"`
	Milestone            int      `json:"milestone,omitempty"`
	MilestoneTitle       string   `json:"milestoneTitle,omitempty"`
	CompletedCheckpoints []string `json:"completedCheckpoints"`
	MilestoneCompleted   bool     `json:"milestoneCompleted"`
}

// JourneyState summarizes the user's active journey, or reports that none
// exists.
func (a *App) JourneyState(ctx context.Context, userID string) (JourneyState, error) {
	if _, ok, err := a.store.GetUser(userID); err != nil {
		return JourneyState{}, fmt.Errorf("load user: %w", err)
	} else if !ok {
		return JourneyState{}, ErrUserNotFound
	}
	j, ok, err := a.store.ActiveJourney(userID)
	if err != nil {
		return JourneyState{}, fmt.Errorf("load active journey: %w", err)
	}
	if !ok {
		return JourneyState{CompletedCheckpoints: []string{}}, nil
	}
	state := JourneyState{
		HasJourney:           true,
		JourneyID:            j.ID,
		Status:               string(j.Status),
		Milestone:            j.CurrentMilestone,
		CompletedCheckpoints: completedCheckpoints(j, a.schema),
	}
	if m, ok := a.schema.Milestone(j.CurrentMilestone); ok {
		state.MilestoneTitle = m.Title
		state.MilestoneCompleted = m.Completed(j)
	}
	return state, nil
}

// CheckpointResult reports the outcome of a direct checkpoint write.
type CheckpointResult struct {
	Journey    domain.Journey `json:"journey"`
	Checkpoint string         `json:"checkpoint"`
	Value      string         `json:"value"`
	Applied    bool           `json:"applied"`
}

// SaveCheckpoint records a checkpoint value directly, bypassing extraction.
// The value goes through the same normalization as extracted ones, and the
// first recorded value wins: writing an already-set checkpoint reports
// applied=false.
func (a *App) SaveCheckpoint(ctx context.Context, journeyID, name, value string) (CheckpointResult, error) {
	cp, ok := a.schema.Checkpoint(name)
	if !ok {
		return CheckpointResult{}, fmt.Errorf("%w: %s", ErrUnknownCheckpoint, name)
	}
	if strings.TrimSpace(value) == "" {
		return CheckpointResult{}, fmt.Errorf("checkpoint value required")
	}

	var result CheckpointResult
	err := a.locks.WithLock(ctx, journeyID, func(ctx context.Context) error {
		j, ok, err := a.store.GetJourney(journeyID)
		if err != nil {
			return fmt.Errorf("load journey: %w", err)
		}
		if !ok {
			return ErrJourneyNotFound
		}
		if j.Status == domain.StatusAbandoned {
			return ErrJourneyInactive
		}
		normalized := normalizeValue(cp, value)
		updated, applied, err := a.applyCheckpoint(ctx, j, cp, normalized, "direct")
		if err != nil {
			return err
		}
		result = CheckpointResult{
			Journey:    updated,
			Checkpoint: cp.Name,
			Value:      normalized,
			Applied:    applied,
		}
		return nil
	})
	if err != nil {
		return CheckpointResult{}, err
	}
	return result, nil
}

// AdvanceMilestone moves a journey to its next milestone. Allowed only while
// in progress with the current milestone fully collected; completion of a
// milestone never advances on its own.
func (a *App) AdvanceMilestone(ctx context.Context, journeyID string) (domain.Journey, error) {
	return a.transition(ctx, journeyID, func(j *domain.Journey, now time.Time) (domain.EventKind, map[string]any, error) {
		from := j.CurrentMilestone
		if err := advanceJourney(j, a.schema, now); err != nil {
			return "", nil, err
		}
		return domain.EventMilestoneAdvanced, map[string]any{"from": from, "to": j.CurrentMilestone}, nil
	})
}

// CompleteJourney marks a journey completed once the final milestone is
// fully collected.
func (a *App) CompleteJourney(ctx context.Context, journeyID string) (domain.Journey, error) {
	return a.transition(ctx, journeyID, func(j *domain.Journey, now time.Time) (domain.EventKind, map[string]any, error) {
		if err := completeJourney(j, a.schema, now); err != nil {
			return "", nil, err
		}
		return domain.EventJourneyCompleted, nil, nil
	})
}

// AbandonJourney marks an in-progress journey abandoned. The state is
// absorbing; further turns and transitions are rejected.
func (a *App) AbandonJourney(ctx context.Context, journeyID string) (domain.Journey, error) {
	return a.transition(ctx, journeyID, func(j *domain.Journey, now time.Time) (domain.EventKind, map[string]any, error) {
		if err := abandonJourney(j, now); err != nil {
			return "", nil, err
		}
		return domain.EventJourneyAbandoned, nil, nil
	})
}

// transition applies a guarded state change under the journey lock and
// records its event.
func (a *App) transition(ctx context.Context, journeyID string, apply func(*domain.Journey, time.Time) (domain.EventKind, map[string]any, error)) (domain.Journey, error) {
	var result domain.Journey
	err := a.locks.WithLock(ctx, journeyID, func(ctx context.Context) error {
		j, ok, err := a.store.GetJourney(journeyID)
		if err != nil {
			return fmt.Errorf("load journey: %w", err)
		}
		if !ok {
			return ErrJourneyNotFound
		}
		kind, payload, err := apply(&j, a.now())
		if err != nil {
			return err
		}
		if err := a.store.SaveJourney(j); err != nil {
			return fmt.Errorf("save journey: %w", err)
		}
		util.LoggerFromContext(ctx).Info("journey transition",
			"journey_id", j.ID,
			"event", string(kind),
			"milestone", j.CurrentMilestone,
			"status", string(j.Status),
		)
		a.recordEvent(ctx, j, kind, payload)
		result = j
		return nil
	})
	if err != nil {
		return domain.Journey{}, err
	}
	return result, nil
}

// CreateJourney returns the user's active journey, creating one when none
// exists. A user has at most one active journey at a time.
func (a *App) CreateJourney(ctx context.Context, userID string) (domain.Journey, bool, error) {
	if _, ok, err := a.store.GetUser(userID); err != nil {
		return domain.Journey{}, false, fmt.Errorf("load user: %w", err)
	} else if !ok {
		return domain.Journey{}, false, ErrUserNotFound
	}
	var (
		journey domain.Journey
		created bool
	)
	err := a.locks.WithLock(ctx, "user:"+userID, func(ctx context.Context) error {
		j, c, err := a.ensureActiveJourney(ctx, userID)
		if err != nil {
			return err
		}
		journey, created = j, c
		return nil
	})
	if err != nil {
		return domain.Journey{}, false, err
	}
	return journey, created, nil
}

// GetJourney loads one journey by ID.
func (a *App) GetJourney(ctx context.Context, journeyID string) (domain.Journey, error) {
	j, ok, err := a.store.GetJourney(journeyID)
	if err != nil {
		return domain.Journey{}, fmt.Errorf("load journey: %w", err)
	}
	if !ok {
		return domain.Journey{}, ErrJourneyNotFound
	}
	return j, nil
}

// ListJourneys lists journeys, optionally filtered by user.
func (a *App) ListJourneys(ctx context.Context, userID string) ([]domain.Journey, error) {
	journeys, err := a.store.ListJourneys()
	if err != nil {
		return nil, fmt.Errorf("list journeys: %w", err)
	}
	if userID == "" {
		return journeys, nil
	}
	filtered := make([]domain.Journey, 0, len(journeys))
	for _, j := range journeys {
		if j.UserID == userID {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

// ActiveJourney returns the user's in-progress journey, if any.
func (a *App) ActiveJourney(ctx context.Context, userID string) (domain.Journey, bool, error) {
	j, ok, err := a.store.ActiveJourney(userID)
	if err != nil {
		return domain.Journey{}, false, fmt.Errorf("load active journey: %w", err)
	}
	return j, ok, nil
}

// JourneyEvents returns a journey's audit trail, oldest first.
func (a *App) JourneyEvents(ctx context.Context, journeyID string) ([]domain.JourneyEvent, error) {
	if _, ok, err := a.store.GetJourney(journeyID); err != nil {
		return nil, fmt.Errorf("load journey: %w", err)
	} else if !ok {
		return nil, ErrJourneyNotFound
	}
	evs, err := a.store.ListJourneyEvents(journeyID)
	if err != nil {
		return nil, fmt.Errorf("list journey events: %w", err)
	}
	return evs, nil
}

// JourneyMessages returns the journey's recent messages in chronological
// order.
func (a *App) JourneyMessages(ctx context.Context, journeyID string, limit int) ([]domain.Message, error) {
	if _, ok, err := a.store.GetJourney(journeyID); err != nil {
		return nil, fmt.Errorf("load journey: %w", err)
	} else if !ok {
		return nil, ErrJourneyNotFound
	}
	if limit <= 0 {
		limit = a.historyLimit
	}
	msgs, err := a.store.RecentMessages(journeyID, limit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}

// AllMessages pages through every stored message, newest first.
func (a *App) AllMessages(ctx context.Context, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	msgs, err := a.store.AllMessages(limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}

// CreateUser registers a user.
func (a *App) CreateUser(ctx context.Context, firstName, lastName string) (domain.User, error) {
	user := domain.User{
		ID:        uuid.NewString(),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		CreatedAt: a.now(),
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// GetUser loads one user by ID.
func (a *App) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, ok, err := a.store.GetUser(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return u, nil
}

// UpdateUser changes a user's name fields.
func (a *App) UpdateUser(ctx context.Context, userID, firstName, lastName string) (domain.User, error) {
	u, ok, err := a.store.GetUser(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if firstName != "" {
		u.FirstName = strings.TrimSpace(firstName)
	}
	if lastName != "" {
		u.LastName = strings.TrimSpace(lastName)
	}
	if err := a.store.SaveUser(u); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return u, nil
}

// ListUsers lists registered users, newest first.
func (a *App) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes a user and everything recorded for them: journeys,
// messages, attributes and events.
func (a *App) DeleteUser(ctx context.Context, userID string) error {
	if _, ok, err := a.store.GetUser(userID); err != nil {
		return fmt.Errorf("load user: %w", err)
	} else if !ok {
		return ErrUserNotFound
	}
	if err := a.store.DeleteUser(userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// RecordUserAttribute stores a side-channel fact about the user. Attributes
// never affect milestone progression.
func (a *App) RecordUserAttribute(ctx context.Context, userID, key, value, sourceMessageID string) (domain.UserAttribute, error) {
	if _, ok, err := a.store.GetUser(userID); err != nil {
		return domain.UserAttribute{}, fmt.Errorf("load user: %w", err)
	} else if !ok {
		return domain.UserAttribute{}, ErrUserNotFound
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.UserAttribute{}, fmt.Errorf("attribute key required")
	}
	attr := domain.UserAttribute{
		ID:              uuid.NewString(),
		UserID:          userID,
		Key:             key,
		Value:           strings.TrimSpace(value),
		SourceMessageID: sourceMessageID,
		CreatedAt:       a.now(),
	}
	if err := a.store.AppendUserAttribute(attr); err != nil {
		return domain.UserAttribute{}, fmt.Errorf("save attribute: %w", err)
	}
	return attr, nil
}

// UserAttributes lists the facts recorded for a user.
func (a *App) UserAttributes(ctx context.Context, userID string) ([]domain.UserAttribute, error) {
	if _, ok, err := a.store.GetUser(userID); err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	} else if !ok {
		return nil, ErrUserNotFound
	}
	attrs, err := a.store.ListUserAttributes(userID)
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	return attrs, nil
}
