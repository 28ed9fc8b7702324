package store

import (
	"sync"

	"github.com/Discovita/testing-grounds/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and single-node
// dev runs; ordering mirrors the SQL store (insertion order equals
// chronological order because writers are serialized per journey).
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	userOrder  []string
	journeys   map[string]domain.Journey
	journeyIDs []string
	messages   map[string][]domain.Message // key: journey ID
	allMsgs    []domain.Message
	attrs      map[string][]domain.UserAttribute // key: user ID
	events     map[string][]domain.JourneyEvent  // key: journey ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		journeys: make(map[string]domain.Journey),
		messages: make(map[string][]domain.Message),
		attrs:    make(map[string][]domain.UserAttribute),
		events:   make(map[string][]domain.JourneyEvent),
	}
}

// SaveUser stores or replaces a user record.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; !exists {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
	return nil
}

// GetUser returns a user by ID.
func (m *MemoryStore) GetUser(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ListUsers returns all users, newest first.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.userOrder))
	for i := len(m.userOrder) - 1; i >= 0; i-- {
		if u, ok := m.users[m.userOrder[i]]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

// DeleteUser removes a user and every record hanging off them.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	filtered := m.userOrder[:0]
	for _, uid := range m.userOrder {
		if uid != id {
			filtered = append(filtered, uid)
		}
	}
	m.userOrder = filtered

	remaining := m.journeyIDs[:0]
	for _, jid := range m.journeyIDs {
		j, ok := m.journeys[jid]
		if ok && j.UserID == id {
			delete(m.journeys, jid)
			delete(m.messages, jid)
			delete(m.events, jid)
			continue
		}
		remaining = append(remaining, jid)
	}
	m.journeyIDs = remaining

	kept := m.allMsgs[:0]
	for _, msg := range m.allMsgs {
		if msg.UserID != id {
			kept = append(kept, msg)
		}
	}
	m.allMsgs = kept
	delete(m.attrs, id)
	return nil
}

// SaveJourney stores or replaces a journey record.
func (m *MemoryStore) SaveJourney(j domain.Journey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.journeys[j.ID]; !exists {
		m.journeyIDs = append(m.journeyIDs, j.ID)
	}
	m.journeys[j.ID] = j
	return nil
}

// GetJourney returns a journey by ID.
func (m *MemoryStore) GetJourney(id string) (domain.Journey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.journeys[id]
	return j, ok, nil
}

// ActiveJourney returns the user's in-progress journey, if any.
func (m *MemoryStore) ActiveJourney(userID string) (domain.Journey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.journeyIDs) - 1; i >= 0; i-- {
		j, ok := m.journeys[m.journeyIDs[i]]
		if ok && j.UserID == userID && j.Status == domain.StatusInProgress {
			return j, true, nil
		}
	}
	return domain.Journey{}, false, nil
}

// ListJourneys returns all journeys, newest first.
func (m *MemoryStore) ListJourneys() ([]domain.Journey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Journey, 0, len(m.journeyIDs))
	for i := len(m.journeyIDs) - 1; i >= 0; i-- {
		if j, ok := m.journeys[m.journeyIDs[i]]; ok {
			res = append(res, j)
		}
	}
	return res, nil
}

// AppendMessage records a message.
func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.JourneyID] = append(m.messages[msg.JourneyID], msg)
	m.allMsgs = append(m.allMsgs, msg)
	return nil
}

// RecentMessages returns the last messages of a journey in chronological order.
func (m *MemoryStore) RecentMessages(journeyID string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	msgs := m.messages[journeyID]
	start := len(msgs) - limit
	if start < 0 {
		start = 0
	}
	res := make([]domain.Message, len(msgs)-start)
	copy(res, msgs[start:])
	return res, nil
}

// AllMessages returns messages across journeys, newest first.
func (m *MemoryStore) AllMessages(limit, offset int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	res := make([]domain.Message, 0, limit)
	for i := len(m.allMsgs) - 1 - offset; i >= 0 && len(res) < limit; i-- {
		res = append(res, m.allMsgs[i])
	}
	return res, nil
}

// AppendUserAttribute records a side-channel fact.
func (m *MemoryStore) AppendUserAttribute(attr domain.UserAttribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attrs[attr.UserID] = append(m.attrs[attr.UserID], attr)
	return nil
}

// ListUserAttributes returns a user's attributes in insertion order.
func (m *MemoryStore) ListUserAttributes(userID string) ([]domain.UserAttribute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	attrs := m.attrs[userID]
	res := make([]domain.UserAttribute, len(attrs))
	copy(res, attrs)
	return res, nil
}

// AppendJourneyEvent records a transition event.
func (m *MemoryStore) AppendJourneyEvent(ev domain.JourneyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.JourneyID] = append(m.events[ev.JourneyID], ev)
	return nil
}

// ListJourneyEvents returns a journey's events in insertion order.
func (m *MemoryStore) ListJourneyEvents(journeyID string) ([]domain.JourneyEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[journeyID]
	res := make([]domain.JourneyEvent, len(events))
	copy(res, events)
	return res, nil
}
