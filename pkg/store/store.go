package store

import (
	"github.com/Discovita/testing-grounds/pkg/domain"
)

// Store defines persistence over users, journeys, messages, attributes and
// journey events. Lookups report absence via the bool return; errors are
// reserved for infrastructure failures. Each write is atomic per call: a
// concurrent reader of the same journey sees either the whole write or none
// of it.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUser(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	DeleteUser(id string) error

	// journeys
	SaveJourney(domain.Journey) error
	GetJourney(id string) (domain.Journey, bool, error)
	ActiveJourney(userID string) (domain.Journey, bool, error)
	ListJourneys() ([]domain.Journey, error)

	// messages
	AppendMessage(domain.Message) error
	RecentMessages(journeyID string, limit int) ([]domain.Message, error)
	AllMessages(limit, offset int) ([]domain.Message, error)

	// user attributes
	AppendUserAttribute(domain.UserAttribute) error
	ListUserAttributes(userID string) ([]domain.UserAttribute, error)

	// journey events
	AppendJourneyEvent(domain.JourneyEvent) error
	ListJourneyEvents(journeyID string) ([]domain.JourneyEvent, error)
}
