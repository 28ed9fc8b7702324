package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	FirstName string
	LastName  string
	CreatedAt time.Time `gorm:"not null"`
}

type JourneyModel struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"not null;index"`
	CurrentMilestone int    `gorm:"not null"`
	Status           string `gorm:"not null;index"`

	Room              *string
	RenovationPurpose *string
	BudgetRange       *string
	Timeline          *string
	StylePreference   *string
	PriorityFeature   *string

	Milestone1Completed   bool `gorm:"not null"`
	Milestone1CompletedAt *time.Time
	Milestone2Completed   bool `gorm:"not null"`
	Milestone2CompletedAt *time.Time
	Milestone3Completed   bool `gorm:"not null"`
	Milestone3CompletedAt *time.Time

	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID               string    `gorm:"primaryKey"`
	UserID           string    `gorm:"not null;index"`
	JourneyID        string    `gorm:"not null;index"`
	Speaker          string    `gorm:"not null"`
	Content          string    `gorm:"type:text;not null"`
	CurrentMilestone int       `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index"`
}

type UserAttributeModel struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"not null;index"`
	AttributeKey    string `gorm:"not null;index"`
	AttributeValue  string `gorm:"not null"`
	SourceMessageID *string
	CreatedAt       time.Time `gorm:"not null"`
}

type JourneyEventModel struct {
	ID        string         `gorm:"primaryKey"`
	JourneyID string         `gorm:"not null;index"`
	Kind      string         `gorm:"not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}
