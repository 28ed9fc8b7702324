package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Discovita/testing-grounds/pkg/domain"
)

const migrateLockID int64 = 52846731

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and runs auto-migrations. Supported
// drivers: "postgres" (production) and "sqlite" (single-binary and dev
// deployments).
func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	switch driver {
	case "postgres":
		// Serialize migrations across replicas.
		if err := withMigrationLock(db, migrate); err != nil {
			return nil, err
		}
	case "sqlite":
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		if err := migrate(db); err != nil {
			return nil, err
		}
	}
	return &GormStore{db: db}, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&UserModel{},
		&JourneyModel{},
		&MessageModel{},
		&UserAttributeModel{},
		&JourneyEventModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user. Only the name fields are mutable.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name"}),
	}).Create(&model).Error
}

// GetUser returns a user by ID.
func (s *GormStore) GetUser(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users, newest first.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// DeleteUser removes a user together with their journeys, messages,
// attributes and journey events.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var journeyIDs []string
		if err := tx.Model(&JourneyModel{}).Where("user_id = ?", id).Pluck("id", &journeyIDs).Error; err != nil {
			return err
		}
		if len(journeyIDs) > 0 {
			if err := tx.Delete(&JourneyEventModel{}, "journey_id IN ?", journeyIDs).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&MessageModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&UserAttributeModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&JourneyModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&UserModel{}, "id = ?", id).Error
	})
}

// SaveJourney stores or replaces a journey row. Callers hold the journey
// lock, so a whole-row upsert is the atomic unit of update.
func (s *GormStore) SaveJourney(j domain.Journey) error {
	model := journeyToModel(j)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_milestone", "status",
			"room", "renovation_purpose", "budget_range",
			"timeline", "style_preference", "priority_feature",
			"milestone1_completed", "milestone1_completed_at",
			"milestone2_completed", "milestone2_completed_at",
			"milestone3_completed", "milestone3_completed_at",
			"updated_at",
		}),
	}).Create(&model).Error
}

// GetJourney returns a journey by ID.
func (s *GormStore) GetJourney(id string) (domain.Journey, bool, error) {
	var model JourneyModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Journey{}, false, nil
		}
		return domain.Journey{}, false, err
	}
	return journeyFromModel(model), true, nil
}

// ActiveJourney returns the user's in-progress journey, if any.
func (s *GormStore) ActiveJourney(userID string) (domain.Journey, bool, error) {
	var model JourneyModel
	err := s.db.Where("user_id = ? AND status = ?", userID, string(domain.StatusInProgress)).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Journey{}, false, nil
		}
		return domain.Journey{}, false, err
	}
	return journeyFromModel(model), true, nil
}

// ListJourneys returns all journeys, newest first.
func (s *GormStore) ListJourneys() ([]domain.Journey, error) {
	var models []JourneyModel
	if err := s.db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Journey, 0, len(models))
	for _, m := range models {
		res = append(res, journeyFromModel(m))
	}
	return res, nil
}

// AppendMessage records a message.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// RecentMessages returns the last messages of a journey in chronological
// order (newest first in the query, then reversed).
func (s *GormStore) RecentMessages(journeyID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.Where("journey_id = ?", journeyID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// AllMessages returns messages across journeys, newest first.
func (s *GormStore) AllMessages(limit, offset int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var models []MessageModel
	if err := s.db.Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs, nil
}

// AppendUserAttribute records a side-channel fact.
func (s *GormStore) AppendUserAttribute(attr domain.UserAttribute) error {
	model := attributeToModel(attr)
	return s.db.Create(&model).Error
}

// ListUserAttributes returns a user's attributes in insertion order.
func (s *GormStore) ListUserAttributes(userID string) ([]domain.UserAttribute, error) {
	var models []UserAttributeModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.UserAttribute, 0, len(models))
	for _, m := range models {
		res = append(res, attributeFromModel(m))
	}
	return res, nil
}

// AppendJourneyEvent records a transition event.
func (s *GormStore) AppendJourneyEvent(ev domain.JourneyEvent) error {
	model := eventToModel(ev)
	return s.db.Create(&model).Error
}

// ListJourneyEvents returns a journey's events in insertion order.
func (s *GormStore) ListJourneyEvents(journeyID string) ([]domain.JourneyEvent, error) {
	var models []JourneyEventModel
	if err := s.db.Where("journey_id = ?", journeyID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.JourneyEvent, 0, len(models))
	for _, m := range models {
		res = append(res, eventFromModel(m))
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		CreatedAt: m.CreatedAt,
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func journeyToModel(j domain.Journey) JourneyModel {
	return JourneyModel{
		ID:               j.ID,
		UserID:           j.UserID,
		CurrentMilestone: j.CurrentMilestone,
		Status:           string(j.Status),

		Room:              optional(j.Room),
		RenovationPurpose: optional(j.RenovationPurpose),
		BudgetRange:       optional(j.BudgetRange),
		Timeline:          optional(j.Timeline),
		StylePreference:   optional(j.StylePreference),
		PriorityFeature:   optional(j.PriorityFeature),

		Milestone1Completed:   j.Milestone1Completed,
		Milestone1CompletedAt: j.Milestone1CompletedAt,
		Milestone2Completed:   j.Milestone2Completed,
		Milestone2CompletedAt: j.Milestone2CompletedAt,
		Milestone3Completed:   j.Milestone3Completed,
		Milestone3CompletedAt: j.Milestone3CompletedAt,

		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func journeyFromModel(m JourneyModel) domain.Journey {
	return domain.Journey{
		ID:               m.ID,
		UserID:           m.UserID,
		CurrentMilestone: m.CurrentMilestone,
		Status:           domain.JourneyStatus(m.Status),

		Room:              value(m.Room),
		RenovationPurpose: value(m.RenovationPurpose),
		BudgetRange:       value(m.BudgetRange),
		Timeline:          value(m.Timeline),
		StylePreference:   value(m.StylePreference),
		PriorityFeature:   value(m.PriorityFeature),

		Milestone1Completed:   m.Milestone1Completed,
		Milestone1CompletedAt: m.Milestone1CompletedAt,
		Milestone2Completed:   m.Milestone2Completed,
		Milestone2CompletedAt: m.Milestone2CompletedAt,
		Milestone3Completed:   m.Milestone3Completed,
		Milestone3CompletedAt: m.Milestone3CompletedAt,

		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:               msg.ID,
		UserID:           msg.UserID,
		JourneyID:        msg.JourneyID,
		Speaker:          string(msg.Speaker),
		Content:          msg.Content,
		CurrentMilestone: msg.CurrentMilestone,
		CreatedAt:        msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:               m.ID,
		UserID:           m.UserID,
		JourneyID:        m.JourneyID,
		Speaker:          domain.Speaker(m.Speaker),
		Content:          m.Content,
		CurrentMilestone: m.CurrentMilestone,
		CreatedAt:        m.CreatedAt,
	}
}

func attributeToModel(attr domain.UserAttribute) UserAttributeModel {
	return UserAttributeModel{
		ID:              attr.ID,
		UserID:          attr.UserID,
		AttributeKey:    attr.Key,
		AttributeValue:  attr.Value,
		SourceMessageID: optional(attr.SourceMessageID),
		CreatedAt:       attr.CreatedAt,
	}
}

func attributeFromModel(m UserAttributeModel) domain.UserAttribute {
	return domain.UserAttribute{
		ID:              m.ID,
		UserID:          m.UserID,
		Key:             m.AttributeKey,
		Value:           m.AttributeValue,
		SourceMessageID: value(m.SourceMessageID),
		CreatedAt:       m.CreatedAt,
	}
}

func eventToModel(ev domain.JourneyEvent) JourneyEventModel {
	raw, _ := json.Marshal(ev.Payload)
	return JourneyEventModel{
		ID:        ev.ID,
		JourneyID: ev.JourneyID,
		Kind:      string(ev.Kind),
		Payload:   raw,
		CreatedAt: ev.CreatedAt,
	}
}

func eventFromModel(m JourneyEventModel) domain.JourneyEvent {
	var payload map[string]any
	if len(m.Payload) > 0 {
		_ = json.Unmarshal(m.Payload, &payload)
	}
	return domain.JourneyEvent{
		ID:        m.ID,
		JourneyID: m.JourneyID,
		Kind:      domain.EventKind(m.Kind),
		Payload:   payload,
		CreatedAt: m.CreatedAt,
	}
}
