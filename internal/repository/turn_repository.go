package repository

import (
	"context"

	"gorm.io/gorm"

	"nonprofit-site/backend/internal/models"
)

type TurnRepository interface {
	Create(ctx context.Context, turn *models.ChatTurn) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatTurn, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

type GormTurnRepository struct {
	db *gorm.DB
}

func NewGormTurnRepository(db *gorm.DB) *GormTurnRepository {
	return &GormTurnRepository{db: db}
}

// Migrate creates or updates the chat_turns table.
func (r *GormTurnRepository) Migrate() error {
	return r.db.AutoMigrate(&models.ChatTurn{})
}

func (r *GormTurnRepository) Create(ctx context.Context, turn *models.ChatTurn) error {
	return r.db.WithContext(ctx).Create(turn).Error
}

// ListBySession returns the oldest limit turns of a session in order.
func (r *GormTurnRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatTurn, error) {
	var turns []models.ChatTurn
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Limit(limit).
		Find(&turns).Error
	return turns, err
}

func (r *GormTurnRepository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.ChatTurn{})
	return res.RowsAffected, res.Error
}
