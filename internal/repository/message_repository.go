package repository

import (
	"context"
	"slices"

	"textreply/backend/internal/models"

	"gorm.io/gorm"
)

// MessageRepository stores the append-only message log
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	// Recent returns at most limit of the newest messages, oldest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	// Latest returns the newest message of each listed conversation that has one.
	Latest(ctx context.Context, conversationIDs []string) (map[string]models.Message, error)
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return translate(r.db.WithContext(ctx).Create(message).Error)
}

func (r *GormMessageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, translate(err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (r *GormMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, translate(err)
}

func (r *GormMessageRepository) Latest(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	latest := make(map[string]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIDs).
		Where(`NOT EXISTS (
			SELECT 1 FROM messages newer
			WHERE newer.conversation_id = messages.conversation_id
			AND (newer.created_at > messages.created_at
				OR (newer.created_at = messages.created_at AND newer.id > messages.id)))`).
		Find(&messages).Error
	if err != nil {
		return nil, translate(err)
	}

	for _, m := range messages {
		latest[m.ConversationID] = m
	}
	return latest, nil
}
