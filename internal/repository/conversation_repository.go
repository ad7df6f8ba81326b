package repository

import (
	"context"

	"textreply/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository stores sender/page threads
type ConversationRepository interface {
	GetBySenderAndPage(ctx context.Context, senderID, pageID string) (*models.Conversation, error)
	// CreateOrGet inserts conv unless (sender_id, page_id) already exists and
	// returns the stored row either way. created reports whether this call inserted it.
	CreateOrGet(ctx context.Context, conv *models.Conversation) (stored *models.Conversation, created bool, err error)
	GetInPage(ctx context.Context, id, pageID string) (*models.Conversation, error)
	ListByPage(ctx context.Context, pageID string) ([]models.Conversation, error)
	// Touch bumps updated_at without changing any other column.
	Touch(ctx context.Context, id string) error
}

type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) GetBySenderAndPage(ctx context.Context, senderID, pageID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND page_id = ?", senderID, pageID).
		First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

func (r *GormConversationRepository) CreateOrGet(ctx context.Context, conv *models.Conversation) (*models.Conversation, bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender_id"}, {Name: "page_id"}},
		DoNothing: true,
	}).Create(conv)
	if result.Error != nil {
		return nil, false, translate(result.Error)
	}
	if result.RowsAffected == 1 {
		return conv, true, nil
	}

	stored, err := r.GetBySenderAndPage(ctx, conv.SenderID, conv.PageID)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *GormConversationRepository) GetInPage(ctx context.Context, id, pageID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND page_id = ?", id, pageID).
		First(&conv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &conv, nil
}

func (r *GormConversationRepository) ListByPage(ctx context.Context, pageID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("updated_at DESC, id DESC").
		Find(&convs).Error
	return convs, translate(err)
}

func (r *GormConversationRepository) Touch(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", r.db.NowFunc())
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
