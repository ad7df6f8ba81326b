package repository

import (
	"context"

	"textreply/backend/internal/models"

	"gorm.io/gorm"
)

// PageRepository stores connected pages
type PageRepository interface {
	Create(ctx context.Context, page *models.Page) error
	// GetByPageID looks a page up by its Facebook id.
	GetByPageID(ctx context.Context, pageID string) (*models.Page, error)
	// GetOwned returns the page only if userID owns it.
	GetOwned(ctx context.Context, id, userID string) (*models.Page, error)
	ListByUser(ctx context.Context, userID string) ([]models.Page, error)
	ConversationCounts(ctx context.Context, ids []string) (map[string]int64, error)
	UpdateSettings(ctx context.Context, id string, systemPrompt, context *string) error
	// ToggleActive flips is_active in one statement and returns the new value.
	ToggleActive(ctx context.Context, id string) (bool, error)
	// Delete removes the page; conversations and messages go with it.
	Delete(ctx context.Context, id string) error
}

type GormPageRepository struct {
	db *gorm.DB
}

func NewGormPageRepository(db *gorm.DB) *GormPageRepository {
	return &GormPageRepository{db: db}
}

func (r *GormPageRepository) Create(ctx context.Context, page *models.Page) error {
	return translate(r.db.WithContext(ctx).Create(page).Error)
}

func (r *GormPageRepository) GetByPageID(ctx context.Context, pageID string) (*models.Page, error) {
	var page models.Page
	if err := r.db.WithContext(ctx).Where("page_id = ?", pageID).First(&page).Error; err != nil {
		return nil, translate(err)
	}
	return &page, nil
}

func (r *GormPageRepository) GetOwned(ctx context.Context, id, userID string) (*models.Page, error) {
	var page models.Page
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&page).Error
	if err != nil {
		return nil, translate(err)
	}
	return &page, nil
}

func (r *GormPageRepository) ListByUser(ctx context.Context, userID string) ([]models.Page, error) {
	var pages []models.Page
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&pages).Error
	return pages, translate(err)
}

func (r *GormPageRepository) ConversationCounts(ctx context.Context, ids []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	var rows []struct {
		PageID string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Select("page_id, COUNT(*) AS count").
		Where("page_id IN ?", ids).
		Group("page_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	for _, row := range rows {
		counts[row.PageID] = row.Count
	}
	return counts, nil
}

func (r *GormPageRepository) UpdateSettings(ctx context.Context, id string, systemPrompt, context *string) error {
	updates := map[string]any{}
	if systemPrompt != nil {
		updates["system_prompt"] = *systemPrompt
	}
	if context != nil {
		updates["context"] = *context
	}
	if len(updates) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&models.Page{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormPageRepository) ToggleActive(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Page{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": gorm.Expr("NOT is_active")})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return false, ErrNotFound
	}

	var page models.Page
	if err := r.db.WithContext(ctx).Select("is_active").Where("id = ?", id).First(&page).Error; err != nil {
		return false, translate(err)
	}
	return page.IsActive, nil
}

func (r *GormPageRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Page{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
