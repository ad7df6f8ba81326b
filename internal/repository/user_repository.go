package repository

import (
	"context"

	"textreply/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository stores accounts
type UserRepository interface {
	// Upsert inserts the account or refreshes the stored one with the same Facebook id.
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "facebook_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "access_token", "profile_picture", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return nil, translate(err)
	}

	// The conflicting row keeps its original id, so read back the canonical record.
	var stored models.User
	if err := r.db.WithContext(ctx).Where("facebook_id = ?", user.FacebookID).First(&stored).Error; err != nil {
		return nil, translate(err)
	}
	return &stored, nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
