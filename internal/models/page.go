package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultSystemPrompt is the persona a newly connected page starts with.
const DefaultSystemPrompt = "You are a helpful customer support assistant for this Facebook Page. " +
	"Be friendly, concise, and helpful. If you don't know something, politely say so and offer to help in another way."

// Page is a Facebook Page connected for auto-replies.
// PageID is Facebook's identifier; ID is ours.
type Page struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	PageID       string    `gorm:"uniqueIndex;not null" json:"pageId"`
	Name         string    `gorm:"not null" json:"name"`
	AccessToken  string    `gorm:"type:text;not null" json:"-"`
	UserID       string    `gorm:"index;not null" json:"userId"`
	IsActive     bool      `gorm:"not null" json:"isActive"`
	SystemPrompt string    `gorm:"type:text" json:"systemPrompt"`
	Context      string    `gorm:"type:text;not null" json:"context"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewPage returns a page with the defaults applied: active, default persona, empty context.
func NewPage(pageID, name, accessToken, userID string) *Page {
	return &Page{
		PageID:       pageID,
		Name:         name,
		AccessToken:  accessToken,
		UserID:       userID,
		IsActive:     true,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// BeforeCreate is a GORM hook that assigns the primary key
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	return nil
}
