package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultSenderName is used when the sender's profile cannot be fetched.
const DefaultSenderName = "Unknown User"

// Conversation is the thread between one Messenger sender and one page.
// (SenderID, PageID) is unique; PageID references Page.ID.
type Conversation struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	SenderID   string    `gorm:"not null;uniqueIndex:idx_conversations_sender_page" json:"senderId"`
	SenderName string    `json:"senderName"`
	PageID     string    `gorm:"not null;uniqueIndex:idx_conversations_sender_page" json:"pageId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// BeforeCreate is a GORM hook that assigns the primary key and default name
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.SenderName == "" {
		c.SenderName = DefaultSenderName
	}
	return nil
}

// ConversationSummary is a conversation with its latest message, for listings.
type ConversationSummary struct {
	ID            string    `json:"id"`
	SenderID      string    `json:"senderId"`
	SenderName    string    `json:"senderName"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
