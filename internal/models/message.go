package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Role is who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable turn in a conversation
type Message struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"index;not null" json:"conversationId"`
	Role           Role      `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BeforeCreate is a GORM hook that assigns the primary key and checks the role
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	if m.ID == "" {
		m.ID = NewID()
	}
	return nil
}

// BeforeUpdate rejects updates; messages are append-only.
func (m *Message) BeforeUpdate(tx *gorm.DB) error {
	return fmt.Errorf("message %s is immutable", m.ID)
}
