package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account that signed in with Facebook. It owns connected pages.
type User struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	FacebookID     string    `gorm:"uniqueIndex;not null" json:"facebookId"`
	Name           string    `gorm:"not null" json:"name"`
	Email          *string   `json:"email"`
	AccessToken    string    `gorm:"type:text;not null" json:"-"` // Never return tokens in JSON
	ProfilePicture *string   `gorm:"type:text" json:"profilePicture"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// UserResponse is the public view of an account
type UserResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          *string `json:"email"`
	ProfilePicture *string `json:"profilePicture"`
	FacebookID     string  `json:"facebookId"`
}

// BeforeCreate is a GORM hook that assigns the primary key
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	return nil
}

// ToResponse converts a User model to a UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
		FacebookID:     u.FacebookID,
	}
}
