package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Handle          string    `json:"handle" gorm:"uniqueIndex;not null"`
	Email           string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash    string    `json:"-" gorm:"not null"`
	ProfileImageURL string    `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Handle is a registry row binding a normalized handle to exactly one account.
type Handle struct {
	Handle    string    `json:"handle" gorm:"primary_key"`
	AccountID uuid.UUID `json:"account_id" gorm:"type:uuid;not null;uniqueIndex"`
	Email     string    `json:"-" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Follow is a presence marker for the directed edge follower -> followee.
type Follow struct {
	FollowerID uuid.UUID `json:"follower_id" gorm:"type:uuid;primary_key"`
	FolloweeID uuid.UUID `json:"followee_id" gorm:"type:uuid;primary_key;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// Stats are derived by counting index entries at read time.
type Stats struct {
	Posts     int64 `json:"posts"`
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

type Profile struct {
	Account *Account `json:"account"`
	Stats   Stats    `json:"stats"`
}

func (Account) TableName() string {
	return "accounts"
}

func (Handle) TableName() string {
	return "handles"
}

func (Follow) TableName() string {
	return "follows"
}
