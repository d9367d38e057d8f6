package models

import (
	"time"

	"github.com/google/uuid"
)

// Post ids are UUIDv7, so their string form sorts by creation time.
type Post struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	OwnerID      uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Caption      string    `json:"caption" gorm:"type:text"`
	ImageURL     string    `json:"image_url" gorm:"type:text;not null"`
	CreationDate float64   `json:"creation_date" gorm:"not null"` // seconds since epoch
	CreatedAt    time.Time `json:"-"`
}

// OwnerPost is an entry of the per-owner post index.
type OwnerPost struct {
	OwnerID uuid.UUID `gorm:"type:uuid;primary_key"`
	PostID  uuid.UUID `gorm:"type:uuid;primary_key"`
}

// FeedEntry is an entry of the per-recipient feed index, written only by fan-out.
type FeedEntry struct {
	RecipientID uuid.UUID `gorm:"type:uuid;primary_key"`
	PostID      uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt   time.Time
}

type FanoutState string

const (
	FanoutPersisted  FanoutState = "persisted"
	FanoutFanningOut FanoutState = "fanning_out"
	FanoutPartial    FanoutState = "partial"
	FanoutFannedOut  FanoutState = "fanned_out"
	FanoutAbandoned  FanoutState = "abandoned"
)

// FanoutJob tracks one post through fan-out and doubles as its retry queue entry.
type FanoutJob struct {
	PostID        uuid.UUID   `json:"post_id" gorm:"type:uuid;primary_key"`
	OwnerID       uuid.UUID   `json:"owner_id" gorm:"type:uuid;not null"`
	State         FanoutState `json:"state" gorm:"type:varchar(16);not null;index:idx_fanout_due"`
	Attempts      int         `json:"attempts" gorm:"not null;default:0"`
	NextAttemptAt time.Time   `json:"next_attempt_at" gorm:"index:idx_fanout_due"`
	LastError     string      `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// FanoutRecipient is one follower captured in the snapshot taken when fan-out starts.
type FanoutRecipient struct {
	PostID      uuid.UUID  `gorm:"type:uuid;primary_key"`
	RecipientID uuid.UUID  `gorm:"type:uuid;primary_key"`
	DeliveredAt *time.Time `gorm:"index"`
}

func (Post) TableName() string {
	return "posts"
}

func (OwnerPost) TableName() string {
	return "owner_posts"
}

func (FeedEntry) TableName() string {
	return "feed_entries"
}

func (FanoutJob) TableName() string {
	return "fanout_jobs"
}

func (FanoutRecipient) TableName() string {
	return "fanout_recipients"
}

// Done reports whether the job needs no further attempts.
func (j *FanoutJob) Done() bool {
	return j.State == FanoutFannedOut || j.State == FanoutAbandoned
}
