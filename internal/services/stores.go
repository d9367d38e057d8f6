package services

import (
	"context"
	"time"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/google/uuid"
)

// The store interfaces below are satisfied by the gorm repositories, the Neo4j
// follow repository and the in-memory stores used in tests. Lookups return
// (nil, nil) when the record does not exist.

type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	SearchByHandlePrefix(ctx context.Context, prefix string, exclude uuid.UUID, limit int) ([]*models.Account, error)
}

type HandleStore interface {
	Reserve(ctx context.Context, handle *models.Handle) error
	Get(ctx context.Context, handle string) (*models.Handle, error)
	Release(ctx context.Context, handle string, accountID uuid.UUID) error
}

type FollowStore interface {
	Create(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	Delete(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	Exists(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	ListFollowers(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error)
	ListFollowing(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error)
	CountFollowers(ctx context.Context, accountID uuid.UUID) (int64, error)
	CountFollowing(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type PostStore interface {
	Publish(ctx context.Context, post *models.Post, job *models.FanoutJob) error
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Post, error)
	ListOwnerIndex(ctx context.Context, ownerID uuid.UUID, before *uuid.UUID, limit int) ([]uuid.UUID, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

type FeedStore interface {
	Add(ctx context.Context, recipientID, postID uuid.UUID) error
	List(ctx context.Context, recipientID uuid.UUID, before *uuid.UUID, limit int) ([]uuid.UUID, error)
}

type FanoutStore interface {
	GetJob(ctx context.Context, postID uuid.UUID) (*models.FanoutJob, error)
	SaveJob(ctx context.Context, job *models.FanoutJob) error
	SnapshotRecipients(ctx context.Context, job *models.FanoutJob, recipients []uuid.UUID) error
	PendingRecipients(ctx context.Context, postID uuid.UUID) ([]uuid.UUID, error)
	MarkDelivered(ctx context.Context, postID, recipientID uuid.UUID) error
	CountRecipients(ctx context.Context, postID uuid.UUID) (delivered, pending int64, err error)
	DueJobs(ctx context.Context, now time.Time, limit int) ([]*models.FanoutJob, error)
	CountByState(ctx context.Context) (map[models.FanoutState]int64, error)
}

// PostCache holds immutable post records keyed by id.
type PostCache interface {
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Post, error)
	SetMany(ctx context.Context, posts []*models.Post) error
}

// EventPublisher is satisfied by queue.KafkaProducer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// Dispatcher starts fan-out for a freshly persisted post without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, postID uuid.UUID)
}
