package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FeedRepository struct {
	db *gorm.DB
}

func NewFeedRepository(db *gorm.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// Add is idempotent: a repeated (recipient, post) pair is ignored.
func (r *FeedRepository) Add(ctx context.Context, recipientID, postID uuid.UUID) error {
	entry := &models.FeedEntry{
		RecipientID: recipientID,
		PostID:      postID,
		CreatedAt:   time.Now(),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add feed entry: %w", err)
	}
	return nil
}

func (r *FeedRepository) List(ctx context.Context, recipientID uuid.UUID, before *uuid.UUID, limit int) ([]uuid.UUID, error) {
	db := r.db.WithContext(ctx).
		Model(&models.FeedEntry{}).
		Where("recipient_id = ?", recipientID)
	if before != nil {
		db = db.Where("post_id < ?", *before)
	}

	var ids []uuid.UUID
	if err := db.Order("post_id DESC").Limit(limit).Pluck("post_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list feed: %w", err)
	}
	return ids, nil
}
