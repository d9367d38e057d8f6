package repository

import (
	"context"
	"fmt"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Publish commits the post, its owner-index entry and its fan-out job in one transaction.
// Nothing is visible unless all three writes succeed.
func (r *PostRepository) Publish(ctx context.Context, post *models.Post, job *models.FanoutJob) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}
		entry := &models.OwnerPost{OwnerID: post.OwnerID, PostID: post.ID}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to index post: %w", err)
		}
		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create fanout job: %w", err)
		}
		return nil
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetByIDs returns the posts that exist, in no particular order.
func (r *PostRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var posts []*models.Post
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to get posts by IDs: %w", err)
	}
	return posts, nil
}

// ListOwnerIndex scans the owner's post index newest first, strictly below before when set.
func (r *PostRepository) ListOwnerIndex(ctx context.Context, ownerID uuid.UUID, before *uuid.UUID, limit int) ([]uuid.UUID, error) {
	db := r.db.WithContext(ctx).
		Model(&models.OwnerPost{}).
		Where("owner_id = ?", ownerID)
	if before != nil {
		db = db.Where("post_id < ?", *before)
	}

	var ids []uuid.UUID
	if err := db.Order("post_id DESC").Limit(limit).Pluck("post_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list owner posts: %w", err)
	}
	return ids, nil
}

func (r *PostRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.OwnerPost{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return count, nil
}
