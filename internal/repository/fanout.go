package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FanoutRepository persists fan-out jobs and their recipient snapshots.
type FanoutRepository struct {
	db *gorm.DB
}

func NewFanoutRepository(db *gorm.DB) *FanoutRepository {
	return &FanoutRepository{db: db}
}

func (r *FanoutRepository) GetJob(ctx context.Context, postID uuid.UUID) (*models.FanoutJob, error) {
	var job models.FanoutJob
	if err := r.db.WithContext(ctx).First(&job, "post_id = ?", postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fanout job: %w", err)
	}
	return &job, nil
}

func (r *FanoutRepository) SaveJob(ctx context.Context, job *models.FanoutJob) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("failed to save fanout job: %w", err)
	}
	return nil
}

// SnapshotRecipients records who should receive the post and saves job in
// the same transaction, so a job past persisted always has its recipient set.
func (r *FanoutRepository) SnapshotRecipients(ctx context.Context, job *models.FanoutJob, recipients []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(recipients) > 0 {
			rows := make([]*models.FanoutRecipient, 0, len(recipients))
			for _, id := range recipients {
				rows = append(rows, &models.FanoutRecipient{PostID: job.PostID, RecipientID: id})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("failed to snapshot recipients: %w", err)
			}
		}
		if err := tx.Save(job).Error; err != nil {
			return fmt.Errorf("failed to save fanout job: %w", err)
		}
		return nil
	})
}

func (r *FanoutRepository) PendingRecipients(ctx context.Context, postID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.FanoutRecipient{}).
		Where("post_id = ? AND delivered_at IS NULL", postID).
		Pluck("recipient_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending recipients: %w", err)
	}
	return ids, nil
}

func (r *FanoutRepository) MarkDelivered(ctx context.Context, postID, recipientID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Model(&models.FanoutRecipient{}).
		Where("post_id = ? AND recipient_id = ?", postID, recipientID).
		Update("delivered_at", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to mark recipient delivered: %w", err)
	}
	return nil
}

func (r *FanoutRepository) CountRecipients(ctx context.Context, postID uuid.UUID) (delivered, pending int64, err error) {
	var rows []struct {
		Delivered bool
		Total     int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.FanoutRecipient{}).
		Select("delivered_at IS NOT NULL AS delivered, COUNT(*) AS total").
		Where("post_id = ?", postID).
		Group("delivered_at IS NOT NULL").
		Scan(&rows).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count recipients: %w", err)
	}
	for _, row := range rows {
		if row.Delivered {
			delivered = row.Total
		} else {
			pending = row.Total
		}
	}
	return delivered, pending, nil
}

// DueJobs returns unfinished jobs whose next attempt is at or before now, oldest first.
func (r *FanoutRepository) DueJobs(ctx context.Context, now time.Time, limit int) ([]*models.FanoutJob, error) {
	var jobs []*models.FanoutJob
	if err := r.db.WithContext(ctx).
		Where("state IN ? AND next_attempt_at <= ?", []models.FanoutState{
			models.FanoutPersisted, models.FanoutFanningOut, models.FanoutPartial,
		}, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list due fanout jobs: %w", err)
	}
	return jobs, nil
}

// CountByState is used for the operational stats endpoint.
func (r *FanoutRepository) CountByState(ctx context.Context) (map[models.FanoutState]int64, error) {
	var rows []struct {
		State models.FanoutState
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.FanoutJob{}).
		Select("state, COUNT(*) AS total").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count fanout jobs: %w", err)
	}
	stats := make(map[models.FanoutState]int64, len(rows))
	for _, row := range rows {
		stats[row.State] = row.Total
	}
	return stats, nil
}
