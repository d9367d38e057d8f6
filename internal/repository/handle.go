package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HandleRepository struct {
	db *gorm.DB
}

func NewHandleRepository(db *gorm.DB) *HandleRepository {
	return &HandleRepository{db: db}
}

// Reserve inserts the registry row; the primary key makes concurrent reservations race-free.
func (r *HandleRepository) Reserve(ctx context.Context, handle *models.Handle) error {
	if err := r.db.WithContext(ctx).Create(handle).Error; err != nil {
		return fmt.Errorf("failed to reserve handle: %w", translate(err))
	}
	return nil
}

func (r *HandleRepository) Get(ctx context.Context, handle string) (*models.Handle, error) {
	var h models.Handle
	if err := r.db.WithContext(ctx).First(&h, "handle = ?", handle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get handle: %w", err)
	}
	return &h, nil
}

func (r *HandleRepository) Release(ctx context.Context, handle string, accountID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("handle = ? AND account_id = ?", handle, accountID).
		Delete(&models.Handle{}).Error; err != nil {
		return fmt.Errorf("failed to release handle: %w", err)
	}
	return nil
}
