package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/internal/repository"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/google/uuid"
)

var handleReplacer = strings.NewReplacer(
	" ", "_",
	".", "_",
	"#", "_",
	"$", "_",
	"[", "_",
	"]", "_",
	"/", "_",
)

// NormalizeHandle lower-cases the handle and replaces characters that are
// not allowed in a registry key with underscores. It is idempotent.
func NormalizeHandle(handle string) string {
	return handleReplacer.Replace(strings.ToLower(handle))
}

// IdentityService owns the handle registry: every normalized handle maps to
// exactly one account and the email used to log in with it.
type IdentityService struct {
	handles HandleStore
	logger  *logger.Logger
}

func NewIdentityService(handles HandleStore, logger *logger.Logger) *IdentityService {
	return &IdentityService{handles: handles, logger: logger}
}

// ReserveHandle claims the normalized form of candidate for accountID.
// Concurrent reservations of handles that normalize to the same key resolve
// to exactly one winner; the rest get ErrHandleTaken.
func (s *IdentityService) ReserveHandle(ctx context.Context, candidate string, accountID uuid.UUID, email string) (string, error) {
	handle := NormalizeHandle(candidate)
	if handle == "" {
		return "", invalid("handle must not be empty")
	}

	err := s.handles.Reserve(ctx, &models.Handle{
		Handle:    handle,
		AccountID: accountID,
		Email:     email,
		CreatedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", ErrHandleTaken
		}
		return "", transient("reserve handle", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"handle":     handle,
		"account_id": accountID,
	}).Info("Handle reserved")
	return handle, nil
}

// Lookup returns the registry entry for handle, normalizing it first.
func (s *IdentityService) Lookup(ctx context.Context, handle string) (*models.Handle, error) {
	key := NormalizeHandle(handle)
	if key == "" {
		return nil, invalid("handle must not be empty")
	}
	entry, err := s.handles.Get(ctx, key)
	if err != nil {
		return nil, transient("lookup handle", err)
	}
	if entry == nil {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (s *IdentityService) ResolveHandleToEmail(ctx context.Context, handle string) (string, error) {
	entry, err := s.Lookup(ctx, handle)
	if err != nil {
		return "", err
	}
	return entry.Email, nil
}

func (s *IdentityService) HandleAvailable(ctx context.Context, handle string) (bool, error) {
	_, err := s.Lookup(ctx, handle)
	switch {
	case errors.Is(err, ErrNotFound):
		return true, nil
	case err != nil:
		return false, err
	}
	return false, nil
}

// ReleaseHandle drops a reservation owned by accountID. Used to roll back a
// registration whose account row could not be written.
func (s *IdentityService) ReleaseHandle(ctx context.Context, handle string, accountID uuid.UUID) error {
	if err := s.handles.Release(ctx, NormalizeHandle(handle), accountID); err != nil {
		return transient("release handle", err)
	}
	return nil
}
