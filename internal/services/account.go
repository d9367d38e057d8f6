package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/internal/repository"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/feed-system/photo-feed/pkg/queue"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const minPasswordLength = 6

type RegisterRequest struct {
	Handle          string `json:"handle" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ProfileImageURL string `json:"profile_image_url"`
}

// LoginRequest accepts either an email or a handle in Login.
type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AccountService struct {
	accounts AccountStore
	identity *IdentityService
	graph    *GraphService
	posts    *PostService
	producer EventPublisher
	logger   *logger.Logger
}

func NewAccountService(
	accounts AccountStore,
	identity *IdentityService,
	graph *GraphService,
	posts *PostService,
	producer EventPublisher,
	logger *logger.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		identity: identity,
		graph:    graph,
		posts:    posts,
		producer: producer,
		logger:   logger,
	}
}

// Register reserves the handle, writes the account and creates its self
// follow edge. When a later step fails the earlier ones are undone, so a
// retry with the same email and handle can succeed.
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalid("malformed email")
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalid("password must be at least %d characters", minPasswordLength)
	}

	existing, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, transient("get account by email", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	accountID := uuid.New()
	handle, err := s.identity.ReserveHandle(ctx, req.Handle, accountID, email)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:              accountID,
		Handle:          handle,
		Email:           email,
		PasswordHash:    string(hash),
		ProfileImageURL: req.ProfileImageURL,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		s.releaseHandle(ctx, handle, accountID)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, transient("create account", err)
	}

	if err := s.graph.Bootstrap(ctx, accountID); err != nil {
		if delErr := s.accounts.Delete(ctx, accountID); delErr != nil {
			s.logger.WithError(delErr).WithField("account_id", accountID).Error("Failed to delete account after failed self follow")
		}
		s.releaseHandle(ctx, handle, accountID)
		return nil, err
	}

	s.publishCreated(ctx, account)
	s.logger.WithFields(map[string]interface{}{
		"account_id": accountID,
		"handle":     handle,
	}).Info("Account registered")
	return account, nil
}

func (s *AccountService) releaseHandle(ctx context.Context, handle string, accountID uuid.UUID) {
	if err := s.identity.ReleaseHandle(ctx, handle, accountID); err != nil {
		s.logger.WithError(err).WithField("handle", handle).Error("Failed to release handle after failed registration")
	}
}

// Login resolves a handle to its email when Login holds no "@", then checks the password.
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Login))
	if !strings.Contains(email, "@") {
		resolved, err := s.identity.ResolveHandleToEmail(ctx, req.Login)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) {
			return nil, ErrUnauthorized
		}
		if err != nil {
			return nil, err
		}
		email = resolved
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, transient("get account by email", err)
	}
	if account == nil {
		return nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrUnauthorized
	}
	return account, nil
}

func (s *AccountService) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, transient("get account", err)
	}
	if account == nil {
		return nil, ErrNotFound
	}
	return account, nil
}

// GetMany returns accounts in the order of ids, skipping unknown ids.
func (s *AccountService) GetMany(ctx context.Context, ids []uuid.UUID) ([]*models.Account, error) {
	accounts, err := s.accounts.GetByIDs(ctx, ids)
	if err != nil {
		return nil, transient("get accounts", err)
	}

	byID := make(map[uuid.UUID]*models.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	out := make([]*models.Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AccountService) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	account, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.Profile{Account: account, Stats: stats}, nil
}

// Stats counts posts, followers and following from the stores on every call.
// The self follow edge is included in both follow counts.
func (s *AccountService) Stats(ctx context.Context, id uuid.UUID) (models.Stats, error) {
	var stats models.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.Posts, err = s.posts.CountPosts(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		stats.Followers, err = s.graph.CountFollowers(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		stats.Following, err = s.graph.CountFollowing(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Stats{}, err
	}
	return stats, nil
}

// Search matches accounts whose handle starts with the normalized query.
// The caller is never part of the result.
func (s *AccountService) Search(ctx context.Context, query string, callerID uuid.UUID, limit int) ([]*models.Account, error) {
	prefix := NormalizeHandle(strings.TrimSpace(query))
	if prefix == "" {
		return []*models.Account{}, nil
	}
	accounts, err := s.accounts.SearchByHandlePrefix(ctx, prefix, callerID, limit)
	if err != nil {
		return nil, transient("search accounts", err)
	}
	return accounts, nil
}

func (s *AccountService) publishCreated(ctx context.Context, account *models.Account) {
	if s.producer == nil {
		return
	}
	event, err := queue.NewEvent(queue.EventAccountCreated, time.Now(), queue.AccountEventData{
		AccountID: account.ID.String(),
		Handle:    account.Handle,
	})
	if err == nil {
		err = s.producer.Publish(ctx, account.ID.String(), event)
	}
	if err != nil {
		s.logger.WithError(err).WithField("account_id", account.ID).Error("Failed to publish account_created event")
	}
}
