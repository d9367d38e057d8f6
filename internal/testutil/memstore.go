// Package testutil provides in-memory stores with failure injection for
// service, handler and worker tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/internal/repository"
	"github.com/google/uuid"
)

// ErrInjected is returned by stores told to fail.
var ErrInjected = errors.New("injected store failure")

// Stores bundles one of each in-memory store. Posts.Publish writes its fanout
// job into Fanouts, mirroring the single transaction of the SQL repository.
type Stores struct {
	Accounts *Accounts
	Handles  *Handles
	Follows  *Follows
	Posts    *Posts
	Feeds    *Feeds
	Fanouts  *Fanouts
}

func NewStores() *Stores {
	fanouts := &Fanouts{
		jobs:       map[uuid.UUID]*models.FanoutJob{},
		recipients: map[uuid.UUID]map[uuid.UUID]*time.Time{},
	}
	return &Stores{
		Accounts: &Accounts{byID: map[uuid.UUID]*models.Account{}},
		Handles:  &Handles{byHandle: map[string]*models.Handle{}},
		Follows:  &Follows{edges: map[uuid.UUID]map[uuid.UUID]time.Time{}},
		Posts: &Posts{
			byID:    map[uuid.UUID]*models.Post{},
			byOwner: map[uuid.UUID][]uuid.UUID{},
			fanouts: fanouts,
		},
		Feeds: &Feeds{
			entries:  map[uuid.UUID][]uuid.UUID{},
			failures: map[uuid.UUID]int{},
			calls:    map[uuid.UUID]int{},
		},
		Fanouts: fanouts,
	}
}

// newestFirst sorts UUIDv7 ids by descending creation time.
func newestFirst(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) > 0 })
}

// pageBefore returns up to limit ids strictly older than before from a newest-first slice.
func pageBefore(ids []uuid.UUID, before *uuid.UUID, limit int) []uuid.UUID {
	out := make([]uuid.UUID, 0, limit)
	for _, id := range ids {
		if before != nil && bytes.Compare(id[:], before[:]) >= 0 {
			continue
		}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out
}

type Accounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Account
	// Err fails every call; CreateErr fails only Create.
	Err       error
	CreateErr error
}

func (s *Accounts) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.CreateErr != nil {
		return s.CreateErr
	}
	for _, a := range s.byID {
		if a.ID == account.ID || a.Email == account.Email || a.Handle == account.Handle {
			return repository.ErrDuplicate
		}
	}
	now := time.Now()
	account.CreatedAt, account.UpdatedAt = now, now
	cp := *account
	s.byID[account.ID] = &cp
	return nil
}

func (s *Accounts) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.byID, id)
	return nil
}

func (s *Accounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if a, ok := s.byID[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *Accounts) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*models.Account
	for _, id := range ids {
		if a, ok := s.byID[id]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Accounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, a := range s.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Accounts) SearchByHandlePrefix(_ context.Context, prefix string, exclude uuid.UUID, limit int) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*models.Account
	for _, a := range s.byID {
		if a.ID != exclude && strings.HasPrefix(a.Handle, prefix) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type Handles struct {
	mu       sync.Mutex
	byHandle map[string]*models.Handle
}

func (s *Handles) Reserve(_ context.Context, handle *models.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byHandle[handle.Handle]; taken {
		return repository.ErrDuplicate
	}
	cp := *handle
	s.byHandle[handle.Handle] = &cp
	return nil
}

func (s *Handles) Get(_ context.Context, handle string) (*models.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byHandle[handle]; ok {
		cp := *h
		return &cp, nil
	}
	return nil, nil
}

func (s *Handles) Release(_ context.Context, handle string, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byHandle[handle]; ok && h.AccountID == accountID {
		delete(s.byHandle, handle)
	}
	return nil
}

// Follows keys edges by followee, then follower.
type Follows struct {
	mu    sync.Mutex
	edges map[uuid.UUID]map[uuid.UUID]time.Time
	// ListErr makes ListFollowers fail; CreateErr makes Create fail.
	ListErr   error
	CreateErr error
}

func (s *Follows) Create(_ context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return false, s.CreateErr
	}
	followers := s.edges[followeeID]
	if followers == nil {
		followers = map[uuid.UUID]time.Time{}
		s.edges[followeeID] = followers
	}
	if _, ok := followers[followerID]; ok {
		return false, nil
	}
	followers[followerID] = time.Now()
	return true, nil
}

func (s *Follows) Delete(_ context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[followeeID][followerID]; !ok {
		return false, nil
	}
	delete(s.edges[followeeID], followerID)
	return true, nil
}

func (s *Follows) Exists(_ context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.edges[followeeID][followerID]
	return ok, nil
}

func (s *Follows) ListFollowers(_ context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	ids := make([]uuid.UUID, 0, len(s.edges[accountID]))
	for id := range s.edges[accountID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Follows) ListFollowing(_ context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for followee, followers := range s.edges {
		if _, ok := followers[accountID]; ok {
			ids = append(ids, followee)
		}
	}
	return ids, nil
}

func (s *Follows) CountFollowers(ctx context.Context, accountID uuid.UUID) (int64, error) {
	ids, err := s.ListFollowers(ctx, accountID)
	return int64(len(ids)), err
}

func (s *Follows) CountFollowing(ctx context.Context, accountID uuid.UUID) (int64, error) {
	ids, err := s.ListFollowing(ctx, accountID)
	return int64(len(ids)), err
}

type Posts struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.Post
	byOwner map[uuid.UUID][]uuid.UUID
	fanouts *Fanouts
	Err     error
}

func (s *Posts) Publish(ctx context.Context, post *models.Post, job *models.FanoutJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.byID[post.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *post
	s.byID[post.ID] = &cp
	ids := append(s.byOwner[post.OwnerID], post.ID)
	newestFirst(ids)
	s.byOwner[post.OwnerID] = ids
	return s.fanouts.SaveJob(ctx, job)
}

func (s *Posts) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*models.Post
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Posts) ListOwnerIndex(_ context.Context, ownerID uuid.UUID, before *uuid.UUID, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return pageBefore(s.byOwner[ownerID], before, limit), nil
}

func (s *Posts) CountByOwner(_ context.Context, ownerID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return int64(len(s.byOwner[ownerID])), nil
}

// Feeds holds newest-first feed indexes per recipient.
type Feeds struct {
	mu       sync.Mutex
	entries  map[uuid.UUID][]uuid.UUID
	failures map[uuid.UUID]int
	calls    map[uuid.UUID]int
}

// FailAdds makes the next n writes to recipient's feed fail. n < 0 fails forever.
func (s *Feeds) FailAdds(recipientID uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[recipientID] = n
}

// AddCalls counts write attempts to recipient's feed, failed ones included.
func (s *Feeds) AddCalls(recipientID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[recipientID]
}

// Entries returns the recipient's feed, newest first.
func (s *Feeds) Entries(recipientID uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.entries[recipientID]...)
}

func (s *Feeds) Add(_ context.Context, recipientID, postID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[recipientID]++
	if n := s.failures[recipientID]; n != 0 {
		if n > 0 {
			s.failures[recipientID] = n - 1
		}
		return ErrInjected
	}
	for _, id := range s.entries[recipientID] {
		if id == postID {
			return nil
		}
	}
	ids := append(s.entries[recipientID], postID)
	newestFirst(ids)
	s.entries[recipientID] = ids
	return nil
}

func (s *Feeds) List(_ context.Context, recipientID uuid.UUID, before *uuid.UUID, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pageBefore(s.entries[recipientID], before, limit), nil
}

type Fanouts struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*models.FanoutJob
	recipients map[uuid.UUID]map[uuid.UUID]*time.Time

	// SnapshotErr fails SnapshotRecipients before anything is written.
	SnapshotErr error
}

func (s *Fanouts) GetJob(_ context.Context, postID uuid.UUID) (*models.FanoutJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[postID]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (s *Fanouts) SaveJob(_ context.Context, job *models.FanoutJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveJob(job)
	return nil
}

func (s *Fanouts) saveJob(job *models.FanoutJob) {
	cp := *job
	cp.UpdatedAt = time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	s.jobs[job.PostID] = &cp
}

func (s *Fanouts) SnapshotRecipients(_ context.Context, job *models.FanoutJob, recipients []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SnapshotErr != nil {
		return s.SnapshotErr
	}
	set := s.recipients[job.PostID]
	if set == nil {
		set = map[uuid.UUID]*time.Time{}
		s.recipients[job.PostID] = set
	}
	for _, id := range recipients {
		if _, ok := set[id]; !ok {
			set[id] = nil
		}
	}
	s.saveJob(job)
	return nil
}

func (s *Fanouts) PendingRecipients(_ context.Context, postID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, at := range s.recipients[postID] {
		if at == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Fanouts) MarkDelivered(_ context.Context, postID, recipientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if set := s.recipients[postID]; set != nil {
		set[recipientID] = &now
	}
	return nil
}

func (s *Fanouts) CountRecipients(_ context.Context, postID uuid.UUID) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var delivered, pending int64
	for _, at := range s.recipients[postID] {
		if at == nil {
			pending++
		} else {
			delivered++
		}
	}
	return delivered, pending, nil
}

func (s *Fanouts) DueJobs(_ context.Context, now time.Time, limit int) ([]*models.FanoutJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.FanoutJob
	for _, j := range s.jobs {
		if !j.Done() && !j.NextAttemptAt.After(now) {
			cp := *j
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].NextAttemptAt.Before(due[k].NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Fanouts) CountByState(_ context.Context) (map[models.FanoutState]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[models.FanoutState]int64{}
	for _, j := range s.jobs {
		counts[j.State]++
	}
	return counts, nil
}
