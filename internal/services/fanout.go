package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/feed-system/photo-feed/internal/config"
	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FanoutReport summarizes one fan-out run.
type FanoutReport struct {
	PostID    uuid.UUID          `json:"post_id"`
	State     models.FanoutState `json:"state"`
	Attempted int                `json:"attempted"`
	Delivered int                `json:"delivered"`
	Failed    int                `json:"failed"`
	Attempts  int                `json:"attempts"`
	NextRetry *time.Time         `json:"next_retry,omitempty"`
}

// FanoutStatus is the delivery progress of one post.
type FanoutStatus struct {
	Job       *models.FanoutJob `json:"job"`
	Delivered int64             `json:"delivered"`
	Pending   int64             `json:"pending"`
}

// FanoutEngine copies a post id into the feed of every follower of its owner.
//
// The follower set is snapshotted once, when the job first runs, so followers
// gained later never receive the post and followers lost later still do.
// Each recipient write is retried in place with exponential backoff; whatever
// still fails leaves the job partial and the retry sweeper picks it up again.
// Feed writes are idempotent, so re-running a job never duplicates entries.
type FanoutEngine struct {
	jobs    FanoutStore
	follows FollowStore
	feeds   FeedStore
	cfg     *config.FanoutConfig
	logger  *logger.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewFanoutEngine(jobs FanoutStore, follows FollowStore, feeds FeedStore, cfg *config.FanoutConfig, logger *logger.Logger) *FanoutEngine {
	return &FanoutEngine{
		jobs:    jobs,
		follows: follows,
		feeds:   feeds,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch runs Fanout in the background. The caller's cancellation does not
// reach the run.
func (e *FanoutEngine) Dispatch(ctx context.Context, postID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.Fanout(ctx, postID); err != nil {
			e.logger.WithError(err).WithField("post_id", postID).Debug("Background fan-out incomplete")
		}
	}()
}

// Wait blocks until every dispatched run has returned.
func (e *FanoutEngine) Wait() {
	e.wg.Wait()
}

// Fanout drives the job for postID one step towards fanned_out. It returns
// ErrPartialFanout when some recipients are still pending afterwards.
func (e *FanoutEngine) Fanout(ctx context.Context, postID uuid.UUID) (*FanoutReport, error) {
	ctx = context.WithoutCancel(ctx)

	job, err := e.jobs.GetJob(ctx, postID)
	if err != nil {
		return nil, transient("get fanout job", err)
	}
	if job == nil {
		return nil, ErrNotFound
	}
	if job.Done() {
		return &FanoutReport{PostID: postID, State: job.State, Attempts: job.Attempts}, nil
	}

	log := e.logger.WithFields(map[string]interface{}{
		"post_id":  job.PostID,
		"owner_id": job.OwnerID,
		"attempt":  job.Attempts + 1,
	})

	if job.State == models.FanoutPersisted {
		if err := e.snapshot(ctx, job); err != nil {
			return e.retryLater(ctx, job, 0, 0, err)
		}
	}

	pending, err := e.jobs.PendingRecipients(ctx, postID)
	if err != nil {
		return e.retryLater(ctx, job, 0, 0, err)
	}

	failed, firstErr := e.deliver(ctx, postID, pending)
	if failed > 0 {
		return e.retryLater(ctx, job, len(pending), failed,
			fmt.Errorf("%d of %d recipient writes failed: %w", failed, len(pending), firstErr))
	}

	job.Attempts++
	job.State = models.FanoutFannedOut
	job.LastError = ""
	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return nil, transient("save fanout job", err)
	}

	log.WithField("recipients", len(pending)).Info("Post fanned out")
	return &FanoutReport{
		PostID:    postID,
		State:     job.State,
		Attempted: len(pending),
		Delivered: len(pending),
		Attempts:  job.Attempts,
	}, nil
}

// Status reports how far fan-out for postID has progressed.
func (e *FanoutEngine) Status(ctx context.Context, postID uuid.UUID) (*FanoutStatus, error) {
	job, err := e.jobs.GetJob(ctx, postID)
	if err != nil {
		return nil, transient("get fanout job", err)
	}
	if job == nil {
		return nil, ErrNotFound
	}
	delivered, pending, err := e.jobs.CountRecipients(ctx, postID)
	if err != nil {
		return nil, transient("count recipients", err)
	}
	return &FanoutStatus{Job: job, Delivered: delivered, Pending: pending}, nil
}

func (e *FanoutEngine) snapshot(ctx context.Context, job *models.FanoutJob) error {
	followers, err := e.follows.ListFollowers(ctx, job.OwnerID)
	if err != nil {
		return fmt.Errorf("list followers: %w", err)
	}

	started := *job
	started.State = models.FanoutFanningOut
	// a crash mid-run leaves the job due for the sweeper after StaleAfter
	started.NextAttemptAt = e.now().Add(e.cfg.StaleAfter)
	if err := e.jobs.SnapshotRecipients(ctx, &started, followers); err != nil {
		return fmt.Errorf("snapshot recipients: %w", err)
	}
	*job = started
	return nil
}

// deliver writes postID into every recipient feed with bounded concurrency and
// returns how many recipients could not be written.
func (e *FanoutEngine) deliver(ctx context.Context, postID uuid.UUID, recipients []uuid.UUID) (int, error) {
	var (
		mu       sync.Mutex
		failed   int
		firstErr error
	)

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)

	for _, recipientID := range recipients {
		recipientID := recipientID
		g.Go(func() error {
			err := backoff.Retry(func() error {
				return e.feeds.Add(ctx, recipientID, postID)
			}, e.writeBackoff(ctx))
			if err == nil {
				err = e.jobs.MarkDelivered(ctx, postID, recipientID)
			}
			if err != nil {
				e.logger.WithError(err).WithFields(map[string]interface{}{
					"post_id":      postID,
					"recipient_id": recipientID,
				}).Debug("Feed write failed")
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return failed, firstErr
}

func (e *FanoutEngine) writeBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialBackoff
	b.MaxInterval = e.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	var retries uint64
	if e.cfg.WriteAttempts > 1 {
		retries = uint64(e.cfg.WriteAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// retryLater records a failed attempt. A job that never got its snapshot stays
// persisted so the next run takes it; otherwise it goes partial until
// MaxJobAttempts is reached and is then abandoned.
func (e *FanoutEngine) retryLater(ctx context.Context, job *models.FanoutJob, attempted, failed int, cause error) (*FanoutReport, error) {
	job.Attempts++
	job.LastError = cause.Error()

	report := &FanoutReport{
		PostID:    job.PostID,
		Attempted: attempted,
		Delivered: attempted - failed,
		Failed:    failed,
		Attempts:  job.Attempts,
	}

	log := e.logger.WithError(cause).WithFields(map[string]interface{}{
		"post_id":  job.PostID,
		"owner_id": job.OwnerID,
		"attempts": job.Attempts,
		"failed":   failed,
	})

	if e.cfg.MaxJobAttempts > 0 && job.Attempts >= e.cfg.MaxJobAttempts {
		job.State = models.FanoutAbandoned
		log.Error("Fan-out abandoned after max attempts")
	} else {
		if job.State != models.FanoutPersisted {
			job.State = models.FanoutPartial
		}
		job.NextAttemptAt = e.now().Add(e.jobDelay(job.Attempts))
		report.NextRetry = &job.NextAttemptAt
		log.WithField("next_attempt_at", job.NextAttemptAt).Warn("PartialFanoutFailure")
	}
	report.State = job.State

	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return report, transient("save fanout job", err)
	}
	return report, fmt.Errorf("%w: post %s: %w", ErrPartialFanout, job.PostID, cause)
}

// jobDelay doubles RetryInterval per attempt, capped at MaxBackoff.
func (e *FanoutEngine) jobDelay(attempts int) time.Duration {
	delay := e.cfg.RetryInterval
	for i := 1; i < attempts; i++ {
		delay *= 2
		if e.cfg.MaxBackoff > 0 && delay >= e.cfg.MaxBackoff {
			return e.cfg.MaxBackoff
		}
	}
	return delay
}
