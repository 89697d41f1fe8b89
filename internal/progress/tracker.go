// Package progress polls tracked jobs and pushes coarse percentage updates
// to a notifier, throttled so a chatty pipeline cannot flood downstream
// consumers.
package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mockforge/internal/domain"
)

// Update is one job's progress at a poll instant.
type Update struct {
	JobID    string           `json:"jobId"`
	Status   domain.JobStatus `json:"status"`
	Percent  int              `json:"percent"`
	Terminal bool             `json:"terminal"`
}

// Summary is one batched notification covering every job whose progress
// changed since the previous delivery.
type Summary struct {
	Updates []Update `json:"updates"`
}

// Terminal reports how many of the summarized jobs reached a final status.
func (s Summary) Terminal() int {
	n := 0
	for _, u := range s.Updates {
		if u.Terminal {
			n++
		}
	}
	return n
}

// Notifier receives progress summaries. At most one summary is delivered
// per throttle window regardless of how many jobs changed inside it.
type Notifier interface {
	Notify(ctx context.Context, summary Summary)
}

// LogNotifier writes summaries to the structured log. It is the default sink
// when no realtime channel is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, s Summary) {
	n.Logger.Info().
		Int("jobs", len(s.Updates)).
		Int("terminal", s.Terminal()).
		Msg("progress: summary")
	for _, u := range s.Updates {
		n.Logger.Debug().
			Str("job_id", u.JobID).
			Str("status", string(u.Status)).
			Int("percent", u.Percent).
			Bool("terminal", u.Terminal).
			Msg("progress: job update")
	}
}

// Config tunes the polling loop.
type Config struct {
	PollInterval   time.Duration
	NotifyThrottle time.Duration
}

type trackedJob struct {
	lastPercent int
	lastStatus  domain.JobStatus
}

// Tracker follows jobs from dispatch until they reach a terminal status.
// It implements the scheduler's Observer.
type Tracker struct {
	jobs     domain.JobRepository
	notifier Notifier
	cfg      Config
	logger   zerolog.Logger

	mu        sync.Mutex
	tracked   map[string]*trackedJob
	pending   map[string]Update
	lastFlush time.Time
	flushed   bool

	now func() time.Time
}

func New(jobs domain.JobRepository, notifier Notifier, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.NotifyThrottle <= 0 {
		cfg.NotifyThrottle = 10 * time.Second
	}
	return &Tracker{
		jobs:     jobs,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		tracked:  make(map[string]*trackedJob),
		pending:  make(map[string]Update),
		now:      time.Now,
	}
}

// Track starts following the given jobs. Already-tracked ids are ignored so
// repeated dispatch attempts do not re-announce known progress.
func (t *Tracker) Track(jobIDs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range jobIDs {
		if id == "" {
			continue
		}
		if _, ok := t.tracked[id]; !ok {
			t.tracked[id] = &trackedJob{lastPercent: -1}
		}
	}
}

// TrackedIDs returns the ids currently being followed, sorted for stable
// logging and tests.
func (t *Tracker) TrackedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.tracked))
	for id := range t.tracked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run polls on the configured interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info().
		Dur("poll_interval", t.cfg.PollInterval).
		Dur("notify_throttle", t.cfg.NotifyThrottle).
		Msg("progress: tracker started")

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.Poll(ctx); err != nil {
				t.logger.Error().Err(err).Msg("progress: poll failed")
			}
		}
	}
}

// Poll fetches every tracked job once, records changes, and flushes pending
// changes as a single summary when the throttle window allows. A job leaves
// the tracked set once its terminal state has been recorded; ids the
// repository no longer knows are dropped.
func (t *Tracker) Poll(ctx context.Context) error {
	ids := t.TrackedIDs()
	if len(ids) > 0 {
		jobs, err := t.jobs.ListByIDs(ctx, ids)
		if err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(jobs))
		for i := range jobs {
			seen[jobs[i].ID] = struct{}{}
			t.observe(&jobs[i])
		}

		t.mu.Lock()
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				delete(t.tracked, id)
				delete(t.pending, id)
			}
		}
		t.mu.Unlock()
	}

	t.flush(ctx)
	return nil
}

// observe records a job's latest state into the pending set. Removing a
// terminal job from the tracked set is what prevents re-notifying it: once
// gone it is never polled again.
func (t *Tracker) observe(job *domain.GenerationJob) {
	percent := domain.ProgressPercent(job.Status)
	terminal := job.Status.Terminal()

	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.tracked[job.ID]
	if !ok {
		return
	}

	if percent != state.lastPercent || job.Status != state.lastStatus {
		state.lastPercent = percent
		state.lastStatus = job.Status
		t.pending[job.ID] = Update{
			JobID:    job.ID,
			Status:   job.Status,
			Percent:  percent,
			Terminal: terminal,
		}
	}
	if terminal {
		delete(t.tracked, job.ID)
	}
}

// flush delivers at most one summary per throttle window. Pending changes
// that arrive inside the window, terminal ones included, are held and
// batched into the next eligible delivery.
func (t *Tracker) flush(ctx context.Context) {
	now := t.now()

	t.mu.Lock()
	if len(t.pending) == 0 || (t.flushed && now.Sub(t.lastFlush) < t.cfg.NotifyThrottle) {
		t.mu.Unlock()
		return
	}
	updates := make([]Update, 0, len(t.pending))
	for _, u := range t.pending {
		updates = append(updates, u)
	}
	t.pending = make(map[string]Update)
	t.lastFlush = now
	t.flushed = true
	t.mu.Unlock()

	sort.Slice(updates, func(i, j int) bool { return updates[i].JobID < updates[j].JobID })
	t.notifier.Notify(ctx, Summary{Updates: updates})
}

// Snapshot reports current progress for arbitrary job ids, tracked or not.
// It backs the progress read endpoint and never mutates throttle state.
func (t *Tracker) Snapshot(ctx context.Context, jobIDs []string) ([]Update, error) {
	jobs, err := t.jobs.ListByIDs(ctx, jobIDs)
	if err != nil {
		return nil, err
	}
	out := make([]Update, 0, len(jobs))
	for i := range jobs {
		out = append(out, Update{
			JobID:    jobs[i].ID,
			Status:   jobs[i].Status,
			Percent:  domain.ProgressPercent(jobs[i].Status),
			Terminal: jobs[i].Status.Terminal(),
		})
	}
	return out, nil
}
