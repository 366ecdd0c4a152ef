package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"pagesync/internal/config"
	"pagesync/internal/logging"
	"pagesync/internal/merge"
	"pagesync/internal/record"
	"pagesync/internal/resolve"
	"pagesync/internal/store"
)

// PageFailure reports one page that could not be reconciled.
type PageFailure struct {
	PageKey string
	Source  string
	Err     error
}

// Summary aggregates the outcome of one reconciliation run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	PagesProcessed int
	Created        int
	Merged         int
	Skipped        int
	Failures       []PageFailure
}

// Duration returns the wall-clock span of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Failed reports whether any page failed.
func (s *Summary) Failed() bool {
	return len(s.Failures) > 0
}

// Coordinator drives reconciliation runs against the canonical store.
type Coordinator struct {
	cfg        *config.Config
	store      *store.Store
	resolver   *resolve.Resolver
	normalizer *record.Normalizer
	logger     *slog.Logger
	clock      func() time.Time
	retryDelay time.Duration
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the merge timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithRetryDelay overrides the pause between page retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.retryDelay = d }
}

// New builds a Coordinator sharing the given store.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:        cfg,
		store:      st,
		resolver:   resolve.New(cfg, logger),
		normalizer: record.NewNormalizer(cfg.BulkExport.TimeOffsetHours),
		logger:     logging.NewComponentLogger(logger, "reconcile"),
		clock:      time.Now,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pageOutcome struct {
	pageKey  string
	created  int
	merged   int
	skipped  int
	failures []PageFailure
}

// Run reconciles every listed page from the given sources. Pages are
// processed by a bounded worker pool; each page stays on one worker so its
// writes never interleave. Run returns the summary even when pages fail,
// and a non-nil error only when the run itself could not proceed.
func (c *Coordinator) Run(ctx context.Context, pageKeys []string, sources []PageSource) (*Summary, error) {
	if len(pageKeys) == 0 {
		return nil, Wrap(ErrValidation, "", "no pages configured", nil)
	}
	if len(sources) == 0 {
		return nil, Wrap(ErrValidation, "", "no sources provided", nil)
	}

	lock := flock.New(c.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: c.clock().UTC(),
	}
	logger := c.logger.With(logging.String(logging.FieldRunID, summary.RunID))
	logger.Info("reconciliation run started",
		logging.Int("pages", len(pageKeys)),
		logging.Int("sources", len(sources)),
		logging.Int("workers", c.workers()))

	keys := append([]string(nil), pageKeys...)
	sort.Strings(keys)

	pages := make(chan string)
	outcomes := make(chan pageOutcome, len(keys))

	var wg sync.WaitGroup
	for i := 0; i < c.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageKey := range pages {
				outcomes <- c.processPage(ctx, logger, pageKey, sources)
			}
		}()
	}

	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		pages <- key
	}
	close(pages)
	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		summary.PagesProcessed++
		summary.Created += outcome.created
		summary.Merged += outcome.merged
		summary.Skipped += outcome.skipped
		summary.Failures = append(summary.Failures, outcome.failures...)
	}
	sort.Slice(summary.Failures, func(i, j int) bool {
		if summary.Failures[i].PageKey != summary.Failures[j].PageKey {
			return summary.Failures[i].PageKey < summary.Failures[j].PageKey
		}
		return summary.Failures[i].Source < summary.Failures[j].Source
	})
	summary.FinishedAt = c.clock().UTC()

	logger.Info("reconciliation run finished",
		logging.Int("created", summary.Created),
		logging.Int("merged", summary.Merged),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed_pages", len(summary.Failures)),
		logging.Duration("duration", summary.Duration()))

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (c *Coordinator) workers() int {
	if c.cfg.Reconcile.Workers < 1 {
		return 1
	}
	return c.cfg.Reconcile.Workers
}

func (c *Coordinator) processPage(ctx context.Context, logger *slog.Logger, pageKey string, sources []PageSource) pageOutcome {
	outcome := pageOutcome{pageKey: pageKey}
	pageLogger := logger.With(logging.String(logging.FieldPageKey, pageKey))

	var records []record.SourceRecord
	for _, source := range sources {
		fetched, err := c.fetchWithRetry(ctx, pageLogger, source, pageKey)
		if err != nil {
			outcome.failures = append(outcome.failures, PageFailure{
				PageKey: pageKey,
				Source:  source.Name(),
				Err:     Wrap(ErrSourceUnavailable, pageKey, source.Name(), err),
			})
			pageLogger.Error("source fetch failed",
				logging.String("source", source.Name()),
				logging.Error(err))
			continue
		}
		records = append(records, fetched...)
	}
	orderRecords(records)

	for _, raw := range records {
		if ctx.Err() != nil {
			return outcome
		}
		normalized, err := c.normalizer.Normalize(raw)
		if err != nil {
			outcome.skipped++
			pageLogger.Debug("record skipped", logging.Error(err))
			continue
		}
		created, err := c.mergeRecord(ctx, pageLogger, normalized)
		if err != nil {
			outcome.failures = append(outcome.failures, PageFailure{
				PageKey: pageKey,
				Source:  string(raw.Kind),
				Err:     err,
			})
			pageLogger.Error("record merge failed", logging.Error(err))
			continue
		}
		if created {
			outcome.created++
		} else {
			outcome.merged++
		}
	}

	if err := c.store.CheckPageIntegrity(ctx, pageKey); err != nil {
		outcome.failures = append(outcome.failures, PageFailure{
			PageKey: pageKey,
			Err:     Wrap(ErrIntegrity, pageKey, "post-run check", err),
		})
	}

	pageLogger.Info("page reconciled",
		logging.Int("created", outcome.created),
		logging.Int("merged", outcome.merged),
		logging.Int("skipped", outcome.skipped),
		logging.Int("failures", len(outcome.failures)))
	return outcome
}

func (c *Coordinator) fetchWithRetry(ctx context.Context, logger *slog.Logger, source PageSource, pageKey string) ([]record.SourceRecord, error) {
	attempts := c.cfg.Reconcile.PageRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := source.Fetch(ctx, pageKey)
		if err == nil {
			return records, nil
		}
		lastErr = err
		if attempt < attempts {
			logger.Warn("source fetch retrying",
				logging.String("source", source.Name()),
				logging.Int("attempt", attempt),
				logging.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return nil, lastErr
}

// mergeRecord resolves and merges one record inside its own transaction.
// The boolean reports whether a new canonical post was created.
func (c *Coordinator) mergeRecord(ctx context.Context, logger *slog.Logger, rec record.NormalizedRecord) (bool, error) {
	var created bool
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		match, err := c.resolver.Resolve(ctx, tx, rec)
		if err != nil {
			return err
		}
		result := merge.Merge(match.Post, rec, c.clock())
		created = result.Created

		if result.Created {
			if err := tx.InsertPost(ctx, result.Post); err != nil {
				return err
			}
			logger.Debug("post created",
				logging.String(logging.FieldPostID, result.Post.ID),
				logging.String(logging.FieldTier, match.Tier.String()))
			return nil
		}

		if result.RekeyedFrom != "" {
			if err := tx.RenamePost(ctx, rec.PageKey, result.RekeyedFrom, result.Post.ID); err != nil {
				return err
			}
			if err := tx.InsertAlias(ctx, rec.PageKey, result.RekeyedFrom, result.Post.ID); err != nil {
				return err
			}
			logger.Info("post re-keyed",
				logging.String("old_id", result.RekeyedFrom),
				logging.String(logging.FieldPostID, result.Post.ID))
		}
		if err := tx.UpdatePost(ctx, result.Post); err != nil {
			return err
		}
		logger.Debug("post merged",
			logging.String(logging.FieldPostID, result.Post.ID),
			logging.String(logging.FieldTier, match.Tier.String()))
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
