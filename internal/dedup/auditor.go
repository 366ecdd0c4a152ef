package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"pagesync/internal/config"
	"pagesync/internal/logging"
	"pagesync/internal/reconcile"
	"pagesync/internal/store"
)

// Result summarizes one audit pass.
type Result struct {
	PagesAudited    int
	GroupsCollapsed int
	PostsDeleted    int
}

// Auditor finds and collapses duplicate canonical posts.
type Auditor struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

// New builds an Auditor sharing the given store.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Auditor {
	return &Auditor{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "dedup"),
	}
}

// Run audits every page. It takes the same lock as reconciliation so the
// two never interleave writes.
func (a *Auditor) Run(ctx context.Context) (*Result, error) {
	lock := flock.New(a.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, reconcile.ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	pageKeys, err := a.store.PageKeys(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, pageKey := range pageKeys {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := a.auditPage(ctx, pageKey, result); err != nil {
			return result, err
		}
		result.PagesAudited++
	}

	a.logger.Info("dedup audit finished",
		logging.Int("pages", result.PagesAudited),
		logging.Int("groups_collapsed", result.GroupsCollapsed),
		logging.Int("posts_deleted", result.PostsDeleted))
	return result, nil
}

// auditPage runs two grouping passes. The first collapses posts sharing a
// core id, which catches compound historical ids. The second collapses
// posts sharing a publish minute, which catches a synthetic twin that
// reconciliation created before the authoritative record arrived. The
// second pass re-reads the page so it sees the first pass's survivors.
func (a *Auditor) auditPage(ctx context.Context, pageKey string, result *Result) error {
	if err := a.collapseBy(ctx, pageKey, result, coreIdentity); err != nil {
		return err
	}
	return a.collapseBy(ctx, pageKey, result, minuteIdentity)
}

func (a *Auditor) collapseBy(ctx context.Context, pageKey string, result *Result, identity func(*store.Post) string) error {
	posts, err := a.store.PostsByPage(ctx, pageKey)
	if err != nil {
		return err
	}

	groups := make(map[string][]*store.Post)
	for _, post := range posts {
		key := identity(post)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], post)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		if len(groups[key]) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := groups[key]
		if err := a.collapse(ctx, pageKey, group); err != nil {
			return err
		}
		result.GroupsCollapsed++
		result.PostsDeleted += len(group) - 1
	}
	return nil
}

// collapse merges a duplicate group into its survivor inside one
// transaction, so a crash never leaves a half-collapsed group.
func (a *Auditor) collapse(ctx context.Context, pageKey string, group []*store.Post) error {
	rankGroup(group)
	survivor := *group[0]
	losers := group[1:]

	return a.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, loser := range losers {
			survivor.Metrics = survivor.Metrics.Max(loser.Metrics)
			if survivor.Title == "" {
				survivor.Title = loser.Title
			}
			if survivor.Permalink == "" {
				survivor.Permalink = loser.Permalink
			}
			if deleted, err := tx.DeletePost(ctx, pageKey, loser.ID); err != nil {
				return err
			} else if !deleted {
				return fmt.Errorf("duplicate %s/%s vanished mid-audit", pageKey, loser.ID)
			}
			if err := tx.RepointAliases(ctx, pageKey, loser.ID, survivor.ID); err != nil {
				return err
			}
			if err := tx.InsertAlias(ctx, pageKey, loser.ID, survivor.ID); err != nil {
				return err
			}
			a.logger.Info("duplicate collapsed",
				logging.String(logging.FieldPageKey, pageKey),
				logging.String("duplicate_id", loser.ID),
				logging.String(logging.FieldPostID, survivor.ID))
		}
		survivor.TotalEngagement = survivor.Metrics.TotalEngagement()
		return tx.UpdatePost(ctx, &survivor)
	})
}

// rankGroup orders a duplicate group so the survivor comes first:
// authoritative identity beats synthetic, then higher engagement, then
// earlier creation, then id for a stable final tie-break.
func rankGroup(group []*store.Post) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i], group[j]
		if a.HasAuthoritativeID != b.HasAuthoritativeID {
			return a.HasAuthoritativeID
		}
		if a.TotalEngagement != b.TotalEngagement {
			return a.TotalEngagement > b.TotalEngagement
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// coreIdentity strips a compound historical id ("pageid_postid") to its
// trailing segment. Synthetic posts have no id-based identity.
func coreIdentity(post *store.Post) string {
	if post.IsSynthetic() {
		return ""
	}
	id := post.ID
	if idx := strings.LastIndex(id, "_"); idx >= 0 && idx+1 < len(id) {
		id = id[idx+1:]
	}
	return id
}

func minuteIdentity(post *store.Post) string {
	return post.PublishMinute
}
