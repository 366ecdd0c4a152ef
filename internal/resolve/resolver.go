package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pagesync/internal/config"
	"pagesync/internal/logging"
	"pagesync/internal/record"
	"pagesync/internal/store"
)

// Tier identifies which matching rule produced a resolution.
type Tier int

const (
	// TierNone means no existing post matched; the caller creates one.
	TierNone Tier = iota
	// TierExternalID matched the record's authoritative id or an alias of it.
	TierExternalID
	// TierExactMinute matched the exact publish minute.
	TierExactMinute
	// TierFuzzyMinute matched a nearby minute on the same calendar day.
	TierFuzzyMinute
	// TierTitleSameDay matched the folded title prefix on the same day.
	TierTitleSameDay
	// TierTitleAnyDay matched a long folded title prefix on any day.
	TierTitleAnyDay
)

func (t Tier) String() string {
	switch t {
	case TierExternalID:
		return "external_id"
	case TierExactMinute:
		return "exact_minute"
	case TierFuzzyMinute:
		return "fuzzy_minute"
	case TierTitleSameDay:
		return "title_same_day"
	case TierTitleAnyDay:
		return "title_any_day"
	default:
		return "none"
	}
}

// Finder is the subset of store queries resolution needs. Both store.Store
// and store.Tx satisfy it, so resolution composes with per-record
// transactions.
type Finder interface {
	GetPost(ctx context.Context, pageKey, id string) (*store.Post, error)
	ResolveAlias(ctx context.Context, pageKey, aliasID string) (string, error)
	FindByMinute(ctx context.Context, pageKey, minute string) (*store.Post, bool, error)
	FindByTitleOnDate(ctx context.Context, pageKey, date, title string) (*store.Post, bool, error)
	FindByTitle(ctx context.Context, pageKey, title string) (*store.Post, bool, error)
}

// Match is the outcome of resolving one record. Post is nil for TierNone.
type Match struct {
	Post *store.Post
	Tier Tier
}

// Resolver applies the tiered matching rules with configured windows.
type Resolver struct {
	fuzzyWindow    int
	titleAnyDayMin int
	logger         *slog.Logger
}

// New builds a Resolver from the reconcile configuration.
func New(cfg *config.Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		fuzzyWindow:    cfg.Reconcile.FuzzyWindowMinutes,
		titleAnyDayMin: cfg.Reconcile.TitleAnyDateMinChars,
		logger:         logging.NewComponentLogger(logger, "resolve"),
	}
}

// Resolve finds the canonical post a normalized record belongs to, or
// reports TierNone when a new post should be created.
func (r *Resolver) Resolve(ctx context.Context, f Finder, rec record.NormalizedRecord) (Match, error) {
	if rec.Kind == record.SourceAuthoritative && rec.ExternalID != "" {
		post, err := r.byExternalID(ctx, f, rec.PageKey, rec.ExternalID)
		if err != nil {
			return Match{}, err
		}
		if post != nil {
			return Match{Post: post, Tier: TierExternalID}, nil
		}
	}

	post, ambiguous, err := f.FindByMinute(ctx, rec.PageKey, rec.Key.Minute)
	if err != nil {
		return Match{}, err
	}
	if post != nil {
		if ambiguous {
			r.noteAmbiguity(TierExactMinute, rec.PageKey, post.ID)
		}
		return Match{Post: post, Tier: TierExactMinute}, nil
	}

	post, err = r.byFuzzyMinute(ctx, f, rec)
	if err != nil {
		return Match{}, err
	}
	if post != nil {
		return Match{Post: post, Tier: TierFuzzyMinute}, nil
	}

	if rec.Title != "" {
		date := rec.Key.Minute[:10]
		post, ambiguous, err = f.FindByTitleOnDate(ctx, rec.PageKey, date, rec.Title)
		if err != nil {
			return Match{}, err
		}
		if post != nil {
			if ambiguous {
				r.noteAmbiguity(TierTitleSameDay, rec.PageKey, post.ID)
			}
			return Match{Post: post, Tier: TierTitleSameDay}, nil
		}

		if len([]rune(rec.Title)) >= r.titleAnyDayMin {
			post, ambiguous, err = f.FindByTitle(ctx, rec.PageKey, rec.Title)
			if err != nil {
				return Match{}, err
			}
			if post != nil {
				if ambiguous {
					r.noteAmbiguity(TierTitleAnyDay, rec.PageKey, post.ID)
				}
				return Match{Post: post, Tier: TierTitleAnyDay}, nil
			}
		}
	}

	return Match{Tier: TierNone}, nil
}

// noteAmbiguity records that several posts matched a record equally well
// and the earliest-created one was kept. The dedup audit revisits these
// groups through its publish-minute pass.
func (r *Resolver) noteAmbiguity(tier Tier, pageKey, postID string) {
	r.logger.Warn("ambiguous match, kept earliest-created post",
		logging.String(logging.FieldPageKey, pageKey),
		logging.String(logging.FieldPostID, postID),
		logging.String(logging.FieldTier, tier.String()))
}

func (r *Resolver) byExternalID(ctx context.Context, f Finder, pageKey, id string) (*store.Post, error) {
	post, err := f.GetPost(ctx, pageKey, id)
	if err != nil || post != nil {
		return post, err
	}
	target, err := f.ResolveAlias(ctx, pageKey, id)
	if err != nil || target == "" {
		return nil, err
	}
	return f.GetPost(ctx, pageKey, target)
}

// byFuzzyMinute probes alternating offsets around the record's minute,
// nearest first, so the smallest time distance always wins. Probes that
// cross midnight are skipped; the same-day constraint keeps late-night
// posts from absorbing the next morning's.
func (r *Resolver) byFuzzyMinute(ctx context.Context, f Finder, rec record.NormalizedRecord) (*store.Post, error) {
	base, err := time.Parse(record.MinuteLayout, rec.Key.Minute)
	if err != nil {
		return nil, fmt.Errorf("parse minute key %q: %w", rec.Key.Minute, err)
	}
	date := rec.Key.Minute[:10]

	for distance := 1; distance <= r.fuzzyWindow; distance++ {
		for _, offset := range []int{-distance, distance} {
			probe := record.MinuteKey(base.Add(time.Duration(offset) * time.Minute))
			if probe[:10] != date {
				continue
			}
			post, ambiguous, err := f.FindByMinute(ctx, rec.PageKey, probe)
			if err != nil {
				return nil, err
			}
			if post != nil {
				if ambiguous {
					r.noteAmbiguity(TierFuzzyMinute, rec.PageKey, post.ID)
				}
				return post, nil
			}
		}
	}
	return nil, nil
}
