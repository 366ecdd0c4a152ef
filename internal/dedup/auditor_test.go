package dedup_test

import (
	"context"
	"testing"
	"time"

	"pagesync/internal/dedup"
	"pagesync/internal/logging"
	"pagesync/internal/record"
	"pagesync/internal/store"
	"pagesync/internal/testsupport"
)

func seedPost(t *testing.T, st *store.Store, pageKey, id string, publish time.Time, metrics record.Metrics, authoritative bool) *store.Post {
	t.Helper()
	now := time.Now().UTC()
	post := &store.Post{
		PageKey:            pageKey,
		ID:                 id,
		Title:              "title " + id,
		Type:               record.TypePhoto,
		PublishTime:        publish,
		PublishMinute:      record.MinuteKey(publish),
		Metrics:            metrics,
		TotalEngagement:    metrics.TotalEngagement(),
		HasAuthoritativeID: authoritative,
		CreatedAt:          now,
		LastMergedAt:       now,
	}
	if err := st.InsertPost(context.Background(), post); err != nil {
		t.Fatalf("InsertPost: %v", err)
	}
	return post
}

func TestAuditCollapsesCompoundIDDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	publishA := time.Date(2025, 10, 1, 4, 0, 0, 0, time.UTC)
	publishB := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	seedPost(t, st, "p", "111_456", publishA, record.Metrics{Reactions: 3, Views: 80}, true)
	seedPost(t, st, "p", "456", publishB, record.Metrics{Reactions: 10, Comments: 2}, true)

	auditor := dedup.New(cfg, st, logging.NewNop())
	result, err := auditor.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.GroupsCollapsed != 1 || result.PostsDeleted != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	posts, err := st.PostsByPage(ctx, "p")
	if err != nil {
		t.Fatalf("PostsByPage: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected one survivor, got %d", len(posts))
	}
	survivor := posts[0]
	if survivor.ID != "456" {
		t.Fatalf("expected higher-engagement post to survive, got %q", survivor.ID)
	}
	want := record.Metrics{Reactions: 10, Comments: 2, Views: 80}
	if survivor.Metrics != want {
		t.Fatalf("expected folded metrics %+v, got %+v", want, survivor.Metrics)
	}
	if survivor.TotalEngagement != 12 {
		t.Fatalf("expected recomputed total 12, got %d", survivor.TotalEngagement)
	}

	target, err := st.ResolveAlias(ctx, "p", "111_456")
	if err != nil {
		t.Fatalf("ResolveAlias: %v", err)
	}
	if target != "456" {
		t.Fatalf("expected loser recorded as alias, got %q", target)
	}
}

func TestAuditPrefersAuthoritativeSurvivor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	publish := time.Date(2025, 10, 1, 4, 34, 0, 0, time.UTC)
	// The synthetic twin carries more engagement but must still lose.
	seedPost(t, st, "p", store.SyntheticIDPrefix+"deadbeef", publish,
		record.Metrics{Reactions: 50}, false)
	seedPost(t, st, "p", "777", publish, record.Metrics{Reactions: 2}, true)

	auditor := dedup.New(cfg, st, logging.NewNop())
	result, err := auditor.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.GroupsCollapsed != 1 || result.PostsDeleted != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	posts, err := st.PostsByPage(ctx, "p")
	if err != nil {
		t.Fatalf("PostsByPage: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected one survivor, got %d", len(posts))
	}
	survivor := posts[0]
	if survivor.ID != "777" {
		t.Fatalf("expected authoritative post to survive, got %q", survivor.ID)
	}
	if survivor.Metrics.Reactions != 50 {
		t.Fatalf("expected loser metrics folded into survivor, got %+v", survivor.Metrics)
	}
	if survivor.TotalEngagement != 50 {
		t.Fatalf("expected recomputed total 50, got %d", survivor.TotalEngagement)
	}
}

func TestAuditRepointsLoserAliases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	publish := time.Date(2025, 10, 1, 4, 0, 0, 0, time.UTC)
	seedPost(t, st, "p", "111_456", publish, record.Metrics{Reactions: 3}, true)
	seedPost(t, st, "p", "456", publish, record.Metrics{Reactions: 10}, true)
	// An earlier re-key left an alias behind the eventual loser.
	if err := st.InsertAlias(ctx, "p", store.SyntheticIDPrefix+"0ld", "111_456"); err != nil {
		t.Fatalf("InsertAlias: %v", err)
	}

	auditor := dedup.New(cfg, st, logging.NewNop())
	if _, err := auditor.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	chained, err := st.ResolveAlias(ctx, "p", store.SyntheticIDPrefix+"0ld")
	if err != nil {
		t.Fatalf("ResolveAlias: %v", err)
	}
	if chained != "456" {
		t.Fatalf("expected chained alias repointed to survivor, got %q", chained)
	}

	direct, err := st.ResolveAlias(ctx, "p", "111_456")
	if err != nil {
		t.Fatalf("ResolveAlias: %v", err)
	}
	if direct != "456" {
		t.Fatalf("expected loser recorded as alias of survivor, got %q", direct)
	}
}

func TestAuditIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	publish := time.Date(2025, 10, 1, 4, 0, 0, 0, time.UTC)
	seedPost(t, st, "p", "111_456", publish, record.Metrics{Reactions: 3}, true)
	seedPost(t, st, "p", "456", publish, record.Metrics{Reactions: 10}, true)

	auditor := dedup.New(cfg, st, logging.NewNop())
	if _, err := auditor.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := auditor.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.GroupsCollapsed != 0 || second.PostsDeleted != 0 {
		t.Fatalf("expected nothing left to collapse, got %+v", second)
	}
}

func TestAuditLeavesDistinctPostsAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seedPost(t, st, "p", "1", time.Date(2025, 10, 1, 4, 0, 0, 0, time.UTC), record.Metrics{Reactions: 1}, true)
	seedPost(t, st, "p", "2", time.Date(2025, 10, 1, 5, 0, 0, 0, time.UTC), record.Metrics{Reactions: 2}, true)
	seedPost(t, st, "q", "1", time.Date(2025, 10, 1, 4, 0, 0, 0, time.UTC), record.Metrics{Reactions: 3}, true)

	auditor := dedup.New(cfg, st, logging.NewNop())
	result, err := auditor.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.GroupsCollapsed != 0 || result.PostsDeleted != 0 {
		t.Fatalf("expected no collapses, got %+v", result)
	}
	if result.PagesAudited != 2 {
		t.Fatalf("expected two pages audited, got %d", result.PagesAudited)
	}
}
