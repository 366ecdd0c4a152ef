package reconcile_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"pagesync/internal/logging"
	"pagesync/internal/reconcile"
	"pagesync/internal/record"
	"pagesync/internal/testsupport"
)

type fakeSource struct {
	name    string
	records map[string][]record.SourceRecord

	mu       sync.Mutex
	failures map[string]int
	calls    int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, pageKey string) ([]record.SourceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures[pageKey] > 0 {
		f.failures[pageKey]--
		return nil, errors.New("upstream down")
	}
	return f.records[pageKey], nil
}

func authRecord(pageKey, id string, publish time.Time, reactions int64) record.SourceRecord {
	return record.SourceRecord{
		Kind:        record.SourceAuthoritative,
		PageKey:     pageKey,
		ExternalID:  id,
		Title:       "post " + id,
		Type:        record.TypePhoto,
		PublishTime: publish,
		Metrics:     record.Metrics{Reactions: reactions},
	}
}

func exportRecord(pageKey, title string, publish time.Time, metrics record.Metrics) record.SourceRecord {
	return record.SourceRecord{
		Kind:        record.SourceBulkExport,
		PageKey:     pageKey,
		Title:       title,
		PublishTime: publish,
		Metrics:     metrics,
	}
}

func TestRunMergesAcrossSources(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithExportOffset(8))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	publish := time.Date(2025, 10, 1, 12, 34, 0, 0, time.UTC)
	auth := &fakeSource{
		name: "graph",
		records: map[string][]record.SourceRecord{
			"p": {authRecord("p", "101", publish, 10)},
		},
	}
	// Export timestamps arrive eight hours behind the canonical base.
	export := &fakeSource{
		name: "export",
		records: map[string][]record.SourceRecord{
			"p": {exportRecord("p", "post 101", publish.Add(-8*time.Hour), record.Metrics{Reactions: 7, Comments: 3, Views: 500})},
		},
	}

	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))
	summary, err := coord.Run(ctx, []string{"p"}, []reconcile.PageSource{auth, export})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Created != 1 || summary.Merged != 1 || summary.Failed() {
		t.Fatalf("unexpected summary %+v", summary)
	}

	post, err := st.GetPost(ctx, "p", "101")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if post == nil || !post.HasAuthoritativeID {
		t.Fatalf("expected authoritative post, got %#v", post)
	}
	want := record.Metrics{Reactions: 10, Comments: 3, Views: 500}
	if post.Metrics != want {
		t.Fatalf("expected folded metrics %+v, got %+v", want, post.Metrics)
	}
	if post.TotalEngagement != 13 {
		t.Fatalf("expected total engagement 13, got %d", post.TotalEngagement)
	}
}

func TestRunRekeysSyntheticPost(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))

	publish := time.Date(2025, 10, 1, 12, 34, 0, 0, time.UTC)
	export := &fakeSource{
		name: "export",
		records: map[string][]record.SourceRecord{
			"p": {exportRecord("p", "caption", publish.Add(-8*time.Hour), record.Metrics{Reactions: 4})},
		},
	}
	if _, err := coord.Run(ctx, []string{"p"}, []reconcile.PageSource{export}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	posts, err := st.PostsByPage(ctx, "p")
	if err != nil {
		t.Fatalf("PostsByPage: %v", err)
	}
	if len(posts) != 1 || !posts[0].IsSynthetic() {
		t.Fatalf("expected one synthetic post, got %#v", posts)
	}
	syntheticID := posts[0].ID

	// The authoritative record lands two minutes off the export time.
	auth := &fakeSource{
		name: "graph",
		records: map[string][]record.SourceRecord{
			"p": {authRecord("p", "202", publish.Add(2*time.Minute), 9)},
		},
	}
	if _, err := coord.Run(ctx, []string{"p"}, []reconcile.PageSource{auth}); err != nil {
		t.Fatalf("second run: %v", err)
	}

	post, err := st.GetPost(ctx, "p", "202")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if post == nil || !post.HasAuthoritativeID {
		t.Fatalf("expected re-keyed authoritative post, got %#v", post)
	}
	if post.Metrics.Reactions != 9 {
		t.Fatalf("expected metrics folded across runs, got %+v", post.Metrics)
	}

	target, err := st.ResolveAlias(ctx, "p", syntheticID)
	if err != nil {
		t.Fatalf("ResolveAlias: %v", err)
	}
	if target != "202" {
		t.Fatalf("expected alias %q -> 202, got %q", syntheticID, target)
	}
}

func TestRunRetriesTransientSourceFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	publish := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{
		name: "graph",
		records: map[string][]record.SourceRecord{
			"p": {authRecord("p", "1", publish, 1)},
		},
		failures: map[string]int{"p": 2},
	}

	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))
	summary, err := coord.Run(ctx, []string{"p"}, []reconcile.PageSource{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed() {
		t.Fatalf("expected retries to absorb transient failures, got %+v", summary.Failures)
	}
	if summary.Created != 1 {
		t.Fatalf("expected one created post, got %+v", summary)
	}
}

func TestRunReportsExhaustedSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := &fakeSource{
		name:     "graph",
		failures: map[string]int{"p": 100},
	}

	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))
	summary, err := coord.Run(ctx, []string{"p"}, []reconcile.PageSource{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Failed() || len(summary.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", summary.Failures)
	}
	if !errors.Is(summary.Failures[0].Err, reconcile.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", summary.Failures[0].Err)
	}
	if !strings.Contains(summary.Failures[0].Err.Error(), "graph") {
		t.Fatalf("expected source name in failure, got %v", summary.Failures[0].Err)
	}
}

func TestRunSkipsInvalidRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := &fakeSource{
		name: "export",
		records: map[string][]record.SourceRecord{
			"p": {
				{Kind: record.SourceBulkExport, PageKey: "p", Title: "no time"},
				exportRecord("p", "good", time.Date(2025, 10, 1, 1, 0, 0, 0, time.UTC), record.Metrics{}),
			},
		},
	}

	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))
	summary, err := coord.Run(ctx, []string{"p"}, []reconcile.PageSource{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 || summary.Created != 1 || summary.Failed() {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunProcessesPagesInParallel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(3))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	records := make(map[string][]record.SourceRecord)
	pageKeys := []string{"a", "b", "c", "d", "e"}
	publish := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	for i, key := range pageKeys {
		records[key] = []record.SourceRecord{
			authRecord(key, "1", publish.Add(time.Duration(i)*time.Hour), int64(i)),
		}
	}
	source := &fakeSource{name: "graph", records: records}

	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))
	summary, err := coord.Run(ctx, pageKeys, []reconcile.PageSource{source})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PagesProcessed != len(pageKeys) || summary.Created != len(pageKeys) {
		t.Fatalf("unexpected summary %+v", summary)
	}

	keys, err := st.PageKeys(ctx)
	if err != nil {
		t.Fatalf("PageKeys: %v", err)
	}
	if len(keys) != len(pageKeys) {
		t.Fatalf("expected %d pages in store, got %d", len(pageKeys), len(keys))
	}
}

// haltingSource cancels the run from inside its first fetch, the way an
// interrupt would land mid-run.
type haltingSource struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	fetched []string
}

func (h *haltingSource) Name() string { return "graph" }

func (h *haltingSource) Fetch(ctx context.Context, pageKey string) ([]record.SourceRecord, error) {
	h.mu.Lock()
	h.fetched = append(h.fetched, pageKey)
	h.mu.Unlock()
	h.cancel()
	return nil, ctx.Err()
}

func TestRunStopsAfterCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	st := testsupport.MustOpenStore(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &haltingSource{cancel: cancel}
	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))

	summary, err := coord.Run(ctx, []string{"a", "b", "c"}, []reconcile.PageSource{source})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary == nil {
		t.Fatal("expected partial summary alongside the error")
	}
	if summary.PagesProcessed >= 3 {
		t.Fatalf("expected remaining pages skipped, got %d processed", summary.PagesProcessed)
	}

	source.mu.Lock()
	defer source.mu.Unlock()
	if len(source.fetched) != 1 || source.fetched[0] != "a" {
		t.Fatalf("expected only the first page fetched, got %v", source.fetched)
	}
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-acquire lock: locked=%v err=%v", locked, err)
	}
	defer lock.Unlock()

	source := &fakeSource{name: "graph"}
	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))
	_, err = coord.Run(ctx, []string{"p"}, []reconcile.PageSource{source})
	if !errors.Is(err, reconcile.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	publish := time.Date(2025, 10, 1, 12, 34, 0, 0, time.UTC)
	source := &fakeSource{
		name: "graph",
		records: map[string][]record.SourceRecord{
			"p": {authRecord("p", "1", publish, 5)},
		},
	}
	coord := reconcile.New(cfg, st, logging.NewNop(), reconcile.WithRetryDelay(0))

	first, err := coord.Run(ctx, []string{"p"}, []reconcile.PageSource{source})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := coord.Run(ctx, []string{"p"}, []reconcile.PageSource{source})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Created != 1 || second.Created != 0 || second.Merged != 1 {
		t.Fatalf("expected replay to merge not create: first %+v second %+v", first, second)
	}

	posts, err := st.PostsByPage(ctx, "p")
	if err != nil {
		t.Fatalf("PostsByPage: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected one post after replay, got %d", len(posts))
	}
}
