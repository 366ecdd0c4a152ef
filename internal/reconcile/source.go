package reconcile

import (
	"context"
	"sort"

	"pagesync/internal/record"
)

// PageSource produces the raw records one input source holds for a page.
// Implementations live in internal/sources.
type PageSource interface {
	// Name identifies the source in logs and failure reports.
	Name() string
	// Fetch returns every record the source has for the page. Transient
	// upstream failures should be returned as-is; the coordinator retries.
	Fetch(ctx context.Context, pageKey string) ([]record.SourceRecord, error)
}

// orderRecords sorts a page's records into the canonical processing order:
// authoritative records first so identities exist before export records
// try to match them, then by publish time, then by id and title to break
// remaining ties.
func orderRecords(records []record.SourceRecord) {
	rank := func(kind record.SourceKind) int {
		if kind == record.SourceAuthoritative {
			return 0
		}
		return 1
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if ra, rb := rank(a.Kind), rank(b.Kind); ra != rb {
			return ra < rb
		}
		if !a.PublishTime.Equal(b.PublishTime) {
			return a.PublishTime.Before(b.PublishTime)
		}
		if a.ExternalID != b.ExternalID {
			return a.ExternalID < b.ExternalID
		}
		return a.Title < b.Title
	})
}
