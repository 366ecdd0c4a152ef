package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxTitleChars = 200

// ErrInvalidRecord marks records the normalizer rejects. Callers count
// these as skipped rather than failing the batch.
var ErrInvalidRecord = errors.New("invalid record")

// Normalizer converts raw SourceRecords into the comparable shape the
// resolver and merge engine consume.
type Normalizer struct {
	exportOffset time.Duration
}

// NewNormalizer builds a normalizer that shifts bulk-export timestamps by
// the configured number of hours onto the canonical time base.
func NewNormalizer(exportOffsetHours int) *Normalizer {
	return &Normalizer{exportOffset: time.Duration(exportOffsetHours) * time.Hour}
}

// Normalize validates and canonicalizes one record. Authoritative
// timestamps pass through unchanged; bulk-export timestamps receive the
// fixed offset. The returned record carries the minute-truncated match key.
func (n *Normalizer) Normalize(rec SourceRecord) (NormalizedRecord, error) {
	pageKey := strings.TrimSpace(rec.PageKey)
	if pageKey == "" {
		return NormalizedRecord{}, fmt.Errorf("%w: missing page key", ErrInvalidRecord)
	}
	if rec.PublishTime.IsZero() {
		return NormalizedRecord{}, fmt.Errorf("%w: missing publish time", ErrInvalidRecord)
	}
	switch rec.Kind {
	case SourceAuthoritative, SourceBulkExport:
	default:
		return NormalizedRecord{}, fmt.Errorf("%w: unknown source kind %q", ErrInvalidRecord, rec.Kind)
	}

	normalized := rec
	normalized.PageKey = pageKey
	normalized.ExternalID = strings.TrimSpace(rec.ExternalID)
	normalized.Title = truncate(strings.TrimSpace(rec.Title), maxTitleChars)
	normalized.Permalink = strings.TrimSpace(rec.Permalink)
	if normalized.Type == "" {
		normalized.Type = TypeUnknown
	}

	publishTime := rec.PublishTime.UTC()
	if rec.Kind == SourceBulkExport {
		publishTime = publishTime.Add(n.exportOffset)
	}
	normalized.PublishTime = publishTime

	return NormalizedRecord{
		SourceRecord: normalized,
		Key: MatchKey{
			PageKey: pageKey,
			Minute:  MinuteKey(publishTime),
		},
	}, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
