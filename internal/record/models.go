package record

import (
	"strings"
	"time"
)

// SourceKind distinguishes the two input sources by reliability.
type SourceKind string

const (
	// SourceAuthoritative marks records from the Graph API; their external
	// ids are trusted for identity.
	SourceAuthoritative SourceKind = "authoritative"
	// SourceBulkExport marks records from CSV exports; their external ids
	// suffer numeric truncation and are never used for matching.
	SourceBulkExport SourceKind = "bulk_export"
)

// PostType classifies a post's media format.
type PostType string

const (
	TypePhoto   PostType = "photo"
	TypeVideo   PostType = "video"
	TypeReel    PostType = "reel"
	TypeLive    PostType = "live"
	TypeText    PostType = "text"
	TypeLink    PostType = "link"
	TypeUnknown PostType = "unknown"
)

var postTypeSet = map[PostType]struct{}{
	TypePhoto:   {},
	TypeVideo:   {},
	TypeReel:    {},
	TypeLive:    {},
	TypeText:    {},
	TypeLink:    {},
	TypeUnknown: {},
}

// ParsePostType converts a string into a known PostType, falling back to
// TypeUnknown for anything unrecognized.
func ParsePostType(value string) PostType {
	normalized := PostType(strings.ToLower(strings.TrimSpace(value)))
	// Export headers use plural labels ("Photos", "Videos", "Reels").
	normalized = PostType(strings.TrimSuffix(string(normalized), "s"))
	if _, ok := postTypeSet[normalized]; ok {
		return normalized
	}
	return TypeUnknown
}

// Metrics carries the engagement counters reported for a post. A zero
// value means "unknown"; sources never report true negatives.
type Metrics struct {
	Reactions int64
	Comments  int64
	Shares    int64
	Views     int64
	Reach     int64
}

// Clamped returns a copy with negative counters forced to zero. Negative
// values show up as source-reported noise in exports.
func (m Metrics) Clamped() Metrics {
	clamp := func(v int64) int64 {
		if v < 0 {
			return 0
		}
		return v
	}
	return Metrics{
		Reactions: clamp(m.Reactions),
		Comments:  clamp(m.Comments),
		Shares:    clamp(m.Shares),
		Views:     clamp(m.Views),
		Reach:     clamp(m.Reach),
	}
}

// Max returns the elementwise maximum of two metric sets.
func (m Metrics) Max(other Metrics) Metrics {
	pick := func(a, b int64) int64 {
		if a >= b {
			return a
		}
		return b
	}
	return Metrics{
		Reactions: pick(m.Reactions, other.Reactions),
		Comments:  pick(m.Comments, other.Comments),
		Shares:    pick(m.Shares, other.Shares),
		Views:     pick(m.Views, other.Views),
		Reach:     pick(m.Reach, other.Reach),
	}
}

// TotalEngagement is the derived reactions+comments+shares sum.
func (m Metrics) TotalEngagement() int64 {
	return m.Reactions + m.Comments + m.Shares
}

// SourceRecord is one raw, not-yet-reconciled observation of a post.
type SourceRecord struct {
	Kind        SourceKind
	PageKey     string
	ExternalID  string
	Title       string
	Permalink   string
	Type        PostType
	PublishTime time.Time
	Metrics     Metrics
}

// MatchKey identifies a post by page and publish minute for
// non-authoritative matching.
type MatchKey struct {
	PageKey string
	Minute  string
}

// MinuteLayout is the canonical minute-truncated timestamp format used in
// match keys and the store's publish_minute column.
const MinuteLayout = "2006-01-02T15:04"

// MinuteKey truncates a timestamp to the canonical minute string.
func MinuteKey(t time.Time) string {
	return t.UTC().Format(MinuteLayout)
}

// NormalizedRecord is a SourceRecord with its publish time moved onto the
// canonical time base and its match key computed.
type NormalizedRecord struct {
	SourceRecord
	Key MatchKey
}
