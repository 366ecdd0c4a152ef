package store

import (
	"strings"
	"time"

	"pagesync/internal/record"
)

// SyntheticIDPrefix marks canonical post ids derived from a match key
// rather than assigned by the authoritative source.
const SyntheticIDPrefix = "sx-"

// Post is the canonical, persisted representation of one physical post.
type Post struct {
	PageKey            string
	ID                 string
	Title              string
	Permalink          string
	Type               record.PostType
	PublishTime        time.Time
	PublishMinute      string
	Metrics            record.Metrics
	TotalEngagement    int64
	HasAuthoritativeID bool
	CreatedAt          time.Time
	LastMergedAt       time.Time
}

// IsSynthetic reports whether the post id was derived rather than assigned
// by the authoritative source.
func (p *Post) IsSynthetic() bool {
	return strings.HasPrefix(p.ID, SyntheticIDPrefix)
}

// Alias records a superseded identifier that now resolves to a surviving
// canonical post.
type Alias struct {
	PageKey   string
	AliasID   string
	PostID    string
	CreatedAt time.Time
}

// Stats aggregates store-wide counts for diagnostics.
type Stats struct {
	Posts         int
	Synthetic     int
	Authoritative int
	Aliases       int
	Pages         int
}
