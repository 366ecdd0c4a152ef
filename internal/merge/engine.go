package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"pagesync/internal/record"
	"pagesync/internal/store"
)

// syntheticIDHexChars is the length of the hash portion of a synthetic id.
const syntheticIDHexChars = 16

// Synthesize derives a deterministic identifier from a match key. The same
// page and minute always produce the same id, so repeated ingestion of an
// export-only post converges on one canonical row.
func Synthesize(key record.MatchKey) string {
	sum := sha256.Sum256([]byte(key.PageKey + "|" + key.Minute))
	return store.SyntheticIDPrefix + hex.EncodeToString(sum[:])[:syntheticIDHexChars]
}

// Result describes the outcome of one merge.
type Result struct {
	Post    *store.Post
	Created bool
	// RekeyedFrom holds the superseded synthetic id when an authoritative
	// record renamed the post; callers record it as an alias.
	RekeyedFrom string
}

// Merge folds one normalized record into an existing canonical post, or
// constructs a new post when existing is nil. The returned post carries
// recomputed total engagement and the provided merge timestamp.
func Merge(existing *store.Post, rec record.NormalizedRecord, now time.Time) Result {
	if existing == nil {
		return Result{Post: newPost(rec, now), Created: true}
	}

	post := *existing
	incoming := rec.Metrics.Clamped()
	post.Metrics = post.Metrics.Max(incoming)
	post.TotalEngagement = post.Metrics.TotalEngagement()
	post.LastMergedAt = now.UTC()

	authoritative := rec.Kind == record.SourceAuthoritative
	upgrading := authoritative && !post.HasAuthoritativeID

	if rec.Title != "" && (post.Title == "" || authoritative) {
		post.Title = rec.Title
	}
	if rec.Permalink != "" && (post.Permalink == "" || authoritative) {
		post.Permalink = rec.Permalink
	}
	if rec.Type != record.TypeUnknown && (post.Type == record.TypeUnknown || post.Type == "" || authoritative) {
		post.Type = rec.Type
	}

	result := Result{}
	if upgrading {
		// The authoritative publish time is more precise than whatever
		// fuzzy window matched this post into existence.
		post.PublishTime = rec.PublishTime
		post.PublishMinute = rec.Key.Minute
		post.HasAuthoritativeID = true
		if post.IsSynthetic() && rec.ExternalID != "" {
			result.RekeyedFrom = post.ID
			post.ID = rec.ExternalID
		}
	}

	result.Post = &post
	return result
}

func newPost(rec record.NormalizedRecord, now time.Time) *store.Post {
	metrics := rec.Metrics.Clamped()
	post := &store.Post{
		PageKey:         rec.PageKey,
		Title:           rec.Title,
		Permalink:       rec.Permalink,
		Type:            rec.Type,
		PublishTime:     rec.PublishTime,
		PublishMinute:   rec.Key.Minute,
		Metrics:         metrics,
		TotalEngagement: metrics.TotalEngagement(),
		CreatedAt:       now.UTC(),
		LastMergedAt:    now.UTC(),
	}
	if rec.Kind == record.SourceAuthoritative && rec.ExternalID != "" {
		post.ID = rec.ExternalID
		post.HasAuthoritativeID = true
	} else {
		post.ID = Synthesize(rec.Key)
	}
	return post
}
