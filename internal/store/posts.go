package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pagesync/internal/record"
	"pagesync/internal/textutil"
)

const postColumns = "page_key, id, title, permalink, post_type, publish_time, publish_minute, " +
	"reactions, comments, shares, views, reach, total_engagement, has_authoritative_id, created_at, last_merged_at"

// GetPost fetches a canonical post by its identifier.
func (c conn) GetPost(ctx context.Context, pageKey, id string) (*Post, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE page_key = ? AND id = ?`, pageKey, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// FindByMinute returns the post published in the exact minute, if any.
// When several qualify the earliest-created wins, deterministically; the
// boolean reports that more than one candidate matched.
func (c conn) FindByMinute(ctx context.Context, pageKey, minute string) (*Post, bool, error) {
	posts, err := c.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts
         WHERE page_key = ? AND publish_minute = ?
         ORDER BY created_at, id LIMIT 2`, pageKey, minute)
	if err != nil {
		return nil, false, fmt.Errorf("find by minute: %w", err)
	}
	if len(posts) == 0 {
		return nil, false, nil
	}
	return posts[0], len(posts) > 1, nil
}

// FindByTitleOnDate returns the earliest-created post on the given date
// (YYYY-MM-DD, canonical base) whose folded title prefix matches, plus
// whether more than one candidate matched.
func (c conn) FindByTitleOnDate(ctx context.Context, pageKey, date, title string) (*Post, bool, error) {
	fold := textutil.FoldPrefix(title, c.titleFoldChars)
	if fold == "" {
		return nil, false, nil
	}
	posts, err := c.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts
         WHERE page_key = ? AND substr(publish_minute, 1, 10) = ? AND title_fold = ?
         ORDER BY created_at, id LIMIT 2`, pageKey, date, fold)
	if err != nil {
		return nil, false, fmt.Errorf("find by title on date: %w", err)
	}
	if len(posts) == 0 {
		return nil, false, nil
	}
	return posts[0], len(posts) > 1, nil
}

// FindByTitle returns the earliest-created post on any date whose folded
// title prefix matches, plus whether more than one candidate matched.
func (c conn) FindByTitle(ctx context.Context, pageKey, title string) (*Post, bool, error) {
	fold := textutil.FoldPrefix(title, c.titleFoldChars)
	if fold == "" {
		return nil, false, nil
	}
	posts, err := c.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts
         WHERE page_key = ? AND title_fold = ?
         ORDER BY created_at, id LIMIT 2`, pageKey, fold)
	if err != nil {
		return nil, false, fmt.Errorf("find by title: %w", err)
	}
	if len(posts) == 0 {
		return nil, false, nil
	}
	return posts[0], len(posts) > 1, nil
}

// InsertPost persists a new canonical post.
func (c conn) InsertPost(ctx context.Context, post *Post) error {
	if post == nil {
		return errors.New("post is nil")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO posts (
            page_key, id, title, title_fold, permalink, post_type,
            publish_time, publish_minute, reactions, comments, shares,
            views, reach, total_engagement, has_authoritative_id,
            created_at, last_merged_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.PageKey,
		post.ID,
		post.Title,
		textutil.FoldPrefix(post.Title, c.titleFoldChars),
		post.Permalink,
		string(post.Type),
		post.PublishTime.UTC().Format(time.RFC3339Nano),
		post.PublishMinute,
		post.Metrics.Reactions,
		post.Metrics.Comments,
		post.Metrics.Shares,
		post.Metrics.Views,
		post.Metrics.Reach,
		post.TotalEngagement,
		boolToInt(post.HasAuthoritativeID),
		post.CreatedAt.UTC().Format(time.RFC3339Nano),
		post.LastMergedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// UpdatePost persists changes to an existing canonical post. The id and
// page key are immutable here; renames go through RenamePost.
func (c conn) UpdatePost(ctx context.Context, post *Post) error {
	if post == nil {
		return errors.New("post is nil")
	}
	_, err := c.db.ExecContext(ctx,
		`UPDATE posts
         SET title = ?, title_fold = ?, permalink = ?, post_type = ?,
             publish_time = ?, publish_minute = ?, reactions = ?, comments = ?,
             shares = ?, views = ?, reach = ?, total_engagement = ?,
             has_authoritative_id = ?, last_merged_at = ?
         WHERE page_key = ? AND id = ?`,
		post.Title,
		textutil.FoldPrefix(post.Title, c.titleFoldChars),
		post.Permalink,
		string(post.Type),
		post.PublishTime.UTC().Format(time.RFC3339Nano),
		post.PublishMinute,
		post.Metrics.Reactions,
		post.Metrics.Comments,
		post.Metrics.Shares,
		post.Metrics.Views,
		post.Metrics.Reach,
		post.TotalEngagement,
		boolToInt(post.HasAuthoritativeID),
		post.LastMergedAt.UTC().Format(time.RFC3339Nano),
		post.PageKey,
		post.ID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// RenamePost re-keys a post to a new identifier and repoints any aliases
// that referenced the old one.
func (c conn) RenamePost(ctx context.Context, pageKey, oldID, newID string) error {
	if _, err := c.db.ExecContext(ctx,
		`UPDATE posts SET id = ? WHERE page_key = ? AND id = ?`, newID, pageKey, oldID); err != nil {
		return fmt.Errorf("rename post: %w", err)
	}
	return c.RepointAliases(ctx, pageKey, oldID, newID)
}

// RepointAliases moves every alias resolving to oldID onto newID, keeping
// the audit trail alive when the post behind it changes identity or is
// collapsed away.
func (c conn) RepointAliases(ctx context.Context, pageKey, oldID, newID string) error {
	if _, err := c.db.ExecContext(ctx,
		`UPDATE post_aliases SET post_id = ? WHERE page_key = ? AND post_id = ?`, newID, pageKey, oldID); err != nil {
		return fmt.Errorf("repoint aliases: %w", err)
	}
	return nil
}

// InsertAlias records a superseded identifier for audit.
func (c conn) InsertAlias(ctx context.Context, pageKey, aliasID, postID string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO post_aliases (page_key, alias_id, post_id, created_at)
         VALUES (?, ?, ?, ?)`,
		pageKey, aliasID, postID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert alias: %w", err)
	}
	return nil
}

// ResolveAlias returns the surviving post id behind a superseded
// identifier, or empty when the alias is unknown.
func (c conn) ResolveAlias(ctx context.Context, pageKey, aliasID string) (string, error) {
	var postID string
	err := c.db.QueryRowContext(ctx,
		`SELECT post_id FROM post_aliases WHERE page_key = ? AND alias_id = ?`,
		pageKey, aliasID).Scan(&postID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve alias: %w", err)
	}
	return postID, nil
}

// DeletePost removes a post; the dedup auditor is the only caller.
func (c conn) DeletePost(ctx context.Context, pageKey, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM posts WHERE page_key = ? AND id = ?`, pageKey, id)
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// PostsByPage returns all posts for a page ordered by publish time.
func (c conn) PostsByPage(ctx context.Context, pageKey string) ([]*Post, error) {
	return c.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts WHERE page_key = ? ORDER BY publish_time, id`, pageKey)
}

// PostsByDateRange returns a page's posts published in [from, to).
func (c conn) PostsByDateRange(ctx context.Context, pageKey string, from, to time.Time) ([]*Post, error) {
	return c.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts
         WHERE page_key = ? AND publish_time >= ? AND publish_time < ?
         ORDER BY publish_time, id`,
		pageKey,
		from.UTC().Format(time.RFC3339Nano),
		to.UTC().Format(time.RFC3339Nano))
}

// PostsByType returns a page's posts of one post type ordered by publish time.
func (c conn) PostsByType(ctx context.Context, pageKey string, postType record.PostType) ([]*Post, error) {
	return c.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts
         WHERE page_key = ? AND post_type = ?
         ORDER BY publish_time, id`, pageKey, string(postType))
}

// AllPosts returns every canonical post ordered by page and creation time.
func (c conn) AllPosts(ctx context.Context) ([]*Post, error) {
	return c.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY page_key, created_at, id`)
}

// PageKeys returns the distinct pages present in the store.
func (c conn) PageKeys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT page_key FROM posts ORDER BY page_key`)
	if err != nil {
		return nil, fmt.Errorf("query page keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// CheckPageIntegrity verifies the derived total_engagement column for one
// page. A mismatch means a write bypassed the merge engine.
func (c conn) CheckPageIntegrity(ctx context.Context, pageKey string) error {
	var broken int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM posts
         WHERE page_key = ? AND total_engagement != reactions + comments + shares`,
		pageKey).Scan(&broken)
	if err != nil {
		return fmt.Errorf("check page integrity: %w", err)
	}
	if broken > 0 {
		return fmt.Errorf("page %s: %d posts with inconsistent total_engagement", pageKey, broken)
	}
	return nil
}

// Stats returns store-wide counts for diagnostics.
func (c conn) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(1),
                COALESCE(SUM(CASE WHEN has_authoritative_id = 0 THEN 1 ELSE 0 END), 0),
                COALESCE(SUM(CASE WHEN has_authoritative_id = 1 THEN 1 ELSE 0 END), 0),
                COUNT(DISTINCT page_key)
         FROM posts`).
		Scan(&stats.Posts, &stats.Synthetic, &stats.Authoritative, &stats.Pages)
	if err != nil {
		return Stats{}, fmt.Errorf("store stats: %w", err)
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM post_aliases`).Scan(&stats.Aliases); err != nil {
		return Stats{}, fmt.Errorf("alias stats: %w", err)
	}
	return stats, nil
}

func (c conn) queryPosts(ctx context.Context, query string, args ...any) ([]*Post, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (*Post, error) {
	var (
		post          Post
		postType      string
		publishRaw    string
		createdRaw    string
		lastMergedRaw string
		hasAuthID     int
	)
	if err := scanner.Scan(
		&post.PageKey,
		&post.ID,
		&post.Title,
		&post.Permalink,
		&postType,
		&publishRaw,
		&post.PublishMinute,
		&post.Metrics.Reactions,
		&post.Metrics.Comments,
		&post.Metrics.Shares,
		&post.Metrics.Views,
		&post.Metrics.Reach,
		&post.TotalEngagement,
		&hasAuthID,
		&createdRaw,
		&lastMergedRaw,
	); err != nil {
		return nil, err
	}

	post.Type = record.PostType(postType)
	post.HasAuthoritativeID = hasAuthID != 0
	if publish, err := parseTimeString(publishRaw); err == nil {
		post.PublishTime = publish
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		post.CreatedAt = created
	}
	if merged, err := parseTimeString(lastMergedRaw); err == nil {
		post.LastMergedAt = merged
	}
	return &post, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
