package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pagesync/internal/config"
	"pagesync/internal/record"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	createdTimeLayout  = "2006-01-02T15:04:05-0700"

	postFields = "id,message,permalink_url,created_time," +
		"attachments{media_type}," +
		"shares,comments.summary(true),reactions.summary(true)"
)

// Client wraps the Graph API posts feed.
type Client struct {
	baseURL    string
	apiVersion string
	pageLimit  int
	maxRetries int
	httpClient *http.Client
	retryDelay time.Duration
}

// Option customizes the Graph client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithRetryDelay overrides the pause between request retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// NewClient constructs a Graph API client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Graph.RequestTimeout > 0 {
		timeout = time.Duration(cfg.Graph.RequestTimeout) * time.Second
	}
	client := &Client{
		baseURL:    cfg.Graph.BaseURL,
		apiVersion: cfg.Graph.APIVersion,
		pageLimit:  cfg.Graph.PageLimit,
		maxRetries: cfg.Graph.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FetchPosts returns every post the page published inside [since, until),
// following pagination to the end of the window.
func (c *Client) FetchPosts(ctx context.Context, pageKey string, page config.Page, since, until time.Time) ([]record.SourceRecord, error) {
	endpoint, err := url.JoinPath(c.baseURL, c.apiVersion, page.PageID, "posts")
	if err != nil {
		return nil, fmt.Errorf("graph fetch: build url: %w", err)
	}
	params := url.Values{}
	params.Set("fields", postFields)
	params.Set("access_token", page.AccessToken)
	params.Set("limit", fmt.Sprintf("%d", c.pageLimit))
	if !since.IsZero() {
		params.Set("since", fmt.Sprintf("%d", since.Unix()))
	}
	if !until.IsZero() {
		params.Set("until", fmt.Sprintf("%d", until.Unix()))
	}
	next := endpoint + "?" + params.Encode()

	var records []record.SourceRecord
	for next != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		envelope, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, post := range envelope.Data {
			rec, err := post.toRecord(pageKey)
			if err != nil {
				return nil, fmt.Errorf("graph fetch: post %s: %w", post.ID, err)
			}
			records = append(records, rec)
		}
		next = envelope.Paging.Next
	}
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*postEnvelope, error) {
	attempts := c.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		envelope, retryable, err := c.doFetch(ctx, pageURL)
		if err == nil {
			return envelope, nil
		}
		lastErr = err
		if !retryable || attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

func (c *Client) doFetch(ctx context.Context, pageURL string) (*postEnvelope, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("graph fetch: request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("graph fetch: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("graph fetch: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(body)
		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= http.StatusInternalServerError ||
			apiErr.rateLimited()
		if apiErr.Message != "" {
			return nil, retryable, fmt.Errorf("graph fetch: http %d: %s (code %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return nil, retryable, fmt.Errorf("graph fetch: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope postEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false, fmt.Errorf("graph fetch: decode response: %w", err)
	}
	return &envelope, false, nil
}

type postEnvelope struct {
	Data   []graphPost `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type summaryContainer struct {
	Summary struct {
		TotalCount int64 `json:"total_count"`
	} `json:"summary"`
}

type graphPost struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	PermalinkURL string `json:"permalink_url"`
	CreatedTime  string `json:"created_time"`
	Attachments  struct {
		Data []struct {
			MediaType string `json:"media_type"`
		} `json:"data"`
	} `json:"attachments"`
	Shares *struct {
		Count int64 `json:"count"`
	} `json:"shares"`
	Comments  *summaryContainer `json:"comments"`
	Reactions *summaryContainer `json:"reactions"`
}

func (p graphPost) toRecord(pageKey string) (record.SourceRecord, error) {
	created, err := time.Parse(createdTimeLayout, p.CreatedTime)
	if err != nil {
		return record.SourceRecord{}, fmt.Errorf("parse created_time %q: %w", p.CreatedTime, err)
	}

	rec := record.SourceRecord{
		Kind:        record.SourceAuthoritative,
		PageKey:     pageKey,
		ExternalID:  TrailingID(p.ID),
		Title:       p.Message,
		Permalink:   p.PermalinkURL,
		Type:        p.postType(),
		PublishTime: created.UTC(),
	}
	if p.Reactions != nil {
		rec.Metrics.Reactions = p.Reactions.Summary.TotalCount
	}
	if p.Comments != nil {
		rec.Metrics.Comments = p.Comments.Summary.TotalCount
	}
	if p.Shares != nil {
		rec.Metrics.Shares = p.Shares.Count
	}
	return rec, nil
}

func (p graphPost) postType() record.PostType {
	if len(p.Attachments.Data) == 0 {
		return record.TypeText
	}
	switch strings.ToLower(p.Attachments.Data[0].MediaType) {
	case "photo", "album":
		return record.TypePhoto
	case "video":
		return record.TypeVideo
	case "link":
		return record.TypeLink
	default:
		return record.ParsePostType(p.Attachments.Data[0].MediaType)
	}
}

// TrailingID reduces a compound "pageid_postid" identifier to the post
// segment. Plain ids pass through unchanged.
func TrailingID(id string) string {
	id = strings.TrimSpace(id)
	if idx := strings.LastIndex(id, "_"); idx >= 0 && idx+1 < len(id) {
		return id[idx+1:]
	}
	return id
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// Graph rate-limit codes: 4 app-level, 17 user-level, 32 page-level,
// 613 custom throttling.
func (e apiError) rateLimited() bool {
	switch e.Code {
	case 4, 17, 32, 613:
		return true
	}
	return false
}

func decodeAPIError(body []byte) apiError {
	var payload struct {
		Error apiError `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	return payload.Error
}
