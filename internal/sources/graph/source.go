package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pagesync/internal/config"
	"pagesync/internal/logging"
	"pagesync/internal/record"
)

// Source adapts the Graph client to the reconciliation source contract.
type Source struct {
	client *Client
	pages  map[string]config.Page
	since  time.Time
	until  time.Time
	logger *slog.Logger
}

// NewSource builds a page source covering the [since, until) window. Zero
// times leave the window open on that side.
func NewSource(cfg *config.Config, client *Client, since, until time.Time, logger *slog.Logger) *Source {
	return &Source{
		client: client,
		pages:  cfg.Graph.Pages,
		since:  since,
		until:  until,
		logger: logging.NewComponentLogger(logger, "graph"),
	}
}

// Name identifies the source in logs and failure reports.
func (s *Source) Name() string { return "graph" }

// Fetch returns the page's authoritative records for the window.
func (s *Source) Fetch(ctx context.Context, pageKey string) ([]record.SourceRecord, error) {
	page, ok := s.pages[pageKey]
	if !ok {
		return nil, fmt.Errorf("graph fetch: page %q not configured", pageKey)
	}
	records, err := s.client.FetchPosts(ctx, pageKey, page, s.since, s.until)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("page fetched",
		logging.String(logging.FieldPageKey, pageKey),
		logging.Int("records", len(records)))
	return records, nil
}
