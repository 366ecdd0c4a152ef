package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir is required")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir is required")
	}
	if c.Graph.RequestTimeout <= 0 {
		problems = append(problems, "graph.request_timeout must be positive")
	}
	if c.Graph.MaxRetries < 0 {
		problems = append(problems, "graph.max_retries must not be negative")
	}
	if c.Graph.PageLimit <= 0 || c.Graph.PageLimit > 100 {
		problems = append(problems, "graph.page_limit must be between 1 and 100")
	}
	for key, page := range c.Graph.Pages {
		if strings.TrimSpace(page.PageID) == "" {
			problems = append(problems, fmt.Sprintf("graph.pages.%s.page_id is required", key))
		}
	}
	if c.Reconcile.Workers <= 0 {
		problems = append(problems, "reconcile.workers must be positive")
	}
	if c.Reconcile.FuzzyWindowMinutes < 0 {
		problems = append(problems, "reconcile.fuzzy_window_minutes must not be negative")
	}
	if c.Reconcile.TitleMatchPrefixChars <= 0 {
		problems = append(problems, "reconcile.title_match_prefix_chars must be positive")
	}
	if c.Reconcile.TitleAnyDateMinChars < 0 {
		problems = append(problems, "reconcile.title_any_date_min_chars must not be negative")
	}
	if c.Reconcile.PageRetries < 0 {
		problems = append(problems, "reconcile.page_retries must not be negative")
	}
	if c.Notifications.RequestTimeout <= 0 {
		problems = append(problems, "notifications.request_timeout must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
