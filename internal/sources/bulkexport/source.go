package bulkexport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pagesync/internal/config"
	"pagesync/internal/logging"
	"pagesync/internal/record"
)

// Source reads a page's export files from the configured directory.
// Files live under <dir>/<pageKey>/ and every *.csv inside is read; a
// missing page directory just means the page has no export data.
type Source struct {
	dir    string
	logger *slog.Logger
}

// NewSource builds an export source over the configured directory.
func NewSource(cfg *config.Config, logger *slog.Logger) *Source {
	return &Source{
		dir:    cfg.BulkExport.Dir,
		logger: logging.NewComponentLogger(logger, "bulkexport"),
	}
}

// Name identifies the source in logs and failure reports.
func (s *Source) Name() string { return "bulkexport" }

// Fetch reads every export file for the page in filename order.
func (s *Source) Fetch(ctx context.Context, pageKey string) ([]record.SourceRecord, error) {
	pageDir := filepath.Join(s.dir, pageKey)
	entries, err := os.ReadDir(pageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bulk export: read dir %q: %w", pageDir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(pageDir, entry.Name()))
	}
	sort.Strings(paths)

	var records []record.SourceRecord
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileRecords, err := s.readFile(path, pageKey)
		if err != nil {
			return nil, err
		}
		records = append(records, fileRecords...)
		s.logger.Debug("export file read",
			logging.String(logging.FieldPageKey, pageKey),
			logging.String("file", filepath.Base(path)),
			logging.Int("records", len(fileRecords)))
	}
	return records, nil
}

func (s *Source) readFile(path, pageKey string) ([]record.SourceRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bulk export: open %q: %w", path, err)
	}
	defer file.Close()
	records, err := Parse(file, pageKey)
	if err != nil {
		return nil, fmt.Errorf("bulk export: %s: %w", filepath.Base(path), err)
	}
	return records, nil
}
