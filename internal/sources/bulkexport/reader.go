package bulkexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pagesync/internal/record"
)

// Canonical column roles recognized in export headers.
const (
	colID        = "id"
	colTitle     = "title"
	colDesc      = "description"
	colPublish   = "publish"
	colType      = "type"
	colPermalink = "permalink"
	colReactions = "reactions"
	colComments  = "comments"
	colShares    = "shares"
	colViews     = "views"
	colReach     = "reach"
)

// headerAliases maps normalized export headers to column roles. Business
// Suite renamed several columns across export vintages.
var headerAliases = map[string]string{
	"post id":              colID,
	"postid":               colID,
	"id":                   colID,
	"title":                colTitle,
	"caption":              colTitle,
	"message":              colTitle,
	"description":          colDesc,
	"publish time":         colPublish,
	"publish date":         colPublish,
	"time published":       colPublish,
	"post type":            colType,
	"type":                 colType,
	"media type":           colType,
	"permalink":            colPermalink,
	"permalink url":        colPermalink,
	"link":                 colPermalink,
	"reactions":            colReactions,
	"likes and reactions":  colReactions,
	"comments":             colComments,
	"shares":               colShares,
	"views":                colViews,
	"video views":          colViews,
	"3-second video views": colViews,
	"reach":                colReach,
	"people reached":       colReach,
}

var publishLayouts = []string{
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// Parse reads one export stream and converts every row into a source
// record for the page. Rows whose publish time cannot be parsed are
// emitted with a zero time so the normalizer counts them as skipped
// instead of aborting the file.
func Parse(r io.Reader, pageKey string) ([]record.SourceRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bulk export: read header: %w", err)
	}
	columns := mapHeader(header)
	if _, ok := columns[colPublish]; !ok {
		return nil, fmt.Errorf("bulk export: no publish time column in header %v", header)
	}

	var records []record.SourceRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bulk export: read row: %w", err)
		}
		records = append(records, rowToRecord(row, columns, pageKey))
	}
	return records, nil
}

func mapHeader(header []string) map[string]int {
	columns := make(map[string]int)
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		normalized := strings.ToLower(strings.TrimSpace(name))
		normalized = strings.Join(strings.Fields(normalized), " ")
		role, ok := headerAliases[normalized]
		if !ok {
			continue
		}
		// First occurrence wins; exports sometimes repeat columns.
		if _, seen := columns[role]; !seen {
			columns[role] = i
		}
	}
	return columns
}

func rowToRecord(row []string, columns map[string]int, pageKey string) record.SourceRecord {
	cell := func(role string) string {
		idx, ok := columns[role]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	title := cell(colTitle)
	if title == "" {
		title = cell(colDesc)
	}

	rec := record.SourceRecord{
		Kind:       record.SourceBulkExport,
		PageKey:    pageKey,
		ExternalID: cell(colID),
		Title:      title,
		Permalink:  cell(colPermalink),
		Type:       record.ParsePostType(cell(colType)),
		Metrics: record.Metrics{
			Reactions: parseCount(cell(colReactions)),
			Comments:  parseCount(cell(colComments)),
			Shares:    parseCount(cell(colShares)),
			Views:     parseCount(cell(colViews)),
			Reach:     parseCount(cell(colReach)),
		},
	}
	if publish, ok := parsePublishTime(cell(colPublish)); ok {
		rec.PublishTime = publish
	}
	return rec
}

func parsePublishTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range publishLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseCount reads an export counter. Counters arrive as plain integers,
// with thousands separators, or as scientific notation after a
// spreadsheet round-trip. Unreadable cells count as zero, which the
// monotonic merge treats as "unknown".
func parseCount(value string) int64 {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" || value == "-" {
		return 0
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 {
		return int64(f)
	}
	return 0
}
