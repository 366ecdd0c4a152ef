// Package bulkexport reads Meta Business Suite CSV exports.
//
// Export files are messy in well-known ways: a UTF-8 BOM on the header,
// header names that vary between export vintages, thousands separators in
// counters, and post ids destroyed by spreadsheet round-trips through
// scientific notation. The reader tolerates all of it and emits records
// whose ids are carried for display only; matching happens on publish
// time and title downstream.
package bulkexport
