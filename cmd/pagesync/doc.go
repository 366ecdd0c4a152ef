// Command pagesync reconciles social post records from the Graph API and
// Business Suite CSV exports into one canonical SQLite store.
package main
