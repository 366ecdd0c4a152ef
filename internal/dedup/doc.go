// Package dedup audits the canonical store for posts that reconciliation
// could not unify and collapses each duplicate group into one survivor.
//
// Duplicates arise when an export row and an authoritative record land too
// far apart to match, or when historical imports stored compound ids.
// Posts are grouped per page by core identity, the survivor absorbs every
// loser's metrics monotonically, losers become aliases, and the audit is
// idempotent: a second pass finds nothing to collapse.
package dedup
