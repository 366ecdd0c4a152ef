// Package reconcile coordinates full reconciliation runs.
//
// A run partitions work by page: each page is owned by exactly one worker,
// so all writes for a page are serialized while distinct pages proceed in
// parallel. Within a page records are sorted deterministically, then each
// record is resolved and merged inside its own store transaction. A file
// lock guards the run so only one reconciliation touches the store at a
// time.
package reconcile
