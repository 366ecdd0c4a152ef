// Package merge implements the monotonic merge policy that folds source
// records into canonical posts.
//
// Merging never decreases a metric: each counter becomes the maximum of
// the stored and incoming values, and total engagement is recomputed from
// the merged counters on every call. The engine is pure; callers persist
// the returned post and apply any requested re-key inside their own
// transaction.
package merge
