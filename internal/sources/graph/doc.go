// Package graph fetches authoritative post records from the Facebook
// Graph API.
//
// The client walks the paginated /{page-id}/posts feed, following
// paging.next until the window is exhausted, and retries rate-limit and
// server errors with backoff. Compound ids of the form "pageid_postid"
// are reduced to their trailing segment so stored identities stay stable
// across API versions that differ in id shape.
package graph
