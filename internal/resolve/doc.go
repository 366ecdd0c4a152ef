// Package resolve matches incoming source records to canonical posts.
//
// Resolution runs through ordered tiers from most to least trustworthy:
// authoritative external id (including superseded aliases), exact publish
// minute, nearby minutes on the same calendar day, folded title on the
// same day, and finally folded title on any day for long titles. The first
// tier that produces a post wins. Export records skip the id tier because
// export ids arrive truncated by spreadsheet round-tripping.
package resolve
