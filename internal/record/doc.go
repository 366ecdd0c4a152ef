// Package record defines the source-record shapes shared by both input
// sources and the normalizer that converts them into a comparable form.
//
// A SourceRecord is one raw observation of a post, either from the
// authoritative Graph API or from a bulk CSV export. The Normalizer moves
// export timestamps onto the canonical time base and derives the match
// key used by non-authoritative identity resolution.
package record
