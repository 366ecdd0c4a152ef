// Package textutil provides the text normalization used by title-based
// identity matching.
//
// Titles from the Graph API and CSV exports differ in casing and trailing
// whitespace for the same post, so comparisons run over a case-folded,
// length-limited prefix rather than raw text.
package textutil
