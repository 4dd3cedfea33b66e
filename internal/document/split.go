// Package document holds the cursor-split representation of an edited note.
package document

import "strings"

// CursorMarker is the default marker used by the CLI and REPL to denote the
// cursor position inside a single string.
const CursorMarker = "<|>"

// Split is a document cut at the cursor. Prefix is everything strictly
// before the cursor, Suffix everything at or after it. Processing steps
// return a new Split rather than modifying one.
type Split struct {
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

// New returns a Split for the given halves.
func New(prefix, suffix string) Split {
	return Split{Prefix: prefix, Suffix: suffix}
}

// Text reconstructs the document around the cursor.
func (s Split) Text() string {
	return s.Prefix + s.Suffix
}

// Cursor returns the byte offset of the cursor in Text().
func (s Split) Cursor() int {
	return len(s.Prefix)
}

// IsEmpty reports whether both halves are empty.
func (s Split) IsEmpty() bool {
	return s.Prefix == "" && s.Suffix == ""
}

// ParseMarked splits text at the first occurrence of marker. If the marker
// is absent the cursor is placed at the end of the text.
func ParseMarked(text, marker string) Split {
	if marker == "" {
		marker = CursorMarker
	}
	prefix, suffix, found := strings.Cut(text, marker)
	if !found {
		return Split{Prefix: text}
	}
	return Split{Prefix: prefix, Suffix: suffix}
}
