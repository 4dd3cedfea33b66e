package ops

import (
	"strings"

	"github.com/hpungsan/fern/internal/document"
	"github.com/hpungsan/fern/internal/errors"
)

// Pagination limits
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// TextInput addresses the text around the cursor. Either Prefix/Suffix or a
// single Text containing Marker may be given, not both.
type TextInput struct {
	Prefix string
	Suffix string
	Text   string
	Marker string // default: "<|>"
}

// Split validates the input and returns the cursor split.
// Rules:
// - Text is mutually exclusive with Prefix/Suffix
// - Text without the marker puts the cursor at the end
func (in TextInput) Split() (document.Split, error) {
	hasSplit := in.Prefix != "" || in.Suffix != ""
	if in.Text != "" && hasSplit {
		return document.Split{}, errors.NewInvalidRequest("specify either text or prefix/suffix, not both")
	}
	if in.Text != "" {
		marker := strings.TrimSpace(in.Marker)
		return document.ParseMarked(in.Text, marker), nil
	}
	return document.New(in.Prefix, in.Suffix), nil
}
