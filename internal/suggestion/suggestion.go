// Package suggestion defines the stored record of a completed prediction.
package suggestion

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/fern/internal/document"
)

// Suggestion is a completion produced for one prepared request.
type Suggestion struct {
	// ID is a ULID that uniquely identifies this suggestion
	ID string

	// Key is the cache key of the prepared request (see CacheKey)
	Key string

	// Model is the backend model that produced the completion
	Model string

	// Context is the block context name at the cursor
	Context string

	// Prefix and Suffix are the prepared text around the cursor
	Prefix string
	Suffix string

	// Completion is the post-processed completion text
	Completion string

	// CompletionChars is the character count (runes, not bytes)
	CompletionChars int

	// CreatedAt is the Unix timestamp when the suggestion was stored
	CreatedAt int64

	// AcceptedAt is the Unix timestamp when the user accepted it (nullable)
	AcceptedAt *int64
}

// Summary is a suggestion without the prefix/suffix text.
// Used by history listings to reduce data transfer.
type Summary struct {
	ID              string `json:"id"`
	Model           string `json:"model"`
	Context         string `json:"context"`
	Completion      string `json:"completion"`
	CompletionChars int    `json:"completion_chars"`
	CreatedAt       int64  `json:"created_at"`
	AcceptedAt      *int64 `json:"accepted_at,omitempty"`
}

// Summarize returns the summary view of s.
func (s *Suggestion) Summarize() Summary {
	return Summary{
		ID:              s.ID,
		Model:           s.Model,
		Context:         s.Context,
		Completion:      s.Completion,
		CompletionChars: s.CompletionChars,
		CreatedAt:       s.CreatedAt,
		AcceptedAt:      s.AcceptedAt,
	}
}

// New builds a suggestion with a fresh ID and timestamps filled in.
func New(key, model, context string, split document.Split, completion string) (*Suggestion, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Suggestion{
		ID:              id,
		Key:             key,
		Model:           model,
		Context:         context,
		Prefix:          split.Prefix,
		Suffix:          split.Suffix,
		Completion:      completion,
		CompletionChars: CountChars(completion),
		CreatedAt:       time.Now().Unix(),
	}, nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID generates a new ULID. IDs generated in the same millisecond sort in
// generation order.
func NewID() (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CacheKey identifies a prepared request. Two requests with the same key
// would be sent to the backend byte-for-byte identically.
func CacheKey(model, system, context string, split document.Split) string {
	h := sha256.New()
	for _, part := range []string{model, system, context, split.Prefix, split.Suffix} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
