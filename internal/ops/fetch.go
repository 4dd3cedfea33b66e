package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/errors"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID string
}

// FetchOutput is a stored suggestion with the text it was predicted for.
type FetchOutput struct {
	ID              string `json:"id"`
	Model           string `json:"model"`
	Context         string `json:"context"`
	Prefix          string `json:"prefix"`
	Suffix          string `json:"suffix"`
	Completion      string `json:"completion"`
	CompletionChars int    `json:"completion_chars"`
	CreatedAt       int64  `json:"created_at"`
	AcceptedAt      *int64 `json:"accepted_at,omitempty"`
}

// Fetch retrieves one stored suggestion by ID.
func Fetch(database *sql.DB, input FetchInput) (*FetchOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	s, err := db.GetByID(database, id)
	if err != nil {
		return nil, err
	}

	return &FetchOutput{
		ID:              s.ID,
		Model:           s.Model,
		Context:         s.Context,
		Prefix:          s.Prefix,
		Suffix:          s.Suffix,
		Completion:      s.Completion,
		CompletionChars: s.CompletionChars,
		CreatedAt:       s.CreatedAt,
		AcceptedAt:      s.AcceptedAt,
	}, nil
}
