package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/errors"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete permanently removes one stored suggestion. A cached completion
// deleted this way is predicted afresh next time.
func Delete(database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	if err := db.Delete(database, id); err != nil {
		return nil, err
	}

	return &DeleteOutput{Deleted: true, ID: id}, nil
}
