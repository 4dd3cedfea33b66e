package ops

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays *int // optional, only purge suggestions created more than N days ago
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes stored suggestions.
func Purge(database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	var before int64
	if input.OlderThanDays != nil {
		if *input.OlderThanDays < 0 {
			return nil, errors.NewInvalidRequest("older_than_days must not be negative")
		}
		before = time.Now().AddDate(0, 0, -*input.OlderThanDays).Unix()
	}

	count, err := db.Purge(database, before)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, olderThanDays *int) string {
	if count == 0 {
		return "No suggestions to purge"
	}

	word := "suggestion"
	if count > 1 {
		word = "suggestions"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, word)
	if olderThanDays != nil {
		msg += fmt.Sprintf(" (created more than %d days ago)", *olderThanDays)
	}
	return msg
}
