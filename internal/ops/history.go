package ops

import (
	"database/sql"

	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/suggestion"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Context      string // optional context name filter
	AcceptedOnly bool
	Limit        int // default: 20, max: 100
	Offset       int // default: 0
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Items      []suggestion.Summary `json:"items"`
	Pagination Pagination           `json:"pagination"`
	Sort       string               `json:"sort"`
}

// History lists stored suggestions, newest first.
func History(database *sql.DB, input HistoryInput) (*HistoryOutput, error) {
	if input.Context != "" {
		if _, ok := blockctx.Parse(input.Context); !ok {
			return nil, errors.NewInvalidRequest("unknown context: " + input.Context)
		}
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	// Ensure offset is non-negative
	offset := max(input.Offset, 0)

	items, total, err := db.List(database, db.ListFilters{
		Context:      input.Context,
		AcceptedOnly: input.AcceptedOnly,
	}, limit, offset)
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}
