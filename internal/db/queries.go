package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/suggestion"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.FernError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

const suggestionColumns = `
	id, cache_key, model, context, prefix, suffix,
	completion, completion_chars, created_at, accepted_at
`

// Insert stores a new suggestion in the database.
func Insert(db *sql.DB, s *suggestion.Suggestion) error {
	return InsertWith(db, s)
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertWith stores a suggestion through e, so imports can batch inserts in
// one transaction.
func InsertWith(e Execer, s *suggestion.Suggestion) error {
	query := `INSERT INTO suggestions (` + suggestionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := e.Exec(query, insertArgs(s)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// Replace inserts s or overwrites the stored suggestion with the same ID.
func Replace(db *sql.DB, s *suggestion.Suggestion) error {
	query := `INSERT OR REPLACE INTO suggestions (` + suggestionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := db.Exec(query, insertArgs(s)...); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Exists reports whether a suggestion with id is stored.
func Exists(db *sql.DB, id string) (bool, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM suggestions WHERE id = ?`, id).Scan(&n); err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

func insertArgs(s *suggestion.Suggestion) []any {
	var acceptedAt sql.NullInt64
	if s.AcceptedAt != nil {
		acceptedAt = sql.NullInt64{Int64: *s.AcceptedAt, Valid: true}
	}
	return []any{
		s.ID, s.Key, s.Model, s.Context, s.Prefix, s.Suffix,
		s.Completion, s.CompletionChars, s.CreatedAt, acceptedAt,
	}
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a suggestion by its ULID.
func GetByID(db *sql.DB, id string) (*suggestion.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = ?`

	s, err := scanSuggestion(db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return s, nil
}

// Lookup returns the most recent suggestion stored under key.
// Returns (nil, nil) on a cache miss.
func Lookup(db *sql.DB, key string) (*suggestion.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions
		WHERE cache_key = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	s, err := scanSuggestion(db.QueryRow(query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return s, nil
}

// ListFilters narrows a history listing.
type ListFilters struct {
	// Context restricts to one block context name (empty = all)
	Context string
	// AcceptedOnly restricts to suggestions the user accepted
	AcceptedOnly bool
}

// List returns suggestion summaries newest first, plus the total count
// matching the filters.
func List(db *sql.DB, filters ListFilters, limit, offset int) ([]suggestion.Summary, int, error) {
	where := []string{"1 = 1"}
	var args []any
	if filters.Context != "" {
		where = append(where, "context = ?")
		args = append(args, filters.Context)
	}
	if filters.AcceptedOnly {
		where = append(where, "accepted_at IS NOT NULL")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM suggestions WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT id, model, context, completion, completion_chars, created_at, accepted_at
		FROM suggestions WHERE ` + clause + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`
	rows, err := db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	items := []suggestion.Summary{}
	for rows.Next() {
		var (
			sum        suggestion.Summary
			acceptedAt sql.NullInt64
		)
		if err := rows.Scan(&sum.ID, &sum.Model, &sum.Context, &sum.Completion,
			&sum.CompletionChars, &sum.CreatedAt, &acceptedAt); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		if acceptedAt.Valid {
			sum.AcceptedAt = &acceptedAt.Int64
		}
		items = append(items, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return items, total, nil
}

// MarkAccepted records that the user accepted suggestion id.
func MarkAccepted(db *sql.DB, id string) error {
	result, err := db.Exec(`UPDATE suggestions SET accepted_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}

	return nil
}

// Delete permanently removes suggestion id.
func Delete(db *sql.DB, id string) error {
	result, err := db.Exec(`DELETE FROM suggestions WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}

	return nil
}

// Purge permanently deletes suggestions created before the given Unix time.
// A zero cutoff deletes everything. Returns the number of rows removed.
func Purge(db *sql.DB, before int64) (int, error) {
	var (
		result sql.Result
		err    error
	)
	if before == 0 {
		result, err = db.Exec(`DELETE FROM suggestions`)
	} else {
		result, err = db.Exec(`DELETE FROM suggestions WHERE created_at < ?`, before)
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// StreamForExport returns full rows oldest first for streaming to an export
// file. The caller must close the rows and read them with ScanSuggestionFromRows.
func StreamForExport(ctx context.Context, db *sql.DB, filters ListFilters) (*sql.Rows, error) {
	where := []string{"1 = 1"}
	var args []any
	if filters.Context != "" {
		where = append(where, "context = ?")
		args = append(args, filters.Context)
	}
	if filters.AcceptedOnly {
		where = append(where, "accepted_at IS NOT NULL")
	}

	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// ScanSuggestionFromRows scans the current row of a StreamForExport result.
func ScanSuggestionFromRows(rows *sql.Rows) (*suggestion.Suggestion, error) {
	return scanSuggestion(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSuggestion scans a single row into a Suggestion.
func scanSuggestion(row scanner) (*suggestion.Suggestion, error) {
	var (
		s          suggestion.Suggestion
		acceptedAt sql.NullInt64
	)

	err := row.Scan(
		&s.ID, &s.Key, &s.Model, &s.Context, &s.Prefix, &s.Suffix,
		&s.Completion, &s.CompletionChars, &s.CreatedAt, &acceptedAt,
	)
	if err != nil {
		return nil, err
	}

	if acceptedAt.Valid {
		s.AcceptedAt = &acceptedAt.Int64
	}

	return &s, nil
}
