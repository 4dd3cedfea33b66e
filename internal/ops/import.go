package ops

import (
	"bufio"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/config"
	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/suggestion"
)

// ImportMode controls what happens when an imported ID is already stored.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // abort the whole import
	ImportModeReplace ImportMode = "replace" // overwrite the stored suggestion
	ImportModeRename  ImportMode = "rename"  // store under a fresh ID
)

// maxImportLine bounds one JSONL record.
const maxImportLine = 16 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one line that was not imported.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line int
	s    *suggestion.Suggestion
}

// Import loads suggestions from a JSONL file written by Export.
//
// In error mode nothing is stored unless every line parses and no ID
// collides. The other modes skip bad lines and report them in Errors.
func Import(database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	switch input.Mode {
	case ImportModeError, ImportModeReplace, ImportModeRename:
	default:
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename")
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}
	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		var fernErr *errors.FernError
		if stderrors.As(err, &fernErr) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors := parseExportFile(file)

	if input.Mode == ImportModeError {
		if len(parseErrors) > 0 {
			return &ImportOutput{Errors: parseErrors}, nil
		}
		return importAtomic(database, records)
	}

	out := &ImportOutput{
		Skipped: len(parseErrors),
		Errors:  append([]ImportError{}, parseErrors...),
	}
	for _, rec := range records {
		if err := importOne(database, rec, input.Mode); err != nil {
			ie := ImportError{Line: rec.line, ID: rec.s.ID, Code: string(errors.ErrInternal), Message: err.Error()}
			var fernErr *errors.FernError
			if stderrors.As(err, &fernErr) {
				ie.Code, ie.Message = string(fernErr.Code), fernErr.Message
			}
			out.Errors = append(out.Errors, ie)
			out.Skipped++
			continue
		}
		out.Imported++
	}
	return out, nil
}

// parseExportFile reads every record line, skipping the header.
func parseExportFile(r io.Reader) ([]importRecord, []ImportError) {
	var (
		records     []importRecord
		parseErrors []ImportError
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec suggestion.ExportRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if rec.FernExport {
			continue
		}
		if rec.ID == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: "missing id field",
			})
			continue
		}
		if _, ok := blockctx.Parse(rec.Context); !ok {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      rec.ID,
				Code:    "INVALID_RECORD",
				Message: fmt.Sprintf("unknown context %q", rec.Context),
			})
			continue
		}

		records = append(records, importRecord{line: lineNum, s: rec.ToSuggestion()})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum + 1,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}

// importAtomic stores every record in one transaction, rolling back on the
// first ID collision.
func importAtomic(database *sql.DB, records []importRecord) (*ImportOutput, error) {
	tx, err := database.Begin()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range records {
		if err := db.InsertWith(tx, rec.s); err != nil {
			if err == db.ErrUniqueConstraint {
				return &ImportOutput{Errors: []ImportError{{
					Line:    rec.line,
					ID:      rec.s.ID,
					Code:    "ID_COLLISION",
					Message: fmt.Sprintf("suggestion with id %q already exists", rec.s.ID),
				}}}, nil
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &ImportOutput{Imported: len(records), Errors: []ImportError{}}, nil
}

func importOne(database *sql.DB, rec importRecord, mode ImportMode) error {
	if mode == ImportModeReplace {
		return db.Replace(database, rec.s)
	}

	exists, err := db.Exists(database, rec.s.ID)
	if err != nil {
		return err
	}
	if exists {
		id, err := suggestion.NewID()
		if err != nil {
			return errors.NewInternal(err)
		}
		rec.s.ID = id
	}
	return db.Insert(database, rec.s)
}
