package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/config"
	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/suggestion"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path         string // optional, default: ~/.fern/exports/<context>-<timestamp>.jsonl
	Context      string // optional context name filter
	AcceptedOnly bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes stored suggestions, oldest first, to a JSONL file. The file
// starts with a header line. It is written to a temporary name and renamed
// into place, so an existing file survives a failed export.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	if input.Context != "" {
		if _, ok := blockctx.Parse(input.Context); !ok {
			return nil, errors.NewInvalidRequest("unknown context: " + input.Context)
		}
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		dir, err := DefaultExportsDir()
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, defaultExportName(input.Context, now))
	}

	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)

	header := suggestion.ExportRecord{
		FernExport:    true,
		SchemaVersion: suggestion.ExportSchemaVersion,
		ExportedAt:    now.Unix(),
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}

	rows, err := db.StreamForExport(ctx, database, db.ListFilters{
		Context:      input.Context,
		AcceptedOnly: input.AcceptedOnly,
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("export")
		}

		s, err := db.ScanSuggestionFromRows(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := enc.Encode(suggestion.ToExportRecord(s)); err != nil {
			return nil, errors.NewInternal(err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Windows cannot rename an open file.
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted since validation.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: now.Unix(),
	}, nil
}

// defaultExportName is <context>-<timestamp>.jsonl, or all-<timestamp>.jsonl
// without a context filter.
func defaultExportName(contextName string, now time.Time) string {
	name := "all"
	if contextName != "" {
		name = SanitizeForFilename(contextName)
	}
	return fmt.Sprintf("%s-%s.jsonl", name, now.Format("2006-01-02T150405"))
}
