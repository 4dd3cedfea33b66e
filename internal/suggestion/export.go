package suggestion

// ExportSchemaVersion is written in the header line of every export file.
const ExportSchemaVersion = "1.0"

// ExportRecord is one line of a JSONL export file. The first line of a file
// is a header with FernExport set and no suggestion fields.
type ExportRecord struct {
	FernExport    bool   `json:"_fern_export,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	ID              string `json:"id,omitempty"`
	Key             string `json:"cache_key,omitempty"`
	Model           string `json:"model,omitempty"`
	Context         string `json:"context,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	Suffix          string `json:"suffix,omitempty"`
	Completion      string `json:"completion,omitempty"`
	CompletionChars int    `json:"completion_chars,omitempty"` // ignored on import, recomputed
	CreatedAt       int64  `json:"created_at,omitempty"`
	AcceptedAt      *int64 `json:"accepted_at,omitempty"`
}

// ToSuggestion converts an ExportRecord to a Suggestion, recomputing derived fields.
func (r *ExportRecord) ToSuggestion() *Suggestion {
	return &Suggestion{
		ID:              r.ID,
		Key:             r.Key,
		Model:           r.Model,
		Context:         r.Context,
		Prefix:          r.Prefix,
		Suffix:          r.Suffix,
		Completion:      r.Completion,
		CompletionChars: CountChars(r.Completion),
		CreatedAt:       r.CreatedAt,
		AcceptedAt:      r.AcceptedAt,
	}
}

// ToExportRecord converts a Suggestion to an ExportRecord.
func ToExportRecord(s *Suggestion) *ExportRecord {
	return &ExportRecord{
		ID:              s.ID,
		Key:             s.Key,
		Model:           s.Model,
		Context:         s.Context,
		Prefix:          s.Prefix,
		Suffix:          s.Suffix,
		Completion:      s.Completion,
		CompletionChars: s.CompletionChars,
		CreatedAt:       s.CreatedAt,
		AcceptedAt:      s.AcceptedAt,
	}
}
