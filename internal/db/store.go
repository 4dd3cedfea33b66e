package db

import (
	"database/sql"

	"github.com/hpungsan/fern/internal/suggestion"
)

// Store binds the suggestion queries to one database handle.
type Store struct {
	DB *sql.DB
}

// NewStore returns a Store for db.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Lookup returns the newest suggestion stored under key, or nil on a miss.
func (s *Store) Lookup(key string) (*suggestion.Suggestion, error) {
	return Lookup(s.DB, key)
}

// Insert stores sg.
func (s *Store) Insert(sg *suggestion.Suggestion) error {
	return Insert(s.DB, sg)
}

// MarkAccepted records that suggestion id was accepted.
func (s *Store) MarkAccepted(id string) error {
	return MarkAccepted(s.DB, id)
}
