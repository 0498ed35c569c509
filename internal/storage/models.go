package storage

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key (account mail) is taken.
	ErrDuplicate = errors.New("already exists")
)

type Account struct {
	UserID       int
	ProfileID    int
	Mail         string
	PasswordHash string
	Status       string
	Locale       string
	Timezone     string
	CreatedAt    time.Time
}

// ProfileRecord is a stored profile: its ids and the JSON value of every
// field that is set.
type ProfileRecord struct {
	ProfileID int
	UserID    int
	Fields    map[string]json.RawMessage
	UpdatedAt time.Time
}
