package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Dream is a row of the dreams table owned by an authenticated account.
type Dream struct {
	ID            uuid.UUID
	UserID        string
	Title         string
	DreamText     string
	Story         string
	Analysis      string
	StoryTone     string
	StoryLength   string
	HasAudio      bool
	AudioDuration sql.NullFloat64
	Tags          []string
	Images        json.RawMessage
	IsFavorite    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DreamChanges is a partial update of a Dream row; nil fields are kept.
type DreamChanges struct {
	Title       *string
	DreamText   *string
	Story       *string
	Analysis    *string
	StoryTone   *string
	StoryLength *string
	Tags        *[]string
	Images      json.RawMessage
	IsFavorite  *bool
}

// DreamFilter is the server-side list query.
type DreamFilter struct {
	UserID        string
	Search        string
	Tags          []string
	From          *time.Time
	To            *time.Time
	FavoritesOnly bool
	Limit         int
	Offset        int
}
