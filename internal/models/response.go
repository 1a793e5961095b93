package models

import (
	"time"

	"dreamlog-backend/internal/apperr"
)

type ErrorResponse struct {
	Error   string        `json:"error"`
	Reason  apperr.Reason `json:"reason,omitempty"`
	Message string        `json:"message,omitempty"`
}

type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	APIs      map[string]bool `json:"apis"`
}

type TranscribeResponse struct {
	Text string `json:"text"`
}

type TitleResponse struct {
	Title string `json:"title"`
}

type StoryResponse struct {
	Story string `json:"story"`
}

type AnalysisResponse struct {
	Analysis string   `json:"analysis"`
	Themes   []string `json:"themes"`
	Emotions []string `json:"emotions"`
}

type ImagesResponse struct {
	Images []SceneImage `json:"images"`
}

// DreamJSON is a stored dream in the remote store's native shape.
type DreamJSON struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	Title         string       `json:"title"`
	DreamText     string       `json:"dreamText"`
	Story         string       `json:"story,omitempty"`
	Analysis      string       `json:"analysis,omitempty"`
	StoryTone     string       `json:"storyTone"`
	StoryLength   string       `json:"storyLength"`
	HasAudio      bool         `json:"hasAudio"`
	AudioDuration *float64     `json:"audioDuration,omitempty"`
	Tags          []string     `json:"tags"`
	Images        []SceneImage `json:"images"`
	IsFavorite    bool         `json:"isFavorite"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

type DreamResponse struct {
	Dream DreamJSON `json:"dream"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type DreamListResponse struct {
	Dreams     []DreamJSON `json:"dreams"`
	Pagination Pagination  `json:"pagination"`
}
