package models

import "time"

const UntitledDream = "Untitled Dream"

// DreamRecord is the persisted dream as the client sees it, independent of
// which backend holds it.
type DreamRecord struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId,omitempty"`
	OriginalDream string       `json:"originalDream"`
	Title         string       `json:"title"`
	Story         string       `json:"story,omitempty"`
	Analysis      string       `json:"analysis,omitempty"`
	Tone          Tone         `json:"tone"`
	Length        Length       `json:"length"`
	Images        []SceneImage `json:"images,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	Favorite      bool         `json:"favorite"`
	HasAudio      bool         `json:"hasAudio"`
	AudioSeconds  float64      `json:"audioDuration,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt,omitempty"`
}

// RecordFromBundle builds an unsaved record from a generation result.
func RecordFromBundle(b *Bundle, hasAudio bool) DreamRecord {
	tags := append(append([]string{}, b.Themes...), b.Emotions...)
	return DreamRecord{
		OriginalDream: b.Text,
		Title:         b.Title,
		Story:         b.Story,
		Analysis:      b.Analysis,
		Tone:          b.Tone,
		Length:        b.Length,
		Images:        b.Images,
		Tags:          tags,
		HasAudio:      hasAudio || b.Transcribed,
	}
}

// RecordPatch carries a partial update; nil fields are left untouched.
type RecordPatch struct {
	Title         *string       `json:"title,omitempty"`
	OriginalDream *string       `json:"originalDream,omitempty"`
	Story         *string       `json:"story,omitempty"`
	Analysis      *string       `json:"analysis,omitempty"`
	Tone          *Tone         `json:"tone,omitempty"`
	Length        *Length       `json:"length,omitempty"`
	Images        *[]SceneImage `json:"images,omitempty"`
	Tags          *[]string     `json:"tags,omitempty"`
	Favorite      *bool         `json:"favorite,omitempty"`
}

// Apply writes every set field of p onto r.
func (p RecordPatch) Apply(r *DreamRecord) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.OriginalDream != nil {
		r.OriginalDream = *p.OriginalDream
	}
	if p.Story != nil {
		r.Story = *p.Story
	}
	if p.Analysis != nil {
		r.Analysis = *p.Analysis
	}
	if p.Tone != nil {
		r.Tone = *p.Tone
	}
	if p.Length != nil {
		r.Length = *p.Length
	}
	if p.Images != nil {
		r.Images = *p.Images
	}
	if p.Tags != nil {
		r.Tags = *p.Tags
	}
	if p.Favorite != nil {
		r.Favorite = *p.Favorite
	}
}

func (p RecordPatch) Empty() bool {
	return p.Title == nil && p.OriginalDream == nil && p.Story == nil && p.Analysis == nil &&
		p.Tone == nil && p.Length == nil && p.Images == nil && p.Tags == nil && p.Favorite == nil
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ListQuery filters and paginates dream listings.
type ListQuery struct {
	Page          int
	Limit         int
	Search        string
	Tags          []string
	From          *time.Time
	To            *time.Time
	FavoritesOnly bool
}

// Normalized clamps paging to sane bounds.
func (q ListQuery) Normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

func (q ListQuery) Offset() int {
	n := q.Normalized()
	return (n.Page - 1) * n.Limit
}

type RecordPage struct {
	Records []DreamRecord `json:"dreams"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	Total   int           `json:"total"`
}
