package models

// GenerateRequest is the JSON form of POST /api/generate. Audio arrives as a
// multipart file instead.
type GenerateRequest struct {
	DreamText string `json:"dreamText" form:"dreamText"`
	Title     string `json:"title,omitempty" form:"title"`
	Tone      string `json:"tone,omitempty" form:"tone" example:"mystical"`
	Length    string `json:"length,omitempty" form:"length" example:"short"`
	Mode      string `json:"mode,omitempty" form:"mode" example:"story"`
	Images    bool   `json:"images" form:"images"`
}

type DreamTextRequest struct {
	DreamText string `json:"dreamText" binding:"required"`
}

type StoryRequest struct {
	DreamText string `json:"dreamText" binding:"required"`
	Tone      string `json:"tone,omitempty"`
	Length    string `json:"length,omitempty"`
}

type ImagesRequest struct {
	Story string `json:"story" binding:"required"`
	Tone  string `json:"tone,omitempty"`
}

type SpeechRequest struct {
	Text  string  `json:"text" binding:"required"`
	Voice string  `json:"voice,omitempty" example:"alloy"`
	Speed float64 `json:"speed,omitempty" example:"1.0"`
}

// DreamPayload is the remote store's native dream shape used for create and
// partial update. Absent fields are left untouched on update.
type DreamPayload struct {
	Title         *string       `json:"title,omitempty"`
	DreamText     *string       `json:"dreamText,omitempty"`
	Story         *string       `json:"story,omitempty"`
	Analysis      *string       `json:"analysis,omitempty"`
	StoryTone     *string       `json:"storyTone,omitempty"`
	StoryLength   *string       `json:"storyLength,omitempty"`
	HasAudio      *bool         `json:"hasAudio,omitempty"`
	AudioDuration *float64      `json:"audioDuration,omitempty"`
	Tags          *[]string     `json:"tags,omitempty"`
	Images        *[]SceneImage `json:"images,omitempty"`
	IsFavorite    *bool         `json:"isFavorite,omitempty"`
}
