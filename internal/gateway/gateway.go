// Package gateway adapts the external model providers behind one narrow
// interface with a single failure contract.
package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/models"
)

const (
	// MaxAudioBytes caps uploaded recordings.
	MaxAudioBytes = 10 << 20
	// MaxTextBytes caps the serialized size of any text request.
	MaxTextBytes = 10 << 20
)

type TranscribeRequest struct {
	Audio    []byte
	Filename string
	Language string
}

type TitleRequest struct {
	DreamText string `json:"dreamText"`
}

type StoryRequest struct {
	DreamText string        `json:"dreamText"`
	Tone      models.Tone   `json:"tone"`
	Length    models.Length `json:"length"`
}

type AnalysisRequest struct {
	DreamText string `json:"dreamText"`
}

type ImageRequest struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type SpeechRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// Gateway is one method per provider capability. Every error it returns is
// an *apperr.Error with reason upstream_error, not_configured,
// invalid_input or timeout.
type Gateway interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (string, error)
	GenerateTitle(ctx context.Context, req TitleRequest) (string, error)
	GenerateStory(ctx context.Context, req StoryRequest) (string, error)
	GenerateAnalysis(ctx context.Context, req AnalysisRequest) (string, error)
	// GenerateImage returns the URL of a single image.
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
	// SynthesizeSpeech returns encoded audio bytes.
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

func checkAudio(op string, audio []byte) error {
	if len(audio) == 0 {
		return apperr.Newf(apperr.InvalidInput, op, "no audio provided")
	}
	if len(audio) > MaxAudioBytes {
		return apperr.Newf(apperr.InvalidInput, op, "audio is %d bytes, limit is %d", len(audio), MaxAudioBytes)
	}
	return nil
}

// checkText rejects empty text and requests whose JSON encoding exceeds
// MaxTextBytes.
func checkText(op, text string, req interface{}) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Newf(apperr.InvalidInput, op, "text is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return apperr.New(apperr.InvalidInput, op, err)
	}
	if len(body) > MaxTextBytes {
		return apperr.Newf(apperr.InvalidInput, op, "request is %d bytes, limit is %d", len(body), MaxTextBytes)
	}
	return nil
}
