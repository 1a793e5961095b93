package models

import (
	"fmt"
	"strings"

	"dreamlog-backend/internal/apperr"
)

type Tone string

const (
	ToneWhimsical   Tone = "whimsical"
	ToneMystical    Tone = "mystical"
	ToneAdventurous Tone = "adventurous"
	ToneGentle      Tone = "gentle"
	ToneMysterious  Tone = "mysterious"
	ToneComedy      Tone = "comedy"
)

var Tones = []Tone{ToneWhimsical, ToneMystical, ToneAdventurous, ToneGentle, ToneMysterious, ToneComedy}

// ParseTone accepts any case; empty input yields the whimsical default.
func ParseTone(s string) (Tone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ToneWhimsical, nil
	}
	for _, t := range Tones {
		if string(t) == s {
			return t, nil
		}
	}
	return "", apperr.Newf(apperr.InvalidInput, "models.ParseTone", "unknown tone %q", s)
}

type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

var Lengths = []Length{LengthShort, LengthMedium, LengthLong}

func ParseLength(s string) (Length, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LengthMedium, nil
	}
	for _, l := range Lengths {
		if string(l) == s {
			return l, nil
		}
	}
	return "", apperr.Newf(apperr.InvalidInput, "models.ParseLength", "unknown length %q", s)
}

// Mode selects the primary generation step of a run.
type Mode string

const (
	ModeStory    Mode = "story"
	ModeAnalysis Mode = "analysis"
	ModeNone     Mode = "none"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStory:
		return ModeStory, nil
	case ModeAnalysis:
		return ModeAnalysis, nil
	case ModeNone:
		return ModeNone, nil
	}
	return "", apperr.Newf(apperr.InvalidInput, "models.ParseMode", "unknown generation mode %q", s)
}

// Submission is one user request to generate artifacts from a dream.
type Submission struct {
	Text          string
	Audio         []byte
	AudioFilename string
	AudioMIME     string

	// Title, when already known, suppresses the title step.
	Title string

	Tone   Tone
	Length Length
	Mode   Mode
	Images bool
}

// HasInput reports whether there is text or audio to work from.
func (s Submission) HasInput() bool {
	return strings.TrimSpace(s.Text) != "" || len(s.Audio) > 0
}

// Normalize fills defaults for empty enums and rejects unknown ones.
func (s *Submission) Normalize() error {
	var err error
	if s.Tone, err = ParseTone(string(s.Tone)); err != nil {
		return err
	}
	if s.Length, err = ParseLength(string(s.Length)); err != nil {
		return err
	}
	if s.Mode, err = ParseMode(string(s.Mode)); err != nil {
		return err
	}
	return nil
}

// SceneImage is one of the three story illustrations. URL is nil when the
// scene failed.
type SceneImage struct {
	Index       int           `json:"index"`
	Scene       string        `json:"scene"`
	Description string        `json:"description"`
	Segment     string        `json:"segment,omitempty"`
	Prompt      string        `json:"prompt,omitempty"`
	URL         *string       `json:"url"`
	Failed      bool          `json:"error,omitempty"`
	Reason      apperr.Reason `json:"reason,omitempty"`
}

func (s SceneImage) String() string {
	if s.Failed {
		return fmt.Sprintf("%s (%s): failed (%s)", s.Scene, s.Description, s.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", s.Scene, s.Description, *s.URL)
}

// Step names a unit of work inside a generation run.
type Step string

const (
	StepTranscribe Step = "transcribe"
	StepTitle      Step = "title"
	StepStory      Step = "story"
	StepAnalysis   Step = "analysis"
	StepImages     Step = "images"
)

type StepFailure struct {
	Step    Step          `json:"step"`
	Reason  apperr.Reason `json:"reason"`
	Message string        `json:"message"`
}

// Bundle is the result of one generation run. Fields stay empty when the
// step was not requested or failed; failures are listed in Failures.
type Bundle struct {
	Text        string        `json:"dreamText"`
	Transcribed bool          `json:"transcribed"`
	Mode        Mode          `json:"mode"`
	Tone        Tone          `json:"tone"`
	Length      Length        `json:"length"`
	Title       string        `json:"title,omitempty"`
	Story       string        `json:"story,omitempty"`
	Analysis    string        `json:"analysis,omitempty"`
	Themes      []string      `json:"themes,omitempty"`
	Emotions    []string      `json:"emotions,omitempty"`
	Images      []SceneImage  `json:"images,omitempty"`
	Failures    []StepFailure `json:"failures,omitempty"`
}

// Failed reports whether step is listed among the bundle's failures.
func (b *Bundle) Failed(step Step) bool {
	for _, f := range b.Failures {
		if f.Step == step {
			return true
		}
	}
	return false
}
