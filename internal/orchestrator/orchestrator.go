// Package orchestrator turns one dream submission into a set of generated
// artifacts, admitting every model call against the rate budgets and
// degrading per step instead of failing the whole run.
package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/gateway"
	"dreamlog-backend/internal/models"
	"dreamlog-backend/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Orchestrator struct {
	gateway gateway.Gateway
	budgets *ratelimit.Tracker
	logger  *zap.Logger
}

// Analysis is a dream analysis with the tags derived from it.
type Analysis struct {
	Text     string
	Themes   []string
	Emotions []string
}

// New builds an orchestrator. A nil tracker admits everything.
func New(gw gateway.Gateway, budgets *ratelimit.Tracker, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if budgets == nil {
		budgets = ratelimit.NewTracker(map[ratelimit.Capability]ratelimit.Budget{}, nil, logger)
	}
	return &Orchestrator{
		gateway: gw,
		budgets: budgets,
		logger:  logger.With(zap.String("component", "orchestrator")),
	}
}

// Run executes a full generation. It only returns an error for fatal
// conditions: invalid input, a rejected or failed transcription. Every other
// step failure is recorded in the bundle.
func (o *Orchestrator) Run(ctx context.Context, clientKey string, sub models.Submission) (*models.Bundle, error) {
	const op = "orchestrator.Run"
	start := time.Now()

	if !sub.HasInput() {
		return nil, apperr.Newf(apperr.InvalidInput, op, "dream text or audio is required")
	}
	if err := sub.Normalize(); err != nil {
		return nil, err
	}

	bundle := &models.Bundle{
		Text:   strings.TrimSpace(sub.Text),
		Mode:   sub.Mode,
		Tone:   sub.Tone,
		Length: sub.Length,
		Title:  strings.TrimSpace(sub.Title),
	}

	if bundle.Text == "" {
		text, err := o.Transcribe(ctx, clientKey, sub.Audio, sub.AudioFilename, sub.AudioMIME)
		if err != nil {
			o.logger.Warn("generation aborted",
				zap.String("client", clientKey),
				zap.String("step", string(models.StepTranscribe)),
				zap.Error(err),
			)
			return nil, err
		}
		bundle.Text = text
		bundle.Transcribed = true
	}

	var (
		g        errgroup.Group
		title    string
		titleErr error
		result   outcome
	)
	if bundle.Title == "" {
		g.Go(func() error {
			title, titleErr = o.Title(ctx, clientKey, bundle.Text)
			return nil
		})
	}
	g.Go(func() error {
		result = handlerFor(sub.Mode).run(ctx, o, clientKey, bundle.Text, sub)
		return nil
	})
	_ = g.Wait()

	if titleErr != nil {
		bundle.Failures = append(bundle.Failures, stepFailure(models.StepTitle, titleErr))
	} else if title != "" {
		bundle.Title = title
	}
	result.apply(bundle)

	o.logger.Info("generation complete",
		zap.String("client", clientKey),
		zap.String("mode", string(bundle.Mode)),
		zap.Bool("transcribed", bundle.Transcribed),
		zap.Int("failures", len(bundle.Failures)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return bundle, nil
}

// Transcribe converts a recording to text. Any gateway failure other than
// rejected input becomes transcription_failed.
func (o *Orchestrator) Transcribe(ctx context.Context, clientKey string, audio []byte, filename, mimeType string) (string, error) {
	const op = "orchestrator.Transcribe"
	if err := o.budgets.Require(ctx, ratelimit.Speech, clientKey); err != nil {
		return "", err
	}
	text, err := o.gateway.Transcribe(ctx, gateway.TranscribeRequest{Audio: audio, Filename: uploadName(filename, mimeType)})
	if err != nil {
		if apperr.ReasonOf(err) == apperr.InvalidInput {
			return "", err
		}
		return "", apperr.New(apperr.TranscriptionFailed, op, err)
	}
	return text, nil
}

var audioExtensions = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
}

// uploadName gives the recording a file extension the transcription model
// recognizes. Browser recordings often arrive as "blob" with only a MIME type.
func uploadName(filename, mimeType string) string {
	if filepath.Ext(filename) != "" {
		return filename
	}
	base := strings.TrimSpace(mimeType)
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	ext, ok := audioExtensions[strings.ToLower(base)]
	if !ok {
		return filename
	}
	if filename == "" {
		filename = "recording"
	}
	return filename + ext
}

func (o *Orchestrator) Title(ctx context.Context, clientKey, dreamText string) (string, error) {
	if err := o.budgets.Require(ctx, ratelimit.Story, clientKey); err != nil {
		return "", err
	}
	return o.gateway.GenerateTitle(ctx, gateway.TitleRequest{DreamText: dreamText})
}

func (o *Orchestrator) Story(ctx context.Context, clientKey, dreamText string, tone models.Tone, length models.Length) (string, error) {
	if err := o.budgets.Require(ctx, ratelimit.Story, clientKey); err != nil {
		return "", err
	}
	return o.gateway.GenerateStory(ctx, gateway.StoryRequest{DreamText: dreamText, Tone: tone, Length: length})
}

func (o *Orchestrator) Analyze(ctx context.Context, clientKey, dreamText string) (*Analysis, error) {
	if err := o.budgets.Require(ctx, ratelimit.Analysis, clientKey); err != nil {
		return nil, err
	}
	text, err := o.gateway.GenerateAnalysis(ctx, gateway.AnalysisRequest{DreamText: dreamText})
	if err != nil {
		return nil, err
	}
	themes, emotions := deriveTags(text)
	return &Analysis{Text: text, Themes: themes, Emotions: emotions}, nil
}

// Illustrate renders the three scenes of a story concurrently and waits for
// all of them. It always returns three entries once the story is non-empty;
// the error is only set when the image budget rejected the batch, in which
// case every entry is marked failed.
func (o *Orchestrator) Illustrate(ctx context.Context, clientKey, story string, tone models.Tone) ([]models.SceneImage, error) {
	const op = "orchestrator.Illustrate"
	if strings.TrimSpace(story) == "" {
		return nil, apperr.Newf(apperr.InvalidInput, op, "story text is required")
	}

	prompts := scenePrompts(story, tone)
	images := prompts[:]

	if err := o.budgets.Require(ctx, ratelimit.Image, clientKey); err != nil {
		for i := range images {
			markFailed(&images[i], err)
		}
		return images, err
	}

	var g errgroup.Group
	for i := range images {
		i := i
		g.Go(func() error {
			url, err := o.gateway.GenerateImage(ctx, gateway.ImageRequest{Prompt: images[i].Prompt})
			if err != nil {
				o.logger.Warn("scene image failed",
					zap.String("scene", images[i].Scene),
					zap.Error(err),
				)
				markFailed(&images[i], err)
				return nil
			}
			images[i].URL = &url
			return nil
		})
	}
	_ = g.Wait()
	return images, nil
}

func (o *Orchestrator) Narrate(ctx context.Context, clientKey string, req gateway.SpeechRequest) ([]byte, error) {
	if err := o.budgets.Require(ctx, ratelimit.Speech, clientKey); err != nil {
		return nil, err
	}
	return o.gateway.SynthesizeSpeech(ctx, req)
}

func markFailed(img *models.SceneImage, err error) {
	img.URL = nil
	img.Failed = true
	img.Reason = apperr.ReasonOf(err)
}

func stepFailure(step models.Step, err error) models.StepFailure {
	return models.StepFailure{Step: step, Reason: apperr.ReasonOf(err), Message: err.Error()}
}
