package orchestrator

import (
	"context"
	"fmt"

	"dreamlog-backend/internal/models"
)

// outcome is what a mode handler contributes to the bundle.
type outcome struct {
	story    string
	analysis *Analysis
	images   []models.SceneImage
	failures []models.StepFailure
}

func (r outcome) apply(b *models.Bundle) {
	b.Story = r.story
	if r.analysis != nil {
		b.Analysis = r.analysis.Text
		b.Themes = r.analysis.Themes
		b.Emotions = r.analysis.Emotions
	}
	b.Images = r.images
	b.Failures = append(b.Failures, r.failures...)
}

type modeHandler interface {
	run(ctx context.Context, o *Orchestrator, clientKey, text string, sub models.Submission) outcome
}

var modeHandlers = map[models.Mode]modeHandler{
	models.ModeStory:    storyMode{},
	models.ModeAnalysis: analysisMode{},
	models.ModeNone:     noneMode{},
}

func handlerFor(mode models.Mode) modeHandler {
	if h, ok := modeHandlers[mode]; ok {
		return h
	}
	return storyMode{}
}

type storyMode struct{}

func (storyMode) run(ctx context.Context, o *Orchestrator, clientKey, text string, sub models.Submission) outcome {
	var out outcome

	story, err := o.Story(ctx, clientKey, text, sub.Tone, sub.Length)
	if err != nil {
		out.failures = append(out.failures, stepFailure(models.StepStory, err))
		return out
	}
	out.story = story

	if !sub.Images {
		return out
	}

	images, err := o.Illustrate(ctx, clientKey, story, sub.Tone)
	out.images = images
	if err != nil {
		out.failures = append(out.failures, stepFailure(models.StepImages, err))
		return out
	}
	for _, img := range images {
		if img.Failed {
			out.failures = append(out.failures, models.StepFailure{
				Step:    models.StepImages,
				Reason:  img.Reason,
				Message: fmt.Sprintf("%s (%s) could not be generated", img.Scene, img.Description),
			})
		}
	}
	return out
}

type analysisMode struct{}

func (analysisMode) run(ctx context.Context, o *Orchestrator, clientKey, text string, _ models.Submission) outcome {
	var out outcome
	analysis, err := o.Analyze(ctx, clientKey, text)
	if err != nil {
		out.failures = append(out.failures, stepFailure(models.StepAnalysis, err))
		return out
	}
	out.analysis = analysis
	return out
}

// noneMode only carries the submission forward; the title step still runs.
type noneMode struct{}

func (noneMode) run(context.Context, *Orchestrator, string, string, models.Submission) outcome {
	return outcome{}
}
