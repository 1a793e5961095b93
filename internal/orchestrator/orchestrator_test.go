package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/gateway"
	"dreamlog-backend/internal/models"
	"dreamlog-backend/internal/orchestrator"
	"dreamlog-backend/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const riddleDream = "I flew over a purple forest and met a fox who spoke in riddles."

const foxStory = "Once upon a time a dreamer soared above a violet wood. " +
	"The trees hummed old songs! A silver fox waited in a clearing. " +
	"It spoke only in riddles. The dreamer answered each one? " +
	"At last the fox bowed and the forest glowed."

type fakeGateway struct {
	transcribeCalls atomic.Int32
	titleCalls      atomic.Int32
	storyCalls      atomic.Int32
	analysisCalls   atomic.Int32
	imageCalls      atomic.Int32
	speechCalls     atomic.Int32

	transcribeErr error
	titleErr      error
	storyErr      error
	analysis      string
	imageFn       func(prompt string) (string, error)
	imagePrompts  chan string

	uploadName string
}

func (f *fakeGateway) Transcribe(ctx context.Context, req gateway.TranscribeRequest) (string, error) {
	f.transcribeCalls.Add(1)
	f.uploadName = req.Filename
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return riddleDream, nil
}

func (f *fakeGateway) GenerateTitle(ctx context.Context, req gateway.TitleRequest) (string, error) {
	f.titleCalls.Add(1)
	if f.titleErr != nil {
		return "", f.titleErr
	}
	return "The Riddling Fox", nil
}

func (f *fakeGateway) GenerateStory(ctx context.Context, req gateway.StoryRequest) (string, error) {
	f.storyCalls.Add(1)
	if f.storyErr != nil {
		return "", f.storyErr
	}
	return foxStory, nil
}

func (f *fakeGateway) GenerateAnalysis(ctx context.Context, req gateway.AnalysisRequest) (string, error) {
	f.analysisCalls.Add(1)
	return f.analysis, nil
}

func (f *fakeGateway) GenerateImage(ctx context.Context, req gateway.ImageRequest) (string, error) {
	f.imageCalls.Add(1)
	if f.imagePrompts != nil {
		f.imagePrompts <- req.Prompt
	}
	if f.imageFn != nil {
		return f.imageFn(req.Prompt)
	}
	return "https://images.example/scene.png", nil
}

func (f *fakeGateway) SynthesizeSpeech(ctx context.Context, req gateway.SpeechRequest) ([]byte, error) {
	f.speechCalls.Add(1)
	return []byte("mp3"), nil
}

func storySubmission() models.Submission {
	return models.Submission{
		Text:   riddleDream,
		Tone:   models.ToneMystical,
		Length: models.LengthShort,
		Mode:   models.ModeStory,
		Images: true,
	}
}

func TestRun_EndToEndStoryWithImages(t *testing.T) {
	gw := &fakeGateway{}
	o := orchestrator.New(gw, nil, nil)

	bundle, err := o.Run(context.Background(), "10.0.0.1", storySubmission())

	require.NoError(t, err)
	assert.Equal(t, "The Riddling Fox", bundle.Title)
	assert.Equal(t, foxStory, bundle.Story)
	assert.Equal(t, models.ToneMystical, bundle.Tone)
	require.Len(t, bundle.Images, 3)
	for i, img := range bundle.Images {
		assert.Equal(t, i+1, img.Index)
		assert.False(t, img.Failed)
		require.NotNil(t, img.URL)
		assert.Contains(t, img.Prompt, "Do not include any text, words, letters, or writing")
	}
	assert.Equal(t, "Scene 1", bundle.Images[0].Scene)
	assert.Equal(t, "End of the story", bundle.Images[2].Description)
	assert.Contains(t, bundle.Images[0].Prompt, "wide establishing shot")
	assert.Contains(t, bundle.Images[1].Prompt, "dynamic mid-shot")
	assert.Contains(t, bundle.Images[2].Prompt, "resolving full-scene shot")
	assert.Contains(t, bundle.Images[0].Segment, "violet wood")
	assert.Contains(t, bundle.Images[2].Segment, "forest glowed")
	assert.Empty(t, bundle.Failures)
	assert.EqualValues(t, 3, gw.imageCalls.Load())
}

func TestRun_OneSceneFailsOthersSucceed(t *testing.T) {
	gw := &fakeGateway{
		imageFn: func(prompt string) (string, error) {
			if strings.Contains(prompt, "dynamic mid-shot") {
				return "", apperr.Newf(apperr.UpstreamError, "test", "content policy")
			}
			return "https://images.example/ok.png", nil
		},
	}
	o := orchestrator.New(gw, nil, nil)

	bundle, err := o.Run(context.Background(), "10.0.0.1", storySubmission())

	require.NoError(t, err)
	assert.NotEmpty(t, bundle.Story)
	require.Len(t, bundle.Images, 3)
	assert.NotNil(t, bundle.Images[0].URL)
	assert.Nil(t, bundle.Images[1].URL)
	assert.True(t, bundle.Images[1].Failed)
	assert.Equal(t, apperr.UpstreamError, bundle.Images[1].Reason)
	assert.NotNil(t, bundle.Images[2].URL)
	require.Len(t, bundle.Failures, 1)
	assert.Equal(t, models.StepImages, bundle.Failures[0].Step)
}

func TestRun_ScenesAreDispatchedConcurrently(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 3)
	gw := &fakeGateway{
		imagePrompts: started,
		imageFn: func(string) (string, error) {
			<-release
			return "https://images.example/x.png", nil
		},
	}
	o := orchestrator.New(gw, nil, nil)

	done := make(chan *models.Bundle)
	go func() {
		b, _ := o.Run(context.Background(), "k", storySubmission())
		done <- b
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 3 scenes started before any finished", i)
		}
	}
	close(release)
	bundle := <-done
	assert.Len(t, bundle.Images, 3)
}

func TestRun_TranscriptionFailureIsFatal(t *testing.T) {
	gw := &fakeGateway{transcribeErr: apperr.Newf(apperr.UpstreamError, "test", "whisper down")}
	o := orchestrator.New(gw, nil, nil)
	sub := storySubmission()
	sub.Text = ""
	sub.Audio = []byte("RIFF")

	bundle, err := o.Run(context.Background(), "k", sub)

	require.Error(t, err)
	assert.Nil(t, bundle)
	assert.Equal(t, apperr.TranscriptionFailed, apperr.ReasonOf(err))
	assert.True(t, errors.Is(err, apperr.E(apperr.TranscriptionFailed)))
	assert.Zero(t, gw.titleCalls.Load())
	assert.Zero(t, gw.storyCalls.Load())
	assert.Zero(t, gw.analysisCalls.Load())
	assert.Zero(t, gw.imageCalls.Load())
}

func TestRun_TranscribedTextFeedsGeneration(t *testing.T) {
	gw := &fakeGateway{}
	o := orchestrator.New(gw, nil, nil)
	sub := storySubmission()
	sub.Text = ""
	sub.Audio = []byte("RIFF")
	sub.Images = false

	bundle, err := o.Run(context.Background(), "k", sub)

	require.NoError(t, err)
	assert.True(t, bundle.Transcribed)
	assert.Equal(t, riddleDream, bundle.Text)
	assert.Empty(t, bundle.Images)
	assert.Zero(t, gw.imageCalls.Load())
}

func TestTranscribe_NamesUploadFromMIMEType(t *testing.T) {
	cases := []struct {
		filename, mime, want string
	}{
		{"blob", "audio/webm;codecs=opus", "blob.webm"},
		{"", "audio/mpeg", "recording.mp3"},
		{"dream.m4a", "audio/webm", "dream.m4a"},
		{"blob", "application/octet-stream", "blob"},
	}
	for _, tc := range cases {
		gw := &fakeGateway{}
		o := orchestrator.New(gw, nil, nil)

		_, err := o.Transcribe(context.Background(), "k", []byte("RIFF"), tc.filename, tc.mime)

		require.NoError(t, err)
		assert.Equal(t, tc.want, gw.uploadName, "filename %q mime %q", tc.filename, tc.mime)
	}
}

func TestRun_RejectsEmptySubmission(t *testing.T) {
	gw := &fakeGateway{}
	o := orchestrator.New(gw, nil, nil)

	_, err := o.Run(context.Background(), "k", models.Submission{Text: "   "})

	assert.Equal(t, apperr.InvalidInput, apperr.ReasonOf(err))
	assert.Zero(t, gw.titleCalls.Load())
}

func TestRun_RejectsUnknownTone(t *testing.T) {
	o := orchestrator.New(&fakeGateway{}, nil, nil)
	sub := storySubmission()
	sub.Tone = "grim"

	_, err := o.Run(context.Background(), "k", sub)

	assert.Equal(t, apperr.InvalidInput, apperr.ReasonOf(err))
}

func TestRun_TitleFailureIsNonFatal(t *testing.T) {
	gw := &fakeGateway{titleErr: apperr.Newf(apperr.Timeout, "test", "slow")}
	o := orchestrator.New(gw, nil, nil)
	sub := storySubmission()
	sub.Images = false

	bundle, err := o.Run(context.Background(), "k", sub)

	require.NoError(t, err)
	assert.Empty(t, bundle.Title)
	assert.Equal(t, foxStory, bundle.Story)
	assert.True(t, bundle.Failed(models.StepTitle))
	assert.Equal(t, apperr.Timeout, bundle.Failures[0].Reason)
}

func TestRun_ExistingTitleSkipsTitleStep(t *testing.T) {
	gw := &fakeGateway{}
	o := orchestrator.New(gw, nil, nil)
	sub := storySubmission()
	sub.Title = "My Fox"
	sub.Images = false

	bundle, err := o.Run(context.Background(), "k", sub)

	require.NoError(t, err)
	assert.Equal(t, "My Fox", bundle.Title)
	assert.Zero(t, gw.titleCalls.Load())
}

func TestRun_StoryFailureSkipsImages(t *testing.T) {
	gw := &fakeGateway{storyErr: apperr.Newf(apperr.UpstreamError, "test", "boom")}
	o := orchestrator.New(gw, nil, nil)

	bundle, err := o.Run(context.Background(), "k", storySubmission())

	require.NoError(t, err)
	assert.Equal(t, "The Riddling Fox", bundle.Title)
	assert.True(t, bundle.Failed(models.StepStory))
	assert.Empty(t, bundle.Images)
	assert.Zero(t, gw.imageCalls.Load())
}

func TestRun_AnalysisModeDerivesTags(t *testing.T) {
	gw := &fakeGateway{analysis: "Flying suggests a longing for FREEDOM. You seem Peaceful yet anxious about a journey ahead."}
	o := orchestrator.New(gw, nil, nil)
	sub := storySubmission()
	sub.Mode = models.ModeAnalysis

	bundle, err := o.Run(context.Background(), "k", sub)

	require.NoError(t, err)
	assert.Equal(t, gw.analysis, bundle.Analysis)
	assert.Equal(t, []string{"freedom", "journey"}, bundle.Themes)
	assert.Equal(t, []string{"anxious", "peaceful"}, bundle.Emotions)
	assert.Empty(t, bundle.Story)
	assert.Zero(t, gw.storyCalls.Load())
	assert.Zero(t, gw.imageCalls.Load())
}

func TestRun_NoneModeOnlyTitles(t *testing.T) {
	gw := &fakeGateway{}
	o := orchestrator.New(gw, nil, nil)
	sub := storySubmission()
	sub.Mode = models.ModeNone

	bundle, err := o.Run(context.Background(), "k", sub)

	require.NoError(t, err)
	assert.Equal(t, "The Riddling Fox", bundle.Title)
	assert.Equal(t, riddleDream, bundle.Text)
	assert.Empty(t, bundle.Story)
	assert.Empty(t, bundle.Analysis)
	assert.EqualValues(t, 1, gw.titleCalls.Load())
	assert.Zero(t, gw.storyCalls.Load()+gw.analysisCalls.Load()+gw.imageCalls.Load())
}

func newLimitedTracker(budgets map[ratelimit.Capability]ratelimit.Budget) *ratelimit.Tracker {
	return ratelimit.NewTracker(budgets, ratelimit.NewMemoryCounter(), nil)
}

func TestRun_StoryBudgetExhausted(t *testing.T) {
	gw := &fakeGateway{}
	tracker := newLimitedTracker(map[ratelimit.Capability]ratelimit.Budget{
		ratelimit.Story: {Limit: 1, Window: time.Minute},
	})
	o := orchestrator.New(gw, tracker, nil)
	sub := storySubmission()
	sub.Title = "Known"

	_, err := o.Run(context.Background(), "k", sub)
	require.NoError(t, err)

	bundle, err := o.Run(context.Background(), "k", sub)

	require.NoError(t, err)
	assert.True(t, bundle.Failed(models.StepStory))
	assert.Equal(t, apperr.BudgetExceeded, bundle.Failures[0].Reason)
	assert.EqualValues(t, 1, gw.storyCalls.Load())
}

func TestRun_ImageBudgetExhaustedMarksEveryScene(t *testing.T) {
	gw := &fakeGateway{}
	tracker := newLimitedTracker(map[ratelimit.Capability]ratelimit.Budget{
		ratelimit.Image: {Limit: 1, Window: time.Minute},
	})
	o := orchestrator.New(gw, tracker, nil)

	_, err := o.Run(context.Background(), "k", storySubmission())
	require.NoError(t, err)
	bundle, err := o.Run(context.Background(), "k", storySubmission())

	require.NoError(t, err)
	assert.NotEmpty(t, bundle.Story)
	require.Len(t, bundle.Images, 3)
	for _, img := range bundle.Images {
		assert.True(t, img.Failed)
		assert.Equal(t, apperr.BudgetExceeded, img.Reason)
	}
	assert.EqualValues(t, 3, gw.imageCalls.Load())
}

func TestRun_TranscriptionBudgetIsFatal(t *testing.T) {
	gw := &fakeGateway{}
	tracker := newLimitedTracker(map[ratelimit.Capability]ratelimit.Budget{
		ratelimit.Speech: {Limit: 1, Window: time.Minute},
	})
	o := orchestrator.New(gw, tracker, nil)
	sub := storySubmission()
	sub.Text = ""
	sub.Audio = []byte("RIFF")

	_, err := o.Run(context.Background(), "k", sub)
	require.NoError(t, err)
	_, err = o.Run(context.Background(), "k", sub)

	assert.Equal(t, apperr.BudgetExceeded, apperr.ReasonOf(err))
	assert.Positive(t, apperr.RetryAfterOf(err))
	assert.EqualValues(t, 1, gw.transcribeCalls.Load())
}

func TestIllustrate_RequiresStory(t *testing.T) {
	o := orchestrator.New(&fakeGateway{}, nil, nil)

	_, err := o.Illustrate(context.Background(), "k", "  ", models.ToneGentle)

	assert.Equal(t, apperr.InvalidInput, apperr.ReasonOf(err))
}

func TestIllustrate_ShortStoryUsesWholeTextForEveryScene(t *testing.T) {
	o := orchestrator.New(&fakeGateway{}, nil, nil)

	images, err := o.Illustrate(context.Background(), "k", "  A fox bowed. ", models.ToneComedy)

	require.NoError(t, err)
	require.Len(t, images, 3)
	for _, img := range images {
		assert.Equal(t, "A fox bowed.", img.Segment)
		assert.Contains(t, img.Prompt, "cartoon")
	}
}

func TestNarrate(t *testing.T) {
	gw := &fakeGateway{}
	o := orchestrator.New(gw, nil, nil)

	audio, err := o.Narrate(context.Background(), "k", gateway.SpeechRequest{Text: foxStory})

	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)
	assert.EqualValues(t, 1, gw.speechCalls.Load())
}
