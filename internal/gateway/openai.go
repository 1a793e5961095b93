package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"dreamlog-backend/internal/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	modelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dreamlog_model_requests_total",
			Help: "Model provider calls by capability and outcome.",
		},
		[]string{"capability", "outcome"},
	)
	modelRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dreamlog_model_request_duration_seconds",
			Help:    "Model provider call latency.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"capability"},
	)
)

var speechVoices = map[string]bool{
	"alloy": true, "ash": true, "coral": true, "echo": true, "fable": true,
	"onyx": true, "nova": true, "sage": true, "shimmer": true,
}

type Config struct {
	APIKey  string
	BaseURL string

	ChatModel          string
	ImageModel         string
	ImageSize          string
	ImageQuality       string
	SpeechModel        string
	SpeechVoice        string
	TranscriptionModel string

	// Timeout bounds every provider call.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChatModel == "" {
		c.ChatModel = openai.GPT4
	}
	if c.ImageModel == "" {
		c.ImageModel = openai.CreateImageModelDallE3
	}
	if c.ImageSize == "" {
		c.ImageSize = openai.CreateImageSize1024x1024
	}
	if c.ImageQuality == "" {
		c.ImageQuality = openai.CreateImageQualityStandard
	}
	if c.SpeechModel == "" {
		c.SpeechModel = string(openai.TTSModel1)
	}
	if c.SpeechVoice == "" {
		c.SpeechVoice = string(openai.VoiceAlloy)
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = openai.Whisper1
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

// OpenAIClient implements Gateway on the OpenAI API. Without an API key it
// is still usable; every call fails with not_configured.
type OpenAIClient struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &OpenAIClient{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "gateway")),
	}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		c.client = openai.NewClientWithConfig(clientCfg)
	}
	return c
}

func (c *OpenAIClient) Configured() bool {
	return c.client != nil
}

func (c *OpenAIClient) Transcribe(ctx context.Context, req TranscribeRequest) (string, error) {
	const op = "gateway.Transcribe"
	if err := checkAudio(op, req.Audio); err != nil {
		return "", err
	}
	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	var text string
	err := c.call(ctx, "transcribe", op, func(ctx context.Context) error {
		resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.cfg.TranscriptionModel,
			FilePath: filename,
			Reader:   bytes.NewReader(req.Audio),
			Language: language,
		})
		if err != nil {
			return err
		}
		text = strings.TrimSpace(resp.Text)
		if text == "" {
			return apperr.Newf(apperr.UpstreamError, op, "empty transcription")
		}
		return nil
	})
	return text, err
}

func (c *OpenAIClient) GenerateTitle(ctx context.Context, req TitleRequest) (string, error) {
	const op = "gateway.GenerateTitle"
	if err := checkText(op, req.DreamText, req); err != nil {
		return "", err
	}
	title, err := c.complete(ctx, "title", op, titleSystemPrompt,
		fmt.Sprintf("Create a fairy tale title for this dream: %q", req.DreamText), 50, 0.8)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(title), `"'“”`), nil
}

func (c *OpenAIClient) GenerateStory(ctx context.Context, req StoryRequest) (string, error) {
	const op = "gateway.GenerateStory"
	if err := checkText(op, req.DreamText, req); err != nil {
		return "", err
	}
	return c.complete(ctx, "story", op, storySystemPrompt(req.Tone, req.Length),
		fmt.Sprintf("Transform this dream into a fairy tale: %q", req.DreamText), storyMaxTokens(req.Length), 0.8)
}

func (c *OpenAIClient) GenerateAnalysis(ctx context.Context, req AnalysisRequest) (string, error) {
	const op = "gateway.GenerateAnalysis"
	if err := checkText(op, req.DreamText, req); err != nil {
		return "", err
	}
	return c.complete(ctx, "analysis", op, analysisSystemPrompt,
		fmt.Sprintf("Please analyze this dream: %q", req.DreamText), 500, 0.7)
}

func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	const op = "gateway.GenerateImage"
	if err := checkText(op, req.Prompt, req); err != nil {
		return "", err
	}
	size := req.Size
	if size == "" {
		size = c.cfg.ImageSize
	}
	quality := req.Quality
	if quality == "" {
		quality = c.cfg.ImageQuality
	}

	var url string
	err := c.call(ctx, "image", op, func(ctx context.Context) error {
		resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
			Prompt:         req.Prompt,
			Model:          c.cfg.ImageModel,
			N:              1,
			Size:           size,
			Quality:        quality,
			ResponseFormat: openai.CreateImageResponseFormatURL,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || resp.Data[0].URL == "" {
			return apperr.Newf(apperr.UpstreamError, op, "no image url in response")
		}
		url = resp.Data[0].URL
		return nil
	})
	return url, err
}

func (c *OpenAIClient) SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	const op = "gateway.SynthesizeSpeech"
	if err := checkText(op, req.Text, req); err != nil {
		return nil, err
	}
	voice := strings.ToLower(req.Voice)
	if voice == "" {
		voice = c.cfg.SpeechVoice
	}
	if !speechVoices[voice] {
		return nil, apperr.Newf(apperr.InvalidInput, op, "unknown voice %q", req.Voice)
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}
	if speed < 0.25 || speed > 4.0 {
		return nil, apperr.Newf(apperr.InvalidInput, op, "speed %.2f outside 0.25-4.0", speed)
	}

	var audio []byte
	err := c.call(ctx, "speech", op, func(ctx context.Context) error {
		resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(c.cfg.SpeechModel),
			Input:          req.Text,
			Voice:          openai.SpeechVoice(voice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
			Speed:          speed,
		})
		if err != nil {
			return err
		}
		defer resp.Close()
		audio, err = io.ReadAll(resp)
		if err != nil {
			return err
		}
		if len(audio) == 0 {
			return apperr.Newf(apperr.UpstreamError, op, "empty audio")
		}
		return nil
	})
	return audio, err
}

func (c *OpenAIClient) complete(ctx context.Context, capability, op, system, user string, maxTokens int, temperature float32) (string, error) {
	var content string
	err := c.call(ctx, capability, op, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.cfg.ChatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return apperr.Newf(apperr.UpstreamError, op, "empty completion")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	return content, err
}

// call runs fn under the per-call timeout. The call is detached from the
// caller's cancellation: once dispatched it runs to completion or timeout.
func (c *OpenAIClient) call(ctx context.Context, capability, op string, fn func(ctx context.Context) error) error {
	if c.client == nil {
		modelRequestsTotal.WithLabelValues(capability, string(apperr.NotConfigured)).Inc()
		return apperr.Newf(apperr.NotConfigured, op, "OpenAI API key not configured")
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	elapsed := time.Since(start)
	modelRequestDuration.WithLabelValues(capability).Observe(elapsed.Seconds())

	if err != nil {
		err = normalize(op, callCtx, err)
		reason := apperr.ReasonOf(err)
		modelRequestsTotal.WithLabelValues(capability, string(reason)).Inc()
		c.logger.Warn("model call failed",
			zap.String("capability", capability),
			zap.String("reason", string(reason)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}

	modelRequestsTotal.WithLabelValues(capability, "success").Inc()
	c.logger.Debug("model call succeeded",
		zap.String("capability", capability),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func normalize(op string, ctx context.Context, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.New(apperr.Timeout, op, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.New(apperr.UpstreamError, op, fmt.Errorf("provider returned %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperr.New(apperr.UpstreamError, op, fmt.Errorf("provider returned %d: %w", reqErr.HTTPStatusCode, reqErr.Err))
	}
	return apperr.New(apperr.UpstreamError, op, err)
}
