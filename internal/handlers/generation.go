package handlers

import (
	"net/http"

	"dreamlog-backend/internal/gateway"
	"dreamlog-backend/internal/models"
	"dreamlog-backend/internal/orchestrator"
	"github.com/gin-gonic/gin"
)

type GenerationHandler struct {
	orchestrator *orchestrator.Orchestrator
}

func NewGenerationHandler(o *orchestrator.Orchestrator) *GenerationHandler {
	return &GenerationHandler{orchestrator: o}
}

// Generate godoc
// @Summary     Generate dream artifacts
// @Description Runs a full generation: transcription when only audio is sent, then title and
// @Description the story or analysis, then three scene images. Step failures are listed in
// @Description the bundle and do not fail the request.
// @Tags        generation
// @Accept      json,mpfd
// @Produce     json
// @Param       request body models.GenerateRequest false "Dream submission (JSON form)"
// @Param       audio formData file false "Dream recording (audio/*, max 10MB)"
// @Success     200 {object} models.Bundle
// @Failure     400 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /api/generate [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	const op = "handlers.Generate"

	var req models.GenerateRequest
	sub := models.Submission{}
	if isMultipart(c) {
		limitBody(c)
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, invalid(op, err))
			return
		}
		audio, err := readAudio(c, false)
		if err != nil {
			respondError(c, err)
			return
		}
		if audio != nil {
			sub.Audio, sub.AudioFilename, sub.AudioMIME = audio.Data, audio.Filename, audio.MIME
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalid(op, err))
		return
	}

	sub.Text = req.DreamText
	sub.Title = req.Title
	sub.Tone = models.Tone(req.Tone)
	sub.Length = models.Length(req.Length)
	sub.Mode = models.Mode(req.Mode)
	sub.Images = req.Images

	bundle, err := h.orchestrator.Run(c.Request.Context(), c.ClientIP(), sub)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// Transcribe godoc
// @Summary     Transcribe a dream recording
// @Tags        generation
// @Accept      mpfd
// @Produce     json
// @Param       audio formData file true "Dream recording (audio/*, max 10MB)"
// @Success     200 {object} models.TranscribeResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /api/transcribe [post]
func (h *GenerationHandler) Transcribe(c *gin.Context) {
	limitBody(c)
	audio, err := readAudio(c, true)
	if err != nil {
		respondError(c, err)
		return
	}

	text, err := h.orchestrator.Transcribe(c.Request.Context(), c.ClientIP(), audio.Data, audio.Filename, audio.MIME)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TranscribeResponse{Text: text})
}

// GenerateTitle godoc
// @Summary     Generate a dream title
// @Tags        generation
// @Accept      json
// @Produce     json
// @Param       request body models.DreamTextRequest true "Dream text"
// @Success     200 {object} models.TitleResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Router      /api/generate-title [post]
func (h *GenerationHandler) GenerateTitle(c *gin.Context) {
	var req models.DreamTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalid("handlers.GenerateTitle", err))
		return
	}

	title, err := h.orchestrator.Title(c.Request.Context(), c.ClientIP(), req.DreamText)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TitleResponse{Title: title})
}

// GenerateStory godoc
// @Summary     Turn a dream into a bedtime story
// @Tags        generation
// @Accept      json
// @Produce     json
// @Param       request body models.StoryRequest true "Dream text, tone and length"
// @Success     200 {object} models.StoryResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Router      /api/generate-story [post]
func (h *GenerationHandler) GenerateStory(c *gin.Context) {
	const op = "handlers.GenerateStory"

	var req models.StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalid(op, err))
		return
	}
	tone, err := models.ParseTone(req.Tone)
	if err != nil {
		respondError(c, err)
		return
	}
	length, err := models.ParseLength(req.Length)
	if err != nil {
		respondError(c, err)
		return
	}

	story, err := h.orchestrator.Story(c.Request.Context(), c.ClientIP(), req.DreamText, tone, length)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StoryResponse{Story: story})
}

// AnalyzeDream godoc
// @Summary     Interpret a dream
// @Tags        generation
// @Accept      json
// @Produce     json
// @Param       request body models.DreamTextRequest true "Dream text"
// @Success     200 {object} models.AnalysisResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Router      /api/analyze-dream [post]
func (h *GenerationHandler) AnalyzeDream(c *gin.Context) {
	var req models.DreamTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalid("handlers.AnalyzeDream", err))
		return
	}

	analysis, err := h.orchestrator.Analyze(c.Request.Context(), c.ClientIP(), req.DreamText)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.AnalysisResponse{
		Analysis: analysis.Text,
		Themes:   analysis.Themes,
		Emotions: analysis.Emotions,
	})
}

// GenerateImages godoc
// @Summary     Illustrate a story
// @Description Always answers with three scenes; scenes whose image failed carry error and reason.
// @Tags        generation
// @Accept      json
// @Produce     json
// @Param       request body models.ImagesRequest true "Story and tone"
// @Success     200 {object} models.ImagesResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Router      /api/generate-images [post]
func (h *GenerationHandler) GenerateImages(c *gin.Context) {
	const op = "handlers.GenerateImages"

	var req models.ImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalid(op, err))
		return
	}
	tone, err := models.ParseTone(req.Tone)
	if err != nil {
		respondError(c, err)
		return
	}

	images, err := h.orchestrator.Illustrate(c.Request.Context(), c.ClientIP(), req.Story, tone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ImagesResponse{Images: images})
}

// SynthesizeSpeech godoc
// @Summary     Narrate text
// @Tags        generation
// @Accept      json
// @Produce     audio/mpeg
// @Param       request body models.SpeechRequest true "Text, voice and speed"
// @Success     200 {file} binary
// @Failure     400 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Router      /api/synthesize-speech [post]
func (h *GenerationHandler) SynthesizeSpeech(c *gin.Context) {
	var req models.SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalid("handlers.SynthesizeSpeech", err))
		return
	}

	audio, err := h.orchestrator.Narrate(c.Request.Context(), c.ClientIP(), gateway.SpeechRequest{
		Text:  req.Text,
		Voice: req.Voice,
		Speed: req.Speed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}
