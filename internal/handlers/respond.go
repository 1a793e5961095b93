package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/gateway"
	"dreamlog-backend/internal/middleware"
	"dreamlog-backend/internal/models"
	"github.com/gin-gonic/gin"
)

var errorTitles = map[apperr.Reason]string{
	apperr.InvalidInput:        "invalid request",
	apperr.NotConfigured:       "service not configured",
	apperr.UpstreamError:       "model provider error",
	apperr.Timeout:             "model provider timed out",
	apperr.BudgetExceeded:      "Too many requests from this IP, please try again later.",
	apperr.TranscriptionFailed: "failed to transcribe audio",
	apperr.RemoteWriteFailed:   "failed to save dream",
	apperr.NotFound:            "dream not found",
	apperr.Unauthorized:        "unauthorized",
}

// respondError writes err as an ErrorResponse with the status of its reason.
func respondError(c *gin.Context, err error) {
	reason := apperr.ReasonOf(err)
	if reason == apperr.BudgetExceeded {
		c.Header("Retry-After", middleware.RetryAfterSeconds(apperr.RetryAfterOf(err).Seconds()))
	}

	title, ok := errorTitles[reason]
	if !ok {
		title = "internal error"
	}
	c.JSON(apperr.HTTPStatus(reason), models.ErrorResponse{
		Error:   title,
		Reason:  reason,
		Message: err.Error(),
	})
}

func invalid(op string, err error) error {
	return apperr.New(apperr.InvalidInput, op, err)
}

// limitBody caps the request body slightly above the audio ceiling so the
// form fields still fit.
func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, gateway.MaxAudioBytes+(1<<20))
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

type audioUpload struct {
	Data     []byte
	Filename string
	MIME     string
}

// readAudio reads the "audio" form file. Only audio/* uploads up to
// gateway.MaxAudioBytes are accepted. A missing file returns nil unless
// required.
func readAudio(c *gin.Context, required bool) (*audioUpload, error) {
	const op = "handlers.readAudio"

	fh, err := c.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) && !required {
			return nil, nil
		}
		if errors.Is(err, http.ErrMissingFile) {
			return nil, apperr.Newf(apperr.InvalidInput, op, "no audio file provided")
		}
		return nil, invalid(op, err)
	}

	mime := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "audio/") {
		return nil, apperr.Newf(apperr.InvalidInput, op, "only audio files are allowed, got %q", mime)
	}
	if fh.Size > gateway.MaxAudioBytes {
		return nil, apperr.Newf(apperr.InvalidInput, op, "audio is %d bytes, limit is %d", fh.Size, gateway.MaxAudioBytes)
	}

	data, err := readFormFile(fh)
	if err != nil {
		return nil, invalid(op, err)
	}
	return &audioUpload{Data: data, Filename: fh.Filename, MIME: mime}, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, gateway.MaxAudioBytes+1))
}
