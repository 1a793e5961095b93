// Package apiclient talks to the dreamlog server over HTTP. It is used by the
// CLI and by the remote record store.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/models"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// GenerateInput is a submission as sent by a client. Audio, when present, is
// uploaded as multipart form data.
type GenerateInput struct {
	models.GenerateRequest
	Audio         []byte
	AudioFilename string
	AudioMIME     string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var out models.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", "", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Generate(ctx context.Context, token string, in GenerateInput) (*models.Bundle, error) {
	var (
		body        io.Reader
		contentType string
	)
	if len(in.Audio) > 0 {
		buf, ct, err := multipartGenerate(in)
		if err != nil {
			return nil, apperr.New(apperr.InvalidInput, "apiclient.Generate", err)
		}
		body, contentType = buf, ct
	} else {
		jsonData, err := json.Marshal(in.GenerateRequest)
		if err != nil {
			return nil, apperr.New(apperr.InvalidInput, "apiclient.Generate", err)
		}
		body, contentType = bytes.NewReader(jsonData), "application/json"
	}

	var out models.Bundle
	if err := c.do(ctx, http.MethodPost, "/api/generate", token, body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, in, out interface{}) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, token, bytes.NewReader(jsonData), "application/json", out)
}

func (c *Client) GenerateStory(ctx context.Context, token string, req models.StoryRequest) (string, error) {
	var out models.StoryResponse
	if err := c.postJSON(ctx, "/api/generate-story", token, req, &out); err != nil {
		return "", err
	}
	return out.Story, nil
}

func (c *Client) AnalyzeDream(ctx context.Context, token, dreamText string) (*models.AnalysisResponse, error) {
	var out models.AnalysisResponse
	if err := c.postJSON(ctx, "/api/analyze-dream", token, models.DreamTextRequest{DreamText: dreamText}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateImages illustrates a story. Scenes that failed come back with an
// error flag and no URL.
func (c *Client) GenerateImages(ctx context.Context, token string, req models.ImagesRequest) ([]models.SceneImage, error) {
	var out models.ImagesResponse
	if err := c.postJSON(ctx, "/api/generate-images", token, req, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// SynthesizeSpeech returns mp3 audio.
func (c *Client) SynthesizeSpeech(ctx context.Context, token string, req models.SpeechRequest) ([]byte, error) {
	var audio bytes.Buffer
	if err := c.postJSON(ctx, "/api/synthesize-speech", token, req, &audio); err != nil {
		return nil, err
	}
	return audio.Bytes(), nil
}

func (c *Client) CreateDream(ctx context.Context, token string, payload models.DreamPayload) (*models.DreamJSON, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var out models.DreamResponse
	if err := c.do(ctx, http.MethodPost, "/api/dreams", token, bytes.NewReader(jsonData), "application/json", &out); err != nil {
		return nil, err
	}
	return &out.Dream, nil
}

func (c *Client) GetDream(ctx context.Context, token, id string) (*models.DreamJSON, error) {
	var out models.DreamResponse
	if err := c.do(ctx, http.MethodGet, "/api/dreams/"+url.PathEscape(id), token, nil, "", &out); err != nil {
		return nil, err
	}
	return &out.Dream, nil
}

func (c *Client) ListDreams(ctx context.Context, token string, q models.ListQuery) (*models.DreamListResponse, error) {
	q = q.Normalized()
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if len(q.Tags) > 0 {
		params.Set("tags", strings.Join(q.Tags, ","))
	}
	if q.From != nil {
		params.Set("from", q.From.Format(time.RFC3339))
	}
	if q.To != nil {
		params.Set("to", q.To.Format(time.RFC3339))
	}
	if q.FavoritesOnly {
		params.Set("favorites", "true")
	}

	var out models.DreamListResponse
	if err := c.do(ctx, http.MethodGet, "/api/dreams?"+params.Encode(), token, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateDream(ctx context.Context, token, id string, payload models.DreamPayload) (*models.DreamJSON, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var out models.DreamResponse
	if err := c.do(ctx, http.MethodPut, "/api/dreams/"+url.PathEscape(id), token, bytes.NewReader(jsonData), "application/json", &out); err != nil {
		return nil, err
	}
	return &out.Dream, nil
}

func (c *Client) DeleteDream(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/dreams/"+url.PathEscape(id), token, nil, "", nil)
}

// do sends one request and decodes the response into out. A *bytes.Buffer out
// receives the raw body. Non-2xx responses become *apperr.Error using the
// server's reason when it sent one.
func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string, out interface{}) error {
	op := "apiclient " + method + " " + strings.SplitN(path, "?", 2)[0]

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.New(apperr.ReasonOf(err), op, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.New(apperr.UpstreamError, op, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(op, resp, respBody)
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		dst.Write(respBody)
		return nil
	default:
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperr.New(apperr.UpstreamError, op, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody)))
		}
		return nil
	}
}

func responseError(op string, resp *http.Response, body []byte) error {
	var errResp models.ErrorResponse
	_ = json.Unmarshal(body, &errResp)

	reason := errResp.Reason
	if reason == "" {
		reason = apperr.FromStatus(resp.StatusCode)
	}
	msg := errResp.Message
	if msg == "" {
		msg = errResp.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	e := apperr.Newf(reason, op, "status %d: %s", resp.StatusCode, msg)
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

func multipartGenerate(in GenerateInput) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := map[string]string{
		"dreamText": in.DreamText,
		"title":     in.Title,
		"tone":      in.Tone,
		"length":    in.Length,
		"mode":      in.Mode,
		"images":    strconv.FormatBool(in.Images),
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	filename := in.AudioFilename
	if filename == "" {
		filename = "recording.wav"
	}
	mime := in.AudioMIME
	if mime == "" {
		mime = "audio/wav"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, filename))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(in.Audio); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
