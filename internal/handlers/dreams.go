package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/middleware"
	"dreamlog-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DreamRepository is the account-scoped dream table. *supabase.DatabaseClient
// satisfies it.
type DreamRepository interface {
	CreateDream(ctx context.Context, dream *models.Dream) (*models.Dream, error)
	GetDream(ctx context.Context, id uuid.UUID, userID string) (*models.Dream, error)
	ListDreams(ctx context.Context, f models.DreamFilter) ([]models.Dream, int, error)
	UpdateDream(ctx context.Context, id uuid.UUID, userID string, changes models.DreamChanges) (*models.Dream, error)
	DeleteDream(ctx context.Context, id uuid.UUID, userID string) error
}

// ImageArchive copies generated images into durable storage.
// *services.ImageArchiver satisfies it.
type ImageArchive interface {
	Archive(ctx context.Context, userID string, dreamID uuid.UUID, images []models.SceneImage) ([]models.SceneImage, bool)
	Remove(userID string, dreamID uuid.UUID)
}

type DreamsHandler struct {
	repo    DreamRepository
	archive ImageArchive
	logger  *zap.Logger
}

// NewDreamsHandler builds the dreams API. archive may be nil, in which case
// provider image URLs are stored as they are.
func NewDreamsHandler(repo DreamRepository, archive ImageArchive, logger *zap.Logger) *DreamsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DreamsHandler{
		repo:    repo,
		archive: archive,
		logger:  logger.With(zap.String("component", "dreams")),
	}
}

func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, apperr.Newf(apperr.Unauthorized, "handlers.dreams", "user id not found"))
	}
	return userID, ok
}

// dreamID parses the :id path parameter. Ids that are not UUIDs cannot
// exist in the table and are reported as not found.
func dreamID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.Newf(apperr.NotFound, "handlers.dreams", "dream %q not found", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

// CreateDream godoc
// @Summary     Save a dream
// @Tags        dreams
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.DreamPayload true "Dream"
// @Success     201 {object} models.DreamResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /api/dreams [post]
func (h *DreamsHandler) CreateDream(c *gin.Context) {
	const op = "handlers.CreateDream"

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.DreamPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalid(op, err))
		return
	}
	if req.DreamText == nil || strings.TrimSpace(*req.DreamText) == "" {
		respondError(c, apperr.Newf(apperr.InvalidInput, op, "dreamText is required"))
		return
	}

	dream, err := dreamFromPayload(userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	created, err := h.repo.CreateDream(c.Request.Context(), dream)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Images != nil {
		created = h.archiveImages(c.Request.Context(), created, *req.Images)
	}

	h.logger.Info("Dream saved", zap.String("dream_id", created.ID.String()), zap.String("user_id", userID))
	c.JSON(http.StatusCreated, models.DreamResponse{Dream: h.dreamJSON(created)})
}

// GetDream godoc
// @Summary     Get a dream
// @Tags        dreams
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Dream ID (UUID)"
// @Success     200 {object} models.DreamResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/dreams/{id} [get]
func (h *DreamsHandler) GetDream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := dreamID(c)
	if !ok {
		return
	}

	dream, err := h.repo.GetDream(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DreamResponse{Dream: h.dreamJSON(dream)})
}

// ListDreams godoc
// @Summary     List dreams
// @Description Newest first. tags matches any of the comma-separated tags; from and to are
// @Description inclusive RFC3339 timestamps or dates.
// @Tags        dreams
// @Produce     json
// @Security    Bearer
// @Param       page query int false "Page, from 1"
// @Param       limit query int false "Page size, max 100"
// @Param       search query string false "Text search"
// @Param       tags query string false "Comma-separated tags"
// @Param       from query string false "Created at or after"
// @Param       to query string false "Created at or before"
// @Param       favorites query bool false "Favorites only"
// @Success     200 {object} models.DreamListResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/dreams [get]
func (h *DreamsHandler) ListDreams(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	q, err := parseListQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	dreams, total, err := h.repo.ListDreams(c.Request.Context(), models.DreamFilter{
		UserID:        userID,
		Search:        q.Search,
		Tags:          q.Tags,
		From:          q.From,
		To:            q.To,
		FavoritesOnly: q.FavoritesOnly,
		Limit:         q.Limit,
		Offset:        q.Offset(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.DreamListResponse{
		Dreams:     make([]models.DreamJSON, 0, len(dreams)),
		Pagination: models.Pagination{Page: q.Page, Limit: q.Limit, Total: total},
	}
	for i := range dreams {
		resp.Dreams = append(resp.Dreams, h.dreamJSON(&dreams[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateDream godoc
// @Summary     Update a dream
// @Description Partial update; absent fields are kept. A blank title becomes "Untitled Dream".
// @Tags        dreams
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Dream ID (UUID)"
// @Param       request body models.DreamPayload true "Changed fields"
// @Success     200 {object} models.DreamResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/dreams/{id} [put]
func (h *DreamsHandler) UpdateDream(c *gin.Context) {
	const op = "handlers.UpdateDream"

	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := dreamID(c)
	if !ok {
		return
	}

	var req models.DreamPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalid(op, err))
		return
	}

	changes, err := changesFromPayload(req)
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.repo.UpdateDream(c.Request.Context(), id, userID, changes)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Images != nil {
		updated = h.archiveImages(c.Request.Context(), updated, *req.Images)
	}
	c.JSON(http.StatusOK, models.DreamResponse{Dream: h.dreamJSON(updated)})
}

// DeleteDream godoc
// @Summary     Delete a dream
// @Tags        dreams
// @Security    Bearer
// @Param       id path string true "Dream ID (UUID)"
// @Success     204
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/dreams/{id} [delete]
func (h *DreamsHandler) DeleteDream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := dreamID(c)
	if !ok {
		return
	}

	if err := h.repo.DeleteDream(c.Request.Context(), id, userID); err != nil {
		respondError(c, err)
		return
	}
	if h.archive != nil {
		h.archive.Remove(userID, id)
	}
	c.Status(http.StatusNoContent)
}

// archiveImages moves the images of a stored dream into the bucket and
// writes the new URLs back. Failures keep the dream as it was.
func (h *DreamsHandler) archiveImages(ctx context.Context, dream *models.Dream, images []models.SceneImage) *models.Dream {
	if h.archive == nil || len(images) == 0 {
		return dream
	}

	archived, changed := h.archive.Archive(ctx, dream.UserID, dream.ID, images)
	if !changed {
		return dream
	}

	raw, err := json.Marshal(archived)
	if err != nil {
		return dream
	}
	updated, err := h.repo.UpdateDream(ctx, dream.ID, dream.UserID, models.DreamChanges{Images: raw})
	if err != nil {
		h.logger.Warn("Failed to store archived image URLs",
			zap.String("dream_id", dream.ID.String()),
			zap.Error(err))
		return dream
	}
	return updated
}

func dreamFromPayload(userID string, p models.DreamPayload) (*models.Dream, error) {
	const op = "handlers.dreamFromPayload"

	d := &models.Dream{UserID: userID, Tags: []string{}}
	if p.Title != nil {
		d.Title = strings.TrimSpace(*p.Title)
	}
	if d.Title == "" {
		d.Title = models.UntitledDream
	}
	d.DreamText = strings.TrimSpace(*p.DreamText)
	if p.Story != nil {
		d.Story = *p.Story
	}
	if p.Analysis != nil {
		d.Analysis = *p.Analysis
	}

	tone, err := models.ParseTone(deref(p.StoryTone))
	if err != nil {
		return nil, err
	}
	length, err := models.ParseLength(deref(p.StoryLength))
	if err != nil {
		return nil, err
	}
	d.StoryTone, d.StoryLength = string(tone), string(length)

	if p.HasAudio != nil {
		d.HasAudio = *p.HasAudio
	}
	if p.AudioDuration != nil {
		if *p.AudioDuration < 0 {
			return nil, apperr.Newf(apperr.InvalidInput, op, "audioDuration must not be negative")
		}
		d.AudioDuration = sql.NullFloat64{Float64: *p.AudioDuration, Valid: true}
	}
	if p.Tags != nil {
		d.Tags = *p.Tags
	}
	if p.IsFavorite != nil {
		d.IsFavorite = *p.IsFavorite
	}

	images := []models.SceneImage{}
	if p.Images != nil {
		images = *p.Images
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return nil, apperr.New(apperr.InvalidInput, op, err)
	}
	d.Images = raw
	return d, nil
}

func changesFromPayload(p models.DreamPayload) (models.DreamChanges, error) {
	ch := models.DreamChanges{
		DreamText:  p.DreamText,
		Story:      p.Story,
		Analysis:   p.Analysis,
		Tags:       p.Tags,
		IsFavorite: p.IsFavorite,
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			title = models.UntitledDream
		}
		ch.Title = &title
	}
	if p.StoryTone != nil {
		tone, err := models.ParseTone(*p.StoryTone)
		if err != nil {
			return ch, err
		}
		s := string(tone)
		ch.StoryTone = &s
	}
	if p.StoryLength != nil {
		length, err := models.ParseLength(*p.StoryLength)
		if err != nil {
			return ch, err
		}
		s := string(length)
		ch.StoryLength = &s
	}
	if p.Images != nil {
		raw, err := json.Marshal(*p.Images)
		if err != nil {
			return ch, apperr.New(apperr.InvalidInput, "handlers.changesFromPayload", err)
		}
		ch.Images = raw
	}
	return ch, nil
}

// dreamJSON renders a stored row. Images that no longer decode are logged and
// returned as an empty list so the rest of the dream stays readable.
func (h *DreamsHandler) dreamJSON(d *models.Dream) models.DreamJSON {
	out := models.DreamJSON{
		ID:          d.ID.String(),
		UserID:      d.UserID,
		Title:       d.Title,
		DreamText:   d.DreamText,
		Story:       d.Story,
		Analysis:    d.Analysis,
		StoryTone:   d.StoryTone,
		StoryLength: d.StoryLength,
		HasAudio:    d.HasAudio,
		Tags:        d.Tags,
		Images:      []models.SceneImage{},
		IsFavorite:  d.IsFavorite,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if d.AudioDuration.Valid {
		secs := d.AudioDuration.Float64
		out.AudioDuration = &secs
	}
	if len(d.Images) > 0 {
		if err := json.Unmarshal(d.Images, &out.Images); err != nil {
			h.logger.Error("stored images do not decode",
				zap.String("dream_id", out.ID),
				zap.Error(err),
			)
			out.Images = []models.SceneImage{}
		}
	}
	return out
}

func parseListQuery(c *gin.Context) (models.ListQuery, error) {
	const op = "handlers.parseListQuery"
	var q models.ListQuery

	for name, dst := range map[string]*int{"page": &q.Page, "limit": &q.Limit} {
		if v := c.Query(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return q, apperr.Newf(apperr.InvalidInput, op, "%s must be a positive integer", name)
			}
			*dst = n
		}
	}

	q.Search = strings.TrimSpace(c.Query("search"))
	for _, tag := range strings.Split(c.Query("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			q.Tags = append(q.Tags, tag)
		}
	}

	var err error
	if q.From, err = parseTime(c.Query("from"), false); err != nil {
		return q, apperr.New(apperr.InvalidInput, op, err)
	}
	if q.To, err = parseTime(c.Query("to"), true); err != nil {
		return q, apperr.New(apperr.InvalidInput, op, err)
	}

	if v := c.Query("favorites"); v != "" {
		fav, err := strconv.ParseBool(v)
		if err != nil {
			return q, apperr.Newf(apperr.InvalidInput, op, "favorites must be a boolean")
		}
		q.FavoritesOnly = fav
	}
	return q.Normalized(), nil
}

// parseTime accepts RFC3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseTime(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
