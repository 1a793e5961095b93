package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dreamlog-backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxArchivedImageBytes = 20 << 20

// ObjectStore is where archived dream images end up. *supabase.StorageClient
// satisfies it.
type ObjectStore interface {
	UploadFile(userID string, dreamID uuid.UUID, filename, contentType string, data []byte) (string, string, error)
	IsArchived(url string) bool
	DeleteDreamFiles(userID string, dreamID uuid.UUID) error
}

// ImageArchiver copies provider image URLs, which expire, into the storage
// bucket so saved dreams keep their illustrations.
type ImageArchiver struct {
	store      ObjectStore
	httpClient *http.Client
	logger     *zap.Logger
}

func NewImageArchiver(store ObjectStore, logger *zap.Logger) *ImageArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageArchiver{
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Archive returns a copy of images with each successfully copied URL
// replaced by its bucket URL. Failed scenes and already archived URLs are
// left alone; a failed copy keeps the provider URL.
func (a *ImageArchiver) Archive(ctx context.Context, userID string, dreamID uuid.UUID, images []models.SceneImage) ([]models.SceneImage, bool) {
	out := make([]models.SceneImage, len(images))
	copy(out, images)

	changed := make([]bool, len(out))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i := range out {
		i := i
		img := &out[i]
		if img.Failed || img.URL == nil || *img.URL == "" || a.store.IsArchived(*img.URL) {
			continue
		}
		g.Go(func() error {
			url, err := a.archiveOne(gctx, userID, dreamID, img.Index, *img.URL)
			if err != nil {
				a.logger.Warn("Image archival failed",
					zap.String("dream_id", dreamID.String()),
					zap.Int("scene", img.Index),
					zap.Error(err))
				return nil
			}
			img.URL = &url
			changed[i] = true
			return nil
		})
	}
	_ = g.Wait()

	archived := false
	for _, c := range changed {
		archived = archived || c
	}
	return out, archived
}

func (a *ImageArchiver) archiveOne(ctx context.Context, userID string, dreamID uuid.UUID, index int, source string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchivedImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxArchivedImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", maxArchivedImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}
	ext := "png"
	if strings.Contains(contentType, "jpeg") {
		ext = "jpg"
	} else if strings.Contains(contentType, "webp") {
		ext = "webp"
	}

	filename := fmt.Sprintf("scene_%d_%s.%s", index, time.Now().UTC().Format("20060102_150405"), ext)
	_, publicURL, err := a.store.UploadFile(userID, dreamID, filename, contentType, data)
	if err != nil {
		return "", err
	}
	return publicURL, nil
}

// Remove deletes every archived file of a dream. Errors are logged only.
func (a *ImageArchiver) Remove(userID string, dreamID uuid.UUID) {
	if err := a.store.DeleteDreamFiles(userID, dreamID); err != nil {
		a.logger.Warn("Failed to delete archived images",
			zap.String("dream_id", dreamID.String()),
			zap.Error(err))
	}
}
