package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/models"
)

// LocalStore keeps every record in one JSON file that is read and rewritten
// as a whole on each operation.
type LocalStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path, now: time.Now}
}

func (s *LocalStore) Create(_ context.Context, rec models.DreamRecord) (models.DreamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return models.DreamRecord{}, err
	}
	rec.ID = uniqueID(records, rec.ID)
	rec.UserID = ""
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.UpdatedAt = rec.CreatedAt

	records = append([]models.DreamRecord{rec}, records...)
	if err := s.store(records); err != nil {
		return models.DreamRecord{}, err
	}
	return rec, nil
}

func (s *LocalStore) List(_ context.Context, q models.ListQuery) (*models.RecordPage, error) {
	s.mu.Lock()
	records, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	q = q.Normalized()
	matched := make([]models.DreamRecord, 0, len(records))
	for _, rec := range records {
		if matches(rec, q) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &models.RecordPage{Records: []models.DreamRecord{}, Page: q.Page, Limit: q.Limit, Total: len(matched)}
	start := q.Offset()
	if start < len(matched) {
		end := start + q.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Records = matched[start:end]
	}
	return page, nil
}

func (s *LocalStore) Get(_ context.Context, id string) (models.DreamRecord, error) {
	s.mu.Lock()
	records, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return models.DreamRecord{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return models.DreamRecord{}, apperr.Newf(apperr.NotFound, "persistence.LocalStore.Get", "dream %s not found", id)
}

func (s *LocalStore) Update(_ context.Context, id string, patch models.RecordPatch) (models.DreamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return models.DreamRecord{}, err
	}
	for i := range records {
		if records[i].ID != id {
			continue
		}
		patch.Apply(&records[i])
		records[i].UpdatedAt = s.now()
		if err := s.store(records); err != nil {
			return models.DreamRecord{}, err
		}
		return records[i], nil
	}
	return models.DreamRecord{}, apperr.Newf(apperr.NotFound, "persistence.LocalStore.Update", "dream %s not found", id)
}

func (s *LocalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id {
			records = append(records[:i], records[i+1:]...)
			return s.store(records)
		}
	}
	return apperr.Newf(apperr.NotFound, "persistence.LocalStore.Delete", "dream %s not found", id)
}

func (s *LocalStore) load() ([]models.DreamRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local dreams: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var records []models.DreamRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode local dreams %s: %w", s.path, err)
	}
	return records, nil
}

// store writes to a temp file beside the target and renames it into place.
func (s *LocalStore) store(records []models.DreamRecord) error {
	if records == nil {
		records = []models.DreamRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local dreams: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".dreams-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write local dreams: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write local dreams: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace local dreams: %w", err)
	}
	return nil
}

// uniqueID bumps a numeric timestamp id until it no longer collides.
func uniqueID(records []models.DreamRecord, id string) string {
	taken := make(map[string]bool, len(records))
	for _, r := range records {
		taken[r.ID] = true
	}
	if !taken[id] {
		return id
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		n = time.Now().UnixMilli()
	}
	for taken[strconv.FormatInt(n, 10)] {
		n++
	}
	return strconv.FormatInt(n, 10)
}

func matches(rec models.DreamRecord, q models.ListQuery) bool {
	if q.FavoritesOnly && !rec.Favorite {
		return false
	}
	if q.From != nil && rec.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && rec.CreatedAt.After(*q.To) {
		return false
	}
	if len(q.Tags) > 0 && !hasAnyTag(rec.Tags, q.Tags) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		haystack := strings.ToLower(strings.Join([]string{rec.Title, rec.OriginalDream, rec.Story, rec.Analysis}, "\n"))
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
