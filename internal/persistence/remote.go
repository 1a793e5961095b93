package persistence

import (
	"context"

	"dreamlog-backend/internal/apiclient"
	"dreamlog-backend/internal/models"
)

// RemoteStore is the account-scoped store behind the server's dreams API.
// Filtering and paging are done by the server.
type RemoteStore struct {
	client *apiclient.Client
	token  string
}

func NewRemoteStore(client *apiclient.Client, token string) *RemoteStore {
	return &RemoteStore{client: client, token: token}
}

// RemoteFactoryFor binds a client to each authenticated session.
func RemoteFactoryFor(client *apiclient.Client) RemoteFactory {
	return func(s Session) RecordStore {
		return NewRemoteStore(client, s.Token)
	}
}

func (s *RemoteStore) Create(ctx context.Context, rec models.DreamRecord) (models.DreamRecord, error) {
	created, err := s.client.CreateDream(ctx, s.token, payloadFromRecord(rec))
	if err != nil {
		return models.DreamRecord{}, err
	}
	return recordFromJSON(*created), nil
}

func (s *RemoteStore) List(ctx context.Context, q models.ListQuery) (*models.RecordPage, error) {
	resp, err := s.client.ListDreams(ctx, s.token, q)
	if err != nil {
		return nil, err
	}
	page := &models.RecordPage{
		Records: make([]models.DreamRecord, 0, len(resp.Dreams)),
		Page:    resp.Pagination.Page,
		Limit:   resp.Pagination.Limit,
		Total:   resp.Pagination.Total,
	}
	for _, d := range resp.Dreams {
		page.Records = append(page.Records, recordFromJSON(d))
	}
	return page, nil
}

func (s *RemoteStore) Get(ctx context.Context, id string) (models.DreamRecord, error) {
	d, err := s.client.GetDream(ctx, s.token, id)
	if err != nil {
		return models.DreamRecord{}, err
	}
	return recordFromJSON(*d), nil
}

func (s *RemoteStore) Update(ctx context.Context, id string, patch models.RecordPatch) (models.DreamRecord, error) {
	updated, err := s.client.UpdateDream(ctx, s.token, id, payloadFromPatch(patch))
	if err != nil {
		return models.DreamRecord{}, err
	}
	return recordFromJSON(*updated), nil
}

func (s *RemoteStore) Delete(ctx context.Context, id string) error {
	return s.client.DeleteDream(ctx, s.token, id)
}

func payloadFromRecord(rec models.DreamRecord) models.DreamPayload {
	tone := string(rec.Tone)
	length := string(rec.Length)
	p := models.DreamPayload{
		Title:       &rec.Title,
		DreamText:   &rec.OriginalDream,
		Story:       &rec.Story,
		Analysis:    &rec.Analysis,
		StoryTone:   &tone,
		StoryLength: &length,
		HasAudio:    &rec.HasAudio,
		Tags:        &rec.Tags,
		Images:      &rec.Images,
		IsFavorite:  &rec.Favorite,
	}
	if rec.AudioSeconds > 0 {
		p.AudioDuration = &rec.AudioSeconds
	}
	return p
}

func payloadFromPatch(patch models.RecordPatch) models.DreamPayload {
	p := models.DreamPayload{
		Title:      patch.Title,
		DreamText:  patch.OriginalDream,
		Story:      patch.Story,
		Analysis:   patch.Analysis,
		Tags:       patch.Tags,
		Images:     patch.Images,
		IsFavorite: patch.Favorite,
	}
	if patch.Tone != nil {
		tone := string(*patch.Tone)
		p.StoryTone = &tone
	}
	if patch.Length != nil {
		length := string(*patch.Length)
		p.StoryLength = &length
	}
	return p
}

func recordFromJSON(d models.DreamJSON) models.DreamRecord {
	rec := models.DreamRecord{
		ID:            d.ID,
		UserID:        d.UserID,
		OriginalDream: d.DreamText,
		Title:         d.Title,
		Story:         d.Story,
		Analysis:      d.Analysis,
		Tone:          models.Tone(d.StoryTone),
		Length:        models.Length(d.StoryLength),
		Images:        d.Images,
		Tags:          d.Tags,
		Favorite:      d.IsFavorite,
		HasAudio:      d.HasAudio,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.AudioDuration != nil {
		rec.AudioSeconds = *d.AudioDuration
	}
	return rec
}
