package persistence_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dreamlog-backend/internal/apiclient"
	"dreamlog-backend/internal/apperr"
	"dreamlog-backend/internal/models"
	"dreamlog-backend/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDreamsAPI struct {
	hits       atomic.Int32
	creates    atomic.Int32
	status     int
	lastAuth   string
	lastSearch string
	lastBody   models.DreamPayload
}

func (f *fakeDreamsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	f.lastAuth = r.Header.Get("Authorization")
	w.Header().Set("Content-Type", "application/json")

	if f.status != 0 {
		w.WriteHeader(f.status)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "store unavailable"})
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/dreams":
		f.creates.Add(1)
		json.NewDecoder(r.Body).Decode(&f.lastBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.DreamResponse{Dream: models.DreamJSON{
			ID:          "8b5f5e0c-4a8e-4c1f-9a53-2a7d9b8f1e11",
			UserID:      "user-123",
			Title:       *f.lastBody.Title,
			DreamText:   *f.lastBody.DreamText,
			StoryTone:   *f.lastBody.StoryTone,
			StoryLength: *f.lastBody.StoryLength,
			CreatedAt:   time.Now(),
		}})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/dreams/"):
		json.NewEncoder(w).Encode(models.DreamResponse{Dream: models.DreamJSON{
			ID:        strings.TrimPrefix(r.URL.Path, "/api/dreams/"),
			Title:     "Fox",
			StoryTone: "gentle",
		}})
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Dream not found", Reason: apperr.NotFound})
	case r.Method == http.MethodGet && r.URL.Path == "/api/dreams":
		f.lastSearch = r.URL.Query().Get("search")
		json.NewEncoder(w).Encode(models.DreamListResponse{
			Dreams:     []models.DreamJSON{{ID: "a", Title: "Fox", StoryTone: "gentle", IsFavorite: true}},
			Pagination: models.Pagination{Page: 1, Limit: 50, Total: 1},
		})
	default:
		http.NotFound(w, r)
	}
}

func newRouter(t *testing.T, api *fakeDreamsAPI) (*persistence.Router, string) {
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	path := filepath.Join(t.TempDir(), "dreams.json")
	client := apiclient.NewClient(srv.URL, 5*time.Second)
	return persistence.NewRouter(persistence.NewLocalStore(path), persistence.RemoteFactoryFor(client), nil), path
}

func sampleRecord() models.DreamRecord {
	return models.DreamRecord{
		OriginalDream: "I flew over a purple forest and met a fox who spoke in riddles.",
		Story:         "Once upon a time...",
		Tone:          models.ToneMystical,
		Length:        models.LengthShort,
	}
}

var (
	guest  = persistence.Session{Guest: true}
	member = persistence.Session{Token: "jwt-token"}
)

func TestSave_GuestNeverTouchesNetwork(t *testing.T) {
	api := &fakeDreamsAPI{}
	router, _ := newRouter(t, api)
	ctx := context.Background()

	saved, err := router.Save(ctx, guest, sampleRecord())
	require.NoError(t, err)
	_, err = router.List(ctx, guest, models.ListQuery{})
	require.NoError(t, err)
	_, err = router.Update(ctx, guest, saved.ID, models.RecordPatch{Analysis: strPtr("deep")})
	require.NoError(t, err)
	require.NoError(t, router.Delete(ctx, guest, saved.ID))

	assert.Zero(t, api.hits.Load())
}

func TestSave_TokenWithGuestFlagStaysLocal(t *testing.T) {
	api := &fakeDreamsAPI{}
	router, _ := newRouter(t, api)

	_, err := router.Save(context.Background(), persistence.Session{Token: "anon", Guest: true}, sampleRecord())

	require.NoError(t, err)
	assert.Zero(t, api.hits.Load())
}

func TestSave_GuestAssignsTimestampIDAndDefaults(t *testing.T) {
	router, _ := newRouter(t, &fakeDreamsAPI{})
	before := time.Now().UnixMilli()

	saved, err := router.Save(context.Background(), guest, sampleRecord())

	require.NoError(t, err)
	assert.Regexp(t, `^\d{13}$`, saved.ID)
	assert.Equal(t, models.UntitledDream, saved.Title)
	assert.Empty(t, saved.UserID)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.LessOrEqual(t, before, saved.CreatedAt.UnixMilli())
}

func TestSave_GuestIDsStayUniqueWithinSameMillisecond(t *testing.T) {
	router, _ := newRouter(t, &fakeDreamsAPI{})
	ctx := context.Background()
	rec := sampleRecord()
	rec.ID = "1760518800000"

	first, err := router.Save(ctx, guest, rec)
	require.NoError(t, err)
	second, err := router.Save(ctx, guest, rec)
	require.NoError(t, err)

	assert.Equal(t, "1760518800000", first.ID)
	assert.Equal(t, "1760518800001", second.ID)
}

func TestSave_AuthenticatedCreatesOnceAndAdoptsStoreID(t *testing.T) {
	api := &fakeDreamsAPI{}
	router, path := newRouter(t, api)

	saved, err := router.Save(context.Background(), member, sampleRecord())

	require.NoError(t, err)
	assert.EqualValues(t, 1, api.creates.Load())
	assert.EqualValues(t, 1, api.hits.Load())
	assert.Equal(t, "8b5f5e0c-4a8e-4c1f-9a53-2a7d9b8f1e11", saved.ID)
	assert.Equal(t, "user-123", saved.UserID)
	assert.Equal(t, "Bearer jwt-token", api.lastAuth)
	assert.Equal(t, "mystical", *api.lastBody.StoryTone)
	assert.Equal(t, "short", *api.lastBody.StoryLength)
	assert.Equal(t, sampleRecord().OriginalDream, *api.lastBody.DreamText)
	assert.NoFileExists(t, path)
}

func TestSave_RemoteFailureIsReportedWithoutLocalFallback(t *testing.T) {
	api := &fakeDreamsAPI{status: http.StatusInternalServerError}
	router, path := newRouter(t, api)

	_, err := router.Save(context.Background(), member, sampleRecord())

	require.Error(t, err)
	assert.Equal(t, apperr.RemoteWriteFailed, apperr.ReasonOf(err))
	assert.NoFileExists(t, path)

	page, err := router.List(context.Background(), guest, models.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestUpdate_RemoteFailureIsRemoteWriteFailed(t *testing.T) {
	router, _ := newRouter(t, &fakeDreamsAPI{status: http.StatusBadGateway})

	_, err := router.Update(context.Background(), member, "some-id", models.RecordPatch{Favorite: boolPtr(true)})

	assert.Equal(t, apperr.RemoteWriteFailed, apperr.ReasonOf(err))
}

func TestUpdate_RemoteMissingIsNotFound(t *testing.T) {
	router, _ := newRouter(t, &fakeDreamsAPI{status: http.StatusNotFound})

	_, err := router.Update(context.Background(), member, "some-id", models.RecordPatch{Favorite: boolPtr(true)})

	assert.Equal(t, apperr.NotFound, apperr.ReasonOf(err))
}

func TestDelete_MissingRecordIsNotFound(t *testing.T) {
	router, _ := newRouter(t, &fakeDreamsAPI{})
	ctx := context.Background()

	err := router.Delete(ctx, guest, "1234")
	assert.Equal(t, apperr.NotFound, apperr.ReasonOf(err))

	err = router.Delete(ctx, member, "8b5f5e0c-0000-0000-0000-000000000000")
	assert.Equal(t, apperr.NotFound, apperr.ReasonOf(err))
}

func TestList_AuthenticatedDefersToServer(t *testing.T) {
	api := &fakeDreamsAPI{}
	router, _ := newRouter(t, api)

	page, err := router.List(context.Background(), member, models.ListQuery{Search: "fox"})

	require.NoError(t, err)
	assert.Equal(t, "fox", api.lastSearch)
	require.Len(t, page.Records, 1)
	assert.Equal(t, models.ToneGentle, page.Records[0].Tone)
	assert.True(t, page.Records[0].Favorite)
	assert.Equal(t, 1, page.Total)
}

func TestUpdate_LocalOverwritesOnlyGivenFields(t *testing.T) {
	router, _ := newRouter(t, &fakeDreamsAPI{})
	ctx := context.Background()
	saved, err := router.Save(ctx, guest, sampleRecord())
	require.NoError(t, err)

	updated, err := router.Update(ctx, guest, saved.ID, models.RecordPatch{
		Analysis: strPtr("The fox is your inner voice."),
		Title:    strPtr("  "),
	})

	require.NoError(t, err)
	assert.Equal(t, "The fox is your inner voice.", updated.Analysis)
	assert.Equal(t, saved.Story, updated.Story)
	assert.Equal(t, models.UntitledDream, updated.Title)
}

func TestAuthenticatedWithoutRemoteStoreIsRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dreams.json")
	router := persistence.NewRouter(persistence.NewLocalStore(path), nil, nil)
	ctx := context.Background()
	account := persistence.Session{Token: "real-account"}

	_, err := router.Save(ctx, account, sampleRecord())
	assert.Equal(t, apperr.RemoteWriteFailed, apperr.ReasonOf(err))

	_, err = router.Update(ctx, account, "1234", models.RecordPatch{Favorite: boolPtr(true)})
	assert.Equal(t, apperr.RemoteWriteFailed, apperr.ReasonOf(err))

	_, err = router.List(ctx, account, models.ListQuery{})
	assert.Equal(t, apperr.NotConfigured, apperr.ReasonOf(err))

	_, err = router.Get(ctx, account, "1234")
	assert.Equal(t, apperr.NotConfigured, apperr.ReasonOf(err))

	err = router.Delete(ctx, account, "1234")
	assert.Equal(t, apperr.NotConfigured, apperr.ReasonOf(err))

	assert.NoFileExists(t, path)
}

func TestGet_GuestReadsLocalRecord(t *testing.T) {
	api := &fakeDreamsAPI{}
	router, _ := newRouter(t, api)
	ctx := context.Background()
	saved, err := router.Save(ctx, guest, sampleRecord())
	require.NoError(t, err)

	got, err := router.Get(ctx, guest, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Story, got.Story)

	_, err = router.Get(ctx, guest, "missing")
	assert.Equal(t, apperr.NotFound, apperr.ReasonOf(err))
	assert.Zero(t, api.hits.Load())
}

func TestGet_AuthenticatedFetchesFromServer(t *testing.T) {
	api := &fakeDreamsAPI{}
	router, _ := newRouter(t, api)

	got, err := router.Get(context.Background(), member, "8b5f5e0c-4a8e-4c1f-9a53-2a7d9b8f1e11")

	require.NoError(t, err)
	assert.Equal(t, "Fox", got.Title)
	assert.Equal(t, models.ToneGentle, got.Tone)
	assert.Equal(t, "Bearer jwt-token", api.lastAuth)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
