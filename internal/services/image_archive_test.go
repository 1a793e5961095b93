package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"dreamlog-backend/internal/models"
	"dreamlog-backend/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucketURL = "https://project.supabase.co/storage/v1/object/public/dream-images/"

type fakeStore struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	failNames string
	deleted   []uuid.UUID
	deleteErr error
}

func (f *fakeStore) UploadFile(userID string, dreamID uuid.UUID, filename, contentType string, data []byte) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNames != "" && strings.HasPrefix(filename, f.failNames) {
		return "", "", errors.New("bucket unavailable")
	}
	path := "users/" + userID + "/dreams/" + dreamID.String() + "/" + filename
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[path] = data
	return path, bucketURL + path, nil
}

func (f *fakeStore) IsArchived(url string) bool {
	return strings.HasPrefix(url, bucketURL)
}

func (f *fakeStore) DeleteDreamFiles(userID string, dreamID uuid.UUID) error {
	f.deleted = append(f.deleted, dreamID)
	return f.deleteErr
}

func strPtr(s string) *string { return &s }

func imageServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.png" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestArchive_ReplacesProviderURLs(t *testing.T) {
	srv := imageServer(t)
	store := &fakeStore{}
	archiver := services.NewImageArchiver(store, nil)
	dreamID := uuid.New()

	images := []models.SceneImage{
		{Index: 1, Scene: "Scene 1", URL: strPtr(srv.URL + "/one.png")},
		{Index: 2, Scene: "Scene 2", Failed: true},
		{Index: 3, Scene: "Scene 3", URL: strPtr(srv.URL + "/three.png")},
	}

	out, changed := archiver.Archive(context.Background(), "user-1", dreamID, images)

	require.True(t, changed)
	require.Len(t, out, 3)
	assert.True(t, strings.HasPrefix(*out[0].URL, bucketURL+"users/user-1/dreams/"+dreamID.String()+"/scene_1_"))
	assert.Nil(t, out[1].URL)
	assert.True(t, strings.HasPrefix(*out[2].URL, bucketURL))
	assert.Len(t, store.uploads, 2)
	assert.Equal(t, srv.URL+"/one.png", *images[0].URL, "input must not be mutated")
}

func TestArchive_KeepsProviderURLOnFailure(t *testing.T) {
	srv := imageServer(t)
	store := &fakeStore{failNames: "scene_3_"}
	archiver := services.NewImageArchiver(store, nil)

	images := []models.SceneImage{
		{Index: 1, URL: strPtr(srv.URL + "/gone.png")},
		{Index: 2, URL: strPtr(bucketURL + "already/there.png")},
		{Index: 3, URL: strPtr(srv.URL + "/three.png")},
	}

	out, changed := archiver.Archive(context.Background(), "user-1", uuid.New(), images)

	assert.False(t, changed)
	assert.Equal(t, srv.URL+"/gone.png", *out[0].URL)
	assert.Equal(t, bucketURL+"already/there.png", *out[1].URL)
	assert.Equal(t, srv.URL+"/three.png", *out[2].URL)
	assert.Empty(t, store.uploads)
}

func TestRemove_SwallowsErrors(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("nope")}
	archiver := services.NewImageArchiver(store, nil)
	id := uuid.New()

	archiver.Remove("user-1", id)

	assert.Equal(t, []uuid.UUID{id}, store.deleted)
}
