package supabase

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"
)

type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewStorageClient uses the storage API of an existing Supabase client.
func NewStorageClient(c *Client, bucket string) (*StorageClient, error) {
	if c == nil || c.Supabase == nil || c.Supabase.Storage == nil {
		return nil, fmt.Errorf("supabase storage client is not initialized")
	}
	return &StorageClient{
		client:  c.Supabase.Storage,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(c.Config.SupabaseURL, "/"),
	}, nil
}

func dreamPrefix(userID string, dreamID uuid.UUID) string {
	return fmt.Sprintf("users/%s/dreams/%s/", userID, dreamID.String())
}

// UploadFile stores data under users/{user_id}/dreams/{dream_id}/{filename}
// and returns the storage path and public URL.
func (s *StorageClient) UploadFile(userID string, dreamID uuid.UUID, filename, contentType string, data []byte) (string, string, error) {
	storagePath := dreamPrefix(userID, dreamID) + filename

	upsert := true
	_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload file: %w", err)
	}

	return storagePath, s.GetPublicURL(storagePath), nil
}

func (s *StorageClient) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, storagePath)
}

// IsArchived reports whether url already points into this bucket.
func (s *StorageClient) IsArchived(url string) bool {
	return strings.HasPrefix(url, fmt.Sprintf("%s/storage/v1/object/public/%s/", s.baseURL, s.bucket))
}

func (s *StorageClient) DeleteDreamFiles(userID string, dreamID uuid.UUID) error {
	prefix := dreamPrefix(userID, dreamID)

	files, err := s.client.ListFiles(s.bucket, prefix, storage.FileSearchOptions{
		Limit: 100,
	})
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	paths := make([]string, len(files))
	for i, file := range files {
		paths[i] = prefix + file.Name
	}
	if _, err := s.client.RemoveFile(s.bucket, paths); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}
