package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkup/backend/internal/config"
)

func TestNewS3StorageRequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), config.ObjectStoreConfig{Bucket: "  ", Region: "us-east-1"})
	assert.Error(t, err)
}

func TestNewS3StorageNormalisesConfig(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	s, err := NewS3Storage(context.Background(), config.ObjectStoreConfig{
		Bucket:        "media",
		Region:        "eu-west-1",
		Endpoint:      "http://localhost:9000/",
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", s.endpoint)
	assert.Equal(t, "https://cdn.example.com", s.baseURL)
}

func TestSaveRejectsEmptyKey(t *testing.T) {
	s := &S3Storage{bucket: "media"}
	for _, name := range []string{"", "///", "/./"} {
		_, err := s.Save(context.Background(), name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrEmptyKey, "name %q", name)
	}
}

func TestPublicURL(t *testing.T) {
	cases := []struct {
		name    string
		storage S3Storage
		want    string
	}{
		{
			name:    "cdn",
			storage: S3Storage{bucket: "media", region: "us-east-1", endpoint: "http://minio:9000", baseURL: "https://cdn.example.com"},
			want:    "https://cdn.example.com/posts/a.png",
		},
		{
			name:    "custom endpoint",
			storage: S3Storage{bucket: "media", region: "us-east-1", endpoint: "http://minio:9000"},
			want:    "http://minio:9000/media/posts/a.png",
		},
		{
			name:    "aws",
			storage: S3Storage{bucket: "media", region: "eu-west-1"},
			want:    "https://media.s3.eu-west-1.amazonaws.com/posts/a.png",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.storage.publicURL("posts/a.png"))
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", contentType("posts/a.png"))
	assert.Equal(t, fallbackType, contentType("posts/blob"))
}
