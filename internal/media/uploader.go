// Package media classifies uploaded files and stores them in the configured object store.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
)

// DefaultImageDuration is how long a still image is shown in a story.
const DefaultImageDuration = 5 * time.Second

// Storage persists uploaded media and returns a public location.
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Prober measures the playback duration of audio and video.
type Prober interface {
	Duration(ctx context.Context, r io.Reader) (time.Duration, error)
}

// Asset describes a stored upload.
type Asset struct {
	URL         string
	Type        string
	ContentType string
	Size        int64
	Duration    time.Duration
}

// Uploader stores multipart files. A nil Storage makes every upload fail with ErrStorageUnavailable.
type Uploader struct {
	Storage  Storage
	Prober   Prober
	MaxBytes int64
}

// NewUploader constructs an Uploader.
func NewUploader(storage Storage, prober Prober, maxBytes int64) *Uploader {
	return &Uploader{Storage: storage, Prober: prober, MaxBytes: maxBytes}
}

// Upload stores fh under folder with a random name. Video durations are probed when a Prober
// is configured; probe failures leave the duration at zero.
func (u *Uploader) Upload(ctx context.Context, folder string, fh *multipart.FileHeader) (Asset, error) {
	if u == nil || u.Storage == nil {
		return Asset{}, ErrStorageUnavailable
	}
	if fh == nil {
		return Asset{}, fmt.Errorf("upload: no file")
	}
	if u.MaxBytes > 0 && fh.Size > u.MaxBytes {
		return Asset{}, ErrFileTooLarge
	}

	file, err := fh.Open()
	if err != nil {
		return Asset{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	contentType := ContentType(fh)
	asset := Asset{Type: Classify(contentType, fh.Filename), ContentType: contentType, Size: fh.Size}

	switch asset.Type {
	case models.MediaImage:
		asset.Duration = DefaultImageDuration
	case models.MediaVideo, models.MediaAudio:
		if u.Prober != nil {
			d, err := u.Prober.Duration(ctx, file)
			if err != nil {
				logging.FromContext(ctx).Warn("probe media duration", "file", fh.Filename, "error", err)
			} else {
				asset.Duration = d
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return Asset{}, fmt.Errorf("rewind upload: %w", err)
			}
		}
	}

	key := ObjectKey(folder, fh.Filename)
	location, err := u.Storage.Save(ctx, key, file)
	if err != nil {
		return Asset{}, fmt.Errorf("store upload: %w", err)
	}
	asset.URL = location

	return asset, nil
}

// ContentType returns the declared content type of fh, falling back to its extension.
func ContentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			return parsed
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(fh.Filename))); byExt != "" {
		parsed, _, _ := mime.ParseMediaType(byExt)
		return parsed
	}
	return "application/octet-stream"
}

// Classify maps a content type to one of the media kinds.
func Classify(contentType, filename string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(contentType, "audio/"):
		return models.MediaAudio
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic":
		return models.MediaImage
	case ".mp4", ".mov", ".webm", ".mkv", ".avi":
		return models.MediaVideo
	case ".mp3", ".m4a", ".wav", ".ogg", ".aac":
		return models.MediaAudio
	}
	return models.MediaFile
}

// ObjectKey builds a collision free storage key that keeps the original extension.
func ObjectKey(folder, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	name := uuid.NewString() + ext
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
