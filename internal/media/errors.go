package media

import "errors"

var (
	// ErrStorageUnavailable indicates no object store is configured for uploads.
	ErrStorageUnavailable = errors.New("media storage unavailable")
	// ErrFileTooLarge is returned when an upload exceeds the configured size.
	ErrFileTooLarge = errors.New("media file too large")
	// ErrProbeUnavailable indicates the duration probe is not configured.
	ErrProbeUnavailable = errors.New("media probe unavailable")
)
