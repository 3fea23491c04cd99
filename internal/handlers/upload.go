package handlers

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/linkup/backend/internal/media"
)

// multipartMemory bounds the part of a multipart form held in memory; the rest spills to disk.
const multipartMemory = 32 << 20

// formFile returns the first file posted under field, or nil.
func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil || r.MultipartForm.File == nil {
		return nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

func upload(ctx context.Context, uploader MediaUploader, folder string, fh *multipart.FileHeader) (media.Asset, error) {
	if uploader == nil {
		return media.Asset{}, media.ErrStorageUnavailable
	}
	return uploader.Upload(ctx, folder, fh)
}
