// Package media stores receipt and group images outside the database.
// Documents keep only the returned public ID and URL.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/models"
)

// Upload limits per entity.
const (
	MaxExpenseImages = 5
	MaxGroupImages   = 1

	// MaxImageBytes caps a single uploaded file.
	MaxImageBytes = 10 << 20
)

// Folders group blobs by owner kind.
const (
	FolderExpenses = "expenses"
	FolderGroups   = "groups"
)

var allowedFormats = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// File is an image received from a client.
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store persists image blobs.
type Store interface {
	// Put stores the file under folder and returns its reference.
	Put(ctx context.Context, folder string, f File) (models.Image, error)
	// Delete removes a blob by public ID. Deleting a missing blob is not an error.
	Delete(ctx context.Context, publicID string) error
}

// Validate checks the file's format and size.
func Validate(f File) error {
	ext := strings.ToLower(path.Ext(f.Filename))
	if _, ok := allowedFormats[ext]; !ok {
		return apperr.Validation("image %q: format not allowed, use jpg, jpeg, png or webp", f.Filename)
	}
	if f.Size > MaxImageBytes {
		return apperr.Validation("image %q exceeds %d bytes", f.Filename, MaxImageBytes)
	}
	return nil
}

// contentType returns the declared type or the one implied by the extension.
func contentType(f File) string {
	if f.ContentType != "" && f.ContentType != "application/octet-stream" {
		return f.ContentType
	}
	return allowedFormats[strings.ToLower(path.Ext(f.Filename))]
}

// newKey returns a fresh public ID such as "expenses/3f2c....png".
func newKey(folder, filename string) string {
	return fmt.Sprintf("%s/%s%s", folder, uuid.New().String(), strings.ToLower(path.Ext(filename)))
}

// PutAll validates and stores every file, up to limit. On failure the blobs
// already stored are removed again.
func PutAll(ctx context.Context, store Store, folder string, files []File, limit int) ([]models.Image, error) {
	if len(files) > limit {
		return nil, apperr.Validation("at most %d images allowed", limit)
	}
	for _, f := range files {
		if err := Validate(f); err != nil {
			return nil, err
		}
	}

	images := make([]models.Image, 0, len(files))
	for _, f := range files {
		img, err := store.Put(ctx, folder, f)
		if err != nil {
			DeleteAll(ctx, store, images)
			return nil, fmt.Errorf("failed to store image %q: %w", f.Filename, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// DeleteAll removes the blobs behind images. Failures are logged and skipped.
func DeleteAll(ctx context.Context, store Store, images []models.Image) {
	for _, img := range images {
		if img.PublicID == "" {
			continue
		}
		if err := store.Delete(ctx, img.PublicID); err != nil {
			slog.Warn("Failed to delete image", "public_id", img.PublicID, "error", err)
		}
	}
}
