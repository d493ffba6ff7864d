package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/apperr"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		file    File
		wantErr bool
	}{
		{name: "png", file: File{Filename: "receipt.png", Size: 10}},
		{name: "upper-case jpeg", file: File{Filename: "IMG_001.JPEG", Size: 10}},
		{name: "webp", file: File{Filename: "x.webp", Size: 10}},
		{name: "gif not allowed", file: File{Filename: "anim.gif", Size: 10}, wantErr: true},
		{name: "no extension", file: File{Filename: "receipt", Size: 10}, wantErr: true},
		{name: "too large", file: File{Filename: "big.jpg", Size: MaxImageBytes + 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.file)
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/media/")
	require.NoError(t, err)
	ctx := context.Background()

	files := []File{
		{Filename: "a.png", Body: strings.NewReader("png-bytes"), Size: 9},
		{Filename: "b.jpg", Body: strings.NewReader("jpg-bytes"), Size: 9},
	}
	images, err := PutAll(ctx, store, FolderExpenses, files, MaxExpenseImages)
	require.NoError(t, err)
	require.Len(t, images, 2)

	assert.True(t, strings.HasPrefix(images[0].PublicID, "expenses/"))
	assert.True(t, strings.HasSuffix(images[0].PublicID, ".png"))
	assert.Equal(t, "http://localhost:8080/media/"+images[0].PublicID, images[0].URL)

	data, err := os.ReadFile(filepath.Join(store.Dir(), images[0].PublicID))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	DeleteAll(ctx, store, images)
	_, err = os.Stat(filepath.Join(store.Dir(), images[0].PublicID))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is harmless
	assert.NoError(t, store.Delete(ctx, images[0].PublicID))
}

func TestPutAll_Limit(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)

	files := make([]File, MaxGroupImages+1)
	for i := range files {
		files[i] = File{Filename: "g.png", Body: strings.NewReader("x")}
	}
	_, err = PutAll(context.Background(), store, FolderGroups, files, MaxGroupImages)
	assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
}
