package media

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	m.objects[key] = data
	m.types[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestUploadStoresOriginalAndThumbnail(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store)

	img, err := u.Upload(context.Background(), "Living Room.png",
		bytes.NewReader(pngBytes(t, 1600, 900)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if img.Width != 1600 || img.Height != 900 {
		t.Errorf("dimensions = %dx%d, want 1600x900", img.Width, img.Height)
	}
	if img.ContentType != "image/png" {
		t.Errorf("content type = %q", img.ContentType)
	}
	if img.Filename != "Living-Room.png" {
		t.Errorf("filename = %q, want Living-Room.png", img.Filename)
	}
	if img.ThumbnailURL == "" {
		t.Fatal("expected a thumbnail URL")
	}
	if len(store.objects) != 2 {
		t.Fatalf("stored %d objects, want 2", len(store.objects))
	}

	// thumbnail must be scaled down to the max width
	for key, data := range store.objects {
		if !strings.Contains(key, "_thumb") {
			continue
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode thumbnail: %v", err)
		}
		if cfg.Width != ThumbnailMaxWidth {
			t.Errorf("thumbnail width = %d, want %d", cfg.Width, ThumbnailMaxWidth)
		}
		if cfg.Height != 270 {
			t.Errorf("thumbnail height = %d, want 270 (aspect preserved)", cfg.Height)
		}
	}
}

func TestUploadSmallImageKeepsSize(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store)

	img, err := u.Upload(context.Background(), "icon.png",
		bytes.NewReader(pngBytes(t, 100, 100)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if img.Width != 100 {
		t.Errorf("width = %d, want 100", img.Width)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	u := NewUploader(newMemStore())
	_, err := u.Upload(context.Background(), "notes.txt",
		strings.NewReader("just some text"))
	if err == nil || !strings.Contains(err.Error(), "unsupported image type") {
		t.Errorf("err = %v, want unsupported image type", err)
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0}, "image/png"},
		{"gif", []byte("GIF89a"), "image/gif"},
		{"webp", []byte("RIFF0000WEBP"), "image/webp"},
		{"text", []byte("hello world!"), "application/octet-stream"},
		{"empty", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectContentType(tt.data); got != tt.want {
				t.Errorf("detectContentType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"../../etc/passwd", "passwd"},
		{"my photo (1).png", "my-photo--1-.png"},
		{"", "upload"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStore(dir, "http://localhost:8080")

	url, err := ls.Put(context.Background(), "projects/2025/01/test.png", []byte("data"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "http://localhost:8080/media/projects/2025/01/test.png" {
		t.Errorf("url = %q", url)
	}
	if err := ls.Delete(context.Background(), "projects/2025/01/test.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// deleting again is fine
	if err := ls.Delete(context.Background(), "projects/2025/01/test.png"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}
