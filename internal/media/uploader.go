package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decode support

	"github.com/Ibrahimamir22/archway/internal/pkg/logger"
)

const (
	// MaxUploadMB caps upload size.
	MaxUploadMB = 10

	// ThumbnailMaxWidth bounds generated thumbnails.
	ThumbnailMaxWidth = 480

	jpegQuality = 85
)

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Image describes a stored upload.
type Image struct {
	ID           uuid.UUID `json:"id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// Uploader validates, stores and thumbnails image uploads.
type Uploader struct {
	store BlobStore
}

func NewUploader(store BlobStore) *Uploader {
	return &Uploader{store: store}
}

// Upload reads, validates and stores an image plus a thumbnail
// variant. The thumbnail is best effort: a resize or upload failure
// leaves ThumbnailURL empty but does not fail the upload.
func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader) (*Image, error) {
	maxBytes := int64(MaxUploadMB * 1024 * 1024)
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("file exceeds maximum of %d MB", MaxUploadMB)
	}

	contentType := detectContentType(data)
	if !supportedTypes[contentType] {
		return nil, fmt.Errorf("unsupported image type: %s", contentType)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	bounds := img.Bounds()

	id := uuid.New()
	now := time.Now().UTC()
	ext := extensionFor(contentType)
	baseKey := fmt.Sprintf("projects/%s/%s/%s", now.Format("2006"), now.Format("01"), id)

	url, err := u.store.Put(ctx, baseKey+ext, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}

	out := &Image{
		ID:          id,
		Filename:    sanitizeFilename(filename),
		ContentType: contentType,
		Size:        int64(len(data)),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		URL:         url,
		UploadedAt:  now,
	}

	// webp thumbnails are re-encoded as jpeg; the webp package only
	// decodes
	thumbExt, thumbType := ext, contentType
	if format == "webp" {
		thumbExt, thumbType = ".jpg", "image/jpeg"
	}
	if thumb, err := resize(img, ThumbnailMaxWidth, format); err == nil {
		thumbKey := fmt.Sprintf("%s_thumb%s", baseKey, thumbExt)
		if thumbURL, err := u.store.Put(ctx, thumbKey, thumb, thumbType); err == nil {
			out.ThumbnailURL = thumbURL
		} else {
			logger.Warn("thumbnail upload failed", "key", thumbKey, "error", err)
		}
	}

	return out, nil
}

// resize scales the image down to maxWidth preserving aspect ratio.
// Images already narrow enough are re-encoded as-is. WebP sources are
// re-encoded as JPEG since the webp package only decodes.
func resize(src image.Image, maxWidth int, format string) ([]byte, error) {
	bounds := src.Bounds()
	dst := src
	if bounds.Dx() > maxWidth {
		h := int(float64(bounds.Dy()) * float64(maxWidth) / float64(bounds.Dx()))
		scaled := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		dst = scaled
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		err := png.Encode(&buf, dst)
		return buf.Bytes(), err
	case "gif":
		err := gif.Encode(&buf, dst, nil)
		return buf.Bytes(), err
	default:
		err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
		return buf.Bytes(), err
	}
}

func detectContentType(data []byte) string {
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if len(data) >= 4 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return "image/png"
	}
	if len(data) >= 3 && data[0] == 'G' && data[1] == 'I' && data[2] == 'F' {
		return "image/gif"
	}
	if len(data) >= 12 && data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return "image/webp"
	}
	return "application/octet-stream"
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}
