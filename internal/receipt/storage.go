package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PlaceholderImageURL is substituted for the image URL when upload fails or
// no image was captured. The asset ships embedded with the UI.
const PlaceholderImageURL = "/static/placeholder.svg"

// maxUploadSize is the blob storage size ceiling (10MB).
const maxUploadSize = 10 << 20

// allowedImageTypes is the upload allow-list. Extraction accepts more
// formats (PDF, HEIC) than storage does; storage keeps only web-displayable
// images.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// BlobStore defines the image storage boundary.
type BlobStore interface {
	// Upload validates and stores an image, returning a durable URL.
	Upload(data []byte, contentType string) (string, error)

	// Get retrieves a stored image by name.
	Get(name string) ([]byte, string, error)

	// Delete removes a stored image by name.
	Delete(name string) error
}

// ValidateImage is the pre-upload gate: a fixed MIME allow-list and a fixed
// size ceiling. It runs before any bytes touch storage.
func ValidateImage(data []byte, contentType string) error {
	if _, ok := allowedImageTypes[strings.ToLower(strings.TrimSpace(contentType))]; !ok {
		return fmt.Errorf("invalid file type. Only JPEG, PNG, and WebP images are allowed")
	}
	if len(data) > maxUploadSize {
		return fmt.Errorf("file size too large. Maximum size is 10MB")
	}
	return nil
}

// LocalBlobStore implements BlobStore on the local filesystem, serving the
// stored files back under urlPrefix.
type LocalBlobStore struct {
	basePath  string
	urlPrefix string
}

// NewLocalBlobStore creates the storage directory if needed.
func NewLocalBlobStore(basePath string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalBlobStore{
		basePath:  basePath,
		urlPrefix: "/api/files/",
	}, nil
}

// Upload validates the image and writes it under a unique name.
func (l *LocalBlobStore) Upload(data []byte, contentType string) (string, error) {
	if err := ValidateImage(data, contentType); err != nil {
		return "", err
	}

	ext := allowedImageTypes[strings.ToLower(strings.TrimSpace(contentType))]
	name := fmt.Sprintf("receipt_%s%s", uuid.NewString(), ext)

	path := filepath.Join(l.basePath, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return l.urlPrefix + name, nil
}

// Get retrieves a stored image by name.
func (l *LocalBlobStore) Get(name string) ([]byte, string, error) {
	// Reject anything that could escape the storage directory.
	if name != filepath.Base(name) {
		return nil, "", fmt.Errorf("invalid file name: %s", name)
	}

	data, err := os.ReadFile(filepath.Join(l.basePath, name))
	if err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}
	return data, contentTypeForName(name), nil
}

// Delete removes a stored image by name.
func (l *LocalBlobStore) Delete(name string) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("invalid file name: %s", name)
	}
	if err := os.Remove(filepath.Join(l.basePath, name)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

func contentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
