package capture

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// RawImage is a single encoded still image handed to extraction or upload.
// It is never mutated after creation.
type RawImage struct {
	Data        []byte
	ContentType string
}

// FromMultipart reads an uploaded file into a RawImage, deriving the content
// type from the part header or the filename extension.
func FromMultipart(file multipart.File, header *multipart.FileHeader) (*RawImage, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading uploaded file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("uploaded file is empty")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExt(header.Filename)
	}

	return &RawImage{
		Data:        data,
		ContentType: normalizeContentType(contentType),
	}, nil
}

// FromDataURL decodes a base64 data URL (the form camera capture posts,
// e.g. "data:image/jpeg;base64,/9j/4AAQ..."). A bare base64 string is
// accepted and treated as JPEG.
func FromDataURL(dataURL string) (*RawImage, error) {
	contentType := "image/jpeg"
	encoded := dataURL

	if strings.HasPrefix(dataURL, "data:") {
		meta, rest, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URL")
		}
		if !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("data URL is not base64 encoded")
		}
		if mt := strings.TrimSuffix(meta, ";base64"); mt != "" {
			contentType = mt
		}
		encoded = rest
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}

	return &RawImage{
		Data:        data,
		ContentType: normalizeContentType(contentType),
	}, nil
}

func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func normalizeContentType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(contentType))
}
