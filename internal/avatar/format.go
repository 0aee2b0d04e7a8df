package avatar

import (
	"github.com/gabriel-vasile/mimetype"

	"avatarmig/internal/services"
)

// Format is a recognised source image encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

var mimeFormats = []struct {
	mime   string
	format Format
}{
	{"image/png", FormatPNG},
	{"image/jpeg", FormatJPEG},
	{"image/gif", FormatGIF},
	{"image/webp", FormatWebP},
	{"image/bmp", FormatBMP},
	{"image/tiff", FormatTIFF},
}

// DetectFormat identifies the encoding from the leading magic bytes.
func DetectFormat(raw []byte) (Format, error) {
	if len(raw) == 0 {
		return "", services.Wrap(services.ErrFormat, "avatar", "detect format", "empty image", nil)
	}
	detected := mimetype.Detect(raw)
	for _, candidate := range mimeFormats {
		if detected.Is(candidate.mime) {
			return candidate.format, nil
		}
	}
	return "", services.Wrap(services.ErrFormat, "avatar", "detect format", "unsupported signature "+detected.String(), nil)
}
