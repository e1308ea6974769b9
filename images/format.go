package images

import "strings"

// ImageFormat is an encoded image format accepted on upload.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatWebP ImageFormat = "webp"
	FormatPNG  ImageFormat = "png"
	FormatBMP  ImageFormat = "bmp"
	FormatTIFF ImageFormat = "tiff"
)

// ParseFormat maps the name returned by image.Decode to a known format.
func ParseFormat(name string) (ImageFormat, bool) {
	switch f := ImageFormat(strings.ToLower(name)); f {
	case FormatJPEG, FormatWebP, FormatPNG, FormatBMP, FormatTIFF:
		return f, true
	}
	return "", false
}

// ContentType is the MIME type of the format.
func (f ImageFormat) ContentType() string {
	return "image/" + string(f)
}
