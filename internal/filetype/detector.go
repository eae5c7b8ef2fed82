package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsImage     bool
	Decodable   bool
	Encodable   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type of data using magic bytes, not the declared type
func (d *Detector) Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  normalize(mtype.String()),
		Extension: mtype.Extension(),
	}
	d.classify(info)

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Int("bytes", len(data)).Msg("detected file type")
	return info
}

// Resolve picks the MIME type for an asset: the declared type wins when it
// names an image, otherwise the sniffed type is used.
func (d *Detector) Resolve(declared string, data []byte) *FileTypeInfo {
	declared = normalize(declared)
	if strings.HasPrefix(declared, "image/") {
		info := &FileTypeInfo{MIMEType: declared}
		d.classify(info)
		if info.Decodable {
			return info
		}
	}
	info := d.Detect(data)
	if declared != "" && declared != info.MIMEType {
		log.Debug().Str("declared", declared).Str("detected", info.MIMEType).Msg("overriding declared MIME type")
	}
	return info
}

// normalize strips parameters and aliases non-canonical image types.
func normalize(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "image/x-png":
		return "image/png"
	case "image/x-ms-bmp":
		return "image/bmp"
	}
	return mimeType
}

// classify determines whether the image can be decoded and re-encoded in place
func (d *Detector) classify(info *FileTypeInfo) {
	switch info.MIMEType {
	case "image/jpeg":
		info.IsImage, info.Decodable, info.Encodable = true, true, true
		info.Description = "JPEG image"
	case "image/png":
		info.IsImage, info.Decodable, info.Encodable = true, true, true
		info.Description = "PNG image"
	case "image/gif":
		info.IsImage, info.Decodable = true, true
		info.Description = "GIF image"
	case "image/webp":
		info.IsImage, info.Decodable = true, true
		info.Description = "WebP image"
	case "image/bmp":
		info.IsImage, info.Decodable = true, true
		info.Description = "Bitmap image"
	case "image/tiff":
		info.IsImage, info.Decodable = true, true
		info.Description = "TIFF image"
	default:
		info.IsImage = strings.HasPrefix(info.MIMEType, "image/")
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
