package imagerender

import (
	"github.com/local/imagetools/internal/codec"
	"github.com/local/imagetools/internal/filetype"
)

// Asset is an immutable image payload with its MIME type.
// Callers must not modify the slice returned by Data.
type Asset struct {
	data []byte
	mime string
}

var detector = filetype.New()

// NewAsset wraps data as an Asset. The declared MIME type is kept when it
// names a decodable image, otherwise the type is sniffed from the bytes.
func NewAsset(data []byte, declaredMIME string) Asset {
	if len(data) == 0 {
		return Asset{}
	}
	info := detector.Resolve(declaredMIME, data)
	return Asset{data: data, mime: info.MIMEType}
}

func (a Asset) Data() []byte { return a.data }
func (a Asset) MIME() string { return a.mime }
func (a Asset) Size() int    { return len(a.data) }

// IsZero reports whether no image is present.
func (a Asset) IsZero() bool { return len(a.data) == 0 }

// DataURI returns the asset as a base64 data URI.
func (a Asset) DataURI() string { return codec.EncodeDataURI(a.mime, a.data) }
