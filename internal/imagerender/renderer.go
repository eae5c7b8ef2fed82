package imagerender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"
	"math"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WEBP decoder

	"github.com/local/imagetools/internal/codec"
)

const (
	DefaultQuality = 0.7
	DefaultMaxEdge = 1920

	// fallbackMIME is used when the source format has no encoder.
	fallbackMIME = "image/jpeg"

	// maxCanvasPixels bounds the RGBA surface (4 bytes per pixel).
	maxCanvasPixels = 1 << 28
)

// Config controls a single compression run.
type Config struct {
	Quality float64 // (0,1]
	MaxEdge int     // > 0
}

// DefaultConfig returns the reset values.
func DefaultConfig() Config {
	return Config{Quality: DefaultQuality, MaxEdge: DefaultMaxEdge}
}

// Validate checks the config bounds.
func (c Config) Validate() error {
	if math.IsNaN(c.Quality) || c.Quality <= 0 || c.Quality > 1 {
		return &InvalidConfig{Message: fmt.Sprintf("quality %v outside (0,1]", c.Quality)}
	}
	if c.MaxEdge <= 0 {
		return &InvalidConfig{Message: fmt.Sprintf("max edge %d must be positive", c.MaxEdge)}
	}
	return nil
}

// Result is the outcome of a successful compression.
type Result struct {
	Encoded        string // data URI of the re-encoded image
	MIME           string
	OriginalBytes  int
	ResultBytes    int
	OriginalWidth  int
	OriginalHeight int
	Width          int
	Height         int
}

// Ratio returns the percentage of bytes saved, rounded to the nearest integer.
// It is negative when the output grew.
func (r Result) Ratio() int {
	return CompressionRatio(r.OriginalBytes, r.ResultBytes)
}

// CompressionRatio computes round((1 - result/original) * 100).
func CompressionRatio(originalBytes, resultBytes int) int {
	if originalBytes <= 0 {
		return 0
	}
	return int(math.Round((1 - float64(resultBytes)/float64(originalBytes)) * 100))
}

// TargetSize returns the bounded output dimensions and the scale applied.
// The scale never exceeds 1.
func TargetSize(w, h, maxEdge int) (int, int, float64) {
	scale := math.Min(1, math.Min(float64(maxEdge)/float64(w), float64(maxEdge)/float64(h)))
	if scale >= 1 {
		return w, h, 1
	}
	tw := int(math.Round(float64(w) * scale))
	th := int(math.Round(float64(h) * scale))
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th, scale
}

// Compress decodes asset, downscales it so neither edge exceeds cfg.MaxEdge and
// re-encodes it at cfg.Quality. Every call decodes and encodes from scratch.
func Compress(ctx context.Context, asset Asset, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if asset.IsZero() {
		return Result{}, &DecodeFailure{MIME: asset.MIME(), Err: errors.New("empty image")}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	src, err := decode(asset)
	if err != nil {
		return Result{}, err
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	tw, th, scale := TargetSize(w, h, cfg.MaxEdge)

	dst, err := newCanvas(tw, th)
	if err != nil {
		return Result{}, err
	}
	if scale < 1 {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	outMIME := asset.MIME()
	if !detector.Resolve(outMIME, asset.Data()).Encodable {
		outMIME = fallbackMIME
	}
	out, err := encode(dst, outMIME, cfg.Quality)
	if err != nil {
		return Result{}, err
	}

	log.Debug().
		Str("mime", outMIME).
		Int("width", w).
		Int("height", h).
		Int("target_width", tw).
		Int("target_height", th).
		Float64("scale", scale).
		Float64("quality", cfg.Quality).
		Int("original_bytes", asset.Size()).
		Int("result_bytes", len(out)).
		Msg("compressed image")

	return Result{
		Encoded:        codec.EncodeDataURI(outMIME, out),
		MIME:           outMIME,
		OriginalBytes:  asset.Size(),
		ResultBytes:    len(out),
		OriginalWidth:  w,
		OriginalHeight: h,
		Width:          tw,
		Height:         th,
	}, nil
}

func decode(asset Asset) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(asset.Data()))
	if err != nil {
		return nil, &DecodeFailure{MIME: asset.MIME(), Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeFailure{MIME: asset.MIME(), Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxCanvasPixels {
		return nil, &DecodeFailure{MIME: asset.MIME(), Err: fmt.Errorf("image too large: %dx%d", cfg.Width, cfg.Height)}
	}
	img, _, err := image.Decode(bytes.NewReader(asset.Data()))
	if err != nil {
		return nil, &DecodeFailure{MIME: asset.MIME(), Err: err}
	}
	return img, nil
}

// newCanvas allocates a cleared RGBA surface of the given size.
func newCanvas(w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 || int64(w)*int64(h) > maxCanvasPixels {
		return nil, &ContextUnavailable{Width: w, Height: h}
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)
	return dst, nil
}

func encode(img image.Image, mime string, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch mime {
	case "image/png":
		enc := png.Encoder{CompressionLevel: pngLevel(quality)}
		err = enc.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(quality)})
	}
	if err != nil {
		return nil, &EncodeFailure{MIME: mime, Err: err}
	}
	if buf.Len() == 0 {
		return nil, &EncodeFailure{MIME: mime}
	}
	return buf.Bytes(), nil
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

// pngLevel maps quality onto zlib effort; PNG output is lossless either way.
func pngLevel(q float64) png.CompressionLevel {
	switch {
	case q < 0.5:
		return png.BestCompression
	case q < 0.8:
		return png.DefaultCompression
	default:
		return png.BestSpeed
	}
}

// GetImageDimensions extracts dimensions from encoded image bytes
func GetImageDimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
