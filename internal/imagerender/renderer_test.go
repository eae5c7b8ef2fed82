package imagerender

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/imagetools/internal/codec"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func decodeResult(t *testing.T, res Result) (string, int, int) {
	t.Helper()
	mime, data, err := codec.DecodeDataURI(res.Encoded)
	require.NoError(t, err)
	require.Equal(t, res.ResultBytes, len(data))
	w, h, err := GetImageDimensions(data)
	require.NoError(t, err)
	return mime, w, h
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h, edge   int
		wantW, wantH int
	}{
		{"landscape downscale", 4000, 2000, 1920, 1920, 960},
		{"portrait downscale", 1000, 3000, 1500, 500, 1500},
		{"never upscale", 800, 600, 1920, 800, 600},
		{"exact edge", 1920, 1080, 1920, 1920, 1080},
		{"thin strip clamps to one pixel", 5000, 1, 100, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, scale := TargetSize(tt.w, tt.h, tt.edge)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.LessOrEqual(t, scale, 1.0)
		})
	}
}

func TestCompressDownscalesPNG(t *testing.T) {
	asset := NewAsset(encodePNG(t, gradient(400, 200)), "image/png")

	res, err := Compress(context.Background(), asset, Config{Quality: 0.7, MaxEdge: 100})
	require.NoError(t, err)

	mime, w, h := decodeResult(t, res)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)
	assert.Equal(t, 400, res.OriginalWidth)
	assert.Equal(t, 200, res.OriginalHeight)
	assert.Greater(t, res.ResultBytes, 0)
	assert.Equal(t, asset.Size(), res.OriginalBytes)
}

func TestCompressNeverUpscales(t *testing.T) {
	asset := NewAsset(encodeJPEG(t, gradient(64, 48)), "image/jpeg")

	res, err := Compress(context.Background(), asset, Config{Quality: 1.0, MaxEdge: 4096})
	require.NoError(t, err)

	mime, w, h := decodeResult(t, res)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)
}

func TestCompressMinimumQualityStillDecodes(t *testing.T) {
	asset := NewAsset(encodeJPEG(t, gradient(120, 90)), "image/jpeg")

	res, err := Compress(context.Background(), asset, Config{Quality: 0.001, MaxEdge: 60})
	require.NoError(t, err)

	_, w, h := decodeResult(t, res)
	assert.LessOrEqual(t, w, 60)
	assert.LessOrEqual(t, h, 60)
}

func TestCompressFallsBackToJPEG(t *testing.T) {
	pal := color.Palette{color.Black, color.White}
	img := image.NewPaletted(image.Rect(0, 0, 30, 30), pal)
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))

	res, err := Compress(context.Background(), NewAsset(buf.Bytes(), "image/gif"), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", res.MIME)

	mime, w, h := decodeResult(t, res)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, 30, w)
	assert.Equal(t, 30, h)
}

func TestCompressBoundsProperty(t *testing.T) {
	sizes := [][2]int{{10, 10}, {300, 40}, {40, 300}, {257, 129}}
	edges := []int{1, 16, 128, 512}
	for _, s := range sizes {
		asset := NewAsset(encodePNG(t, gradient(s[0], s[1])), "")
		for _, edge := range edges {
			res, err := Compress(context.Background(), asset, Config{Quality: 0.5, MaxEdge: edge})
			require.NoError(t, err)
			_, w, h := decodeResult(t, res)
			if s[0] > edge || s[1] > edge {
				assert.LessOrEqual(t, w, edge)
				assert.LessOrEqual(t, h, edge)
			} else {
				assert.Equal(t, s[0], w)
				assert.Equal(t, s[1], h)
			}
		}
	}
}

func TestCompressErrors(t *testing.T) {
	ctx := context.Background()
	good := NewAsset(encodePNG(t, gradient(8, 8)), "image/png")

	t.Run("invalid quality", func(t *testing.T) {
		_, err := Compress(ctx, good, Config{Quality: 0, MaxEdge: 10})
		var ic *InvalidConfig
		assert.ErrorAs(t, err, &ic)
	})
	t.Run("invalid edge", func(t *testing.T) {
		_, err := Compress(ctx, good, Config{Quality: 0.5, MaxEdge: 0})
		var ic *InvalidConfig
		assert.ErrorAs(t, err, &ic)
	})
	t.Run("undecodable", func(t *testing.T) {
		_, err := Compress(ctx, NewAsset([]byte("not an image at all"), "image/png"), DefaultConfig())
		var df *DecodeFailure
		assert.ErrorAs(t, err, &df)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := Compress(ctx, Asset{}, DefaultConfig())
		var df *DecodeFailure
		assert.ErrorAs(t, err, &df)
	})
	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Compress(cctx, good, DefaultConfig())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewCanvasUnavailable(t *testing.T) {
	_, err := newCanvas(0, 10)
	var cu *ContextUnavailable
	assert.ErrorAs(t, err, &cu)
}

func TestCompressionRatio(t *testing.T) {
	assert.Equal(t, 60, CompressionRatio(1_000_000, 400_000))
	assert.Equal(t, 0, CompressionRatio(0, 10))
	assert.Equal(t, -50, CompressionRatio(100, 150))
	assert.Equal(t, 60, Result{OriginalBytes: 1_000_000, ResultBytes: 400_000}.Ratio())
}
