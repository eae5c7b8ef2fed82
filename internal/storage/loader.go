package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/imagetools/internal/codec"
	"github.com/local/imagetools/internal/filetype"
	"github.com/local/imagetools/internal/imagerender"
)

const s3Scheme = "s3://"

// ErrTooLarge is wrapped by LoadError when a source exceeds the size limit.
var ErrTooLarge = errors.New("image exceeds size limit")

// LoadError reports a source that could not be turned into an image asset.
type LoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Source, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

func errTooLarge(size, limit int64) error {
	return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, limit)
}

// Options configures a Loader. Zero values fall back to defaults.
type Options struct {
	MaxBytes     int64
	FetchTimeout time.Duration
	HTTPClient   *http.Client
	S3           *S3Client
}

// Loader resolves an image reference into an Asset. A reference is a data URI,
// an http(s) URL, an s3://bucket/key, or a local file path.
type Loader struct {
	maxBytes int64
	timeout  time.Duration
	http     *http.Client
	s3       *S3Client
	detector *filetype.Detector
}

func NewLoader(opts Options) *Loader {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Loader{
		maxBytes: opts.MaxBytes,
		timeout:  opts.FetchTimeout,
		http:     opts.HTTPClient,
		s3:       opts.S3,
		detector: filetype.New(),
	}
}

// MaxBytes is the largest image the loader accepts.
func (l *Loader) MaxBytes() int64 { return l.maxBytes }

// Load fetches ref and checks that it holds a decodable image.
func (l *Loader) Load(ctx context.Context, ref string) (imagerender.Asset, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return imagerender.Asset{}, &LoadError{Source: "image", Reason: "empty reference"}
	}

	var (
		data     []byte
		declared string
		err      error
	)
	switch {
	case codec.IsDataURI(ref):
		declared, data, err = codec.DecodeDataURI(ref)
		if err == nil && int64(len(data)) > l.maxBytes {
			err = errTooLarge(int64(len(data)), l.maxBytes)
		}
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, declared, err = l.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, s3Scheme):
		data, declared, err = l.fetchS3(ctx, ref)
	default:
		data, err = l.readFile(strings.TrimPrefix(ref, "file://"))
	}
	if err != nil {
		return imagerender.Asset{}, &LoadError{Source: describe(ref), Reason: "fetch failed", Err: err}
	}
	return l.FromBytes(describe(ref), data, declared)
}

// FromReader reads an uploaded image, enforcing the size limit.
func (l *Loader) FromReader(name string, r io.Reader, declared string) (imagerender.Asset, error) {
	data, err := readLimited(r, l.maxBytes)
	if err != nil {
		return imagerender.Asset{}, &LoadError{Source: name, Reason: "read failed", Err: err}
	}
	return l.FromBytes(name, data, declared)
}

// FromBytes sniffs data and wraps it as an Asset when it is a supported image.
func (l *Loader) FromBytes(name string, data []byte, declared string) (imagerender.Asset, error) {
	if len(data) == 0 {
		return imagerender.Asset{}, &LoadError{Source: name, Reason: "empty file"}
	}
	info := l.detector.Detect(data)
	if !info.IsImage || !info.Decodable {
		return imagerender.Asset{}, &LoadError{Source: name, Reason: fmt.Sprintf("unsupported file type %s", info.MIMEType)}
	}
	asset := imagerender.NewAsset(data, declared)
	log.Debug().Str("source", name).Str("mime", asset.MIME()).Int("bytes", asset.Size()).Msg("loaded image")
	return asset, nil
}

func (l *Loader) fetchHTTP(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	if resp.ContentLength > l.maxBytes {
		return nil, "", errTooLarge(resp.ContentLength, l.maxBytes)
	}
	data, err := readLimited(resp.Body, l.maxBytes)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (l *Loader) fetchS3(ctx context.Context, ref string) ([]byte, string, error) {
	if l.s3 == nil {
		return nil, "", errors.New("S3 is not configured")
	}
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, "", err
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	obj, err := l.s3.DownloadFile(ctx, bucket, key, l.maxBytes)
	if err != nil {
		return nil, "", err
	}
	return obj.Data, obj.ContentType, nil
}

func (l *Loader) readFile(path string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if st.Size() > l.maxBytes {
		return nil, errTooLarge(st.Size(), l.maxBytes)
	}
	return os.ReadFile(path)
}

// describe shortens data URIs so they stay out of logs and messages.
func describe(ref string) string {
	if codec.IsDataURI(ref) {
		return "data URI"
	}
	return ref
}
