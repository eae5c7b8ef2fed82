package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/imagetools/internal/ai"
	"github.com/local/imagetools/internal/codec"
	"github.com/local/imagetools/internal/imagerender"
	"github.com/local/imagetools/internal/statuscheck"
	"github.com/local/imagetools/internal/storage"
	"github.com/local/imagetools/internal/tools"
)

type scriptedSender struct {
	status int
	body   string
}

func (s scriptedSender) Send(ctx context.Context, p ai.ChatPayload) (*ai.Reply, error) {
	if s.status != 0 {
		return nil, &ai.TransportError{Status: s.status, StatusText: http.StatusText(s.status)}
	}
	if p.Stream {
		return &ai.Reply{Stream: ai.NewStream(io.NopCloser(strings.NewReader(s.body)))}, nil
	}
	var c ai.Completion
	quoted, _ := json.Marshal(s.body)
	if err := json.Unmarshal([]byte(`{"choices":[{"message":{"content":`+string(quoted)+`}}]}`), &c); err != nil {
		return nil, err
	}
	return &ai.Reply{Completion: &c}, nil
}

func newTestServer(t *testing.T, sender tools.Sender) *httptest.Server {
	t.Helper()
	runner := tools.NewRunner(nil, sender)
	w := New(runner, storage.NewLoader(storage.Options{MaxBytes: 1 << 20}), imagerender.DefaultConfig())
	mux := http.NewServeMux()
	w.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{G: 180, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestHealthAndState(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, map[string]string{"state": "idle"}, decode[map[string]string](t, resp2.Body))
}

type fixedStatus struct{}

func (fixedStatus) Summary(context.Context) statuscheck.Summary {
	return statuscheck.Summary{Runner: statuscheck.Status{OK: true, Message: "idle"}}
}

func TestStatusRoute(t *testing.T) {
	w := New(tools.NewRunner(nil, nil), storage.NewLoader(storage.Options{}), imagerender.DefaultConfig()).
		WithStatus(fixedStatus{})
	mux := http.NewServeMux()
	w.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	got := decode[statuscheck.Summary](t, rec.Body)
	assert.True(t, got.Runner.OK)
	assert.False(t, got.AI.OK)
}

func TestCompressMultipart(t *testing.T) {
	srv := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "in.png")
	require.NoError(t, err)
	_, err = fw.Write(pngImage(t, 300, 150))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("quality", "0.5"))
	require.NoError(t, mw.WriteField("max_edge", "100"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/compress", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[outcomeView](t, resp.Body)
	require.NotNil(t, out.Compression)
	assert.Equal(t, 100, out.Compression.Width)
	assert.Equal(t, 50, out.Compression.Height)
	assert.Equal(t, "image/png", out.Compression.MIME)
	assert.True(t, codec.IsDataURI(out.Compression.DataURI))
	assert.Contains(t, out.DisplayText, "Quality: 50%")
}

func TestCompressJSONSource(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/compress", map[string]any{
		"source": codec.EncodeDataURI("image/png", pngImage(t, 20, 10)),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[outcomeView](t, resp.Body)
	assert.Equal(t, 20, out.Compression.Width)
}

func TestCompressRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, nil)
	img := codec.EncodeDataURI("image/png", pngImage(t, 4, 4))

	tests := []struct {
		name   string
		body   map[string]any
		status int
		kind   tools.Kind
	}{
		{"missing source", map[string]any{}, http.StatusBadRequest, tools.KindInvalid},
		{"quality out of range", map[string]any{"source": img, "quality": 1.5}, http.StatusBadRequest, tools.KindInvalid},
		{"zero max edge", map[string]any{"source": img, "max_edge": 0}, http.StatusBadRequest, tools.KindInvalid},
		{"not an image", map[string]any{"source": codec.EncodeDataURI("image/png", []byte("hello"))}, http.StatusBadRequest, tools.KindSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/compress", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			ev := decode[errorView](t, resp.Body)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.NotEmpty(t, ev.Error)
		})
	}
}

func TestRecognizeJSON(t *testing.T) {
	srv := newTestServer(t, scriptedSender{body: "a small green diagonal"})

	resp := postJSON(t, srv.URL+"/api/tools/recognize", map[string]any{
		"source": codec.EncodeDataURI("image/png", pngImage(t, 8, 8)),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[outcomeView](t, resp.Body)
	assert.Equal(t, tools.ToolRecognize, out.Tool)
	assert.Equal(t, "Result: a small green diagonal", out.DisplayText)
	assert.Equal(t, ai.LocatorNone, out.Locator.Kind)
}

func TestRemoveBackgroundTransportError(t *testing.T) {
	srv := newTestServer(t, scriptedSender{status: http.StatusInternalServerError})

	resp := postJSON(t, srv.URL+"/api/tools/remove-background", map[string]any{
		"source": codec.EncodeDataURI("image/png", pngImage(t, 8, 8)),
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	ev := decode[errorView](t, resp.Body)
	assert.Equal(t, "API request failed: 500 Internal Server Error", ev.Error)
}

func TestGenerateStreamsNDJSON(t *testing.T) {
	srv := newTestServer(t, scriptedSender{body: "drawing... ![img](https://cdn.test/a.png)"})

	resp := postJSON(t, srv.URL+"/api/tools/generate?stream=1", map[string]any{"prompt": "a lighthouse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var lines []map[string]json.RawMessage
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Contains(t, lines[0], "progress")

	var final outcomeView
	require.NoError(t, json.Unmarshal(lines[len(lines)-1]["result"], &final))
	assert.Equal(t, ai.Locator{Kind: ai.LocatorMarkdown, Value: "https://cdn.test/a.png"}, final.Locator)
	assert.Equal(t, "drawing... ![img](https://cdn.test/a.png)", final.DisplayText)
}

func TestGenerateWithoutPrompt(t *testing.T) {
	srv := newTestServer(t, scriptedSender{body: "x"})

	resp := postJSON(t, srv.URL+"/api/tools/generate", map[string]any{"prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownToolAndMethod(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/tools/upscale", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	get, err := http.Get(srv.URL + "/api/compress")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func TestRemoteToolsUnconfigured(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/tools/generate", map[string]any{"prompt": "a cat"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
