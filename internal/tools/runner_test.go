package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/imagetools/internal/ai"
	"github.com/local/imagetools/internal/imagerender"
)

type fakeSender struct {
	reply   func(ai.ChatPayload) (*ai.Reply, error)
	got     []ai.ChatPayload
	started chan struct{}
	block   chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, p ai.ChatPayload) (*ai.Reply, error) {
	f.got = append(f.got, p)
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.reply(p)
}

func completion(content string) func(ai.ChatPayload) (*ai.Reply, error) {
	return func(ai.ChatPayload) (*ai.Reply, error) {
		quoted, _ := json.Marshal(content)
		var c ai.Completion
		if err := json.Unmarshal([]byte(`{"choices":[{"message":{"content":`+string(quoted)+`}}]}`), &c); err != nil {
			return nil, err
		}
		return &ai.Reply{Completion: &c}, nil
	}
}

func streamed(text string) func(ai.ChatPayload) (*ai.Reply, error) {
	return func(ai.ChatPayload) (*ai.Reply, error) {
		return &ai.Reply{Stream: ai.NewStream(io.NopCloser(strings.NewReader(text)))}, nil
	}
}

func testAsset(t *testing.T, w, h int) imagerender.Asset {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return imagerender.NewAsset(buf.Bytes(), "image/png")
}

func TestRunCompression(t *testing.T) {
	r := NewRunner(nil, nil)

	res, err := r.RunCompression(context.Background(), testAsset(t, 200, 100), imagerender.Config{Quality: 0.7, MaxEdge: 50})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Width)
	assert.Equal(t, 25, res.Height)
	assert.Equal(t, Idle, r.State())
}

func TestRunCompressOutcome(t *testing.T) {
	r := NewRunner(nil, nil)

	out, err := r.Run(context.Background(), Compress{Asset: testAsset(t, 40, 40), Config: imagerender.DefaultConfig()}, nil)
	require.NoError(t, err)
	require.NotNil(t, out.Compression)
	assert.Equal(t, ToolCompress, out.Tool)
	assert.Equal(t, ai.LocatorDataURI, out.Locator.Kind)
	assert.Equal(t, out.Compression.Encoded, out.Locator.Value)
	assert.Contains(t, out.DisplayText, "Compression succeeded!")
	assert.Contains(t, out.DisplayText, "Quality: 70%")
	assert.Contains(t, out.DisplayText, "Dimensions: 40x40 -> 40x40")
}

func TestRunGenerateStreamsProgress(t *testing.T) {
	sender := &fakeSender{reply: streamed("here you go ![cat](https://x.test/cat.png)")}
	r := NewRunner(nil, sender)

	var views []string
	out, err := r.RunRemoteTool(context.Background(), Generate{Prompt: "a cat"}, func(s string) { views = append(views, s) })
	require.NoError(t, err)

	require.NotEmpty(t, views)
	assert.Equal(t, "here you go ![cat](https://x.test/cat.png)", views[len(views)-1])
	assert.Equal(t, ai.Locator{Kind: ai.LocatorMarkdown, Value: "https://x.test/cat.png"}, out.Locator)
	assert.Equal(t, views[len(views)-1], out.DisplayText)

	require.Len(t, sender.got, 1)
	assert.True(t, sender.got[0].Stream)
	assert.Equal(t, ai.DefaultGenerateModel, sender.got[0].Model)
}

func TestRunRecognize(t *testing.T) {
	tests := []struct {
		name    string
		content string
		display string
		kind    ai.LocatorKind
	}{
		{"markdown link", "done ![out](https://x.test/o.png)", "Image link: https://x.test/o.png", ai.LocatorMarkdown},
		{"plain text", "a red square on white", "Result: a red square on white", ai.LocatorNone},
		{"embedded data", "data:image/png;base64,iVBORw0KGgo=", "Image returned as embedded Base64 data", ai.LocatorDataURI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{reply: completion(tt.content)}
			r := NewRunner(nil, sender)

			out, err := r.RunRemoteTool(context.Background(), Recognize{Asset: testAsset(t, 8, 8)}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.display, out.DisplayText)
			assert.Equal(t, tt.kind, out.Locator.Kind)

			msg := sender.got[0].Messages[0]
			require.Len(t, msg.Content, 2)
			assert.Equal(t, ai.RecognizePrompt, msg.Content[0].Text)
			assert.True(t, strings.HasPrefix(msg.Content[1].ImageURL.URL, "data:image/png;base64,"))
		})
	}
}

func TestRunRejectsInvalidBeforeSending(t *testing.T) {
	sender := &fakeSender{reply: completion("unused")}
	r := NewRunner(nil, sender)

	tests := []Request{
		Generate{Prompt: ""},
		Recognize{},
		RemoveBackground{},
		Compress{Config: imagerender.DefaultConfig()},
	}
	for _, req := range tests {
		_, err := r.Run(context.Background(), req, nil)
		assert.Equal(t, KindInvalid, Classify(err), "tool %s", req.Tool())
	}
	_, err := r.Run(context.Background(), nil, nil)
	assert.Equal(t, KindInvalid, Classify(err))

	_, err = r.RunRemoteTool(context.Background(), Compress{Asset: testAsset(t, 4, 4), Config: imagerender.DefaultConfig()}, nil)
	assert.Equal(t, KindInvalid, Classify(err))
	assert.Empty(t, sender.got)
}

func TestRunBusyWhileRunning(t *testing.T) {
	sender := &fakeSender{
		reply:   completion("ok"),
		started: make(chan struct{}),
		block:   make(chan struct{}),
	}
	r := NewRunner(nil, sender)
	asset := testAsset(t, 4, 4)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), RemoveBackground{Asset: asset}, nil)
		done <- err
	}()

	<-sender.started
	assert.Equal(t, Running, r.State())

	_, err := r.Run(context.Background(), Generate{Prompt: "x"}, nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, KindBusy, Classify(err))

	close(sender.block)
	require.NoError(t, <-done)
	assert.Equal(t, Idle, r.State())
}

func TestRunUsableAfterTransportError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"https://x.test/ok.png"}}]}`)
	}))
	defer srv.Close()

	client := ai.NewClient(ai.ClientOptions{Endpoint: srv.URL, APIKey: "k", HTTPClient: srv.Client()})
	r := NewRunner(nil, client)
	req := RemoveBackground{Asset: testAsset(t, 4, 4)}

	_, err := r.RunRemoteTool(context.Background(), req, nil)
	var te *ai.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 500, te.Status)
	assert.Equal(t, "API request failed: 500 Internal Server Error", Message(err))
	assert.Equal(t, Idle, r.State())

	out, err := r.RunRemoteTool(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/ok.png", out.Locator.Value)
}

func TestRunCancelled(t *testing.T) {
	sender := &fakeSender{reply: completion("late"), block: make(chan struct{})}
	r := NewRunner(nil, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx, Recognize{Asset: testAsset(t, 4, 4)}, nil)
	assert.Equal(t, KindCancelled, Classify(err))
	assert.Equal(t, Idle, r.State())
}

func TestRemoteWithoutClient(t *testing.T) {
	r := NewRunner(nil, nil)
	_, err := r.Run(context.Background(), Generate{Prompt: "x"}, nil)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Equal(t, KindUnavailable, Classify(err))
}

func TestStreamErrorSurfaces(t *testing.T) {
	boom := errors.New("connection reset by peer")
	sender := &fakeSender{reply: func(ai.ChatPayload) (*ai.Reply, error) {
		return &ai.Reply{Stream: ai.NewStream(io.NopCloser(io.MultiReader(strings.NewReader("half"), errReader{boom})))}, nil
	}}
	r := NewRunner(nil, sender)

	_, err := r.Run(context.Background(), Generate{Prompt: "x"}, nil)
	assert.Equal(t, KindStream, Classify(err))
	assert.Equal(t, "The response stream was interrupted", Message(err))
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
