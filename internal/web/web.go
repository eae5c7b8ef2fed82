package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/imagetools/internal/ai"
	"github.com/local/imagetools/internal/imagerender"
	"github.com/local/imagetools/internal/metrics"
	"github.com/local/imagetools/internal/statuscheck"
	"github.com/local/imagetools/internal/storage"
	"github.com/local/imagetools/internal/tools"
)

// Loader resolves image references and uploads; *storage.Loader implements it.
type Loader interface {
	Load(ctx context.Context, ref string) (imagerender.Asset, error)
	FromReader(name string, r io.Reader, declared string) (imagerender.Asset, error)
	MaxBytes() int64
}

// StatusSource reports subsystem readiness; *statuscheck.Checker implements it.
type StatusSource interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Web exposes the tool runner over HTTP.
type Web struct {
	runner   *tools.Runner
	loader   Loader
	defaults imagerender.Config
	status   StatusSource
}

func New(runner *tools.Runner, loader Loader, defaults imagerender.Config) *Web {
	if defaults.Validate() != nil {
		defaults = imagerender.DefaultConfig()
	}
	return &Web{runner: runner, loader: loader, defaults: defaults}
}

// WithStatus enables /api/status.
func (w *Web) WithStatus(s StatusSource) *Web {
	w.status = s
	return w
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(wr http.ResponseWriter, r *http.Request) {
		wr.WriteHeader(http.StatusOK)
		_, _ = wr.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/state", w.handleState)
	if w.status != nil {
		mux.HandleFunc("/api/status", w.handleStatus)
	}
	mux.HandleFunc("/api/defaults", w.handleDefaults)
	mux.HandleFunc("/api/compress", w.handleCompress)
	mux.HandleFunc("/api/tools/", w.handleTool)
}

// toolInput is the JSON body accepted by every tool endpoint.
type toolInput struct {
	Prompt  string   `json:"prompt"`
	Source  string   `json:"source"`
	Quality *float64 `json:"quality"`
	MaxEdge *int     `json:"max_edge"`
}

type compressionView struct {
	MIME           string `json:"mime"`
	OriginalBytes  int    `json:"original_bytes"`
	ResultBytes    int    `json:"result_bytes"`
	OriginalWidth  int    `json:"original_width"`
	OriginalHeight int    `json:"original_height"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Ratio          int    `json:"ratio"`
	DataURI        string `json:"data_uri"`
}

type outcomeView struct {
	Tool        tools.Tool       `json:"tool"`
	DisplayText string           `json:"display_text"`
	Locator     ai.Locator       `json:"locator"`
	Compression *compressionView `json:"compression,omitempty"`
}

type errorView struct {
	Error string     `json:"error"`
	Kind  tools.Kind `json:"kind"`
}

func viewOf(out tools.Outcome) outcomeView {
	v := outcomeView{Tool: out.Tool, DisplayText: out.DisplayText, Locator: out.Locator}
	if c := out.Compression; c != nil {
		v.Compression = &compressionView{
			MIME:           c.MIME,
			OriginalBytes:  c.OriginalBytes,
			ResultBytes:    c.ResultBytes,
			OriginalWidth:  c.OriginalWidth,
			OriginalHeight: c.OriginalHeight,
			Width:          c.Width,
			Height:         c.Height,
			Ratio:          c.Ratio(),
			DataURI:        c.Encoded,
		}
	}
	return v
}

func (w *Web) handleState(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, map[string]string{"state": w.runner.State().String()})
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, w.status.Summary(r.Context()))
}

func (w *Web) handleDefaults(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, map[string]any{"quality": w.defaults.Quality, "max_edge": w.defaults.MaxEdge})
}

func (w *Web) handleCompress(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	in, asset, err := w.readInput(r, true)
	if err != nil {
		w.fail(wr, err)
		return
	}
	cfg, err := w.compressConfig(in)
	if err != nil {
		w.fail(wr, err)
		return
	}
	out, err := w.runner.Run(r.Context(), tools.Compress{Asset: asset, Config: cfg}, nil)
	if err != nil {
		w.fail(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, viewOf(out))
}

func (w *Web) handleTool(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wr.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tool, err := tools.ParseTool(strings.TrimPrefix(r.URL.Path, "/api/tools/"))
	if err != nil {
		writeJSON(wr, http.StatusNotFound, errorView{Error: tools.Message(err), Kind: tools.Classify(err)})
		return
	}
	if tool == tools.ToolCompress {
		w.handleCompress(wr, r)
		return
	}

	in, asset, err := w.readInput(r, tool != tools.ToolGenerate)
	if err != nil {
		w.fail(wr, err)
		return
	}

	var req tools.Request
	switch tool {
	case tools.ToolGenerate:
		req = tools.Generate{Prompt: in.Prompt}
	case tools.ToolRecognize:
		req = tools.Recognize{Asset: asset}
	case tools.ToolRemoveBackground:
		req = tools.RemoveBackground{Asset: asset}
	}

	if wantStream(r) {
		w.stream(wr, r, req)
		return
	}
	out, err := w.runner.RunRemoteTool(r.Context(), req, nil)
	if err != nil {
		w.fail(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, viewOf(out))
}

// stream writes one NDJSON line per progress update followed by the outcome or error.
func (w *Web) stream(wr http.ResponseWriter, r *http.Request, req tools.Request) {
	flusher, _ := wr.(http.Flusher)
	wr.Header().Set("Content-Type", "application/x-ndjson")
	wr.Header().Set("Cache-Control", "no-cache")
	wr.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(wr)
	emit := func(v any) {
		if err := enc.Encode(v); err != nil {
			log.Debug().Err(err).Msg("stream client went away")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	out, err := w.runner.RunRemoteTool(r.Context(), req, func(text string) {
		emit(map[string]string{"progress": text})
	})
	if err != nil {
		logFailure(err)
		emit(errorView{Error: tools.Message(err), Kind: tools.Classify(err)})
		return
	}
	emit(map[string]outcomeView{"result": viewOf(out)})
}

// readInput accepts either a multipart form with an "image" file or a JSON body.
func (w *Web) readInput(r *http.Request, needImage bool) (toolInput, imagerender.Asset, error) {
	var in toolInput
	r.Body = http.MaxBytesReader(nil, r.Body, w.loader.MaxBytes()+1<<20)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		return w.readMultipart(r, needImage)
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return in, imagerender.Asset{}, &ai.InvalidRequest{Message: "invalid json"}
	}
	// query parameters fill in what the body left out
	q := r.URL.Query()
	if in.Prompt == "" {
		in.Prompt = q.Get("prompt")
	}
	if in.Source == "" {
		in.Source = q.Get("source")
	}
	if err := parseTuning(&in, q.Get("quality"), q.Get("max_edge")); err != nil {
		return in, imagerender.Asset{}, err
	}
	if !needImage {
		return in, imagerender.Asset{}, nil
	}
	if in.Source == "" {
		return in, imagerender.Asset{}, &ai.InvalidRequest{Message: "missing image source"}
	}
	asset, err := w.loader.Load(r.Context(), in.Source)
	return in, asset, err
}

func (w *Web) readMultipart(r *http.Request, needImage bool) (toolInput, imagerender.Asset, error) {
	var in toolInput
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return in, imagerender.Asset{}, &ai.InvalidRequest{Message: "invalid multipart form"}
	}
	in.Prompt = r.FormValue("prompt")
	in.Source = r.FormValue("source")
	if err := parseTuning(&in, r.FormValue("quality"), r.FormValue("max_edge")); err != nil {
		return in, imagerender.Asset{}, err
	}
	if !needImage {
		return in, imagerender.Asset{}, nil
	}

	file, hdr, err := r.FormFile("image")
	if err != nil {
		if in.Source != "" {
			asset, err := w.loader.Load(r.Context(), in.Source)
			return in, asset, err
		}
		return in, imagerender.Asset{}, &ai.InvalidRequest{Message: "missing image"}
	}
	defer file.Close()
	asset, err := w.loader.FromReader(hdr.Filename, file, hdr.Header.Get("Content-Type"))
	return in, asset, err
}

func parseTuning(in *toolInput, quality, maxEdge string) error {
	if quality != "" && in.Quality == nil {
		q, err := strconv.ParseFloat(quality, 64)
		if err != nil {
			return &ai.InvalidRequest{Message: "quality must be a number"}
		}
		in.Quality = &q
	}
	if maxEdge != "" && in.MaxEdge == nil {
		m, err := strconv.Atoi(maxEdge)
		if err != nil {
			return &ai.InvalidRequest{Message: "max_edge must be an integer"}
		}
		in.MaxEdge = &m
	}
	return nil
}

func (w *Web) compressConfig(in toolInput) (imagerender.Config, error) {
	cfg := w.defaults
	if in.Quality != nil {
		cfg.Quality = *in.Quality
	}
	if in.MaxEdge != nil {
		cfg.MaxEdge = *in.MaxEdge
	}
	return cfg, cfg.Validate()
}

func (w *Web) fail(wr http.ResponseWriter, err error) {
	logFailure(err)
	writeJSON(wr, statusFor(err), errorView{Error: tools.Message(err), Kind: tools.Classify(err)})
}

func logFailure(err error) {
	kind := tools.Classify(err)
	ev := log.Warn()
	if kind == tools.KindInternal {
		ev = log.Error()
	}
	ev.Err(err).Str("kind", string(kind)).Msg("request failed")
}

func statusFor(err error) int {
	switch tools.Classify(err) {
	case tools.KindInvalid:
		return http.StatusBadRequest
	case tools.KindSource:
		if errors.Is(err, storage.ErrTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case tools.KindBusy:
		return http.StatusConflict
	case tools.KindDecode:
		return http.StatusUnprocessableEntity
	case tools.KindTransport, tools.KindStream:
		return http.StatusBadGateway
	case tools.KindCancelled:
		return http.StatusGatewayTimeout
	case tools.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func wantStream(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("stream"))
	return v == "1" || v == "true"
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	_ = json.NewEncoder(wr).Encode(v)
}
