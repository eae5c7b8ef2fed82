package tools

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/imagetools/internal/ai"
	"github.com/local/imagetools/internal/imagerender"
	"github.com/local/imagetools/internal/logger"
	"github.com/local/imagetools/internal/metrics"
)

var (
	// ErrBusy is returned when a tool is submitted while another one is running.
	ErrBusy = errors.New("another tool is already running")

	ErrRemoteUnavailable = errors.New("remote tools are not configured")
)

// State is the runner's lifecycle position.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Sender dispatches a chat payload; *ai.Client implements it.
type Sender interface {
	Send(ctx context.Context, payload ai.ChatPayload) (*ai.Reply, error)
}

// ProgressFunc receives the growing reply text after every streamed chunk.
type ProgressFunc func(text string)

// Outcome is what a caller renders: a display text and, when found, an image locator.
type Outcome struct {
	Tool        Tool
	DisplayText string
	Locator     ai.Locator
	Compression *imagerender.Result
}

// Runner executes one tool at a time. A second submission while a pipeline is
// in flight fails fast with ErrBusy; the runner returns to Idle after every
// success or failure.
type Runner struct {
	sem     chan struct{}
	state   atomic.Int32
	builder *ai.Builder
	client  Sender
}

func NewRunner(builder *ai.Builder, client Sender) *Runner {
	if builder == nil {
		builder = ai.NewBuilder(ai.BuilderOptions{})
	}
	return &Runner{sem: make(chan struct{}, 1), builder: builder, client: client}
}

// State reports whether a pipeline is in flight.
func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) acquire() (func(), error) {
	select {
	case r.sem <- struct{}{}:
		r.state.Store(int32(Running))
		return func() {
			r.state.Store(int32(Idle))
			<-r.sem
		}, nil
	default:
		metrics.IncBusy()
		return nil, ErrBusy
	}
}

// Run executes any tool request.
func (r *Runner) Run(ctx context.Context, req Request, onProgress ProgressFunc) (Outcome, error) {
	if req == nil {
		return Outcome{}, &ai.InvalidRequest{Message: "no tool selected"}
	}
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	release, err := r.acquire()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	d := &dispatch{
		r:          r,
		ctx:        ctx,
		onProgress: onProgress,
		log:        logger.ForRequest(uuid.NewString(), string(req.Tool())),
	}
	if err := req.Accept(d); err != nil {
		d.log.Warn().Err(err).Msg("tool failed")
		return Outcome{}, err
	}
	return d.out, nil
}

// RunCompression compresses asset locally.
func (r *Runner) RunCompression(ctx context.Context, asset imagerender.Asset, cfg imagerender.Config) (imagerender.Result, error) {
	out, err := r.Run(ctx, Compress{Asset: asset, Config: cfg}, nil)
	if err != nil {
		return imagerender.Result{}, err
	}
	return *out.Compression, nil
}

// RunRemoteTool executes a Generate, Recognize or RemoveBackground request.
func (r *Runner) RunRemoteTool(ctx context.Context, req Request, onProgress ProgressFunc) (Outcome, error) {
	if _, local := req.(Compress); local {
		return Outcome{}, &ai.InvalidRequest{Message: "compress is not a remote tool"}
	}
	return r.Run(ctx, req, onProgress)
}

// dispatch runs a single accepted request while the runner is held.
type dispatch struct {
	r          *Runner
	ctx        context.Context
	onProgress ProgressFunc
	log        zerolog.Logger
	out        Outcome
}

func (d *dispatch) VisitCompress(c Compress) error {
	start := time.Now()
	res, err := imagerender.Compress(d.ctx, c.Asset, c.Config)
	if err != nil {
		metrics.ObserveCompression(c.Asset.MIME(), "error", c.Asset.Size(), 0, time.Since(start))
		return err
	}
	metrics.ObserveCompression(res.MIME, "success", res.OriginalBytes, res.ResultBytes, time.Since(start))

	d.log.Info().
		Int("original_bytes", res.OriginalBytes).
		Int("result_bytes", res.ResultBytes).
		Int("ratio", res.Ratio()).
		Dur("took", time.Since(start)).
		Msg("compression finished")

	d.out = Outcome{
		Tool:        ToolCompress,
		DisplayText: compressionSummary(res, c.Config.Quality),
		Locator:     ai.Locator{Kind: ai.LocatorDataURI, Value: res.Encoded},
		Compression: &res,
	}
	return nil
}

func (d *dispatch) VisitGenerate(g Generate) error {
	payload, err := d.r.builder.Generate(g.Prompt)
	if err != nil {
		return err
	}
	return d.remote(ToolGenerate, payload)
}

func (d *dispatch) VisitRecognize(rq Recognize) error {
	payload, err := d.r.builder.Recognize(rq.Asset.DataURI())
	if err != nil {
		return err
	}
	return d.remote(ToolRecognize, payload)
}

func (d *dispatch) VisitRemoveBackground(rb RemoveBackground) error {
	payload, err := d.r.builder.RemoveBackground(rb.Asset.DataURI())
	if err != nil {
		return err
	}
	return d.remote(ToolRemoveBackground, payload)
}

func (d *dispatch) remote(tool Tool, payload ai.ChatPayload) error {
	if d.r.client == nil {
		return ErrRemoteUnavailable
	}
	start := time.Now()
	text, err := d.send(payload)
	metrics.ObserveRemote(string(tool), payload.Model, resultLabel(err), time.Since(start))
	if err != nil {
		return err
	}

	loc := ai.ExtractLocator(text)
	metrics.IncLocator(string(loc.Kind))

	display := text
	if !payload.Stream {
		display = replySummary(text, loc)
	}

	d.log.Info().
		Str("model", payload.Model).
		Bool("stream", payload.Stream).
		Int("reply_chars", len(text)).
		Str("locator", string(loc.Kind)).
		Dur("took", time.Since(start)).
		Msg("remote tool finished")

	d.out = Outcome{Tool: tool, DisplayText: display, Locator: loc}
	return nil
}

// send returns the final reply text, feeding progress while streaming.
func (d *dispatch) send(payload ai.ChatPayload) (string, error) {
	reply, err := d.r.client.Send(d.ctx, payload)
	if err != nil {
		return "", err
	}
	if reply.Stream == nil {
		return reply.Completion.Content(), nil
	}

	s := reply.Stream
	defer s.Close()
	for s.Next() {
		metrics.IncStreamChunk()
		if d.onProgress != nil {
			d.onProgress(s.Text())
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	d.log.Debug().Int("chunks", s.Chunks()).Msg("stream drained")
	return s.Text(), nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case ai.TransportStatus(err) != 0:
		return fmt.Sprintf("http_%d", ai.TransportStatus(err))
	default:
		return "error"
	}
}

func compressionSummary(res imagerender.Result, quality float64) string {
	const mb = 1024 * 1024
	return fmt.Sprintf("Compression succeeded!\n"+
		"Original size: %.2fMB\n"+
		"Compressed size: %.2fMB\n"+
		"Dimensions: %dx%d -> %dx%d\n"+
		"Ratio: %d%% | Quality: %.0f%%",
		float64(res.OriginalBytes)/mb,
		float64(res.ResultBytes)/mb,
		res.OriginalWidth, res.OriginalHeight, res.Width, res.Height,
		res.Ratio(), quality*100)
}

func replySummary(content string, loc ai.Locator) string {
	switch loc.Kind {
	case ai.LocatorMarkdown, ai.LocatorBareURL:
		return "Image link: " + loc.Value
	case ai.LocatorDataURI:
		return "Image returned as embedded Base64 data"
	default:
		return "Result: " + content
	}
}
