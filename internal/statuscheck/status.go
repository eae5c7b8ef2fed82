package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Pinger models the minimal S3 capability we need for status checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the services the tools depend on.
type Checker struct {
	state      func() string
	s3         Pinger
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// Options configures the Checker.
type Options struct {
	// State returns the runner state label ("idle" or "running").
	State      func() string
	S3         Pinger
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Runner Status `json:"runner"`
	AI     Status `json:"ai"`
	S3     Status `json:"s3"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Checker{
		state:      opts.State,
		s3:         opts.S3,
		httpClient: client,
		endpoint:   strings.TrimSpace(opts.Endpoint),
		apiKey:     strings.TrimSpace(opts.APIKey),
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Runner: c.checkRunner(),
		AI:     c.checkAI(ctx),
		S3:     c.checkS3(ctx),
	}
}

func (c *Checker) checkRunner() Status {
	if c.state == nil {
		return Status{OK: false, Message: "runner unavailable"}
	}
	// a running pipeline is healthy, it only means new submissions are refused
	return Status{OK: true, Message: c.state()}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkAI lists models on the endpoint's API root, which any
// OpenAI-compatible gateway serves without spending tokens.
func (c *Checker) checkAI(ctx context.Context) Status {
	if c.apiKey == "" {
		return Status{OK: false, Message: "API key missing"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL(c.endpoint), nil)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Status{OK: true, Message: "Available"}
}

func modelsURL(endpoint string) string {
	if base, ok := strings.CutSuffix(endpoint, "/chat/completions"); ok {
		return base + "/models"
	}
	return strings.TrimRight(endpoint, "/") + "/models"
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
