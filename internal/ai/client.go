package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultEndpoint = "https://ai.kaiho.cc/v1/chat/completions"

var ErrMissingAPIKey = errors.New("missing AI_API_KEY")

// ClientOptions configures the chat-completions transport.
type ClientOptions struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration // whole request, including streamed body; 0 disables
	HTTPClient *http.Client
}

// Client posts chat payloads to a single endpoint. It never retries.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
}

func NewClient(opts ClientOptions) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{http: hc, endpoint: endpoint, apiKey: opts.APIKey, timeout: opts.Timeout}
}

// Reply holds exactly one of Stream (stream=true) or Completion.
type Reply struct {
	Stream     *Stream
	Completion *Completion
}

// Send posts payload. A non-2xx status returns *TransportError. For streaming
// payloads the caller must drain or Close the returned Stream.
func (c *Client) Send(ctx context.Context, payload ChatPayload) (*Reply, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	log.Debug().Str("model", payload.Model).Bool("stream", payload.Stream).Int("body_bytes", len(body)).Msg("sending chat request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if payload.Stream {
		return &Reply{Stream: NewStream(&cancelOnClose{ReadCloser: resp.Body, cancel: cancel})}, nil
	}

	defer cancel()
	defer resp.Body.Close()
	var completion Completion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, &TransportError{Status: resp.StatusCode, StatusText: "no choices"}
	}
	log.Debug().
		Str("model", payload.Model).
		Int("tokens_in", completion.Usage.PromptTokens).
		Int("tokens_out", completion.Usage.CompletionTokens).
		Msg("chat completion received")
	return &Reply{Completion: &completion}, nil
}

// cancelOnClose ties the request context to the lifetime of a streamed body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
