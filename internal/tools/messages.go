package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/local/imagetools/internal/ai"
	"github.com/local/imagetools/internal/codec"
	"github.com/local/imagetools/internal/imagerender"
	"github.com/local/imagetools/internal/storage"
)

// Kind groups pipeline errors for presentation.
type Kind string

const (
	KindNone        Kind = ""
	KindInvalid     Kind = "invalid_request"
	KindBusy        Kind = "busy"
	KindSource      Kind = "source_error"
	KindDecode      Kind = "decode_failure"
	KindContext     Kind = "context_unavailable"
	KindEncode      Kind = "encode_failure"
	KindTransport   Kind = "transport_error"
	KindStream      Kind = "stream_error"
	KindCancelled   Kind = "cancelled"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrBusy) {
		return KindBusy
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	if errors.Is(err, ai.ErrMissingAPIKey) || errors.Is(err, ErrRemoteUnavailable) {
		return KindUnavailable
	}

	var (
		invalidReq  *ai.InvalidRequest
		invalidCfg  *imagerender.InvalidConfig
		decodeFail  *imagerender.DecodeFailure
		codecErr    *codec.DecodeError
		ctxUnavail  *imagerender.ContextUnavailable
		encodeFail  *imagerender.EncodeFailure
		transport   *ai.TransportError
		streamError *ai.DecodeStreamError
		loadErr     *storage.LoadError
	)
	switch {
	case errors.As(err, &invalidReq), errors.As(err, &invalidCfg):
		return KindInvalid
	case errors.As(err, &loadErr):
		return KindSource
	case errors.As(err, &decodeFail), errors.As(err, &codecErr):
		return KindDecode
	case errors.As(err, &ctxUnavail):
		return KindContext
	case errors.As(err, &encodeFail):
		return KindEncode
	case errors.As(err, &transport):
		return KindTransport
	case errors.As(err, &streamError):
		return KindStream
	}
	return KindInternal
}

// Message turns any pipeline error into text fit to show a user.
func Message(err error) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindInvalid:
		var ir *ai.InvalidRequest
		if errors.As(err, &ir) {
			return "Invalid request: " + ir.Message
		}
		var ic *imagerender.InvalidConfig
		if errors.As(err, &ic) {
			return "Invalid compression settings: " + ic.Message
		}
		return "Invalid request"
	case KindSource:
		if errors.Is(err, storage.ErrTooLarge) {
			return "The image is too large"
		}
		var le *storage.LoadError
		errors.As(err, &le)
		return "Could not load image: " + le.Reason
	case KindBusy:
		return "Another operation is still running, please wait for it to finish"
	case KindDecode:
		return "The image could not be read; please choose a valid image file"
	case KindContext:
		return "The image could not be prepared for compression"
	case KindEncode:
		return "Image compression failed"
	case KindTransport:
		var te *ai.TransportError
		errors.As(err, &te)
		return fmt.Sprintf("API request failed: %d %s", te.Status, te.StatusText)
	case KindStream:
		return "The response stream was interrupted"
	case KindCancelled:
		return "The operation was cancelled or timed out"
	case KindUnavailable:
		return "Remote tools are not configured"
	default:
		return "Something went wrong: " + err.Error()
	}
}
