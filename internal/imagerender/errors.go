package imagerender

import "fmt"

// DecodeFailure means the source image could not be decoded
type DecodeFailure struct {
	MIME string
	Err  error
}

func (e *DecodeFailure) Error() string {
	return fmt.Sprintf("decode failure (%s): %v", e.MIME, e.Err)
}

func (e *DecodeFailure) Unwrap() error { return e.Err }

// ContextUnavailable means the target rendering surface could not be created
type ContextUnavailable struct {
	Width  int
	Height int
}

func (e *ContextUnavailable) Error() string {
	return fmt.Sprintf("rendering surface unavailable for %dx%d", e.Width, e.Height)
}

// EncodeFailure means re-encoding produced no usable output
type EncodeFailure struct {
	MIME string
	Err  error
}

func (e *EncodeFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("encode failure (%s): empty output", e.MIME)
	}
	return fmt.Sprintf("encode failure (%s): %v", e.MIME, e.Err)
}

func (e *EncodeFailure) Unwrap() error { return e.Err }

// InvalidConfig represents a compression config outside its bounds
type InvalidConfig struct {
	Message string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("invalid compression config: %s", e.Message)
}
