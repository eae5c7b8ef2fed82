package ai

import (
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

const streamReadSize = 4096

// Stream turns a reply body into a growing text buffer, one read at a time.
// It cannot be rewound; a new request yields a new Stream.
//
//	for s.Next() {
//		render(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	body    io.ReadCloser
	buf     []byte
	pending []byte // incomplete UTF-8 tail held until the next read
	text    strings.Builder
	chunk   string
	chunks  int
	err     error
	done    bool
}

// NewStream wraps body. The Stream owns body and closes it once drained.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, buf: make([]byte, streamReadSize)}
}

// Next reads the next chunk and appends it to the buffer. It returns false at
// end of stream or on error.
func (s *Stream) Next() bool {
	for !s.done {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.chunks++
			decoded := s.decode(s.buf[:n], false)
			if err != nil {
				s.finish(err)
				decoded += s.flush()
			}
			if decoded != "" {
				s.chunk = decoded
				s.text.WriteString(decoded)
				return true
			}
			continue
		}
		if err != nil {
			s.finish(err)
			if tail := s.flush(); tail != "" {
				s.chunk = tail
				s.text.WriteString(tail)
				return true
			}
			return false
		}
	}
	return false
}

func (s *Stream) finish(err error) {
	s.done = true
	if !errors.Is(err, io.EOF) {
		s.err = &DecodeStreamError{Chunks: s.chunks, Err: err}
	}
	_ = s.body.Close()
}

// decode returns the longest valid UTF-8 prefix of pending+p and keeps an
// incomplete trailing rune for later. Invalid bytes become U+FFFD.
func (s *Stream) decode(p []byte, final bool) string {
	data := append(s.pending, p...)
	s.pending = nil
	if !final {
		cut := len(data)
		for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
			if utf8.RuneStart(data[i]) {
				if !utf8.FullRune(data[i:]) {
					cut = i
				}
				break
			}
		}
		s.pending = append([]byte(nil), data[cut:]...)
		data = data[:cut]
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

func (s *Stream) flush() string {
	if len(s.pending) == 0 {
		return ""
	}
	return s.decode(nil, true)
}

// Text returns everything received so far.
func (s *Stream) Text() string { return s.text.String() }

// Chunk returns the text appended by the latest Next.
func (s *Stream) Chunk() string { return s.chunk }

// Chunks returns the number of reads that delivered bytes.
func (s *Stream) Chunks() int { return s.chunks }

// Err returns the first non-EOF read error.
func (s *Stream) Err() error { return s.err }

// Close releases the body early. It is safe to call after the stream ends.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}
