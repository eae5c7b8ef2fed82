package codec

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	dataPrefix   = "data:"
	base64Marker = ";base64,"
)

// DecodeError reports a data URI or base64 payload that cannot be decoded.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode error: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode converts binary data to a standard base64 string.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode converts a standard base64 string back to binary data.
func Decode(b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, &DecodeError{Reason: "malformed base64", Err: err}
	}
	return data, nil
}

// EncodeDataURI returns data as a "data:<mime>;base64,<payload>" string.
func EncodeDataURI(mime string, data []byte) string {
	var sb strings.Builder
	sb.Grow(len(dataPrefix) + len(mime) + len(base64Marker) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString(dataPrefix)
	sb.WriteString(mime)
	sb.WriteString(base64Marker)
	sb.WriteString(Encode(data))
	return sb.String()
}

// DecodeDataURI splits a base64 data URI into its MIME type and payload bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, dataPrefix) {
		return "", nil, &DecodeError{Reason: "missing data: prefix"}
	}
	rest := uri[len(dataPrefix):]
	idx := strings.Index(rest, base64Marker)
	if idx < 0 {
		return "", nil, &DecodeError{Reason: "missing ;base64, marker"}
	}
	data, err := Decode(rest[idx+len(base64Marker):])
	if err != nil {
		return "", nil, err
	}
	return rest[:idx], data, nil
}

// IsDataURI reports whether s looks like a base64 data URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, dataPrefix) && strings.Contains(s, base64Marker)
}
