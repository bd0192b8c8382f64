// Package midinorm converts the heterogeneous output shapes of
// notation-to-MIDI generators into a single canonical byte buffer.
//
// The upstream generator has changed its return shape across releases
// (raw buffers, buffer views, wrapper objects, per-version collections,
// percent-encoded binary strings) and falls back to an HTML download link
// when binary export is not honored. This package is the compatibility
// boundary: everything downstream sees only []byte.
package midinorm

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrUnsupportedFormat reports a shape no dispatch branch recognizes.
	ErrUnsupportedFormat = errors.New("unsupported midi output format")
	// ErrEncodingFailure reports an HTML-link string, meaning the upstream
	// generator fell back to link output instead of binary export.
	ErrEncodingFailure = errors.New("midi output encoded as html link")
	// ErrEmptyOutput reports an empty per-version collection.
	ErrEmptyOutput = errors.New("empty midi output collection")
)

// ByteViewer is a fixed-size view over an underlying buffer.
type ByteViewer interface {
	Bytes() []byte
}

// BufferConverter is a wrapper that can serialize itself to a buffer.
type BufferConverter interface {
	ToBuffer() []byte
}

// Wrapper field names probed, in priority order.
const (
	fieldBlob    = "blob"
	fieldBuffer  = "buffer"
	fieldData    = "data"
	fieldEncoded = "encoded"
)

// Normalize converts raw generator output into canonical MIDI bytes.
// versionIndex selects an element when the output is a per-version
// collection (multi-tune sources); an index outside the collection
// falls back to element zero, and the recursive step always uses zero.
func Normalize(raw any, versionIndex int) ([]byte, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: <nil>", ErrUnsupportedFormat)
	case []byte:
		return v, nil
	case ByteViewer:
		return v.Bytes(), nil
	case io.Reader:
		buf, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("reading midi blob: %w", err)
		}
		return buf, nil
	case []any:
		if len(v) == 0 {
			return nil, ErrEmptyOutput
		}
		idx := versionIndex
		if idx < 0 || idx >= len(v) {
			idx = 0 // unknown version: fall back to the first element
		}
		return Normalize(v[idx], 0)
	case map[string]any:
		return normalizeWrapper(v)
	case string:
		return normalizeString(v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedFormat, raw)
	}
}

// normalizeWrapper probes a structured wrapper for its payload. Order
// matters: nested blob, buffer-convertible value, raw buffer field,
// percent-encoded string field. First match wins.
func normalizeWrapper(m map[string]any) ([]byte, error) {
	if blob, ok := m[fieldBlob]; ok {
		return Normalize(blob, 0)
	}
	if conv, ok := m[fieldBuffer].(BufferConverter); ok {
		return conv.ToBuffer(), nil
	}
	if buf, ok := m[fieldData].([]byte); ok {
		return buf, nil
	}
	if s, ok := m[fieldEncoded].(string); ok {
		return normalizeString(s)
	}
	return nil, fmt.Errorf("%w: wrapper with keys %v", ErrUnsupportedFormat, keysOf(m))
}

func normalizeString(s string) ([]byte, error) {
	if strings.HasPrefix(s, "<") {
		return nil, ErrEncodingFailure
	}
	if strings.ContainsRune(s, '%') {
		decoded, err := percentDecode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
		}
		s = decoded
	}
	return []byte(s), nil
}

// percentDecode expands %XX escapes in place. Unlike url.QueryUnescape it
// leaves '+' alone; the upstream encoder only escapes raw bytes.
func percentDecode(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", errors.New("truncated percent escape")
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid percent escape %q", s[i:i+3])
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
