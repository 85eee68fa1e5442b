// Package stream extracts discrete JSON objects from a chunked byte source.
package stream

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// DefaultBufferSize is the chunk size used when none is given
const DefaultBufferSize = 4096

// ErrInvalidBufferSize is returned by New for a non positive buffer size
var ErrInvalidBufferSize = errors.New("buffer size must be positive")

// JSONStream buffers bytes read from a ChunkReader and hands them out one
// complete JSON object at a time.
//
// Objects are found by counting braces from the first '{'. Braces inside
// string literals are ignored. Bytes preceding an object are discarded. A
// JSONStream is not safe for concurrent use.
type JSONStream struct {
	reader     ChunkReader
	bufferSize int
	eof        bool

	// buf[:scanned] has been scanned with the state below
	buf      []byte
	scanned  int
	start    int
	depth    int
	inString bool
	escaped  bool
}

// New returns a JSONStream reading at most bufferSize bytes per read
func New(reader ChunkReader, bufferSize int) (*JSONStream, error) {
	if bufferSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidBufferSize, "got %d", bufferSize)
	}
	return &JSONStream{
		reader:     reader,
		bufferSize: bufferSize,
		start:      -1,
	}, nil
}

// ReadJSONObject returns the next complete object. ok is false when a read
// produced no bytes before an object completed; the partial bytes stay
// buffered for the next call.
func (s *JSONStream) ReadJSONObject(ctx context.Context) (object string, ok bool, err error) {
	for {
		if object, ok := s.extract(); ok {
			return object, true, nil
		}
		chunk, err := s.reader.ReadChunk(ctx, s.bufferSize)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", false, err
		}
		if len(chunk) == 0 {
			if err != nil {
				s.eof = true
			}
			return "", false, nil
		}
		s.buf = append(s.buf, chunk...)
	}
}

// EOF reports whether the reader has signalled io.EOF
func (s *JSONStream) EOF() bool {
	return s.eof
}

// Buffered returns the bytes held for the next object
func (s *JSONStream) Buffered() []byte {
	return s.buf
}

// extract scans the unscanned bytes and cuts the first complete object
func (s *JSONStream) extract() (string, bool) {
	for ; s.scanned < len(s.buf); s.scanned++ {
		c := s.buf[s.scanned]
		if s.depth == 0 {
			if c == '{' {
				s.start = s.scanned
				s.depth = 1
			}
			continue
		}
		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
			}
			continue
		}
		switch c {
		case '"':
			s.inString = true
		case '{':
			s.depth++
		case '}':
			s.depth--
			if s.depth == 0 {
				end := s.scanned + 1
				object := string(s.buf[s.start:end])
				s.consume(end)
				return object, true
			}
		}
	}
	if s.depth == 0 {
		// nothing but noise before the next object
		s.consume(len(s.buf))
	}
	return "", false
}

// consume drops buf[:n] and resets the scan state
func (s *JSONStream) consume(n int) {
	rest := len(s.buf) - n
	copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
	s.scanned = 0
	s.start = -1
	s.depth = 0
	s.inString = false
	s.escaped = false
}
