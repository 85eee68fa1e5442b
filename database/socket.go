package database

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/stream"
)

// JSONSocket is a Source reading a stream of JSON objects from a TCP peer,
// such as a sensor pushing reports.
type JSONSocket struct {
	address     string
	dialTimeout time.Duration
	bufferSize  int

	conn    net.Conn
	timeout time.Duration
	stream  *stream.JSONStream
}

// NewJSONSocket returns a source dialing address on Load. Reads are made in
// chunks of at most bufferSize bytes.
func NewJSONSocket(address string, dialTimeout time.Duration, bufferSize int) *JSONSocket {
	if bufferSize <= 0 {
		bufferSize = stream.DefaultBufferSize
	}
	return &JSONSocket{
		address:     address,
		dialTimeout: dialTimeout,
		bufferSize:  bufferSize,
	}
}

// Load implements Source
func (s *JSONSocket) Load(ctx context.Context) error {
	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return errors.Wrapf(err, "connect to %s", s.address)
	}
	// the read timeout is set per Pull, the closure reads it from s
	reader := stream.ChunkReaderFunc(func(ctx context.Context, max int) ([]byte, error) {
		return stream.FromConn(conn, s.timeout).ReadChunk(ctx, max)
	})
	jsonStream, err := stream.New(reader, s.bufferSize)
	if err != nil {
		_ = conn.Close()
		return err
	}
	s.conn = conn
	s.stream = jsonStream
	return nil
}

// Pull implements Source
func (s *JSONSocket) Pull(ctx context.Context, timeout time.Duration) (*message.RecordMessage, error) {
	if s.stream == nil {
		return nil, ErrNotLoaded
	}
	s.timeout = timeout
	object, ok, err := s.stream.ReadJSONObject(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "read from %s", s.address)
	}
	if !ok {
		if s.stream.EOF() {
			return nil, errors.Wrap(ErrDisconnected, s.address)
		}
		return nil, ErrExhausted
	}
	return recordFromJSON([]byte(object))
}

// Close implements Source
func (s *JSONSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.stream = nil
	return err
}
