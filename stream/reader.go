package stream

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

// ChunkReader is a byte source read in chunks. An empty chunk with a nil
// error means no data is available for this attempt; io.EOF means the peer
// is gone.
type ChunkReader interface {
	ReadChunk(ctx context.Context, max int) ([]byte, error)
}

// ChunkReaderFunc adapts a function to ChunkReader
type ChunkReaderFunc func(ctx context.Context, max int) ([]byte, error)

// ReadChunk calls f
func (f ChunkReaderFunc) ReadChunk(ctx context.Context, max int) ([]byte, error) {
	return f(ctx, max)
}

// FromReader reads chunks from r. Reads block as r does.
func FromReader(r io.Reader) ChunkReader {
	return ChunkReaderFunc(func(ctx context.Context, max int) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf := make([]byte, max)
		n, err := r.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		return nil, err
	})
}

// FromConn reads chunks from conn, waiting at most timeout for each one.
// An expired deadline yields an empty chunk.
func FromConn(conn net.Conn, timeout time.Duration) ChunkReader {
	return ChunkReaderFunc(func(ctx context.Context, max int) ([]byte, error) {
		deadline := time.Now().Add(timeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, errors.Wrap(err, "set read deadline")
		}
		buf := make([]byte, max)
		n, err := conn.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	})
}
