package database

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/message"
)

// Writer is a Sink printing one JSON line per record
type Writer struct {
	out io.Writer
	mtx sync.Mutex
}

// NewWriter returns a Writer printing to out
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Load implements Sink
func (w *Writer) Load(ctx context.Context) error {
	return ctx.Err()
}

// Store implements Sink
func (w *Writer) Store(_ context.Context, record *message.RecordMessage) error {
	line, err := recordToJSON(record)
	if err != nil {
		return err
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if _, err := w.out.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "write record")
	}
	return nil
}

// Close implements Sink
func (w *Writer) Close() error {
	if closer, ok := w.out.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
