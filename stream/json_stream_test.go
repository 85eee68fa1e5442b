package stream

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunks hands out one queued chunk per read and an empty chunk once drained.
// Like a socket, it ignores the requested size.
type chunks struct {
	queue []string
	reads int
}

func (c *chunks) ReadChunk(_ context.Context, _ int) ([]byte, error) {
	c.reads++
	if len(c.queue) == 0 {
		return nil, nil
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	return []byte(next), nil
}

func newStream(t *testing.T, bufferSize int, queue ...string) (*JSONStream, *chunks) {
	t.Helper()
	source := &chunks{queue: queue}
	s, err := New(source, bufferSize)
	require.NoError(t, err)
	return s, source
}

func readObject(t *testing.T, s *JSONStream) (string, bool) {
	t.Helper()
	object, ok, err := s.ReadJSONObject(context.Background())
	require.NoError(t, err)
	return object, ok
}

func TestReadFromEmptySource(t *testing.T) {
	s, _ := newStream(t, DefaultBufferSize)
	_, ok := readObject(t, s)
	assert.False(t, ok)
}

func TestReadOneObject(t *testing.T) {
	s, _ := newStream(t, DefaultBufferSize, `{"a":1}`)
	object, ok := readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, object)

	_, ok = readObject(t, s)
	assert.False(t, ok)
}

func TestReadIncompleteObject(t *testing.T) {
	s, _ := newStream(t, DefaultBufferSize, `{"a":1`)
	_, ok := readObject(t, s)
	assert.False(t, ok)
	assert.Equal(t, `{"a":1`, string(s.Buffered()))
}

func TestIncompleteObjectCompletedLater(t *testing.T) {
	s, source := newStream(t, DefaultBufferSize, `{"a":1`)
	_, ok := readObject(t, s)
	require.False(t, ok)

	source.queue = append(source.queue, `,"b":{"c":2}}`)
	object, ok := readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"a":1,"b":{"c":2}}`, object)
}

func TestReadCompleteThenIncomplete(t *testing.T) {
	s, _ := newStream(t, DefaultBufferSize, `{"a":1}{"a":1`)
	object, ok := readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, object)

	_, ok = readObject(t, s)
	assert.False(t, ok)
	assert.Equal(t, `{"a":1`, string(s.Buffered()))
}

func TestReadTwoObjectsFromOneChunk(t *testing.T) {
	s, source := newStream(t, DefaultBufferSize, `{"a":1}{"b":2}`)

	object, ok := readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, object)
	// the second object waits in the buffer
	assert.Equal(t, `{"b":2}`, string(s.Buffered()))
	reads := source.reads

	object, ok = readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"b":2}`, object)
	assert.Equal(t, reads, source.reads, "a buffered object needs no read")

	_, ok = readObject(t, s)
	assert.False(t, ok)
}

func TestObjectLargerThanBufferSize(t *testing.T) {
	const object = `{"a":1}`
	source := strings.NewReader(object)
	s, err := New(FromReader(source), len(object)-2)
	require.NoError(t, err)

	got, ok, err := s.ReadJSONObject(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, object, got)

	_, ok, err = s.ReadJSONObject(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, s.EOF())
}

func TestObjectSplitAcrossManyReads(t *testing.T) {
	s, _ := newStream(t, 2, `{"te`, `mp":`, `{"cpu":`, `42}`, `}{"n":0}`)
	object, ok := readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"temp":{"cpu":42}}`, object)

	object, ok = readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"n":0}`, object)
}

func TestBracesInsideStrings(t *testing.T) {
	s, _ := newStream(t, DefaultBufferSize, `{"a":"}"}{"b":"{\"}"}`)
	object, ok := readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"a":"}"}`, object)

	object, ok = readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"b":"{\"}"}`, object)
}

func TestNoiseBetweenObjectsIsSkipped(t *testing.T) {
	s, _ := newStream(t, DefaultBufferSize, "\n  {\"a\":1}\n", "\r\n{\"b\":2}")
	object, ok := readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, object)

	object, ok = readObject(t, s)
	require.True(t, ok)
	assert.Equal(t, `{"b":2}`, object)
}

func TestInvalidBufferSize(t *testing.T) {
	_, err := New(&chunks{}, 0)
	assert.True(t, errors.Is(err, ErrInvalidBufferSize))
}

func TestReaderErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	s, err := New(ChunkReaderFunc(func(context.Context, int) ([]byte, error) {
		return nil, boom
	}), 8)
	require.NoError(t, err)
	_, ok, err := s.ReadJSONObject(context.Background())
	assert.False(t, ok)
	assert.True(t, errors.Is(err, boom))
}

func TestFromConnTimeoutYieldsNoObject(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s, err := New(FromConn(client, 20*time.Millisecond), 16)
	require.NoError(t, err)

	go func() {
		_, _ = server.Write([]byte(`{"a":`))
	}()
	// the first read gets the partial object, the next one times out
	_, ok, err := s.ReadJSONObject(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.EOF())

	go func() {
		_, _ = server.Write([]byte(`1}`))
	}()
	object, ok, err := s.ReadJSONObject(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, object)
}
