package database

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/super-flat/pipeline/message"
	"google.golang.org/protobuf/types/known/structpb"
)

func record(t *testing.T, id string, fields map[string]interface{}) *message.RecordMessage {
	t.Helper()
	payload, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return &message.RecordMessage{ID: id, Timestamp: time.Unix(1700000000, 0).UTC(), Payload: payload}
}

func TestMemoryPullInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(record(t, "1", nil), record(t, "2", nil))
	require.NoError(t, store.Load(ctx))

	first, err := store.Pull(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", first.ID)
	second, err := store.Pull(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2", second.ID)

	_, err = store.Pull(ctx, 10*time.Millisecond)
	assert.True(t, errors.Is(err, ErrExhausted))
}

func TestMemoryPullWaitsForStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Load(ctx))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = store.Store(ctx, record(t, "late", nil))
	}()
	got, err := store.Pull(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", got.ID)
}

func TestMemoryRequiresLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(record(t, "1", nil))
	_, err := store.Pull(ctx, time.Millisecond)
	assert.True(t, errors.Is(err, ErrNotLoaded))
	assert.True(t, errors.Is(store.Store(ctx, record(t, "2", nil)), ErrNotLoaded))
}

func TestMemoryFailLoad(t *testing.T) {
	boom := errors.New("unreachable")
	store := NewMemory().FailLoad(boom)
	assert.True(t, errors.Is(store.Load(context.Background()), boom))
}

func TestWriterPrintsJSONLines(t *testing.T) {
	ctx := context.Background()
	out := &bytes.Buffer{}
	sink := NewWriter(out)
	require.NoError(t, sink.Load(ctx))

	rec := record(t, "7", map[string]interface{}{"power": 12.5})
	rec.Key = "node-1"
	rec.Sender = "puller"
	require.NoError(t, sink.Store(ctx, rec))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &decoded))
	assert.Equal(t, "7", decoded["id"])
	assert.Equal(t, "node-1", decoded["key"])
	assert.Equal(t, "puller", decoded["sender"])
	assert.Equal(t, "2023-11-14T22:13:20Z", decoded["timestamp"])
	assert.Equal(t, map[string]interface{}{"power": 12.5}, decoded["payload"])
}

func TestRecordFromJSON(t *testing.T) {
	rec, err := recordFromJSON([]byte(`{"id":"r1","timestamp":"2026-01-02T03:04:05Z","cpu":3}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	assert.True(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Equal(rec.Timestamp))
	assert.Equal(t, float64(3), rec.Payload.GetFields()["cpu"].GetNumberValue())

	rec, err = recordFromJSON([]byte(`{"cpu":3}`))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	_, err = recordFromJSON([]byte(`{"cpu":}`))
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestJSONSocketPullsObjects(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte(`{"id":"a","v":1}{"id":"b",`))
		time.Sleep(20 * time.Millisecond)
		_, _ = conn.Write([]byte(`"v":2}{"bad":}` + "\n"))
	}()

	ctx := context.Background()
	source := NewJSONSocket(listener.Addr().String(), time.Second, 8)
	require.NoError(t, source.Load(ctx))
	defer source.Close()

	first, err := source.Pull(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)

	second, err := source.Pull(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", second.ID)
	assert.Equal(t, float64(2), second.Payload.GetFields()["v"].GetNumberValue())

	_, err = source.Pull(ctx, time.Second)
	assert.True(t, errors.Is(err, ErrMalformedRecord))

	// the peer hangs up after the last object
	_, err = source.Pull(ctx, time.Second)
	assert.True(t, errors.Is(err, ErrDisconnected))
}

func TestJSONSocketLoadUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	source := NewJSONSocket(address, 200*time.Millisecond, 0)
	assert.Error(t, source.Load(context.Background()))
	_, err = source.Pull(context.Background(), time.Millisecond)
	assert.True(t, errors.Is(err, ErrNotLoaded))
}

func TestPostgresLoadUnreachable(t *testing.T) {
	store := NewPostgres("postgres://telemetry@127.0.0.1:1/telemetry?sslmode=disable&connect_timeout=1",
		WithPingTimeout(2*time.Second))
	err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to postgres")

	_, err = store.Pull(context.Background(), time.Millisecond)
	assert.True(t, errors.Is(err, ErrNotLoaded))
	assert.NoError(t, store.Close())
}

func TestPostgresSinkLoadUnreachable(t *testing.T) {
	sink := NewPostgresSink("postgres://telemetry@127.0.0.1:1/telemetry?sslmode=disable&connect_timeout=1",
		WithPingTimeout(2*time.Second))
	err := sink.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to postgres")
	assert.True(t, errors.Is(sink.Store(context.Background(), &message.RecordMessage{}), ErrNotLoaded))
	assert.NoError(t, sink.Close())
}

func TestPostgresOnlySinkCreatesTable(t *testing.T) {
	var source interface{} = NewPostgres("postgres://localhost/telemetry")
	_, isSink := source.(Sink)
	assert.False(t, isSink)

	var sink Sink = NewPostgresSink("postgres://localhost/telemetry")
	assert.NotNil(t, sink)
}

func TestPostgresQuotesTableName(t *testing.T) {
	sink := NewPostgresSink("postgres://localhost/telemetry", WithTable(`rapl"; DROP TABLE users; --`))
	quoted := `"rapl""; DROP TABLE users; --"`

	assert.Contains(t, sink.selectQuery(), "FROM "+quoted+" WHERE")
	assert.Contains(t, sink.insertQuery(), "INSERT INTO "+quoted+" (")
	assert.Contains(t, sink.createQuery(), "CREATE TABLE IF NOT EXISTS "+quoted+" (")
	assert.Contains(t, NewPostgres("postgres://localhost/telemetry").selectQuery(), `FROM "records" WHERE`)
}

func TestPostgresBadDSN(t *testing.T) {
	store := NewPostgres("postgres://%zz")
	err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse postgres dsn")
}
