package actors_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/super-flat/pipeline/actors"
	"github.com/super-flat/pipeline/message"
	"github.com/super-flat/pipeline/transport"
	"google.golang.org/protobuf/types/known/structpb"
)

const replyTimeout = 2 * time.Second

// recorder is a behavior keeping every data message it receives
type recorder struct {
	received chan message.Message
}

func (r *recorder) Init(context.Context) error { return nil }
func (r *recorder) Close() error                { return nil }

func (r *recorder) Receive(_ context.Context, msg message.Message) error {
	r.received <- msg
	return nil
}

// stalled is a behavior that blocks on every data message until stopped
type stalled struct{}

func (stalled) Init(context.Context) error { return nil }
func (stalled) Close() error                { return nil }

func (stalled) Receive(ctx context.Context, _ message.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

// spawnStalled starts an initialized actor that never gets through its
// mailbox of size mailbox
func spawnStalled(t *testing.T, net *transport.Context, name string, mailbox int) *actors.ActorRef {
	t.Helper()
	ref := actors.NewActorRef(name, stalled{}, net, actors.WithMailboxSize(mailbox))
	require.NoError(t, actors.Spawn(context.Background(), ref, replyTimeout))
	t.Cleanup(ref.Terminate)
	return ref
}

// spawnProbe starts an initialized actor recording what reaches it
func spawnProbe(t *testing.T, net *transport.Context, name string) (*actors.ActorRef, <-chan message.Message) {
	t.Helper()
	rec := &recorder{received: make(chan message.Message, 100)}
	ref := actors.NewActorRef(name, rec, net)
	require.NoError(t, actors.Spawn(context.Background(), ref, replyTimeout))
	t.Cleanup(ref.Terminate)
	return ref, rec.received
}

// connect starts ref and connects both of its channels
func connect(t *testing.T, ref *actors.ActorRef) *actors.ActorRef {
	t.Helper()
	require.NoError(t, ref.Start(context.Background()))
	require.NoError(t, ref.ConnectData())
	require.NoError(t, ref.ConnectControl())
	t.Cleanup(ref.Terminate)
	return ref
}

func newRecord(t *testing.T, id, key string, fields map[string]interface{}) *message.RecordMessage {
	t.Helper()
	payload, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return &message.RecordMessage{
		ID:        id,
		Key:       key,
		Timestamp: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		Payload:   payload,
	}
}

func receive(t *testing.T, messages <-chan message.Message) message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		return msg
	case <-time.After(replyTimeout):
		t.Fatal("no message received")
		return nil
	}
}

func assertNothingReceived(t *testing.T, messages <-chan message.Message) {
	t.Helper()
	select {
	case msg := <-messages:
		t.Fatalf("unexpected message %s", msg.Kind())
	case <-time.After(50 * time.Millisecond):
	}
}
