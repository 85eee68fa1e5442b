package message

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestCodecControlMessages(t *testing.T) {
	for _, msg := range []Message{
		&StartMessage{},
		&PoisonPillMessage{},
		&OKMessage{Sender: "puller"},
		NewError("dispatcher", "Actor already initialized"),
	} {
		data, err := Encode(msg)
		require.NoError(t, err)
		decoded, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	}
}

func TestCodecRecordMessage(t *testing.T) {
	payload, err := structpb.NewStruct(map[string]interface{}{
		"sensor": "rapl",
		"values": []interface{}{1.5, 2.0},
		"nested": map[string]interface{}{"socket": 0.0},
	})
	require.NoError(t, err)
	ts := time.Date(2026, 10, 16, 12, 0, 0, 123456789, time.UTC)
	record := &RecordMessage{ID: "42", Sender: "puller", Key: "node-1", Timestamp: ts, Payload: payload}

	data, err := Encode(record)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	got, ok := decoded.(*RecordMessage)
	require.True(t, ok)
	assert.Equal(t, "42", got.ID)
	assert.Equal(t, "puller", got.Sender)
	assert.Equal(t, "node-1", got.Key)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.True(t, proto.Equal(payload, got.Payload))
}

func TestCodecRecordWithoutPayload(t *testing.T) {
	data, err := Encode(&RecordMessage{ID: "1"})
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.NotNil(t, decoded.(*RecordMessage).Payload)
}

func TestDecodeUnknownKind(t *testing.T) {
	data, err := proto.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"kind": structpb.NewStringValue("report"),
	}})
	require.NoError(t, err)
	_, err = Decode(data)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	assert.True(t, errors.Is(err, ErrNilMessage))
}

func TestIsControl(t *testing.T) {
	assert.True(t, IsControl(&StartMessage{}))
	assert.True(t, IsControl(&PoisonPillMessage{}))
	assert.False(t, IsControl(&OKMessage{}))
	assert.False(t, IsControl(&RecordMessage{}))
}
