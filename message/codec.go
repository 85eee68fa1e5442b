package message

import (
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	// ErrUnknownKind is returned when decoding a frame whose kind is not part
	// of the message set
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrNilMessage is returned when encoding a nil message
	ErrNilMessage = errors.New("nil message")
)

const (
	fieldKind         = "kind"
	fieldSender       = "sender"
	fieldErrorMessage = "error_message"
	fieldID           = "id"
	fieldKey          = "key"
	fieldTimestamp    = "timestamp"
	fieldPayload      = "payload"
)

// Encode serializes a message into a protobuf encoded structpb.Struct
// tagged with the message kind
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	fields := map[string]*structpb.Value{
		fieldKind: structpb.NewStringValue(string(msg.Kind())),
	}
	switch m := msg.(type) {
	case *StartMessage, *PoisonPillMessage:
	case *OKMessage:
		fields[fieldSender] = structpb.NewStringValue(m.Sender)
	case *ErrorMessage:
		fields[fieldSender] = structpb.NewStringValue(m.Sender)
		fields[fieldErrorMessage] = structpb.NewStringValue(m.ErrorMessage)
	case *RecordMessage:
		fields[fieldID] = structpb.NewStringValue(m.ID)
		fields[fieldSender] = structpb.NewStringValue(m.Sender)
		fields[fieldKey] = structpb.NewStringValue(m.Key)
		fields[fieldTimestamp] = structpb.NewStringValue(m.Timestamp.UTC().Format(time.RFC3339Nano))
		payload := m.Payload
		if payload == nil {
			payload = &structpb.Struct{}
		}
		fields[fieldPayload] = structpb.NewStructValue(payload)
	}
	data, err := proto.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s message", msg.Kind())
	}
	return data, nil
}

// Decode parses a frame produced by Encode
func Decode(data []byte) (Message, error) {
	frame := &structpb.Struct{}
	if err := proto.Unmarshal(data, frame); err != nil {
		return nil, errors.Wrap(err, "decode message")
	}
	fields := frame.GetFields()
	switch Kind(fields[fieldKind].GetStringValue()) {
	case KindStart:
		return &StartMessage{}, nil
	case KindPoisonPill:
		return &PoisonPillMessage{}, nil
	case KindOK:
		return &OKMessage{Sender: fields[fieldSender].GetStringValue()}, nil
	case KindError:
		return &ErrorMessage{
			Sender:       fields[fieldSender].GetStringValue(),
			ErrorMessage: fields[fieldErrorMessage].GetStringValue(),
		}, nil
	case KindRecord:
		record := &RecordMessage{
			ID:      fields[fieldID].GetStringValue(),
			Sender:  fields[fieldSender].GetStringValue(),
			Key:     fields[fieldKey].GetStringValue(),
			Payload: fields[fieldPayload].GetStructValue(),
		}
		if raw := fields[fieldTimestamp].GetStringValue(); raw != "" {
			ts, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return nil, errors.Wrap(err, "decode record timestamp")
			}
			record.Timestamp = ts
		}
		if record.Payload == nil {
			record.Payload = &structpb.Struct{}
		}
		return record, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "kind %q", fields[fieldKind].GetStringValue())
	}
}
