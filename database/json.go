package database

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/super-flat/pipeline/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// recordFromJSON parses one JSON object into a record. The "id" and
// "timestamp" fields are lifted onto the record when present.
func recordFromJSON(data []byte) (*message.RecordMessage, error) {
	payload := &structpb.Struct{}
	if err := protojson.Unmarshal(data, payload); err != nil {
		return nil, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	record := &message.RecordMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	fields := payload.GetFields()
	if id := fields["id"].GetStringValue(); id != "" {
		record.ID = id
	}
	if raw := fields["timestamp"].GetStringValue(); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			record.Timestamp = ts
		}
	}
	return record, nil
}

// recordToJSON renders a record as one compact JSON object with sorted keys
func recordToJSON(record *message.RecordMessage) ([]byte, error) {
	data, err := json.Marshal(map[string]interface{}{
		"id":        record.ID,
		"sender":    record.Sender,
		"key":       record.Key,
		"timestamp": record.Timestamp.UTC().Format(time.RFC3339Nano),
		"payload":   record.Payload.AsMap(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "encode record %s", record.ID)
	}
	return data, nil
}

// payloadToJSON renders the payload of a record as compact JSON
func payloadToJSON(record *message.RecordMessage) ([]byte, error) {
	payload := record.Payload
	if payload == nil {
		payload = &structpb.Struct{}
	}
	data, err := protojson.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode payload of record %s", record.ID)
	}
	return data, nil
}
