package message

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Kind names a message variant on the wire
type Kind string

const (
	KindStart      Kind = "start"
	KindPoisonPill Kind = "poison_pill"
	KindOK         Kind = "ok"
	KindError      Kind = "error"
	KindRecord     Kind = "record"
)

// Message is a value exchanged over the control or data channel of an actor.
// The set of variants is closed: StartMessage, PoisonPillMessage, OKMessage,
// ErrorMessage and RecordMessage.
type Message interface {
	Kind() Kind
	sealed()
}

// StartMessage asks an actor to run its initialization
type StartMessage struct{}

// PoisonPillMessage asks an actor to stop unconditionally. No reply is sent.
type PoisonPillMessage struct{}

// OKMessage acknowledges a control request
type OKMessage struct {
	// Sender is the name of the actor that handled the request
	Sender string
}

// ErrorMessage reports a failed control request
type ErrorMessage struct {
	// Sender is the name of the actor that handled the request
	Sender string
	// ErrorMessage is the human readable cause
	ErrorMessage string
}

// RecordMessage carries one telemetry record on the data channel
type RecordMessage struct {
	// ID identifies the record within its source
	ID string
	// Sender is the name of the actor that injected the record
	Sender string
	// Key tags the input the record was pulled from
	Key string
	// Timestamp is the record time
	Timestamp time.Time
	// Payload is the record body, a JSON object
	Payload *structpb.Struct
}

func (*StartMessage) Kind() Kind      { return KindStart }
func (*PoisonPillMessage) Kind() Kind { return KindPoisonPill }
func (*OKMessage) Kind() Kind         { return KindOK }
func (*ErrorMessage) Kind() Kind      { return KindError }
func (*RecordMessage) Kind() Kind     { return KindRecord }

func (*StartMessage) sealed()      {}
func (*PoisonPillMessage) sealed() {}
func (*OKMessage) sealed()         {}
func (*ErrorMessage) sealed()      {}
func (*RecordMessage) sealed()     {}

// NewError returns an ErrorMessage from the given sender
func NewError(sender, errorMessage string) *ErrorMessage {
	return &ErrorMessage{Sender: sender, ErrorMessage: errorMessage}
}

// IsControl reports whether msg is a control request
func IsControl(msg Message) bool {
	switch msg.(type) {
	case *StartMessage, *PoisonPillMessage:
		return true
	default:
		return false
	}
}
