package msgs

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
)

// TypeID masks
const (
	TypeIDMaskKind  uint32 = 0x80000000
	TypeIDMaskGroup uint32 = 0x7fff0000
	TypeIDMaskID    uint32 = 0x0000ffff
)

// Message Kinds
const (
	TypeIDKindCommand uint32 = 0x00000000
	TypeIDKindEvent   uint32 = 0x80000000
)

// Type IDs, all in the supervisor group.
const (
	typeIDGroupSupervisor uint32 = 0x00010000

	EventTypeID      = TypeIDKindEvent | typeIDGroupSupervisor | 0x0001
	HaltReportTypeID = TypeIDKindEvent | typeIDGroupSupervisor | 0x0002
	StatsTypeID      = TypeIDKindEvent | typeIDGroupSupervisor | 0x0003
	TaskListTypeID   = TypeIDKindEvent | typeIDGroupSupervisor | 0x0004
)

// ErrUnknownType indicates unknown type id.
type ErrUnknownType struct {
	TypeID uint32
}

// Error implements error.
func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

// ErrNotSerializable indicates the message has no type ID.
var ErrNotSerializable = errors.New("not serializable message")

// MessageTypes maps type IDs to message constructors.
var MessageTypes = map[uint32]func() proto.Message{
	EventTypeID:      func() proto.Message { return &Event{} },
	HaltReportTypeID: func() proto.Message { return &HaltReport{} },
	StatsTypeID:      func() proto.Message { return &Stats{} },
	TaskListTypeID:   func() proto.Message { return &TaskList{} },
}

// TypeIDOf returns the type ID of a message.
func TypeIDOf(msg proto.Message) (uint32, error) {
	switch msg.(type) {
	case *Event:
		return EventTypeID, nil
	case *HaltReport:
		return HaltReportTypeID, nil
	case *Stats:
		return StatsTypeID, nil
	case *TaskList:
		return TaskListTypeID, nil
	}
	return 0, ErrNotSerializable
}

// TypedFrom wraps a message into a Typed.
func TypedFrom(msg proto.Message) (*Typed, error) {
	typeID, err := TypeIDOf(msg)
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &Typed{TypeId: typeID, Message: data}, nil
}

// Encode wraps a message and encodes the envelope to bytes.
func Encode(msg proto.Message) ([]byte, error) {
	typed, err := TypedFrom(msg)
	if err != nil {
		return nil, err
	}
	return typed.Encode()
}

// Decode decodes the envelope content into the actual message.
func (m *Typed) Decode() (proto.Message, error) {
	newMsg, ok := MessageTypes[m.TypeId]
	if !ok {
		return nil, &ErrUnknownType{TypeID: m.TypeId}
	}
	msg := newMsg()
	if err := proto.Unmarshal(m.Message, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode encodes the Typed to bytes.
func (m *Typed) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// Kind gets message kind from type ID.
func (m *Typed) Kind() uint32 {
	return m.TypeId & TypeIDMaskKind
}

// IsEvent determines if the message is an event.
func (m *Typed) IsEvent() bool {
	return m.Kind() == TypeIDKindEvent
}

// DecodeTyped decodes bytes into Typed.
func DecodeTyped(data []byte) (*Typed, error) {
	var typed Typed
	if err := proto.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return &typed, nil
}

// DecodeMessage decodes the envelope and its content.
func DecodeMessage(data []byte) (proto.Message, error) {
	typed, err := DecodeTyped(data)
	if err != nil {
		return nil, err
	}
	return typed.Decode()
}
