package msgs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/taskvisor/pkg/kernel"
)

func TestEventTravelsInEnvelope(t *testing.T) {
	ev := kernel.Event{
		Kind: kernel.EventPriorityInversion,
		Tick: 42,
		Task: kernel.TaskInfo{ID: 3, Name: "low", State: kernel.Running, Priority: 2, BasePriority: 9},
		Other: kernel.TaskInfo{ID: 4, Name: "high", State: kernel.Blocked, Priority: 2, BasePriority: 2,
			BlockedOn: "mutex:bus"},
	}
	data, err := Encode(FromEvent("board-1", ev))
	require.NoError(t, err)

	typed, err := DecodeTyped(data)
	require.NoError(t, err)
	require.Equal(t, EventTypeID, typed.TypeId)
	require.True(t, typed.IsEvent())

	msg, err := typed.Decode()
	require.NoError(t, err)
	decoded, ok := msg.(*Event)
	require.True(t, ok)
	require.Equal(t, kernel.EventPriorityInversion, decoded.EventKind())
	require.Equal(t, "board-1", decoded.BoardId)
	require.Equal(t, ev.Task, decoded.Task.ToTaskInfo())
	require.Equal(t, ev.Other, decoded.Other.ToTaskInfo())
}

func TestOtherOnlyForInversions(t *testing.T) {
	m := FromEvent("b", kernel.Event{Kind: kernel.EventFaulted, Err: errors.New("boom")})
	require.Nil(t, m.Other)
	require.Equal(t, "boom", m.Error)
}

func TestHaltReport(t *testing.T) {
	h := &kernel.HaltError{
		Task:   kernel.TaskInfo{ID: 5, Name: "fibonacci", State: kernel.Faulted},
		Reason: &kernel.StackOverflowError{Task: 5, SP: 0x20000ffc, Boundary: 0x20001020},
		Tick:   7,
		Tasks:  []kernel.TaskInfo{{ID: 0, Name: "idle"}, {ID: 5, Name: "fibonacci"}},
	}
	report := FromHalt("b", h)
	require.Equal(t, h.Reason.Error(), report.Reason)
	require.Len(t, report.Tasks, 2)

	data, err := Encode(report)
	require.NoError(t, err)
	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	require.True(t, proto.Equal(report, msg))
}

func TestUnknownTypes(t *testing.T) {
	_, err := TypedFrom(&Typed{})
	require.Equal(t, ErrNotSerializable, err)

	typed := &Typed{TypeId: TypeIDKindEvent | 0x7777}
	_, err = typed.Decode()
	var unknown *ErrUnknownType
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, fmt.Sprintf("unknown type: %x", typed.TypeId), err.Error())
}

func TestTypeIDs(t *testing.T) {
	for typeID, newMsg := range MessageTypes {
		id, err := TypeIDOf(newMsg())
		require.NoError(t, err)
		require.Equal(t, typeID, id)
		require.Equal(t, TypeIDKindEvent, typeID&TypeIDMaskKind)
	}
}
