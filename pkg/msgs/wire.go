package msgs

import (
	"github.com/golang/protobuf/proto"
)

// Wire schemas, laid out as protobuf messages:
//
//	message Typed      { uint32 type_id = 1; bytes message = 2; }
//	message TaskInfo   { uint32 id = 1; string name = 2; int32 state = 3; ... }
//	message Event      { int32 kind = 1; uint64 tick = 2; TaskInfo task = 3; ... }
//	message HaltReport { string board_id = 1; uint64 tick = 2; TaskInfo task = 3; ... }
//	message Stats      { string board_id = 1; uint64 ticks = 2; ... }
//	message TaskList   { string board_id = 1; uint64 tick = 2; repeated TaskInfo tasks = 3; }

// Typed is the envelope of every message.
type Typed struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Message []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

func (m *Typed) Reset()         { *m = Typed{} }
func (m *Typed) String() string { return proto.CompactTextString(m) }
func (*Typed) ProtoMessage()    {}

// TaskInfo is a task snapshot.
type TaskInfo struct {
	Id           uint32 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Name         string `protobuf:"bytes,2,opt,name=name,proto3" json:"name,omitempty"`
	State        int32  `protobuf:"varint,3,opt,name=state,proto3" json:"state,omitempty"`
	Priority     uint32 `protobuf:"varint,4,opt,name=priority,proto3" json:"priority,omitempty"`
	BasePriority uint32 `protobuf:"varint,5,opt,name=base_priority,json=basePriority,proto3" json:"base_priority,omitempty"`
	Restartable  bool   `protobuf:"varint,6,opt,name=restartable,proto3" json:"restartable,omitempty"`
	Restarts     uint32 `protobuf:"varint,7,opt,name=restarts,proto3" json:"restarts,omitempty"`
	BlockedOn    string `protobuf:"bytes,8,opt,name=blocked_on,json=blockedOn,proto3" json:"blocked_on,omitempty"`
	StackBase    uint32 `protobuf:"varint,9,opt,name=stack_base,json=stackBase,proto3" json:"stack_base,omitempty"`
	StackTop     uint32 `protobuf:"varint,10,opt,name=stack_top,json=stackTop,proto3" json:"stack_top,omitempty"`
	Sp           uint32 `protobuf:"varint,11,opt,name=sp,proto3" json:"sp,omitempty"`
	StackPeak    uint32 `protobuf:"varint,12,opt,name=stack_peak,json=stackPeak,proto3" json:"stack_peak,omitempty"`
}

func (m *TaskInfo) Reset()         { *m = TaskInfo{} }
func (m *TaskInfo) String() string { return proto.CompactTextString(m) }
func (*TaskInfo) ProtoMessage()    {}

// Event is a kernel event.
type Event struct {
	Kind    int32     `protobuf:"varint,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Tick    uint64    `protobuf:"varint,2,opt,name=tick,proto3" json:"tick,omitempty"`
	Task    *TaskInfo `protobuf:"bytes,3,opt,name=task,proto3" json:"task,omitempty"`
	Other   *TaskInfo `protobuf:"bytes,4,opt,name=other,proto3" json:"other,omitempty"`
	Irq     string    `protobuf:"bytes,5,opt,name=irq,proto3" json:"irq,omitempty"`
	Error   string    `protobuf:"bytes,6,opt,name=error,proto3" json:"error,omitempty"`
	BoardId string    `protobuf:"bytes,7,opt,name=board_id,json=boardId,proto3" json:"board_id,omitempty"`
}

func (m *Event) Reset()         { *m = Event{} }
func (m *Event) String() string { return proto.CompactTextString(m) }
func (*Event) ProtoMessage()    {}

// HaltReport describes why the system halted.
type HaltReport struct {
	BoardId string      `protobuf:"bytes,1,opt,name=board_id,json=boardId,proto3" json:"board_id,omitempty"`
	Tick    uint64      `protobuf:"varint,2,opt,name=tick,proto3" json:"tick,omitempty"`
	Task    *TaskInfo   `protobuf:"bytes,3,opt,name=task,proto3" json:"task,omitempty"`
	Reason  string      `protobuf:"bytes,4,opt,name=reason,proto3" json:"reason,omitempty"`
	Tasks   []*TaskInfo `protobuf:"bytes,5,rep,name=tasks,proto3" json:"tasks,omitempty"`
}

func (m *HaltReport) Reset()         { *m = HaltReport{} }
func (m *HaltReport) String() string { return proto.CompactTextString(m) }
func (*HaltReport) ProtoMessage()    {}

// Stats carries the kernel counters.
type Stats struct {
	BoardId     string `protobuf:"bytes,1,opt,name=board_id,json=boardId,proto3" json:"board_id,omitempty"`
	Ticks       uint64 `protobuf:"varint,2,opt,name=ticks,proto3" json:"ticks,omitempty"`
	Switches    uint64 `protobuf:"varint,3,opt,name=switches,proto3" json:"switches,omitempty"`
	Preemptions uint64 `protobuf:"varint,4,opt,name=preemptions,proto3" json:"preemptions,omitempty"`
	Faults      uint64 `protobuf:"varint,5,opt,name=faults,proto3" json:"faults,omitempty"`
	Restarts    uint64 `protobuf:"varint,6,opt,name=restarts,proto3" json:"restarts,omitempty"`
	Overflows   uint64 `protobuf:"varint,7,opt,name=overflows,proto3" json:"overflows,omitempty"`
	Inversions  uint64 `protobuf:"varint,8,opt,name=inversions,proto3" json:"inversions,omitempty"`
	Interrupts  uint64 `protobuf:"varint,9,opt,name=interrupts,proto3" json:"interrupts,omitempty"`
}

func (m *Stats) Reset()         { *m = Stats{} }
func (m *Stats) String() string { return proto.CompactTextString(m) }
func (*Stats) ProtoMessage()    {}

// TaskList is a snapshot of the task table.
type TaskList struct {
	BoardId string      `protobuf:"bytes,1,opt,name=board_id,json=boardId,proto3" json:"board_id,omitempty"`
	Tick    uint64      `protobuf:"varint,2,opt,name=tick,proto3" json:"tick,omitempty"`
	Tasks   []*TaskInfo `protobuf:"bytes,3,rep,name=tasks,proto3" json:"tasks,omitempty"`
}

func (m *TaskList) Reset()         { *m = TaskList{} }
func (m *TaskList) String() string { return proto.CompactTextString(m) }
func (*TaskList) ProtoMessage()    {}
