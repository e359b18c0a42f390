package telemetry

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/taskvisor/pkg/kernel"
	"github.com/robotalks/taskvisor/pkg/msgs"
)

// FormatPayload decodes a published payload into a printable line.
func FormatPayload(topic string, payload []byte) string {
	if strings.HasSuffix(topic, "/"+TopicOnline) {
		return fmt.Sprintf("%s: %s", topic, string(payload))
	}
	typed, err := msgs.DecodeTyped(payload)
	if err != nil {
		return fmt.Sprintf("%s: bad message: %v", topic, err)
	}
	msg, err := typed.Decode()
	if err != nil {
		return fmt.Sprintf("%s: decode error: (type_id=%x) %v", topic, typed.TypeId, err)
	}
	return topic + ": " + FormatMessage(msg)
}

// FormatMessage renders a decoded message.
func FormatMessage(msg proto.Message) string {
	switch m := msg.(type) {
	case *msgs.Event:
		return formatEvent(m)
	case *msgs.HaltReport:
		return fmt.Sprintf("[%d] HALT %s: %s", m.Tick, taskLabel(m.Task), m.Reason)
	}
	return fmt.Sprintf("[%s] %s", reflect.Indirect(reflect.ValueOf(msg)).Type().Name(), msg.String())
}

func formatEvent(m *msgs.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s", m.Tick, m.EventKind())
	if m.Irq != "" {
		fmt.Fprintf(&sb, " irq=%s", m.Irq)
	}
	if m.Task != nil && m.Task.Id != 0 {
		fmt.Fprintf(&sb, " %s", taskLabel(m.Task))
	}
	if m.EventKind() == kernel.EventPriorityInversion && m.Other != nil {
		fmt.Fprintf(&sb, " blocks %s", taskLabel(m.Other))
	}
	if m.Error != "" {
		fmt.Fprintf(&sb, ": %s", m.Error)
	}
	return sb.String()
}

func taskLabel(t *msgs.TaskInfo) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s#%d(prio=%d)", t.Name, t.Id, t.Priority)
}
