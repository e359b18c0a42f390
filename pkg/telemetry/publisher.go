// Package telemetry publishes kernel events, halt reports and periodic
// snapshots to MQTT and websocket clients.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/taskvisor/pkg/framework"
	"github.com/robotalks/taskvisor/pkg/kernel"
	"github.com/robotalks/taskvisor/pkg/msgs"
	"github.com/robotalks/taskvisor/pkg/telemetry/mqtt"
)

// Topics under <prefix><board id>/.
const (
	TopicEvents = "events"
	TopicHalt   = "halt"
	TopicStats  = "stats"
	TopicTasks  = "tasks"
	TopicOnline = "online"
)

// Sink receives encoded messages.
type Sink interface {
	Publish(topic string, payload []byte, retain bool) error
}

type outMsg struct {
	topic   string
	payload []byte
	retain  bool
}

const queueSize = 256

// Publisher turns kernel events into messages and fans them out to sinks.
// HandleEvent never blocks, messages are delivered by Run.
type Publisher struct {
	BoardID  string
	Kernel   *kernel.Kernel
	Interval time.Duration

	sinks   []Sink
	queue   chan outMsg
	lock    sync.Mutex
	dropped uint64
}

// NewPublisher creates a Publisher for the board.
func NewPublisher(boardID string, k *kernel.Kernel, sinks ...Sink) *Publisher {
	return &Publisher{
		BoardID:  boardID,
		Kernel:   k,
		Interval: defaultConfig.SnapshotInterval,
		sinks:    sinks,
		queue:    make(chan outMsg, queueSize),
	}
}

// AddSink adds a sink. It must be called before Run.
func (p *Publisher) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Topic returns the full topic of a board topic.
func (p *Publisher) Topic(name string) string {
	return p.BoardID + "/" + name
}

// HandleEvent implements kernel.Listener.
func (p *Publisher) HandleEvent(ev kernel.Event) {
	p.post(TopicEvents, msgs.FromEvent(p.BoardID, ev), false)
	var halt *kernel.HaltError
	if ev.Kind == kernel.EventHalted && errors.As(ev.Err, &halt) {
		p.post(TopicHalt, msgs.FromHalt(p.BoardID, halt), true)
	}
}

// Snapshot queues the stats and the task table.
func (p *Publisher) Snapshot() {
	if p.Kernel == nil {
		return
	}
	p.post(TopicStats, msgs.FromStats(p.BoardID, p.Kernel.Stats()), false)
	p.post(TopicTasks, msgs.NewTaskList(p.BoardID, p.Kernel), true)
}

// Dropped returns the number of messages dropped on a full queue.
func (p *Publisher) Dropped() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.dropped
}

func (p *Publisher) post(topic string, msg proto.Message, retain bool) {
	payload, err := msgs.Encode(msg)
	if err != nil {
		glog.Errorf("encode %s error: %v", topic, err)
		return
	}
	select {
	case p.queue <- outMsg{topic: p.Topic(topic), payload: payload, retain: retain}:
	default:
		p.lock.Lock()
		p.dropped++
		p.lock.Unlock()
	}
}

// Run implements framework.Runnable. It delivers queued messages and takes
// snapshots every Interval. Pending messages are flushed on cancelation.
func (p *Publisher) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if p.Interval > 0 && p.Kernel != nil {
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case m := <-p.queue:
			p.deliver(m)
		case <-tick:
			p.Snapshot()
		case <-ctx.Done():
			p.flush()
			return ctx.Err()
		}
	}
}

func (p *Publisher) flush() {
	for {
		select {
		case m := <-p.queue:
			p.deliver(m)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(m outMsg) {
	var errs fx.AggregatedError
	for _, s := range p.sinks {
		errs.Add(s.Publish(m.topic, m.payload, m.retain))
	}
	if err := errs.Aggregate(); err != nil {
		glog.V(1).Infof("publish %s error: %v", m.topic, err)
	}
}

// MQTTSink publishes to an MQTT broker and maintains the retained online
// flag of the board.
type MQTTSink struct {
	Queue   *mqtt.Queue
	BoardID string
}

// NewMQTTSink connects to the broker at brokerURL.
func NewMQTTSink(brokerURL, boardID string) (*MQTTSink, error) {
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	onlineTopic := topicPrefix + boardID + "/" + TopicOnline
	opts.SetBinaryWill(onlineTopic, []byte("0"), 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("taskvisor:" + boardID)
	}
	s := &MQTTSink{Queue: mqtt.NewQueue(opts, topicPrefix), BoardID: boardID}
	s.Queue.OnConnect = func(q *mqtt.Queue) {
		q.PubWith(boardID+"/"+TopicOnline, []byte("1"), 1, true)
	}
	return s, nil
}

// Publish implements Sink.
func (s *MQTTSink) Publish(topic string, payload []byte, retain bool) error {
	return s.Queue.Publish(topic, payload, retain)
}

// Run implements framework.Runnable. It keeps the connection until
// cancelation and clears the online flag before disconnecting.
func (s *MQTTSink) Run(ctx context.Context) error {
	if token := s.Queue.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	<-ctx.Done()
	s.Queue.PubWith(s.BoardID+"/"+TopicOnline, []byte("0"), 1, true).WaitTimeout(time.Second)
	s.Queue.Close()
	return ctx.Err()
}
