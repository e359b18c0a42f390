package diag

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/taskvisor/pkg/kernel"
	"github.com/robotalks/taskvisor/pkg/msgs"
)

const queueSize = 64

// Port sends diagnostic frames. Kernel events are queued without blocking
// and written by Run, so a slow link never stalls the kernel.
type Port struct {
	Writer  io.Writer
	BoardID string

	seq     Seq
	lock    sync.Mutex
	queue   chan *Frame
	dropped uint64
}

// NewPort creates a Port.
func NewPort(w io.Writer, boardID string) *Port {
	return &Port{
		Writer:  w,
		BoardID: boardID,
		seq:     Seq(0).Next(),
		queue:   make(chan *Frame, queueSize),
	}
}

// Send writes a frame right away.
func (p *Port) Send(code Code, data []byte) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.sendLocked(&Frame{Code: code, Data: data})
}

func (p *Port) sendLocked(f *Frame) error {
	f.Seq = p.seq
	if _, err := f.WriteTo(p.Writer); err != nil {
		return err
	}
	p.seq = p.seq.Next()
	return nil
}

// Post queues a message, dropping it when the queue is full.
func (p *Port) Post(msg proto.Message) error {
	data, err := msgs.Encode(msg)
	if err != nil {
		return err
	}
	p.post(&Frame{Code: CodeTyped, Data: data})
	return nil
}

// PostText queues a text line.
func (p *Port) PostText(line string) {
	p.post(&Frame{Code: CodeText, Data: []byte(line)})
}

func (p *Port) post(f *Frame) {
	select {
	case p.queue <- f:
	default:
		p.lock.Lock()
		p.dropped++
		p.lock.Unlock()
	}
}

// Dropped returns the number of frames dropped on a full queue or for
// being oversized.
func (p *Port) Dropped() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.dropped
}

// HandleEvent implements kernel.Listener. A halt is followed by the halt
// report, both as a message and as text.
func (p *Port) HandleEvent(ev kernel.Event) {
	if err := p.Post(msgs.FromEvent(p.BoardID, ev)); err != nil {
		glog.Errorf("diag encode event error: %v", err)
		return
	}
	var halt *kernel.HaltError
	if ev.Kind != kernel.EventHalted || !errors.As(ev.Err, &halt) {
		return
	}
	if err := p.Post(msgs.FromHalt(p.BoardID, halt)); err != nil {
		glog.Errorf("diag encode halt report error: %v", err)
	}
	var buf bytes.Buffer
	FormatHalt(&buf, halt)
	for _, line := range bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n")) {
		p.PostText(string(line))
	}
}

// Run implements framework.Runnable. Queued frames are flushed before it
// returns on cancelation.
func (p *Port) Run(ctx context.Context) error {
	for {
		select {
		case f := <-p.queue:
			if err := p.write(f); err != nil {
				return err
			}
		case <-ctx.Done():
			for {
				select {
				case f := <-p.queue:
					if err := p.write(f); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
		}
	}
}

// write sends a queued frame. An oversized frame is dropped so the frames
// behind it still go out.
func (p *Port) write(f *Frame) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	err := p.sendLocked(f)
	if errors.Is(err, ErrFrameTooLong) {
		glog.Errorf("diag drop frame code %v with %d bytes: %v", f.Code, len(f.Data), err)
		p.dropped++
		return nil
	}
	return err
}
