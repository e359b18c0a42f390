package diag

import (
	"context"
	"io"

	"github.com/golang/glog"

	fx "github.com/robotalks/taskvisor/pkg/framework"
)

// FrameHandler is called when a frame is received.
type FrameHandler interface {
	HandleFrame(*Frame)
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func(*Frame)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(frame *Frame) {
	f(frame)
}

// ReaderStats counts link errors.
type ReaderStats struct {
	Frames    uint64
	Lost      uint64
	BadFrames uint64
}

// Reader receives frames from a byte stream.
type Reader struct {
	Reader  io.Reader
	Handler FrameHandler

	parser Parser
	stats  ReaderStats
}

// NewReader creates a Reader.
func NewReader(r io.Reader, h FrameHandler) *Reader {
	return &Reader{Reader: r, Handler: h}
}

// Stats returns the link counters. It must not be called while Run is
// active.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}

// Feed parses received bytes.
func (r *Reader) Feed(data []byte) {
	for _, b := range data {
		pr := r.parser.Parse(b)
		if pr.Err != nil {
			r.stats.BadFrames++
			glog.V(1).Infof("diag: %v", pr.Err)
			continue
		}
		if pr.Frame == nil {
			continue
		}
		r.stats.Frames++
		r.stats.Lost += uint64(pr.Lost)
		if r.Handler != nil {
			r.Handler.HandleFrame(pr.Frame)
		}
	}
}

// Run implements framework.Runnable. It reads until EOF or cancelation,
// closing the underlying reader on cancelation if it is an io.Closer.
func (r *Reader) Run(ctx context.Context) error {
	var onCancel func()
	if closer, ok := r.Reader.(io.Closer); ok {
		onCancel = func() { closer.Close() }
	}
	return fx.RunWithContextCancel(ctx, onCancel, func() error {
		buf := make([]byte, 256)
		for {
			n, err := r.Reader.Read(buf)
			r.Feed(buf[:n])
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})
}
