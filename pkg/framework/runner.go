package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

func nameOf(r Runnable, index int) string {
	if named, ok := r.(Named); ok {
		return named.Name()
	}
	return strconv.Itoa(index)
}

type exitResult struct {
	name string
	err  error
}

// Runner runs the parts of the supervisor (kernel, interrupt loop, console,
// telemetry) under one context and collects their errors. When an essential
// part returns, the others are stopped.
type Runner struct {
	Context context.Context
	Runners []Runnable

	cancel   context.CancelFunc
	resultCh chan exitResult
	forceCh  chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner derived from ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		Context:  ctx,
		cancel:   cancel,
		resultCh: make(chan exitResult),
		forceCh:  make(chan struct{}),
	}
}

// HandleSignals stops the runner on CtrlC or SIGTERM. A second signal
// makes Wait return without waiting for the rest.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		r.Stop()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.forceCh)
	}()
	return r
}

// Stop cancels the context of all Runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// Go starts Runnables. They may return early without affecting others.
func (r *Runner) Go(runners ...Runnable) *Runner {
	return r.start(false, runners)
}

// GoEssential starts Runnables whose exit stops the whole runner.
func (r *Runner) GoEssential(runners ...Runnable) *Runner {
	return r.start(true, runners)
}

func (r *Runner) start(essential bool, runners []Runnable) *Runner {
	for _, runner := range runners {
		name := nameOf(runner, len(r.Runners))
		r.Runners = append(r.Runners, runner)
		go func(runner Runnable, name string) {
			glog.V(4).Infof("%s started", name)
			err := runner.Run(r.Context)
			glog.V(4).Infof("%s stopped: %v", name, err)
			if essential {
				r.cancel()
			}
			r.resultCh <- exitResult{name: name, err: err}
		}(runner, name)
	}
	return r
}

// Wait waits until all Runnables stop and aggregates their errors, each
// prefixed with the name of the Runnable. Cancelation is not an error.
func (r *Runner) Wait() error {
	defer r.cancel()
	var errs AggregatedError
	for range r.Runners {
		select {
		case <-r.forceCh:
			return errors.New("forced exit")
		case res := <-r.resultCh:
			if res.err != nil && !errors.Is(res.err, context.Canceled) {
				errs.Add(fmt.Errorf("%s: %w", res.name, res.err))
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs a blocking func which doesn't accept a context,
// like reading a serial port. onCancel is called only when the context is
// canceled and must unblock fn.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if onCancel != nil {
		onCancel()
	}
	<-errCh
	return ctx.Err()
}

// RunWithContextCloser is RunWithContextCancel closing closer exactly once,
// on cancelation or when fn returns.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeOnce := func() { once.Do(func() { closer.Close() }) }
	defer closeOnce()
	return RunWithContextCancel(ctx, closeOnce, fn)
}
