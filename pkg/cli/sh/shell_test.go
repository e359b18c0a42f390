package sh

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/taskvisor/pkg/board"
	"github.com/robotalks/taskvisor/pkg/conf"
	"github.com/robotalks/taskvisor/pkg/firmware"
	fx "github.com/robotalks/taskvisor/pkg/framework"
	"github.com/robotalks/taskvisor/pkg/kernel"
)

type fakeLoop struct {
	requests []fx.Request
}

func (l *fakeLoop) Raise(req fx.Request) {
	l.requests = append(l.requests, req)
}

func (l *fakeLoop) TriggerNext() {}

func newShell(t *testing.T) (*Shell, *fakeLoop) {
	c := conf.NewConfig()
	c.MaxTasks = 6
	c.StackSize = 1024
	c.GuardSize = 32
	c.HaltOnFault = false
	k := kernel.MustNew(c)
	t.Cleanup(k.Shutdown)
	b := board.New(k, &board.Config{ID: "sh-test", TIM2Period: time.Second})
	ctl := &fakeLoop{}
	return New(&Config{}, k, b, firmware.New(k, b), ctl), ctl
}

func TestSpawnAndList(t *testing.T) {
	s, _ := newShell(t)
	var out bytes.Buffer
	require.NoError(t, s.Eval(&out, `spawn "slow worker" 5 sleep`))
	require.True(t, strings.HasPrefix(out.String(), "spawned slow worker id "))
	require.NoError(t, s.Kernel.RunUntilIdle())

	out.Reset()
	require.NoError(t, s.Eval(&out, "tasks"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "BLOCKED ON")
	require.Contains(t, lines[2], "slow worker")
	require.Contains(t, lines[2], "timer")
}

func TestCommandErrors(t *testing.T) {
	s, _ := newShell(t)
	var out bytes.Buffer
	for _, tc := range []struct {
		line string
		msg  string
	}{
		{"reboot", `unknown command "reboot"`},
		{"spawn a 5", "usage: spawn"},
		{"spawn a x sleep", `invalid priority "x"`},
		{"spawn a 5 dance", `unknown workload "dance"`},
		{"spawn a 5 sleep forever", `unexpected "forever"`},
		{"spawn a 15 sleep", kernel.ErrInvalidPriority.Error()},
		{"corrupt", "usage: corrupt ID"},
		{"poke 0x20000000 zz", "invalid data"},
		{"tick 0", `invalid count "0"`},
		{`spawn "a 5`, "parse"},
	} {
		err := s.Eval(&out, tc.line)
		require.Error(t, err, tc.line)
		require.Contains(t, err.Error(), tc.msg, tc.line)
	}
	require.NoError(t, s.Eval(&out, "  # comment"))
	require.NoError(t, s.Eval(&out, ""))
}

func TestCorruptGuardFaultsTask(t *testing.T) {
	s, _ := newShell(t)
	var out bytes.Buffer
	require.NoError(t, s.Eval(&out, "spawn victim 4 sleep"))
	require.NoError(t, s.Kernel.RunUntilIdle())
	id := s.Kernel.Tasks()[1].ID

	require.NoError(t, s.Exec(&out, []string{"fault", fmt.Sprint(id)}))
	out.Reset()
	require.NoError(t, s.Eval(&out, "tick 100"))
	require.Equal(t, "tick 100\n", out.String())
	require.NoError(t, s.Kernel.RunUntilIdle())
	_, ok := s.Kernel.Task(id)
	require.False(t, ok)

	out.Reset()
	require.NoError(t, s.Eval(&out, "stats"))
	require.Contains(t, out.String(), "faults=1 restarts=0 overflows=1")
}

func TestButtonRaisesEXTI0(t *testing.T) {
	s, ctl := newShell(t)
	var out bytes.Buffer
	require.NoError(t, s.Eval(&out, "button"))
	require.Len(t, ctl.requests, 1)
	require.Equal(t, board.EXTI0, ctl.requests[0].IRQ)
	require.Equal(t, board.EXTI0Priority, ctl.requests[0].Priority)

	s.Firmware = nil
	require.Error(t, s.Eval(&out, "irq"))
}

func TestRunScript(t *testing.T) {
	s, _ := newShell(t)
	var out bytes.Buffer
	script := "# startup\nspawn one 3 exit\n\nleds\nspawn two 3 nothing\nstats\n"
	err := s.RunScript(&out, strings.NewReader(script))
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 5:")
	require.Contains(t, out.String(), "spawned one id ")
	require.NotContains(t, out.String(), "ticks=")
}
