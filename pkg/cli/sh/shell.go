// Package sh is the interactive console of the simulated board.
package sh

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
	"github.com/google/shlex"

	"github.com/robotalks/taskvisor/pkg/board"
	"github.com/robotalks/taskvisor/pkg/firmware"
	fx "github.com/robotalks/taskvisor/pkg/framework"
	"github.com/robotalks/taskvisor/pkg/kernel"
)

// Config defines the console parameters.
type Config struct {
	// Interactive enables the ishell console on the terminal.
	Interactive bool
	// Script is a file of console commands run at startup.
	Script string
}

var defaultConfig Config

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.BoolVar(&defaultConfig.Interactive, "console", defaultConfig.Interactive, "Start the interactive console.")
	flag.StringVar(&defaultConfig.Script, "script", defaultConfig.Script, "Run console commands from file at startup.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// Shell is the console attached to a running board.
type Shell struct {
	Config   Config
	Kernel   *kernel.Kernel
	Board    *board.Board
	Firmware *firmware.Firmware
	Loop     fx.LoopControl

	shell *ishell.Shell
}

const (
	shellKey = "$shell"
	prompt   = "> "
)

// New creates a Shell.
func New(c *Config, k *kernel.Kernel, b *board.Board, fw *firmware.Firmware, ctl fx.LoopControl) *Shell {
	return &Shell{Config: *c, Kernel: k, Board: b, Firmware: fw, Loop: ctl}
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Exec runs one command with its arguments.
func (s *Shell) Exec(w io.Writer, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd := lookup(args[0])
	if cmd == nil {
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(s, w, args[1:])
}

// Eval splits a command line like a shell and runs it. Empty lines and
// comments starting with # are ignored.
func (s *Shell) Eval(w io.Writer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	return s.Exec(w, args)
}

// RunScript evaluates every line from r and stops at the first error.
func (s *Shell) RunScript(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		if err := s.Eval(w, scanner.Text()); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

func (s *Shell) runScriptFile(w io.Writer) error {
	f, err := os.Open(s.Config.Script)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.RunScript(w, f)
}

// Run implements framework.Runnable. It runs the startup script and, when
// interactive, the console until the context is done or the console exits.
func (s *Shell) Run(ctx context.Context) error {
	if s.Config.Script != "" {
		if err := s.runScriptFile(os.Stdout); err != nil {
			return fmt.Errorf("script %s: %w", s.Config.Script, err)
		}
	}
	if !s.Config.Interactive {
		return nil
	}
	s.shell = s.newIShell()
	return fx.RunWithContextCancel(ctx, s.shell.Close, func() error {
		s.shell.Run()
		glog.Info("console exited")
		return nil
	})
}

func (s *Shell) newIShell() *ishell.Shell {
	sh := ishell.New()
	sh.Set(shellKey, s)
	sh.SetPrompt(prompt)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		sh.AddCmd(&ishell.Cmd{
			Name:    cmd.name,
			Aliases: cmd.aliases,
			Help:    cmd.help,
			Func:    ishellFunc(cmd),
		})
	}
	return sh
}

func ishellFunc(cmd *command) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		var out bytes.Buffer
		err := cmd.run(ShellFrom(c), &out, c.Args)
		if out.Len() > 0 {
			c.Print(out.String())
		}
		if err != nil {
			c.Err(err)
		}
	}
}
