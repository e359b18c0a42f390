package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/mattn/go-colorable"

	"github.com/robotalks/taskvisor/pkg/board"
	"github.com/robotalks/taskvisor/pkg/cli/sh"
	"github.com/robotalks/taskvisor/pkg/conf"
	"github.com/robotalks/taskvisor/pkg/diag"
	"github.com/robotalks/taskvisor/pkg/firmware"
	fx "github.com/robotalks/taskvisor/pkg/framework"
	"github.com/robotalks/taskvisor/pkg/kernel"
	"github.com/robotalks/taskvisor/pkg/telemetry"
)

var (
	configFile string
	listSerial bool
)

func init() {
	// the demo overflows on purpose and carries on without the faulted task
	conf.Default().HaltOnFault = false
	conf.SetupFlags()
	board.SetupFlags()
	firmware.SetupFlags()
	diag.SetupFlags()
	telemetry.SetupFlags()
	sh.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "Kernel config in YAML.")
	flag.BoolVar(&listSerial, "list-serial", listSerial, "List serial ports and exit.")
}

func logEvent(ev kernel.Event) {
	switch ev.Kind {
	case kernel.EventFaulted, kernel.EventISRFault:
		glog.Warningf("%s %s (id %d): %v", ev.Kind, ev.Task.Name, ev.Task.ID, ev.Err)
	case kernel.EventPriorityInversion:
		glog.Infof("priority inversion: %s (id %d) blocks %s (id %d)",
			ev.Task.Name, ev.Task.ID, ev.Other.Name, ev.Other.ID)
	default:
		glog.V(1).Infof("%s %s (id %d)", ev.Kind, ev.Task.Name, ev.Task.ID)
	}
}

func main() {
	flag.Parse()

	if listSerial {
		devices, err := diag.ListDevices()
		if err != nil {
			glog.Exit(err)
		}
		for _, dev := range devices {
			fmt.Println(dev)
		}
		return
	}

	c := conf.Default()
	if configFile != "" {
		if err := c.LoadFile(configFile); err != nil {
			glog.Exitf("load %s: %v", configFile, err)
		}
	}
	k, err := kernel.New(c)
	if err != nil {
		glog.Exit(err)
	}
	k.AddListener(kernel.ListenerFunc(logEvent))

	b := board.New(k, board.Default())
	fw, err := firmware.Default().Install(k, b)
	if err != nil {
		glog.Exit(err)
	}
	loop := fx.NewLoop(k).Add(b)

	out := colorable.NewColorableStdout()
	console := sh.New(sh.Default(), k, b, fw, loop)
	if !console.Config.Interactive {
		board.NewDisplay(b, out).Render()
	}

	runner := fx.NewRunner().HandleSignals()
	runner.GoEssential(fx.NamedRun("kernel", k), fx.NamedRun("loop", loop))

	if dc := diag.Default(); dc.Enabled() {
		port, err := dc.Open()
		if err != nil {
			glog.Exitf("open %s: %v", dc.Device, err)
		}
		defer port.Close()
		dp := diag.NewPort(port, b.ID)
		k.AddListener(dp)
		runner.Go(fx.NamedRun("diag", dp))
	}

	if err := startTelemetry(runner, k, b.ID); err != nil {
		glog.Exit(err)
	}

	if console.Config.Interactive {
		runner.GoEssential(fx.NamedRun("console", console))
	} else {
		runner.Go(fx.NamedRun("script", console))
	}

	err = runner.Wait()
	if halt := k.Halted(); halt != nil {
		reportHalt(out, halt)
		os.Exit(2)
	}
	if err != nil {
		glog.Exit(err)
	}
}

func startTelemetry(runner *fx.Runner, k *kernel.Kernel, boardID string) error {
	tc := telemetry.Default()
	if tc.MQTTBrokerURL == "" && tc.WebsocketAddr == "" {
		return nil
	}
	pub := telemetry.NewPublisher(boardID, k)
	pub.Interval = tc.SnapshotInterval
	if tc.MQTTBrokerURL != "" {
		sink, err := telemetry.NewMQTTSink(tc.MQTTBrokerURL, boardID)
		if err != nil {
			return err
		}
		pub.AddSink(sink)
		runner.Go(fx.NamedRun("mqtt", sink))
	}
	if tc.WebsocketAddr != "" {
		feed := telemetry.NewFeed()
		pub.AddSink(feed)
		runner.Go(fx.NamedRun("websocket", telemetry.NewServer(tc.WebsocketAddr, feed)))
	}
	k.AddListener(pub)
	runner.Go(fx.NamedRun("telemetry", pub))
	return nil
}

func reportHalt(w io.Writer, halt *kernel.HaltError) {
	fmt.Fprintln(w)
	diag.FormatHalt(w, halt)
}
