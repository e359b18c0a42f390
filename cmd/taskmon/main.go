package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/robotalks/taskvisor/pkg/diag"
	fx "github.com/robotalks/taskvisor/pkg/framework"
	"github.com/robotalks/taskvisor/pkg/msgs"
	"github.com/robotalks/taskvisor/pkg/telemetry"
	"github.com/robotalks/taskvisor/pkg/telemetry/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/taskvisor/"
	wsURL   string
	filter  = "#"
)

func init() {
	if val := os.Getenv("TASKVISOR_MQTT_URL"); val != "" {
		mqttURL = val
	}
	diag.SetupFlags()
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&wsURL, "ws", wsURL, "Websocket feed URL, e.g. ws://localhost:8080/feed, instead of MQTT.")
	flag.StringVar(&filter, "topic", filter, "Topic filter, e.g. +/events.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	runner := fx.NewRunner().HandleSignals()
	switch {
	case diag.Default().Enabled():
		runner.Go(fx.RunnableFunc(monitorSerial))
	case wsURL != "":
		runner.Go(fx.RunnableFunc(monitorWebsocket))
	default:
		runner.Go(fx.RunnableFunc(monitorMQTT))
	}
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}

func monitorMQTT(ctx context.Context) error {
	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		return err
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer q.Close()
	q.Sub(filter, mqtt.Handler(func(topic string, payload []byte) {
		log.Println(telemetry.FormatPayload(topic, payload))
	}))
	<-ctx.Done()
	return ctx.Err()
}

func monitorWebsocket(ctx context.Context) error {
	url := wsURL
	if filter != "#" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "topic=" + strings.ReplaceAll(strings.ReplaceAll(filter, "#", "%23"), "+", "%2B")
	}
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return err
	}
	return fx.RunWithContextCloser(ctx, conn, func() error {
		for {
			topic, payload, err := telemetry.Receive(conn)
			if err != nil {
				return err
			}
			log.Println(telemetry.FormatPayload(topic, payload))
		}
	})
}

func monitorSerial(ctx context.Context) error {
	port, err := diag.Default().Open()
	if err != nil {
		return err
	}
	r := diag.NewReader(port, diag.HandleFrameFunc(func(f *diag.Frame) {
		switch f.Code {
		case diag.CodeText:
			log.Printf("[%d] %s", f.Seq, string(f.Data))
		case diag.CodeTyped:
			msg, err := msgs.DecodeMessage(f.Data)
			if err != nil {
				log.Printf("[%d] bad message: %v", f.Seq, err)
				return
			}
			log.Printf("[%d] %s", f.Seq, telemetry.FormatMessage(msg))
		}
	}))
	err = r.Run(ctx)
	stats := r.Stats()
	log.Printf("frames %d, lost %d, bad %d", stats.Frames, stats.Lost, stats.BadFrames)
	return err
}
