package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/taskvisor/pkg/framework"
	"github.com/robotalks/taskvisor/pkg/telemetry/mqtt"
)

const clientQueueSize = 64

// Feed is a Sink broadcasting to websocket clients. A client selects the
// topics with the "topic" query parameter, an MQTT style filter defaulting
// to "#". Each websocket message carries the topic as a text frame followed
// by the payload as a binary frame. Retained messages are replayed to new
// clients.
type Feed struct {
	lock     sync.Mutex
	clients  map[*feedClient]struct{}
	retained map[string][]byte
}

type feedClient struct {
	filter string
	ch     chan outMsg
}

// NewFeed creates a Feed.
func NewFeed() *Feed {
	return &Feed{
		clients:  make(map[*feedClient]struct{}),
		retained: make(map[string][]byte),
	}
}

// Publish implements Sink. Slow clients lose messages.
func (f *Feed) Publish(topic string, payload []byte, retain bool) error {
	m := outMsg{topic: topic, payload: payload, retain: retain}
	f.lock.Lock()
	defer f.lock.Unlock()
	if retain {
		f.retained[topic] = payload
	}
	for c := range f.clients {
		if !mqtt.MatchTopic(topic, c.filter) {
			continue
		}
		select {
		case c.ch <- m:
		default:
			glog.V(1).Infof("websocket client lagging, dropped %s", topic)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.clients)
}

func (f *Feed) attach(filter string) *feedClient {
	c := &feedClient{filter: filter, ch: make(chan outMsg, clientQueueSize)}
	f.lock.Lock()
	defer f.lock.Unlock()
	for topic, payload := range f.retained {
		if mqtt.MatchTopic(topic, filter) && len(c.ch) < cap(c.ch) {
			c.ch <- outMsg{topic: topic, payload: payload, retain: true}
		}
	}
	f.clients[c] = struct{}{}
	return c
}

func (f *Feed) detach(c *feedClient) {
	f.lock.Lock()
	delete(f.clients, c)
	f.lock.Unlock()
}

// Handler returns the websocket handler serving the feed.
func (f *Feed) Handler() websocket.Handler {
	return f.serve
}

func (f *Feed) serve(conn *websocket.Conn) {
	defer conn.Close()
	filter := conn.Request().URL.Query().Get("topic")
	if filter == "" {
		filter = "#"
	}
	c := f.attach(filter)
	defer f.detach(c)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
	}()

	for {
		select {
		case m := <-c.ch:
			if err := websocket.Message.Send(conn, m.topic); err != nil {
				return
			}
			if err := websocket.Message.Send(conn, m.payload); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// Receive reads one topic and payload pair sent by the feed.
func Receive(conn *websocket.Conn) (topic string, payload []byte, err error) {
	if err = websocket.Message.Receive(conn, &topic); err != nil {
		return
	}
	err = websocket.Message.Receive(conn, &payload)
	return
}

// Server serves the Feed over HTTP.
type Server struct {
	Addr string
	Feed *Feed

	lock     sync.Mutex
	listener net.Listener
}

// NewServer creates a Server.
func NewServer(addr string, feed *Feed) *Server {
	return &Server{Addr: addr, Feed: feed}
}

// Listen opens the listener, Run calls it when not done yet.
func (s *Server) Listen() (net.Addr, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return nil, err
		}
		s.listener = ln
	}
	return s.listener.Addr(), nil
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/feed", s.Feed.Handler())
	srv := &http.Server{Handler: mux}
	glog.Infof("websocket feed on %s", s.listener.Addr())
	err := fx.RunWithContextCloser(ctx, srv, func() error {
		return srv.Serve(s.listener)
	})
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}
