package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/eclipse/paho.golang/paho"
	mochimqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

var (
	// ErrBrokerClosed is returned by ListenAndServe after Close.
	ErrBrokerClosed = errors.New("mqtt: broker closed")

	// ErrBrokerRunning is returned when ListenAndServe is called twice.
	ErrBrokerRunning = errors.New("mqtt: broker already running")

	errBrokerNotRunning = errors.New("mqtt: broker not running")
)

// Broker is an embedded MQTT broker for running the publisher without an
// external server, e.g. on a bench or in tests.
type Broker struct {
	// Addr is the TCP listen address, e.g. ":1883".
	Addr string

	// Handler observes every publish routed by the broker. May be nil.
	Handler Handler

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// OnConnect and OnDisconnect observe client sessions.
	OnConnect    func(clientID string)
	OnDisconnect func(clientID string)

	mu     sync.Mutex
	server *mochimqtt.Server
	closed bool
	done   chan struct{}
}

func (b *Broker) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

func (b *Broker) init() (*mochimqtt.Server, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return nil, ErrBrokerClosed
	case b.server != nil:
		return nil, ErrBrokerRunning
	}
	srv := mochimqtt.New(&mochimqtt.Options{
		InlineClient: true,
		Logger:       b.logger().With("component", "broker"),
	})
	if err := srv.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}
	hook := &brokerHook{
		handler:      b.Handler,
		onConnect:    b.OnConnect,
		onDisconnect: b.OnDisconnect,
	}
	if err := srv.AddHook(hook, nil); err != nil {
		return nil, err
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: b.Addr})
	if err := srv.AddListener(tcp); err != nil {
		return nil, err
	}
	b.server = srv
	b.done = make(chan struct{})
	return srv, nil
}

// ListenAndServe starts the broker and blocks until ctx is done or Close is
// called.
func (b *Broker) ListenAndServe(ctx context.Context) error {
	srv, err := b.init()
	if err != nil {
		return err
	}
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if err := srv.Serve(); err != nil {
		_ = b.Close()
		return err
	}
	b.logger().Info("mqtt broker listening", "addr", b.Addr)
	select {
	case <-ctx.Done():
		_ = b.Close()
		return ctx.Err()
	case <-done:
		return ErrBrokerClosed
	}
}

// Close stops the broker. It is safe to call more than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	srv, done := b.server, b.done
	b.server, b.done = nil, nil
	b.closed = true
	b.mu.Unlock()
	if srv == nil {
		return nil
	}
	close(done)
	return srv.Close()
}

// Publish injects a message as if a client had published it.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	srv := b.server
	b.mu.Unlock()
	if srv == nil {
		return errBrokerNotRunning
	}
	return srv.Publish(topic, payload, retain, 0)
}

type brokerHook struct {
	mochimqtt.HookBase
	handler      Handler
	onConnect    func(string)
	onDisconnect func(string)
}

func (h *brokerHook) ID() string { return "twistctl-broker" }

func (h *brokerHook) Provides(b byte) bool {
	return b == mochimqtt.OnSessionEstablished ||
		b == mochimqtt.OnDisconnect ||
		b == mochimqtt.OnPublished
}

func (h *brokerHook) OnSessionEstablished(cl *mochimqtt.Client, _ packets.Packet) {
	if h.onConnect != nil {
		h.onConnect(cl.ID)
	}
}

func (h *brokerHook) OnDisconnect(cl *mochimqtt.Client, _ error, _ bool) {
	if h.onDisconnect != nil {
		h.onDisconnect(cl.ID)
	}
}

func (h *brokerHook) OnPublished(_ *mochimqtt.Client, pk packets.Packet) {
	if h.handler == nil {
		return
	}
	pr := paho.PublishReceived{
		Packet: &paho.Publish{
			Topic:   pk.TopicName,
			Payload: pk.Payload,
			Retain:  pk.FixedHeader.Retain,
			Properties: &paho.PublishProperties{
				ContentType: pk.Properties.ContentType,
			},
		},
	}
	_ = h.handler.HandleMessage(pr)
}
