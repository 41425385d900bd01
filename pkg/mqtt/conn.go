package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// QoS is the MQTT Quality of Service.
type QoS byte

const (
	AtMostOnce QoS = iota
	AtLeastOnce
	ExactlyOnce
)

// ErrNotConnected is returned by Ping when the connection is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// Conn is a managed broker connection. It reconnects on its own and replays
// subscriptions after every reconnect.
type Conn struct {
	cm  *autopaho.ConnectionManager
	mux *ServeMux
	log *slog.Logger

	mu   sync.Mutex
	subs []paho.SubscribeOptions
}

func (conn *Conn) dispatch(pr paho.PublishReceived) (bool, error) {
	if conn.mux == nil || pr.AlreadyHandled {
		return false, nil
	}
	if err := conn.mux.HandleMessage(pr); err != nil {
		return false, err
	}
	return true, nil
}

func (conn *Conn) resubscribe(cm *autopaho.ConnectionManager) {
	conn.mu.Lock()
	subs := append([]paho.SubscribeOptions(nil), conn.subs...)
	conn.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	go func() {
		if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: subs}); err != nil {
			conn.log.Error("mqtt resubscribe failed", "error", err)
		}
	}()
}

// Ping reports whether the connection is up, waiting until ctx is done for
// a pending (re)connection to complete.
func (conn *Conn) Ping(ctx context.Context) error {
	if err := conn.cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

// WriteOption is an option for writing a message.
type WriteOption interface {
	applyToPublish(*paho.Publish)
}

func (qos QoS) applyToPublish(pub *paho.Publish) {
	pub.QoS = byte(qos)
}

type retain struct{}

func (retain) applyToPublish(pub *paho.Publish) {
	pub.Retain = true
}

// WithRetain sets the retain flag of the message.
func WithRetain() WriteOption {
	return retain{}
}

type contentType string

func (ct contentType) applyToPublish(pub *paho.Publish) {
	if pub.Properties == nil {
		pub.Properties = new(paho.PublishProperties)
	}
	pub.Properties.ContentType = string(ct)
}

// WithContentType sets the MQTT v5 content type property.
func WithContentType(ct string) WriteOption {
	return contentType(ct)
}

// WriteToTopic publishes b to topic. Messages default to QoS 0 without the
// retain flag. It fails fast when the connection is down.
func (conn *Conn) WriteToTopic(ctx context.Context, b []byte, topic string, opts ...WriteOption) error {
	pub := &paho.Publish{
		Topic:   topic,
		Payload: b,
	}
	for _, opt := range opts {
		opt.applyToPublish(pub)
	}
	if _, err := conn.cm.Publish(ctx, pub); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe subscribes to a topic filter. The subscription is replayed after
// reconnects.
func (conn *Conn) Subscribe(ctx context.Context, filter string, qos QoS) error {
	opt := paho.SubscribeOptions{Topic: filter, QoS: byte(qos)}
	if _, err := conn.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{opt},
	}); err != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", filter, err)
	}
	conn.mu.Lock()
	conn.subs = append(conn.subs, opt)
	conn.mu.Unlock()
	return nil
}

// Done is closed once the connection manager has shut down.
func (conn *Conn) Done() <-chan struct{} {
	return conn.cm.Done()
}

// Close disconnects and stops reconnecting.
func (conn *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	return conn.cm.Disconnect(ctx)
}
