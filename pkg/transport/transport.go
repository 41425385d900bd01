// Package transport provides output channel publishers for the rig loop.
//
// MQTT publishes each record to <namespace>/<key> on a broker. Memory keeps
// records in process for dry runs and tests.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/mqtt"
)

// DefaultNamespace is the topic prefix the TWIST2 controller subscribes to.
const DefaultNamespace = "twist2"

// ErrClosed is returned by publishers after Close.
var ErrClosed = errors.New("transport: closed")

// MQTTOptions configures an MQTT publisher.
type MQTTOptions struct {
	// Namespace prefixes every key. Defaults to DefaultNamespace.
	Namespace string

	// Retain publishes records with the retain flag so late subscribers see
	// the latest target immediately.
	Retain bool

	// ContentType is sent as the MQTT v5 content type of every record.
	ContentType string

	// Dialer overrides connection settings. Nil uses a zero Dialer.
	Dialer *mqtt.Dialer

	// DialOptions are passed to Dialer.Connect.
	DialOptions []mqtt.DialOption
}

// MQTT publishes records to a broker.
type MQTT struct {
	conn      *mqtt.Conn
	namespace string
	opts      []mqtt.WriteOption
}

// NewMQTT starts connecting to the broker at url and returns without waiting
// for the connection. Publishes fail until the connection is up.
func NewMQTT(url string, opts MQTTOptions) (*MQTT, error) {
	dl := opts.Dialer
	if dl == nil {
		dl = new(mqtt.Dialer)
	}
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	conn, err := dl.Connect(url, opts.DialOptions...)
	if err != nil {
		return nil, err
	}
	m := &MQTT{conn: conn, namespace: ns}
	if opts.Retain {
		m.opts = append(m.opts, mqtt.WithRetain())
	}
	if opts.ContentType != "" {
		m.opts = append(m.opts, mqtt.WithContentType(opts.ContentType))
	}
	return m, nil
}

// Topic returns the topic key is published to.
func (m *MQTT) Topic(key string) string {
	return mqtt.Topic(m.namespace, key)
}

// Publish sends payload to the topic for key.
func (m *MQTT) Publish(ctx context.Context, key string, payload []byte) error {
	topic := m.Topic(key)
	if err := mqtt.ValidateTopic(topic); err != nil {
		return err
	}
	return m.conn.WriteToTopic(ctx, payload, topic, m.opts...)
}

// Ping waits for the broker connection until ctx is done.
func (m *MQTT) Ping(ctx context.Context) error {
	return m.conn.Ping(ctx)
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	return m.conn.Close()
}

// Record is a message captured by Memory.
type Record struct {
	Key     string
	Payload []byte
}

// Memory records published messages in process.
type Memory struct {
	mu      sync.Mutex
	records []Record
	limit   int
	failErr error
	closed  bool
}

// NewMemory returns a Memory keeping at most limit records (0 keeps all).
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

// Publish stores a copy of payload.
func (m *Memory) Publish(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errLocked(); err != nil {
		return err
	}
	m.records = append(m.records, Record{Key: key, Payload: append([]byte(nil), payload...)})
	if m.limit > 0 && len(m.records) > m.limit {
		m.records = append(m.records[:0], m.records[len(m.records)-m.limit:]...)
	}
	return nil
}

// Ping fails while a failure is set or after Close.
func (m *Memory) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errLocked()
}

func (m *Memory) errLocked() error {
	if m.closed {
		return ErrClosed
	}
	return m.failErr
}

// Fail makes every Publish and Ping return err until Fail(nil).
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Records returns a copy of the stored records, oldest first.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Last returns the most recent record.
func (m *Memory) Last() (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return Record{}, false
	}
	return m.records[len(m.records)-1], true
}

// Close makes further calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
