package mqtt_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/mqtt"
)

func message(topic string) mqtt.Message {
	return mqtt.Message{Packet: &paho.Publish{Topic: topic}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func findAvailablePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func startBroker(t *testing.T, b *mqtt.Broker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
}

func TestBrokerRoundTrip(t *testing.T) {
	addr := findAvailablePort(t)
	observed := make(chan string, 4)
	b := &mqtt.Broker{
		Addr:   addr,
		Logger: quietLogger(),
		Handler: mqtt.HandlerFunc(func(m mqtt.Message) error {
			observed <- m.Packet.Topic
			return nil
		}),
	}
	startBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mux := mqtt.NewServeMux()
	received := make(chan []byte, 1)
	if err := mux.HandleFunc("twist2/#", func(m mqtt.Message) error {
		received <- m.Packet.Payload
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	sub, err := (&mqtt.Dialer{ServeMux: mux, Logger: quietLogger()}).Dial(ctx, "tcp://"+addr)
	if err != nil {
		t.Fatalf("dial subscriber: %v", err)
	}
	defer sub.Close()
	if err := sub.Subscribe(ctx, "twist2/#", mqtt.AtMostOnce); err != nil {
		t.Fatal(err)
	}

	pub, err := (&mqtt.Dialer{Logger: quietLogger()}).Dial(ctx, "tcp://"+addr)
	if err != nil {
		t.Fatalf("dial publisher: %v", err)
	}
	defer pub.Close()
	if err := pub.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := pub.WriteToTopic(ctx, []byte("[0.1,0.2]"), "twist2/action_body"); err != nil {
		t.Fatal(err)
	}

	select {
	case payload := <-received:
		if string(payload) != "[0.1,0.2]" {
			t.Errorf("payload = %q", payload)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for message")
	}
	select {
	case topic := <-observed:
		if topic != "twist2/action_body" {
			t.Errorf("broker observed %q", topic)
		}
	case <-ctx.Done():
		t.Fatal("broker handler not called")
	}
}

func TestConnectBeforeBroker(t *testing.T) {
	addr := findAvailablePort(t)
	conn, err := (&mqtt.Dialer{
		Logger:            quietLogger(),
		ConnectRetryDelay: 50 * time.Millisecond,
	}).Connect("tcp://" + addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	err = conn.Ping(ctx)
	cancel()
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Ping before broker = %v, want ErrNotConnected", err)
	}
	if err := conn.WriteToTopic(context.Background(), []byte("x"), "twist2/a"); err == nil {
		t.Error("publish without a connection should fail")
	}

	startBroker(t, &mqtt.Broker{Addr: addr, Logger: quietLogger()})
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping after broker start: %v", err)
	}
}

func TestBrokerLifecycle(t *testing.T) {
	b := &mqtt.Broker{Addr: findAvailablePort(t), Logger: quietLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if err := b.ListenAndServe(ctx); !errors.Is(err, mqtt.ErrBrokerRunning) {
		t.Errorf("second ListenAndServe = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; !errors.Is(err, mqtt.ErrBrokerClosed) {
		t.Errorf("ListenAndServe = %v, want ErrBrokerClosed", err)
	}
	cancel()
	if err := b.ListenAndServe(context.Background()); !errors.Is(err, mqtt.ErrBrokerClosed) {
		t.Errorf("ListenAndServe after Close = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
