package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

const (
	defaultKeepAlive         = 20
	defaultConnectRetryDelay = 2 * time.Second
	defaultConnectTimeout    = 5 * time.Second
)

// Dialer holds the options used to establish and maintain a broker
// connection. The zero value is usable.
type Dialer struct {
	// KeepAlive is the keepalive period in seconds (defaults to 20).
	KeepAlive int

	// ConnectRetryDelay is the pause between connection attempts (defaults
	// to 2s).
	ConnectRetryDelay time.Duration

	// ConnectTimeout bounds a single connection attempt (defaults to 5s).
	ConnectTimeout time.Duration

	// ID is the client identifier. A random one is generated when empty.
	ID string

	// ServeMux receives inbound messages for subscriptions. Nil drops them.
	ServeMux *ServeMux

	// Logger receives connection state changes. Defaults to slog.Default().
	Logger *slog.Logger

	// OnConnectionUp is called after every successful (re)connection.
	OnConnectionUp func()

	// OnConnectError is called when a connection attempt fails.
	OnConnectError func(error)
}

func (dl *Dialer) keepAlive() uint16 {
	if dl.KeepAlive <= 0 {
		return defaultKeepAlive
	}
	return uint16(dl.KeepAlive)
}

func (dl *Dialer) connectRetryDelay() time.Duration {
	if dl.ConnectRetryDelay <= 0 {
		return defaultConnectRetryDelay
	}
	return dl.ConnectRetryDelay
}

func (dl *Dialer) connectTimeout() time.Duration {
	if dl.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return dl.ConnectTimeout
}

func (dl *Dialer) logger() *slog.Logger {
	if dl.Logger == nil {
		return slog.Default()
	}
	return dl.Logger
}

// DialOption customizes the client configuration.
type DialOption interface {
	apply(*autopaho.ClientConfig) error
}

type withUser struct {
	username, password string
}

func (u withUser) apply(cfg *autopaho.ClientConfig) error {
	cfg.ConnectUsername = u.username
	cfg.ConnectPassword = []byte(u.password)
	return nil
}

// WithUser authenticates with username and password, overriding any
// credentials embedded in the broker URL.
func WithUser(username, password string) DialOption {
	return withUser{username, password}
}

// Connect starts a managed connection to addr and returns immediately. The
// connection is (re)established in the background until Close is called, so
// a broker that is down at startup does not fail the caller.
func (dl *Dialer) Connect(addr string, opts ...DialOption) (*Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("mqtt: parse broker url: %w", err)
	}
	id := dl.ID
	if id == "" {
		id = "twistctl-" + uuid.NewString()
	}
	log := dl.logger().With("broker", u.Redacted(), "client_id", id)

	conn := &Conn{mux: dl.ServeMux, log: log}
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		AttemptConnection:             attemptConnection,
		CleanStartOnInitialConnection: true,
		KeepAlive:                     dl.keepAlive(),
		ConnectRetryDelay:             dl.connectRetryDelay(),
		ConnectTimeout:                dl.connectTimeout(),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Info("mqtt connected")
			conn.resubscribe(cm)
			if dl.OnConnectionUp != nil {
				dl.OnConnectionUp()
			}
		},
		OnConnectError: func(err error) {
			log.Debug("mqtt connect attempt failed", "error", err)
			if dl.OnConnectError != nil {
				dl.OnConnectError(err)
			}
		},
		ClientConfig: paho.ClientConfig{
			ClientID: id,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				conn.dispatch,
			},
			OnClientError: func(err error) {
				log.Warn("mqtt client error", "error", err)
			},
		},
	}
	if ui := u.User; ui != nil {
		cfg.ConnectUsername = ui.Username()
		if pwd, ok := ui.Password(); ok {
			cfg.ConnectPassword = []byte(pwd)
		}
	}
	for _, opt := range opts {
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}
	cm, err := autopaho.NewConnection(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	conn.cm = cm
	return conn, nil
}

// Dial connects to addr and waits until the first connection is up or ctx
// is done.
func (dl *Dialer) Dial(ctx context.Context, addr string, opts ...DialOption) (*Conn, error) {
	conn, err := dl.Connect(addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.cm.AwaitConnection(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt: dial %s: %w", addr, err)
	}
	return conn, nil
}

// Dial connects to addr with a zero Dialer.
func Dial(ctx context.Context, addr string, opts ...DialOption) (*Conn, error) {
	return new(Dialer).Dial(ctx, addr, opts...)
}

func attemptConnection(ctx context.Context, cc autopaho.ClientConfig, u *url.URL) (net.Conn, error) {
	switch strings.ToLower(u.Scheme) {
	case "mqtt", "tcp", "":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		return packets.NewThreadSafeConn(conn), nil
	case "ssl", "tls", "mqtts", "tcps":
		d := tls.Dialer{Config: cc.TlsCfg}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return packets.NewThreadSafeConn(conn), nil
	default:
		return nil, fmt.Errorf("mqtt: unsupported scheme %q in %s", u.Scheme, u.Redacted())
	}
}
