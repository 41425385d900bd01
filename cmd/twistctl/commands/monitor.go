package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/frame"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/mqtt"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/transport"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the published joint targets",
	Long: `Subscribe to <namespace>/<key> on the broker and show the received
joint targets live, one gauge per joint.

Example:
  twistctl monitor
  twistctl monitor --format mimic --mqtt tcp://192.168.123.164:1883
  twistctl monitor --plain`,
	RunE: runMonitor,
}

// frameMsg is a decoded record received from the broker.
type frameMsg struct {
	Topic  string
	At     time.Time
	Angles joint.Vector
	Err    error
}

func runMonitor(cmd *cobra.Command, args []string) error {
	base, err := getContext()
	if err != nil {
		return err
	}
	settings := *base
	for flag, key := range map[string]string{"mqtt": "mqtt.url", "namespace": "mqtt.namespace", "key": "key", "format": "format"} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := settings.Set(key, f.Value.String()); err != nil {
				return err
			}
		}
	}
	codec, err := frame.ByName(frame.Format(settings.Format))
	if err != nil {
		return err
	}
	model, err := buildModel(&settings)
	if err != nil {
		return err
	}
	plain, _ := cmd.Flags().GetBool("plain")
	interval, _ := cmd.Flags().GetDuration("interval")

	// The TUI owns the terminal, so logs go to its log pane.
	var logWriter *cli.LogWriter
	if !plain {
		logWriter = cli.NewLogWriter(100)
		if _, _, err := cli.SetupLogger(cli.LogOptions{Level: logLevel, Stderr: logWriter}); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ns := settings.MQTT.Namespace
	if ns == "" {
		ns = transport.DefaultNamespace
	}
	topic := mqtt.Topic(ns, keyOrDefault(settings.Key))

	frames := make(chan frameMsg, 64)
	mux := mqtt.NewServeMux()
	if err := mux.HandleFunc(topic, func(m mqtt.Message) error {
		v, err := codec.Decode(m.Packet.Payload)
		msg := frameMsg{Topic: m.Packet.Topic, At: time.Now(), Angles: v, Err: err}
		select {
		case frames <- msg:
		default:
		}
		return nil
	}); err != nil {
		return err
	}

	var dialOpts []mqtt.DialOption
	if settings.MQTT.Username != "" {
		dialOpts = append(dialOpts, mqtt.WithUser(settings.MQTT.Username, settings.MQTT.Password))
	}
	dl := &mqtt.Dialer{ServeMux: mux}
	conn, err := dl.Connect(settings.BrokerURL(), dialOpts...)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		if err := conn.Ping(ctx); err != nil {
			return
		}
		if err := conn.Subscribe(ctx, topic, mqtt.AtMostOnce); err != nil {
			slog.Error("subscribe failed", "topic", topic, "error", err)
			return
		}
		slog.Info("subscribed", "topic", topic, "format", codec.Format())
	}()

	if plain {
		return monitorPlain(ctx, os.Stdout, model, frames, interval)
	}
	m := newMonitorModel(model, topic, codec.Format(), frames, logWriter)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// monitorPlain prints the latest frame at most once per interval.
func monitorPlain(ctx context.Context, w io.Writer, model *joint.Model, frames <-chan frameMsg, interval time.Duration) error {
	var last frameMsg
	var count int
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-frames:
			count++
			last = f
		case <-ticker.C:
			if last.At.IsZero() {
				continue
			}
			if last.Err != nil {
				fmt.Fprintf(w, "%s  decode error: %v\n", last.At.Format("15:04:05.000"), last.Err)
				continue
			}
			fmt.Fprintf(w, "%s  %d frames  %s\n", last.At.Format("15:04:05.000"), count, formatVector(model, last.Angles))
			count = 0
		}
	}
}

// formatVector renders angles as name=value pairs.
func formatVector(model *joint.Model, v joint.Vector) string {
	parts := make([]string, len(v))
	for i, x := range v {
		name := fmt.Sprintf("#%d", i)
		if model.Valid(i) && len(v) == model.Len() {
			name = model.Joint(i).Name
		}
		parts[i] = fmt.Sprintf("%s=%.3f", name, x)
	}
	return strings.Join(parts, " ")
}

func init() {
	monitorCmd.Flags().String("mqtt", "", "broker URL")
	monitorCmd.Flags().String("namespace", "", "topic namespace (default twist2)")
	monitorCmd.Flags().String("key", "", "output channel key")
	monitorCmd.Flags().String("format", "", "record format: json, msgpack or mimic")
	monitorCmd.Flags().Bool("plain", false, "print lines instead of the full-screen view")
	monitorCmd.Flags().Duration("interval", time.Second, "print period in plain mode")
}
