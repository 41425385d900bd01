package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/frame"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/mqtt"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/rig"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller, publish loop and web control panel",
	Long: `Run the joint-target controller.

The target vector is ticked and published at a fixed rate to
<namespace>/<key> on the broker, while the web control panel edits joints,
manages poses and scenes, and controls playback. Flags override the
settings of the selected context.

Example:
  twistctl serve
  twistctl serve --mqtt tcp://192.168.123.164:1883 --rate 50 --addr :8080
  twistctl serve --embedded-broker :1883 --format mimic
  twistctl serve --dry-run`,
	RunE: runServe,
}

// serveOverrides maps serve flags to context keys.
var serveOverrides = map[string]string{
	"mqtt":      "mqtt.url",
	"namespace": "mqtt.namespace",
	"key":       "key",
	"format":    "format",
	"rate":      "rate",
	"policy":    "policy",
	"symmetric": "symmetric",
	"addr":      "web_addr",
	"data-dir":  "data_dir",
	"retain":    "mqtt.retain",
}

func runServe(cmd *cobra.Command, args []string) error {
	base, err := getContext()
	if err != nil {
		return err
	}
	settings := *base
	for flag, key := range serveOverrides {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := settings.Set(key, f.Value.String()); err != nil {
			return fmt.Errorf("--%s: %w", flag, err)
		}
	}
	if err := validateContext(&settings); err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	paused, _ := cmd.Flags().GetBool("paused")
	brokerAddr, _ := cmd.Flags().GetString("embedded-broker")
	logFile, _ := cmd.Flags().GetBool("log-file")

	if logFile {
		if err := globalPaths.EnsureLogDir(); err != nil {
			return err
		}
		_, closer, err := cli.SetupLogger(cli.LogOptions{
			Level: logLevel,
			File:  globalPaths.LogPath(settings.Name + "-serve.log"),
		})
		if err != nil {
			return err
		}
		defer closer.Close()
	}
	if brokerAddr != "" && settings.MQTT.URL == "" {
		settings.MQTT.URL = localBrokerURL(brokerAddr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib, err := openLibrary(ctx, &settings)
	if err != nil {
		return err
	}
	defer lib.Close()

	policy, _ := rig.ParsePolicy(settings.Policy)
	codec, _ := frame.ByName(frame.Format(settings.Format))
	ctrl := rig.NewController(lib.model, rig.ControllerOptions{
		Poses:     lib.poses,
		Scenes:    lib.scenes,
		Policy:    policy,
		Symmetric: settings.Symmetric,
	})

	g, gctx := errgroup.WithContext(ctx)

	if brokerAddr != "" {
		broker := &mqtt.Broker{
			Addr: brokerAddr,
			OnConnect: func(id string) {
				slog.Info("broker client connected", "client_id", id)
			},
			OnDisconnect: func(id string) {
				slog.Info("broker client disconnected", "client_id", id)
			},
		}
		g.Go(func() error {
			return ignoreCanceled(broker.ListenAndServe(gctx))
		})
	}

	var pub interface {
		rig.Publisher
		Close() error
	}
	if dryRun {
		pub = transport.NewMemory(1)
		slog.Info("dry run: records are not sent")
	} else {
		var dialOpts []mqtt.DialOption
		if settings.MQTT.Username != "" {
			dialOpts = append(dialOpts, mqtt.WithUser(settings.MQTT.Username, settings.MQTT.Password))
		}
		m, err := transport.NewMQTT(settings.BrokerURL(), transport.MQTTOptions{
			Namespace:   settings.MQTT.Namespace,
			Retain:      settings.MQTT.Retain,
			ContentType: codec.Format().ContentType(),
			DialOptions: dialOpts,
		})
		if err != nil {
			return err
		}
		slog.Info("publishing to broker", "broker", settings.BrokerURL(), "topic", m.Topic(keyOrDefault(settings.Key)))
		pub = m
	}
	defer pub.Close()

	loop := rig.NewLoop(ctrl, pub, rig.LoopOptions{
		Rate:    settings.Rate(),
		Key:     settings.Key,
		Encoder: codec,
		Paused:  paused,
	})
	web, err := NewWebServer(WebConfig{
		Controller: ctrl,
		Loop:       loop,
		Poses:      lib.poses,
		Scenes:     lib.scenes,
		Interp:     defaultInterp(&settings),
		Title:      "twistctl · " + settings.Name,
	})
	if err != nil {
		return err
	}

	g.Go(func() error {
		return ignoreCanceled(loop.Run(gctx))
	})
	g.Go(func() error {
		return web.ListenAndServe(gctx, settings.ListenAddr())
	})

	slog.Info("controller running",
		"context", settings.Name,
		"rate_hz", settings.Rate(),
		"format", codec.Format(),
		"policy", policy,
		"poses", lib.poses.Len(),
		"scenes", lib.scenes.Len(),
		"panel", "http://"+panelHost(settings.ListenAddr()),
	)
	err = g.Wait()
	slog.Info("controller stopped", "ticks", loop.Stats().Ticks, "published", loop.Stats().Published)
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func keyOrDefault(key string) string {
	if key == "" {
		return frame.DefaultKey
	}
	return key
}

// localBrokerURL returns the URL a local client uses for a listen address.
func localBrokerURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return cli.DefaultMQTTURL
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "tcp://" + net.JoinHostPort(host, port)
}

func panelHost(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host != "" {
		return addr
	}
	return net.JoinHostPort("localhost", port)
}

func init() {
	f := serveCmd.Flags()
	f.String("mqtt", "", "broker URL, e.g. tcp://192.168.123.164:1883")
	f.String("namespace", "", "topic namespace (default twist2)")
	f.String("key", "", "output channel key (default "+frame.DefaultKey+")")
	f.String("format", "", "record format: json, msgpack or mimic")
	f.Float64("rate", cli.DefaultRate, "publish rate in Hz")
	f.String("policy", "", "edits during playback: interrupt or reject")
	f.Bool("symmetric", false, "start with symmetric editing on")
	f.String("addr", "", "web control panel address (default "+cli.DefaultWebAddr+")")
	f.String("data-dir", "", "pose and scene library directory")
	f.Bool("retain", false, "publish with the retain flag")
	f.Bool("dry-run", false, "tick and encode without sending")
	f.Bool("paused", false, "start with publishing disabled")
	f.String("embedded-broker", "", "also run an MQTT broker on this address, e.g. :1883")
	f.Bool("log-file", false, "also write logs to a rotated file in ~/.twistctl/logs")
}
