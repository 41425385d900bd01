package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/mqtt"
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run a standalone MQTT broker",
	Long: `Run an MQTT broker for bench setups without one.

Example:
  twistctl broker --addr :1883
  twistctl broker --addr :1883 --trace`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		trace, _ := cmd.Flags().GetBool("trace")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b := &mqtt.Broker{
			Addr: addr,
			OnConnect: func(id string) {
				slog.Info("client connected", "client_id", id)
			},
			OnDisconnect: func(id string) {
				slog.Info("client disconnected", "client_id", id)
			},
		}
		if trace {
			b.Handler = mqtt.HandlerFunc(func(m mqtt.Message) error {
				slog.Info("publish", "topic", m.Packet.Topic, "bytes", len(m.Packet.Payload), "retain", m.Packet.Retain)
				return nil
			})
		}
		return ignoreCanceled(b.ListenAndServe(ctx))
	},
}

func init() {
	brokerCmd.Flags().String("addr", ":1883", "TCP listen address")
	brokerCmd.Flags().Bool("trace", false, "log every routed publish")
}
