package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
)

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFmt   string
	query       string
	logLevel    string
	verbose     bool

	// Global configuration
	globalConfig *cli.Config
	globalPaths  *cli.Paths
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twistctl",
	Short: "Joint-target controller for the TWIST2 humanoid stack",
	Long: `twistctl drives a 29-DOF Unitree G1 toward target joint angles, either
from manual edits in the web control panel or from pre-authored scenes, and
streams the target vector at a fixed rate over MQTT to the low-level
controller.

Configuration is stored in ~/.twistctl/ and supports multiple contexts,
similar to kubectl's context management.

Examples:
  # Point a context at the robot's broker
  twistctl config set mqtt.url tcp://192.168.123.164:1883 -c lab

  # Run the controller with the web panel on :8080
  twistctl serve --addr :8080

  # Dry run without a broker
  twistctl serve --dry-run

  # List poses as a table
  twistctl pose list -o table
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" && verbose {
			logLevel = "debug"
		}
		_, _, err := cli.SetupLogger(cli.LogOptions{Level: logLevel})
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.twistctl/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "yaml", "output format: yaml, json or table")
	rootCmd.PersistentFlags().StringVarP(&query, "query", "q", "", "jq expression applied to the output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(poseCmd)
	rootCmd.AddCommand(sceneCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(brokerCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	var err error
	globalPaths, err = cli.NewPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving home directory: %v\n", err)
		os.Exit(1)
	}
	path := cfgFile
	if path == "" {
		path = globalPaths.ConfigFile()
	}
	globalConfig, err = cli.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getConfig returns the global configuration
func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the context selected by -c, the current context, or
// the built-in defaults.
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return cfg.ResolveContext(contextName)
}

// buildModel returns the G1 model with the context's default pose applied.
func buildModel(ctx *cli.Context) (*joint.Model, error) {
	m := joint.G1()
	if len(ctx.DefaultAngles) == 0 {
		return m, nil
	}
	m, err := m.WithDefaults(ctx.DefaultAngles)
	if err != nil {
		return nil, fmt.Errorf("context %q default_angles: %w", ctx.Name, err)
	}
	return m, nil
}

// defaultInterp returns the context's load/reset interpolation time.
func defaultInterp(ctx *cli.Context) time.Duration {
	return time.Duration(ctx.InterpSeconds() * float64(time.Second))
}

// outputResult writes result in the format selected by --output/--query.
func outputResult(result any) error {
	return cli.Output(result, cli.OutputOptions{
		Format: cli.OutputFormat(outputFmt),
		Query:  query,
	})
}
