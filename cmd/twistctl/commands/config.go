package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/frame"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/rig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context holds the settings for one robot setup: broker URL, topic
namespace and key, record format, publish rate, edit policy, library
directory, web panel address and default pose.

Configuration is stored in ~/.twistctl/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name.

Example:
  twistctl config add-context lab --mqtt tcp://192.168.123.164:1883
  twistctl config add-context sim --mqtt tcp://127.0.0.1:1883 --format mimic`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := &cli.Context{}
		for flag, key := range map[string]string{
			"mqtt":      "mqtt.url",
			"namespace": "mqtt.namespace",
			"key":       "key",
			"format":    "format",
			"rate":      "rate",
			"policy":    "policy",
			"data-dir":  "data_dir",
			"addr":      "web_addr",
		} {
			if !cmd.Flags().Changed(flag) {
				continue
			}
			v, err := cmd.Flags().GetString(flag)
			if err != nil {
				return fmt.Errorf("failed to read %q flag: %w", flag, err)
			}
			if err := ctx.Set(key, v); err != nil {
				return err
			}
		}
		if err := validateContext(ctx); err != nil {
			return err
		}
		if err := getConfig().AddContext(args[0], ctx); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q added", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Display the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

// contextList renders config list-contexts.
type contextList struct {
	Current  string         `json:"current"`
	Contexts []*cli.Context `json:"contexts"`
}

func (l contextList) TableHeader() []string {
	return []string{"CURRENT", "NAME", "MQTT", "FORMAT", "RATE"}
}

func (l contextList) TableRows() [][]string {
	rows := make([][]string, len(l.Contexts))
	for i, c := range l.Contexts {
		mark := ""
		if c.Name == l.Current {
			mark = "*"
		}
		format := c.Format
		if format == "" {
			format = "json"
		}
		rows[i] = []string{mark, c.Name, c.BrokerURL(), format, fmt.Sprintf("%g Hz", c.Rate())}
	}
	return rows
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		list := contextList{Current: cfg.CurrentContext}
		for _, name := range cfg.ListContexts() {
			list.Contexts = append(list.Contexts, cfg.Contexts[name].Redacted())
		}
		return outputResult(list)
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view [name]",
	Short: "Show the settings of a context",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := contextName
		if len(args) == 1 {
			name = args[0]
		}
		ctx, err := getConfig().ResolveContext(name)
		if err != nil {
			return err
		}
		return outputResult(ctx.Redacted())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting in the selected context",
	Long: `Set a setting in the context selected with -c, or the current context.
The context is created if it does not exist.

Keys:
  ` + strings.Join(cli.Keys, "\n  ") + `

Example:
  twistctl config set rate 30 -c lab
  twistctl config set default_angles "-0.2,0,0,0.42,-0.23,0,..."`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		name := contextName
		if name == "" {
			name = cfg.CurrentContext
		}
		if name == "" {
			name = cli.DefaultContext
		}
		ctx, ok := cfg.Contexts[name]
		if !ok {
			ctx = &cli.Context{}
		}
		if err := ctx.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := validateContext(ctx); err != nil {
			return err
		}
		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}
		cli.PrintSuccess("Set %s in context %q", args[0], name)
		return nil
	},
}

// validateContext rejects settings the serve command could not start with.
func validateContext(ctx *cli.Context) error {
	if _, err := frame.ByName(frame.Format(ctx.Format)); err != nil {
		return err
	}
	if _, err := rig.ParsePolicy(ctx.Policy); err != nil {
		return err
	}
	if ctx.PublishRate < 0 {
		return fmt.Errorf("rate must be positive, got %g", ctx.PublishRate)
	}
	if ctx.Interp < 0 {
		return fmt.Errorf("interp must not be negative, got %g", ctx.Interp)
	}
	if _, err := buildModel(ctx); err != nil {
		return err
	}
	return nil
}

func init() {
	configAddContextCmd.Flags().String("mqtt", "", "broker URL, e.g. tcp://host:1883")
	configAddContextCmd.Flags().String("namespace", "", "topic namespace (default twist2)")
	configAddContextCmd.Flags().String("key", "", "output channel key")
	configAddContextCmd.Flags().String("format", "", "record format: json, msgpack or mimic")
	configAddContextCmd.Flags().String("rate", "", "publish rate in Hz")
	configAddContextCmd.Flags().String("policy", "", "edit policy during playback: interrupt or reject")
	configAddContextCmd.Flags().String("data-dir", "", "pose and scene library directory")
	configAddContextCmd.Flags().String("addr", "", "web control panel address")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
}
