package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [edit|control|scene]",
	Short: "Print the JSON schemas of the control panel API",
	Long: `Print the JSON schemas the control panel validates requests against.

  edit     POST /api/edit and websocket messages
  control  POST /api/control
  scene    PUT /api/scenes/{name}`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getContext()
		if err != nil {
			return err
		}
		model, err := buildModel(c)
		if err != nil {
			return err
		}
		schemas, err := requestSchemas(model)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return cli.Output(schemas, cli.OutputOptions{Format: cli.FormatJSON, Query: query})
		}
		s, ok := schemas[args[0]]
		if !ok {
			names := make([]string, 0, len(schemas))
			for name := range schemas {
				names = append(names, name)
			}
			slices.Sort(names)
			return fmt.Errorf("unknown schema %q (want one of %v)", args[0], names)
		}
		return cli.Output(s, cli.OutputOptions{Format: cli.FormatJSON, Query: query})
	},
}
