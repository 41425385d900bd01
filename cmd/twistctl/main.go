// Package main provides twistctl, the joint-target controller for the
// Unitree G1 running under the TWIST2 low-level controller.
//
// Usage:
//
//	twistctl [flags] <command> [args]
//
// Commands:
//
//	serve    - Run the controller, publish loop and web control panel
//	pose     - Manage the pose library
//	scene    - Manage motion scenes
//	monitor  - Watch the output channel in the terminal
//	broker   - Run an embedded MQTT broker
//	schema   - Print the control panel request schemas
//	config   - Configuration management
//
// Configuration:
//
//	The CLI stores configuration in ~/.twistctl/
//	Use 'twistctl config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/luizmgoncw/twist2-gui-controller/cmd/twistctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
