// Package cli provides the shared plumbing of the twistctl command line.
//
// This package includes:
//   - Configuration contexts (robot endpoints, publish settings, defaults)
//   - Output formatting (YAML, JSON, table) with optional jq queries
//   - Logging setup with rotating log files
//   - Terminal UI frames for the live monitor
//
// Configuration is stored in ~/.twistctl/config.yaml and supports multiple
// named contexts similar to kubectl:
//
//	cfg, err := cli.LoadConfig("")
//	ctx, err := cfg.ResolveContext("")
//	rate := ctx.Rate()
package cli
