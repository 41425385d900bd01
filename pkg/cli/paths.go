package cli

import (
	"os"
	"path/filepath"
)

const (
	// DefaultBaseDir is the configuration directory under the home dir.
	DefaultBaseDir = ".twistctl"

	// HomeEnv overrides the base directory.
	HomeEnv = "TWISTCTL_HOME"
)

// Paths provides access to the twistctl directory layout.
type Paths struct {
	// Base is the root directory (~/.twistctl).
	Base string
}

// NewPaths returns the layout rooted at $TWISTCTL_HOME or ~/.twistctl.
func NewPaths() (*Paths, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return &Paths{Base: dir}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{Base: filepath.Join(home, DefaultBaseDir)}, nil
}

// ConfigFile returns ~/.twistctl/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.Base, DefaultConfigFile)
}

// LogDir returns ~/.twistctl/logs.
func (p *Paths) LogDir() string {
	return filepath.Join(p.Base, "logs")
}

// DataDir returns ~/.twistctl/data.
func (p *Paths) DataDir() string {
	return filepath.Join(p.Base, "data")
}

// LogPath returns a path within the log directory.
func (p *Paths) LogPath(name string) string {
	return filepath.Join(p.LogDir(), name)
}

// DataPath returns a path within the data directory.
func (p *Paths) DataPath(name string) string {
	return filepath.Join(p.DataDir(), name)
}

// EnsureLogDir creates the log directory.
func (p *Paths) EnsureLogDir() error {
	return os.MkdirAll(p.LogDir(), 0o755)
}
