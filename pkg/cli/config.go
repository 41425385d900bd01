package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/storage"
)

const (
	// DefaultConfigFile is the configuration filename inside the base dir.
	DefaultConfigFile = "config.yaml"

	DefaultMQTTURL  = "tcp://127.0.0.1:1883"
	DefaultRate     = 50.0
	DefaultWebAddr  = "127.0.0.1:8080"
	DefaultInterp   = 2.0
	DefaultContext  = "default"
	defaultDataName = "library"
)

var (
	// ErrContextNotFound is returned for unknown context names.
	ErrContextNotFound = errors.New("context not found")

	// ErrUnknownKey is returned by Context.Set for unsupported keys.
	ErrUnknownKey = errors.New("unknown config key")
)

// Config is the twistctl configuration file.
type Config struct {
	// CurrentContext is the name of the active context.
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts maps context names to settings.
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context holds the settings for one robot setup.
type Context struct {
	Name string `yaml:"name" json:"name"`

	MQTT MQTTConfig `yaml:"mqtt,omitempty" json:"mqtt"`

	// Key is the output channel identifier.
	Key string `yaml:"key,omitempty" json:"key,omitempty"`

	// Format is the record encoding (json, msgpack, mimic).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// PublishRate is the loop frequency in Hz.
	PublishRate float64 `yaml:"rate,omitempty" json:"rate,omitempty"`

	// Policy decides what manual edits do during playback
	// (interrupt or reject).
	Policy string `yaml:"policy,omitempty" json:"policy,omitempty"`

	// Symmetric starts the controller with mirrored editing enabled.
	Symmetric bool `yaml:"symmetric,omitempty" json:"symmetric,omitempty"`

	// DataDir holds the pose and scene library. Defaults to the data dir
	// under the base config dir.
	DataDir string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`

	// WebAddr is the control panel listen address.
	WebAddr string `yaml:"web_addr,omitempty" json:"web_addr,omitempty"`

	// Interp is the default interpolation time for load/reset, in seconds.
	Interp float64 `yaml:"interp,omitempty" json:"interp,omitempty"`

	// DefaultAngles overrides the model's default pose.
	DefaultAngles []float64 `yaml:"default_angles,omitempty,flow" json:"default_angles,omitempty"`

	// S3 configures s3:// export and import locations.
	S3 storage.S3Config `yaml:"s3,omitempty" json:"s3"`
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	URL       string `yaml:"url,omitempty" json:"url,omitempty"`
	Username  string `yaml:"username,omitempty" json:"username,omitempty"`
	Password  string `yaml:"password,omitempty" json:"-"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Retain    bool   `yaml:"retain,omitempty" json:"retain,omitempty"`
}

// LoadConfig loads the configuration at path, or at the default location
// when path is empty. A missing file yields an empty configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		p, err := NewPaths()
		if err != nil {
			return nil, err
		}
		path = p.ConfigFile()
	}
	cfg := &Config{
		Contexts:   make(map[string]*Context),
		configPath: path,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			ctx = new(Context)
			cfg.Contexts[name] = ctx
		}
		ctx.Name = name
	}
	return cfg, nil
}

// Save writes the configuration, creating its directory if needed.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.configPath
}

// AddContext adds or replaces a context and saves.
func (c *Config) AddContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context and saves.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context and saves.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns the named context.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrContextNotFound, name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, the current context when name
// is empty, or a context with built-in defaults when neither exists.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext != "" {
		return c.GetContext(c.CurrentContext)
	}
	return &Context{Name: DefaultContext}, nil
}

// ListContexts returns all context names in sorted order.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Keys lists the settings accepted by Set.
var Keys = []string{
	"mqtt.url", "mqtt.username", "mqtt.password", "mqtt.namespace", "mqtt.retain",
	"key", "format", "rate", "policy", "symmetric", "data_dir", "web_addr", "interp",
	"default_angles", "s3.region", "s3.endpoint", "s3.path_style",
}

// Set assigns a setting from its string form. default_angles takes a comma
// separated list of radians; an empty value clears any setting.
func (ctx *Context) Set(key, value string) error {
	var err error
	switch key {
	case "mqtt.url":
		ctx.MQTT.URL = value
	case "mqtt.username":
		ctx.MQTT.Username = value
	case "mqtt.password":
		ctx.MQTT.Password = value
	case "mqtt.namespace":
		ctx.MQTT.Namespace = value
	case "mqtt.retain":
		ctx.MQTT.Retain, err = parseBool(value)
	case "key":
		ctx.Key = value
	case "format":
		ctx.Format = value
	case "rate":
		ctx.PublishRate, err = parseFloat(value)
	case "policy":
		ctx.Policy = value
	case "symmetric":
		ctx.Symmetric, err = parseBool(value)
	case "data_dir":
		ctx.DataDir = value
	case "web_addr":
		ctx.WebAddr = value
	case "interp":
		ctx.Interp, err = parseFloat(value)
	case "default_angles":
		ctx.DefaultAngles, err = parseFloats(value)
	case "s3.region":
		ctx.S3.Region = value
	case "s3.endpoint":
		ctx.S3.Endpoint = value
	case "s3.path_style":
		ctx.S3.PathStyle, err = parseBool(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// BrokerURL returns the configured broker URL or the local default.
func (ctx *Context) BrokerURL() string {
	if ctx.MQTT.URL == "" {
		return DefaultMQTTURL
	}
	return ctx.MQTT.URL
}

// Rate returns the publish rate in Hz.
func (ctx *Context) Rate() float64 {
	if ctx.PublishRate <= 0 {
		return DefaultRate
	}
	return ctx.PublishRate
}

// ListenAddr returns the control panel address.
func (ctx *Context) ListenAddr() string {
	if ctx.WebAddr == "" {
		return DefaultWebAddr
	}
	return ctx.WebAddr
}

// InterpSeconds returns the default interpolation time.
func (ctx *Context) InterpSeconds() float64 {
	if ctx.Interp <= 0 {
		return DefaultInterp
	}
	return ctx.Interp
}

// LibraryDir returns the pose and scene database directory.
func (ctx *Context) LibraryDir(p *Paths) string {
	if ctx.DataDir != "" {
		return ctx.DataDir
	}
	return p.DataPath(filepath.Join(ctx.Name, defaultDataName))
}

// Redacted returns a copy with secrets masked for display.
func (ctx *Context) Redacted() *Context {
	out := *ctx
	out.MQTT.Password = MaskSecret(ctx.MQTT.Password)
	out.S3.SecretAccessKey = MaskSecret(ctx.S3.SecretAccessKey)
	out.DefaultAngles = slices.Clone(ctx.DefaultAngles)
	return &out
}

// MaskSecret masks a secret for display.
func MaskSecret(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
