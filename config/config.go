// Package config loads node configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the BOOTHMESH_CONFIG environment variable. Without either, Default() is
// used as is. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/user/boothmesh/wire/msg"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config file path
const EnvConfig = "BOOTHMESH_CONFIG"

// Config is the top-level node configuration.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Booth   BoothConfig   `yaml:"booth"`
	Scan    ScanConfig    `yaml:"scan"`
	Link    LinkConfig    `yaml:"link"`
	Monitor MonitorConfig `yaml:"monitor"`
	Log     LogConfig     `yaml:"log"`
}

// NodeConfig identifies the node.
type NodeConfig struct {
	// ID is the 8-bit address. 100..254 is a Booth, 0..99 a User.
	ID int `yaml:"id"`
}

// BoothConfig applies only when the node is a Booth.
type BoothConfig struct {
	// Capacity is the number of concurrent InUse slots.
	// Default: 5
	Capacity int `yaml:"capacity"`

	// BeaconInterval is the period between beacon broadcasts.
	// Default: 1s
	BeaconInterval time.Duration `yaml:"beacon_interval"`
}

// ScanConfig applies only when the node is a User.
type ScanConfig struct {
	// Timeout is the fixed discovery window.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`
}

// LinkConfig tunes the unix datagram socket link.
type LinkConfig struct {
	// Dir holds the node sockets. Empty means util.GetSocketDir().
	// ${HOME} and ${BOOTHMESH_DIR} are expanded.
	Dir string `yaml:"dir"`

	// Distance in meters used to simulate received signal strength.
	Distance float64 `yaml:"distance"`

	// PacketLoss is the probability of dropping a received frame.
	PacketLoss float64 `yaml:"packet_loss"`

	// FrameLogs enables JSONL frame logs under the node directory.
	FrameLogs bool `yaml:"frame_logs"`
}

// MonitorConfig configures the optional websocket monitor.
type MonitorConfig struct {
	// Listen is the HTTP listen address. Empty disables the monitor.
	Listen string `yaml:"listen"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of TRACE, DEBUG, INFO, WARN, ERROR.
	Level string `yaml:"level"`
}

// Default returns the built-in configuration. The node id is left unset and
// must come from the file or the --id flag.
func Default() *Config {
	return &Config{
		Node: NodeConfig{ID: -1},
		Booth: BoothConfig{
			Capacity:       5,
			BeaconInterval: time.Second,
		},
		Scan: ScanConfig{
			Timeout: 5 * time.Second,
		},
		Link: LinkConfig{
			Distance: 1,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Load reads the config file at path. An empty path falls back to
// BOOTHMESH_CONFIG, and if that is unset too the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads configuration from a specific file, merged over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Link.Dir = expandVars(cfg.Link.Dir)
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// NodeID returns the configured id. Call Validate first.
func (c *Config) NodeID() msg.NodeID {
	return msg.NodeID(c.Node.ID)
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Node.ID < 0 || c.Node.ID > 255 || !msg.NodeID(c.Node.ID).Valid() {
		errs = append(errs, fmt.Errorf("node.id must be in 0..254, got %d", c.Node.ID))
	}

	if c.Booth.Capacity < 1 {
		errs = append(errs, fmt.Errorf("booth.capacity must be positive, got %d", c.Booth.Capacity))
	}
	if c.Booth.BeaconInterval <= 0 {
		errs = append(errs, fmt.Errorf("booth.beacon_interval must be positive"))
	}
	if c.Scan.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("scan.timeout must be positive"))
	}

	if c.Link.Distance <= 0 {
		errs = append(errs, fmt.Errorf("link.distance must be positive"))
	}
	if c.Link.PacketLoss < 0 || c.Link.PacketLoss >= 1 {
		errs = append(errs, fmt.Errorf("link.packet_loss must be in [0, 1), got %g", c.Link.PacketLoss))
	}

	switch strings.ToUpper(c.Log.Level) {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("invalid log.level: %s", c.Log.Level))
	}

	return errors.Join(errs...)
}
