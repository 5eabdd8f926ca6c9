package kronoscli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oremus-labs/kronos-go/internal/transport"
)

// Config represents the CLI context file.
type Config struct {
	CurrentContext string             `yaml:"currentContext" json:"currentContext"`
	Contexts       map[string]Context `yaml:"contexts" json:"contexts"`
}

// Context holds connection settings for one Kronos deployment. Zero values
// fall back to the KRONOS_* environment.
type Context struct {
	Name      string `yaml:"name" json:"name"`
	Server    string `yaml:"server" json:"server"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	// Timeout bounds connects and non-streaming calls against this server.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// RetryCeiling caps attempts per streaming read.
	RetryCeiling int `yaml:"retryCeiling,omitempty" json:"retryCeiling,omitempty"`
	// Checkpoint is the checkpoint name 'kronos get' uses when --checkpoint
	// is not given.
	Checkpoint string `yaml:"checkpoint,omitempty" json:"checkpoint,omitempty"`
}

func (c Context) validate() error {
	if c.Name == "" {
		return errors.New("context name is required")
	}
	if _, err := transport.ParseBaseURL(c.Server); err != nil {
		return fmt.Errorf("context %q: %w", c.Name, err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("context %q: negative timeout %s", c.Name, c.Timeout)
	}
	if c.RetryCeiling < 0 {
		return fmt.Errorf("context %q: negative retry ceiling %d", c.Name, c.RetryCeiling)
	}
	return nil
}

// merge overlays the non-zero settings of other onto c.
func (c Context) merge(other Context) Context {
	if other.Name != "" {
		c.Name = other.Name
	}
	if other.Server != "" {
		c.Server = other.Server
	}
	if other.Namespace != "" {
		c.Namespace = other.Namespace
	}
	if other.Timeout > 0 {
		c.Timeout = other.Timeout
	}
	if other.RetryCeiling > 0 {
		c.RetryCeiling = other.RetryCeiling
	}
	if other.Checkpoint != "" {
		c.Checkpoint = other.Checkpoint
	}
	return c
}

// LoadConfig reads path. A missing file yields an empty config.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Contexts: map[string]Context{},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = map[string]Context{}
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(cfg *Config, path string) error {
	if cfg.Contexts == nil {
		cfg.Contexts = map[string]Context{}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./kronos-config.yaml"
	}
	return filepath.Join(dir, "kronos", "config.yaml")
}

// setContext stores ctx, keeping the settings of an existing context of the
// same name that ctx leaves unset.
func setContext(cfg *Config, ctx Context, makeCurrent bool) {
	if cfg.Contexts == nil {
		cfg.Contexts = map[string]Context{}
	}
	if prev, ok := cfg.Contexts[ctx.Name]; ok {
		ctx = prev.merge(ctx)
	}
	cfg.Contexts[ctx.Name] = ctx
	if cfg.CurrentContext == "" || makeCurrent {
		cfg.CurrentContext = ctx.Name
	}
}

func ensureContextExists(cfg *Config, name string) error {
	if _, ok := cfg.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	return nil
}
