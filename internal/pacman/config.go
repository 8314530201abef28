// Package pacman resolves repository and mirror configuration, renders
// pacman.conf, and bootstraps trust in package-signing keyrings for an
// offline rootfs image builder.
package pacman

import (
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	defaultParallelDownloads = 5
)

// RepoConfig is one repository declaration from the configuration file.
//
// Server and Servers hold original-URL templates; the placeholders $arch
// and $repo are substituted during resolution.
type RepoConfig struct {
	Name       string   `toml:"name"`
	Priority   *int     `toml:"priority,omitempty"`
	Mirrorlist string   `toml:"mirrorlist,omitempty"`
	Server     string   `toml:"server,omitempty"`
	Servers    []string `toml:"servers,omitempty"`
	PublicKey  string   `toml:"publickey,omitempty"`
	KeyID      string   `toml:"keyid,omitempty"`
}

// Templates returns the configured original-URL templates in declaration
// order: the single "server" key first, then the "servers" list.
func (rc *RepoConfig) Templates() []string {
	var templates []string
	if rc.Server != "" {
		templates = append(templates, rc.Server)
	}
	templates = append(templates, rc.Servers...)
	return templates
}

// MirrorMapping maps one original URL prefix to a mirror URL prefix.
//
// The fields are pointers so that an absent key can be told apart from
// an empty prefix: an empty original prefix is legal and matches every
// URL, while a missing one is a configuration error.
type MirrorMapping struct {
	Original *string `toml:"original"`
	Mirror   *string `toml:"mirror"`
}

// MirrorConfig is one mirror catalog entry.
type MirrorConfig struct {
	Name  string          `toml:"name"`
	Repos []MirrorMapping `toml:"repos"`
}

// Check validates the mirror catalog entry.
func (mc *MirrorConfig) Check() error {
	if mc.Name == "" {
		return NewConfigError("mirror name not set")
	}
	if len(mc.Repos) == 0 {
		return NewConfigError("mirror %s: repos list not set", mc.Name)
	}
	for _, m := range mc.Repos {
		if m.Original == nil {
			return NewConfigError("mirror %s: original url not set", mc.Name)
		}
		if m.Mirror == nil {
			return NewConfigError("mirror %s: mirror url not set", mc.Name)
		}
	}
	return nil
}

// LogConfig represents slog configuration options.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Apply configures the global slog logger based on the configuration.
func (logConfig *LogConfig) Apply() error {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return errors.New("invalid log level: " + logConfig.Level)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logConfig.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "plain", "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.New("invalid log format: " + logConfig.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Config is a struct to read TOML configurations.
//
// Use https://github.com/BurntSushi/toml as follows:
//
//	config := pacman.NewConfig()
//	md, err := toml.DecodeFile("/path/to/config.toml", config)
//	if err != nil {
//	    ...
//	}
type Config struct {
	Repos   []RepoConfig   `toml:"repo"`
	Mirrors []MirrorConfig `toml:"mirrors"`

	HoldPkg           []string  `toml:"hold_pkg,omitempty"`
	ParallelDownloads int       `toml:"parallel_downloads,omitempty"`
	Log               LogConfig `toml:"log"`
}

// Check validates the configuration.
func (c *Config) Check() error {
	if len(c.Repos) == 0 {
		return NewConfigError("no repos found in config")
	}
	for i := range c.Mirrors {
		if err := c.Mirrors[i].Check(); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig creates Config with default values.
func NewConfig() *Config {
	return &Config{
		HoldPkg:           []string{"pacman", "glibc"},
		ParallelDownloads: defaultParallelDownloads,
	}
}
