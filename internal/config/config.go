package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

var (
	instance   *Config
	once       sync.Once
	configPath string
)

type Fetch struct {
	MaxRetries int    `json:"max_retries,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"` // e.g. "1s"
	RateLimit  int    `json:"rate_limit,omitempty"`  // requests per second, 0 means unlimited
	UserAgent  string `json:"user_agent,omitempty"`
}

type Locator struct {
	Step        string `json:"step,omitempty"` // backward probe window growth, e.g. "1MB"
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

type Report struct {
	OutputDir string `json:"output_dir,omitempty"`
	Format    string `json:"format,omitempty"` // text or csv
	ShardSize int    `json:"shard_size,omitempty"`
	Workers   int    `json:"workers,omitempty"`
}

type Watch struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Interval string `json:"interval,omitempty"` // "1h", "04:05" or a cron expression
	URL      string `json:"url,omitempty"`
}

type Config struct {
	// server
	BindAddress string `json:"bind_address,omitempty"`
	URLBase     string `json:"url_base,omitempty"`
	Port        string `json:"port,omitempty"`

	LogLevel string  `json:"log_level,omitempty"`
	Fetch    Fetch   `json:"fetch,omitempty"`
	Locator  Locator `json:"locator,omitempty"`
	Report   Report  `json:"report,omitempty"`
	Watch    Watch   `json:"watch,omitempty"`
	Path     string  `json:"-"` // Path to save the config file
}

func (c *Config) JsonFile() string {
	return filepath.Join(c.Path, "config.json")
}

func (c *Config) loadConfig() error {
	// Load the config file
	if configPath == "" {
		return fmt.Errorf("config path not set")
	}
	c.Path = configPath
	file, err := os.ReadFile(c.JsonFile())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("Config file not found, creating a new one at %s\n", c.JsonFile())
			// Create a default config file if it doesn't exist
			if err := c.createConfig(c.Path); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}
			return c.Save()
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := json.Unmarshal(file, &c); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	c.setDefaults()
	return nil
}

func SetConfigPath(path string) {
	configPath = path
}

func Get() *Config {
	once.Do(func() {
		instance = &Config{} // Initialize instance first
		if err := instance.loadConfig(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "configuration Error: %v\n", err)
			os.Exit(1)
		}
	})
	return instance
}

// GetStep returns the probe step in bytes, falling back to 1MiB when the
// configured value is missing or unparsable.
func (c *Config) GetStep() int64 {
	if c.Locator.Step == "" {
		return 1 << 20
	}
	s, err := ParseSize(c.Locator.Step)
	if err != nil || s <= 0 {
		return 1 << 20
	}
	return s
}

func (c *Config) setDefaults() {
	if c.URLBase == "" {
		c.URLBase = "/"
	}
	// validate url base starts with /
	if !strings.HasPrefix(c.URLBase, "/") {
		c.URLBase = "/" + c.URLBase
	}
	if !strings.HasSuffix(c.URLBase, "/") {
		c.URLBase += "/"
	}

	c.Port = cmp.Or(c.Port, "8282")
	c.LogLevel = cmp.Or(c.LogLevel, "info")

	c.Fetch.RetryDelay = cmp.Or(c.Fetch.RetryDelay, "1s")
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 3
	}
	c.Fetch.UserAgent = cmp.Or(c.Fetch.UserAgent, "zipscout")

	c.Locator.Step = cmp.Or(c.Locator.Step, "1MB")
	if c.Locator.MaxAttempts == 0 {
		c.Locator.MaxAttempts = 20
	}

	c.Report.OutputDir = cmp.Or(c.Report.OutputDir, "reports")
	c.Report.Format = cmp.Or(c.Report.Format, "text")
	if c.Report.ShardSize == 0 {
		c.Report.ShardSize = 1000
	}
	if c.Report.Workers == 0 {
		c.Report.Workers = runtime.NumCPU()
	}

	c.Watch.Interval = cmp.Or(c.Watch.Interval, "1h")
}

func (c *Config) Save() error {

	c.setDefaults()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.JsonFile(), data, 0644); err != nil {
		return err
	}
	return nil
}

func (c *Config) createConfig(path string) error {
	// Create the directory if it doesn't exist
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.Path = path
	c.URLBase = "/"
	c.Port = "8282"
	c.LogLevel = "info"
	return nil
}

// Reload forces a reload of the configuration from disk
func Reload() {
	instance = nil
	once = sync.Once{}
}

var sizeRe = regexp.MustCompile(`(?i)^\s*([\d.]+)\s*(B|KB|MB|GB|TB)?\s*$`)

// ParseSize parses a human readable size like "10MB" or "1.5GB" into bytes.
func ParseSize(s string) (int64, error) {
	m := sizeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}
	unit := strings.ToUpper(m[2])
	switch unit {
	case "", "B":
		return int64(value), nil
	case "KB":
		return int64(value * (1 << 10)), nil
	case "MB":
		return int64(value * (1 << 20)), nil
	case "GB":
		return int64(value * (1 << 30)), nil
	case "TB":
		return int64(value * (1 << 40)), nil
	}
	return 0, fmt.Errorf("invalid size unit: %s", unit)
}
