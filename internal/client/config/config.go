package config

import "time"

// Config holds runtime settings for the sync agent.
//
// Intervals and timeouts are time.Duration values. TrustedNetworks lists
// the network names (SSIDs) on which syncing is allowed.
type Config struct {
	ServerEndpointAddr string
	DatabasePath       string
	AccessToken        string
	DeviceName         string

	TrustedNetworks []string
	NetworkCommand  string

	CheckInterval  time.Duration
	HealthTimeout  time.Duration
	RequestTimeout time.Duration
	BatchSize      int
	Retention      time.Duration
	BackoffFloor   time.Duration
	BackoffCap     time.Duration

	LogLevel    string
	LogFile     string
	MetricsAddr string

	BackupDir      string
	BackupInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "financehub.db"
	c.NetworkCommand = "iwgetid -r"
	c.CheckInterval = 15 * time.Minute
	c.HealthTimeout = 10 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.BatchSize = 50
	c.Retention = 90 * 24 * time.Hour
	c.BackoffFloor = 30 * time.Second
	c.BackoffCap = 30 * time.Minute
	c.LogLevel = "info"
	c.MetricsAddr = "127.0.0.1:9464"
	c.BackupDir = "backups"
	c.BackupInterval = 24 * time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if given) and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	return load(osArgs())
}

func load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
