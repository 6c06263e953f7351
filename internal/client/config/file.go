package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/financehub/internal/flagx"
	"github.com/dmitrijs2005/financehub/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Durations use timex.Duration so
// files can say "15m" or give integer nanoseconds. Absent keys keep the
// current value.
type FileConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	DatabasePath       string         `json:"database_path" yaml:"database_path"`
	AccessToken        string         `json:"access_token" yaml:"access_token"`
	DeviceName         string         `json:"device_name" yaml:"device_name"`
	TrustedNetworks    []string       `json:"trusted_networks" yaml:"trusted_networks"`
	NetworkCommand     string         `json:"network_command" yaml:"network_command"`
	CheckInterval      timex.Duration `json:"check_interval" yaml:"check_interval"`
	HealthTimeout      timex.Duration `json:"health_timeout" yaml:"health_timeout"`
	RequestTimeout     timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	BatchSize          int            `json:"batch_size" yaml:"batch_size"`
	Retention          timex.Duration `json:"retention" yaml:"retention"`
	BackoffFloor       timex.Duration `json:"backoff_floor" yaml:"backoff_floor"`
	BackoffCap         timex.Duration `json:"backoff_cap" yaml:"backoff_cap"`
	LogLevel           string         `json:"log_level" yaml:"log_level"`
	LogFile            string         `json:"log_file" yaml:"log_file"`
	MetricsAddr        string         `json:"metrics_addr" yaml:"metrics_addr"`
	BackupDir          string         `json:"backup_dir" yaml:"backup_dir"`
	BackupInterval     timex.Duration `json:"backup_interval" yaml:"backup_interval"`
}

// parseFile overlays cfg with the file named by -c or -config. Files ending
// in .yaml or .yml are YAML, anything else is JSON. Read and decode errors
// panic, like flag errors.
func parseFile(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.ServerEndpointAddr, fc.ServerEndpointAddr)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.AccessToken, fc.AccessToken)
	setString(&cfg.DeviceName, fc.DeviceName)
	if len(fc.TrustedNetworks) > 0 {
		cfg.TrustedNetworks = fc.TrustedNetworks
	}
	setString(&cfg.NetworkCommand, fc.NetworkCommand)
	setDuration(&cfg.CheckInterval, fc.CheckInterval)
	setDuration(&cfg.HealthTimeout, fc.HealthTimeout)
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	if fc.BatchSize > 0 {
		cfg.BatchSize = fc.BatchSize
	}
	setDuration(&cfg.Retention, fc.Retention)
	setDuration(&cfg.BackoffFloor, fc.BackoffFloor)
	setDuration(&cfg.BackoffCap, fc.BackoffCap)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFile, fc.LogFile)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setString(&cfg.BackupDir, fc.BackupDir)
	setDuration(&cfg.BackupInterval, fc.BackupInterval)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
