package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/financehub/internal/flagx"
)

var knownFlags = []string{
	"-a", "-d", "-t", "-n", "-w", "-nc", "-i", "-ht", "-rt", "-bs", "-ret",
	"-bf", "-bc", "-l", "-lf", "-m", "-bd", "-bi",
}

func osArgs() []string { return os.Args[1:] }

// parseFlags overlays cfg with command-line flags.
//
//	-a string    address and port of the sync server
//	-d string    path of the local SQLite database
//	-t string    device access token
//	-n string    device name shown in logs
//	-w list      trusted network names, comma separated or repeated
//	-nc string   command printing the current network name
//	-i int       connectivity check interval (in seconds)
//	-ht dur      health check timeout
//	-rt dur      per-request timeout
//	-bs int      push batch size
//	-ret dur     retention window for synced records (0 disables)
//	-bf dur      retry backoff floor
//	-bc dur      retry backoff cap
//	-l string    log level
//	-lf string   log file (rotated); empty logs to stdout
//	-m string    metrics listen address; empty disables
//	-bd string   backup working directory
//	-bi dur      backup interval (0 disables)
//
// Args are filtered with flagx.FilterArgs first so unknown flags of other
// components do not break parsing.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "device access token")
	fs.StringVar(&cfg.DeviceName, "n", cfg.DeviceName, "device name")

	trusted := flagx.StringList{}
	fs.Var(&trusted, "w", "trusted network names")
	fs.StringVar(&cfg.NetworkCommand, "nc", cfg.NetworkCommand, "network detection command")

	checkInterval := fs.Int("i", int(cfg.CheckInterval.Seconds()), "connectivity check interval (in seconds)")
	fs.DurationVar(&cfg.HealthTimeout, "ht", cfg.HealthTimeout, "health check timeout")
	fs.DurationVar(&cfg.RequestTimeout, "rt", cfg.RequestTimeout, "request timeout")
	fs.IntVar(&cfg.BatchSize, "bs", cfg.BatchSize, "push batch size")
	fs.DurationVar(&cfg.Retention, "ret", cfg.Retention, "retention window")
	fs.DurationVar(&cfg.BackoffFloor, "bf", cfg.BackoffFloor, "retry backoff floor")
	fs.DurationVar(&cfg.BackoffCap, "bc", cfg.BackoffCap, "retry backoff cap")

	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFile, "lf", cfg.LogFile, "log file")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics address")
	fs.StringVar(&cfg.BackupDir, "bd", cfg.BackupDir, "backup directory")
	fs.DurationVar(&cfg.BackupInterval, "bi", cfg.BackupInterval, "backup interval")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.CheckInterval = time.Duration(*checkInterval) * time.Second
	if len(trusted) > 0 {
		cfg.TrustedNetworks = trusted
	}
}
