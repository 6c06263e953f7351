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

// FileConfig is the on-disk form of Config. Absent keys keep the current
// value.
type FileConfig struct {
	EndpointAddrGRPC string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN      string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey        string         `json:"secret_key" yaml:"secret_key"`
	TokenValidity    timex.Duration `json:"token_validity" yaml:"token_validity"`
	S3RootUser       string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket         string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region         string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	PresignExpiry    timex.Duration `json:"presign_expiry" yaml:"presign_expiry"`
	LogLevel         string         `json:"log_level" yaml:"log_level"`
	LogFile          string         `json:"log_file" yaml:"log_file"`
}

// parseFile loads the file given by -c or -config, YAML for .yaml/.yml and
// JSON otherwise. Read or decode errors panic.
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
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		err = yaml.Unmarshal(data, &fc)
	} else {
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	for dst, v := range map[*string]string{
		&cfg.EndpointAddrGRPC: fc.EndpointAddrGRPC,
		&cfg.DatabaseDSN:      fc.DatabaseDSN,
		&cfg.SecretKey:        fc.SecretKey,
		&cfg.S3RootUser:       fc.S3RootUser,
		&cfg.S3RootPassword:   fc.S3RootPassword,
		&cfg.S3Bucket:         fc.S3Bucket,
		&cfg.S3Region:         fc.S3Region,
		&cfg.S3BaseEndpoint:   fc.S3BaseEndpoint,
		&cfg.LogLevel:         fc.LogLevel,
		&cfg.LogFile:          fc.LogFile,
	} {
		if v != "" {
			*dst = v
		}
	}
	for dst, v := range map[*time.Duration]timex.Duration{
		&cfg.TokenValidity: fc.TokenValidity,
		&cfg.PresignExpiry: fc.PresignExpiry,
	} {
		if v.Duration != 0 {
			*dst = v.Duration
		}
	}
}
