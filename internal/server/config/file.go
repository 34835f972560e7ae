package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/taskkeeper/internal/flagx"
	"github.com/dmitrijs2005/taskkeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations use
// timex.Duration so "24h" and integer nanoseconds are both accepted. Keys
// missing from the file keep their current values.
type FileConfig struct {
	EndpointAddrHTTP      *string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC      *string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN           *string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey             *string         `json:"secret_key" yaml:"secret_key"`
	TokenValidityDuration *timex.Duration `json:"token_validity_duration" yaml:"token_validity_duration"`
	BcryptCost            *int            `json:"bcrypt_cost" yaml:"bcrypt_cost"`
	RequestTimeout        *timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout       *timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	RedisAddr             *string         `json:"redis_addr" yaml:"redis_addr"`
	CacheTTL              *timex.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	LogLevel              *string         `json:"log_level" yaml:"log_level"`
}

// parseFile loads the file named by -c/-config (or $TASKKEEPER_CONFIG) into
// config. Files ending in .yaml or .yml are decoded as YAML, anything else as
// JSON. With no path nothing happens; an unreadable or invalid file panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(config)
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SecretKey, fc.SecretKey)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.LogLevel, fc.LogLevel)

	if fc.BcryptCost != nil {
		c.BcryptCost = *fc.BcryptCost
	}
	if fc.TokenValidityDuration != nil {
		c.TokenValidityDuration = fc.TokenValidityDuration.Duration
	}
	if fc.RequestTimeout != nil {
		c.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.ShutdownTimeout != nil {
		c.ShutdownTimeout = fc.ShutdownTimeout.Duration
	}
	if fc.CacheTTL != nil {
		c.CacheTTL = fc.CacheTTL.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
