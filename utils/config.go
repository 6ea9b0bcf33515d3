package utils

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
)

// ServiceConfig wires the optional external collaborators.
type ServiceConfig struct {
	// CatalogDB is a Postgres connection string; empty disables the
	// catalog.
	CatalogDB string `json:"catalog_db"`
	// MemcacheAddress is host:port of a memcached; empty disables the
	// profile cache.
	MemcacheAddress string `json:"memcache_address"`
	CacheExpirySecs int32  `json:"cache_expiry_secs"`
	MetricsLogDir   string `json:"metrics_log_dir"`
	Verbose         bool   `json:"verbose"`
}

// EngineDefaults are the task parameter defaults.
type EngineDefaults struct {
	Precision            string `json:"precision"`
	MatchWavelengths     bool   `json:"match_wavelengths"`
	MatchNames           bool   `json:"match_names"`
	Workers              int    `json:"workers"`
	SampleSize           int    `json:"sample_size"`
	ProgressIntervalSecs int    `json:"progress_interval_secs"`
	MaxBackward          int    `json:"max_backward"`
	MaxForward           int    `json:"max_forward"`
}

type Config struct {
	ServiceConfig ServiceConfig  `json:"service_config"`
	Defaults      EngineDefaults `json:"defaults"`
	// DatePatterns are extra acquisition-date file name rules, tried
	// ahead of the built-in ones.
	DatePatterns []string `json:"date_patterns"`
}

// DefaultConfig is a usable zero configuration: day precision, strict pixel
// matching, no external collaborators.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

func (cfg *Config) fillDefaults() {
	if len(cfg.Defaults.Precision) == 0 {
		cfg.Defaults.Precision = "day"
	}
	if cfg.Defaults.Workers < 1 {
		cfg.Defaults.Workers = 4
	}
	if cfg.Defaults.SampleSize < 1 {
		cfg.Defaults.SampleSize = 16
	}
	if cfg.Defaults.ProgressIntervalSecs < 1 {
		cfg.Defaults.ProgressIntervalSecs = 2
	}
	if cfg.Defaults.MaxBackward == 0 {
		cfg.Defaults.MaxBackward = -1
	}
	if cfg.Defaults.MaxForward == 0 {
		cfg.Defaults.MaxForward = -1
	}
	if cfg.ServiceConfig.CacheExpirySecs <= 0 {
		cfg.ServiceConfig.CacheExpirySecs = 3600
	}
}

// LoadConfigFile reads a JSON config, expanding ${ENV_VAR} references in the
// raw document before decoding.
func LoadConfigFile(path string) (*Config, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %v", path, err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(os.ExpandEnv(string(buf))), &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %v", path, err)
	}
	cfg.fillDefaults()
	return &cfg, nil
}
