package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/HatiCode/rewardboard/pkg/tls"
)

// File is the on-disk configuration. Durations are Go duration strings
// ("5s", "10m"). Unset fields keep their defaults.
type File struct {
	Listen     string `yaml:"listen" toml:"listen"`
	GRPCListen string `yaml:"grpc_listen" toml:"grpc_listen"`

	Backend struct {
		URL          string   `yaml:"url" toml:"url"`
		PollInterval string   `yaml:"poll_interval" toml:"poll_interval"`
		FetchTimeout string   `yaml:"fetch_timeout" toml:"fetch_timeout"`
		RPS          *float64 `yaml:"rps" toml:"rps"`
		TLS          TLSFile  `yaml:"tls" toml:"tls"`
	} `yaml:"backend" toml:"backend"`

	Storage struct {
		Type     string `yaml:"type" toml:"type"`
		CacheTTL string `yaml:"cache_ttl" toml:"cache_ttl"`
		Redis    struct {
			Addr     string `yaml:"addr" toml:"addr"`
			Password string `yaml:"password" toml:"password"`
			DB       *int   `yaml:"db" toml:"db"`
			TTL      string `yaml:"ttl" toml:"ttl"`
		} `yaml:"redis" toml:"redis"`
	} `yaml:"storage" toml:"storage"`

	SessionIdle string `yaml:"session_idle" toml:"session_idle"`
	ModelAsset  string `yaml:"model_asset" toml:"model_asset"`

	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`

	TLS TLSFile `yaml:"tls" toml:"tls"`
}

// TLSFile is the TLS section of File.
type TLSFile struct {
	Enabled  *bool  `yaml:"enabled" toml:"enabled"`
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
	CAFile   string `yaml:"ca_file" toml:"ca_file"`
}

// LoadFile reads a configuration file. The format is chosen by extension:
// .toml for TOML, anything else is parsed as YAML.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return &fc, nil
}

// apply overlays the set fields of f onto cfg.
func (f *File) apply(cfg *Config) error {
	setString(&cfg.Listen, f.Listen)
	setString(&cfg.GRPCListen, f.GRPCListen)

	setString(&cfg.BackendURL, f.Backend.URL)
	if err := setDuration(&cfg.PollInterval, "backend.poll_interval", f.Backend.PollInterval); err != nil {
		return err
	}
	if err := setDuration(&cfg.FetchTimeout, "backend.fetch_timeout", f.Backend.FetchTimeout); err != nil {
		return err
	}
	if f.Backend.RPS != nil {
		cfg.BackendRPS = *f.Backend.RPS
	}
	f.Backend.TLS.apply(&cfg.BackendTLS)

	setString(&cfg.Storage, f.Storage.Type)
	if err := setDuration(&cfg.CacheTTL, "storage.cache_ttl", f.Storage.CacheTTL); err != nil {
		return err
	}
	setString(&cfg.RedisAddr, f.Storage.Redis.Addr)
	setString(&cfg.RedisPassword, f.Storage.Redis.Password)
	if f.Storage.Redis.DB != nil {
		cfg.RedisDB = *f.Storage.Redis.DB
	}
	if err := setDuration(&cfg.RedisTTL, "storage.redis.ttl", f.Storage.Redis.TTL); err != nil {
		return err
	}

	if err := setDuration(&cfg.SessionIdle, "session_idle", f.SessionIdle); err != nil {
		return err
	}
	setString(&cfg.ModelAsset, f.ModelAsset)
	setString(&cfg.LogLevel, f.Log.Level)
	setString(&cfg.LogFormat, f.Log.Format)
	f.TLS.apply(&cfg.TLS)
	return nil
}

func (t TLSFile) apply(dst *tls.Config) {
	if t.Enabled != nil {
		dst.Enabled = *t.Enabled
	}
	setString(&dst.CertFile, t.CertFile)
	setString(&dst.KeyFile, t.KeyFile)
	setString(&dst.CAFile, t.CAFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
