// Package config loads the reader CLI configuration from an optional YAML
// file overlaid with environment variables (prefix KINESIS_READER__,
// delimiter __).
package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const envPrefix = "KINESIS_READER__"

// MaxRecordsCeiling is the largest record limit a single GetRecords call accepts.
const MaxRecordsCeiling = 10000

// Store backends
const (
	StoreNone     = "none"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDynamoDB = "ddb"
	StorePostgres = "postgres"
	StoreMySQL    = "mysql"
)

// Start positions
const (
	StartEarliest = "earliest"
	StartLatest   = "latest"
	StartAt       = "at"
	StartAfter    = "after"
)

// AWSCfg selects the region, endpoint and optional static credentials.
type AWSCfg struct {
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	SessionToken    string `koanf:"session_token"`
}

// StoreCfg selects the checkpoint store backend and its connection settings.
type StoreCfg struct {
	Type          string        `koanf:"type"` // none|memory|redis|ddb|postgres|mysql
	AppName       string        `koanf:"app_name"`
	Table         string        `koanf:"table"`
	DSN           string        `koanf:"dsn"`
	RedisAddr     string        `koanf:"redis_addr"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// LogCfg configures the process logger.
type LogCfg struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// MetricsCfg configures the Prometheus endpoint.
type MetricsCfg struct {
	Addr string `koanf:"addr"` // empty disables the endpoint
}

// Config is the complete reader CLI configuration.
type Config struct {
	Stream         string        `koanf:"stream"`
	Shard          string        `koanf:"shard"`
	Start          string        `koanf:"start"` // earliest|latest|at|after
	SequenceNumber string        `koanf:"sequence_number"`
	MaxRecords     int32         `koanf:"max_records"`
	Aggregation    bool          `koanf:"aggregation"`
	PollBase       time.Duration `koanf:"poll_base"`
	PollMax        time.Duration `koanf:"poll_max"`

	AWS     AWSCfg     `koanf:"aws"`
	Store   StoreCfg   `koanf:"store"`
	Log     LogCfg     `koanf:"log"`
	Metrics MetricsCfg `koanf:"metrics"`
}

// Load merges the YAML file at path (skipped when empty or missing) with
// environment variables, then applies defaults. The result is not
// validated; call Validate once flag overrides are applied.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "load %s", path)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return Config{}, errors.Wrap(err, "load env")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshal config")
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// ApplyDefaults fills zero values and clamps max_records to
// [1, MaxRecordsCeiling]. It is safe to call again after overrides.
func ApplyDefaults(c *Config) {
	if c.Start == "" {
		c.Start = StartEarliest
	}
	switch {
	case c.MaxRecords <= 0:
		c.MaxRecords = 1
	case c.MaxRecords > MaxRecordsCeiling:
		c.MaxRecords = MaxRecordsCeiling
	}
	if c.PollBase == 0 {
		c.PollBase = 5 * time.Millisecond
	}
	if c.PollMax == 0 {
		c.PollMax = 250 * time.Millisecond
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreNone
	}
	if c.Store.AppName == "" {
		c.Store.AppName = "kinesis-reader"
	}
	if c.Store.FlushInterval == 0 {
		c.Store.FlushInterval = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.Stream == "" {
		return errors.New("stream is required")
	}

	switch c.Start {
	case StartEarliest, StartLatest:
		if c.SequenceNumber != "" {
			return errors.Errorf("start %q does not take a sequence number", c.Start)
		}
	case StartAt, StartAfter:
		if c.SequenceNumber == "" {
			return errors.Errorf("start %q requires a sequence number", c.Start)
		}
	default:
		return errors.Errorf("unknown start %q", c.Start)
	}

	if c.PollMax < c.PollBase {
		return errors.Errorf("poll_max %s below poll_base %s", c.PollMax, c.PollBase)
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		return errors.New("access_key_id and secret_access_key must be set together")
	}

	switch c.Store.Type {
	case StoreNone, StoreMemory, StoreRedis:
	case StoreDynamoDB:
		if c.Store.Table == "" {
			return errors.New("store table is required for ddb")
		}
	case StorePostgres, StoreMySQL:
		if c.Store.Table == "" || c.Store.DSN == "" {
			return errors.Errorf("store table and dsn are required for %s", c.Store.Type)
		}
	default:
		return errors.Errorf("unknown store type %q", c.Store.Type)
	}

	return nil
}
