// Package config defines the simulation options record and loads it from
// a TOML file. All validation happens here, before the simulation is
// constructed, so a bad configuration never produces a partial run.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/das67333/ipfs-simulator/pkg/constants"
)

// Delay distribution kinds.
const (
	DelayConstant       = "constant"
	DelayUniform        = "uniform"
	DelayPositiveNormal = "positive_normal"
)

// Topology kinds.
const (
	TopologyFull = "full"
	TopologyRing = "ring"
	TopologyStar = "star"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the options record consumed by the simulator.
type Config struct {
	LogLevelFilter string `mapstructure:"log_level_filter"`
	LogFilePath    string `mapstructure:"log_file_path"`

	Seed     uint64 `mapstructure:"seed"`
	K        int    `mapstructure:"k"`
	Alpha    int    `mapstructure:"alpha"`
	NumPeers int    `mapstructure:"num_peers"`

	DelayDistribution string  `mapstructure:"delay_distribution"`
	DelayMean         float64 `mapstructure:"delay_mean"`
	DelayStdDev       float64 `mapstructure:"delay_std_dev"`
	DelayMin          float64 `mapstructure:"delay_min"`
	DelayMax          float64 `mapstructure:"delay_max"`

	Topology        string `mapstructure:"topology"`
	TopologyFirstID int    `mapstructure:"topology_first_id"`
	TopologyLastID  int    `mapstructure:"topology_last_id"`
	TopologyCenter  int    `mapstructure:"topology_center_id"`

	// Horizon bounds the run in logical time. Zero means run until the
	// event queue drains, which requires that no recurring activity is
	// enabled.
	Horizon float64 `mapstructure:"horizon"`

	RecordPublicationInterval float64 `mapstructure:"record_publication_interval"`
	RecordExpirationInterval  float64 `mapstructure:"record_expiration_interval"`
	KBucketsRefreshInterval   float64 `mapstructure:"kbuckets_refresh_interval"`
	QueryTimeout              float64 `mapstructure:"query_timeout"`
	CachingMaxPeers           int     `mapstructure:"caching_max_peers"`

	EnableBootstrap    bool `mapstructure:"enable_bootstrap"`
	EnableRepublishing bool `mapstructure:"enable_republishing"`

	EnableUserLoadGeneration bool    `mapstructure:"enable_user_load_generation"`
	UserLoadBlockSize        int     `mapstructure:"user_load_block_size"`
	UserLoadBlocksPoolSize   int     `mapstructure:"user_load_blocks_pool_size"`
	UserLoadEventsInterval   float64 `mapstructure:"user_load_events_interval"`
}

// Load reads a TOML configuration file, applies defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level_filter", constants.DefaultLogLevelFilter)
	v.SetDefault("k", constants.DefaultK)
	v.SetDefault("alpha", constants.DefaultAlpha)
	v.SetDefault("delay_distribution", DelayConstant)
	v.SetDefault("delay_mean", 1.0)
	v.SetDefault("topology", TopologyFull)
	v.SetDefault("topology_first_id", 0)
	v.SetDefault("topology_last_id", -1) // resolved to num_peers-1
	v.SetDefault("topology_center_id", 0)
	v.SetDefault("query_timeout", constants.DefaultQueryTimeout)
	v.SetDefault("kbuckets_refresh_interval", constants.DefaultRefreshInterval)
	v.SetDefault("enable_bootstrap", true)
}

// Validate checks the options record and normalizes dependent defaults.
// Every violation is reported as a wrapped ErrInvalidConfig.
func (c *Config) Validate() error {
	switch c.LogLevelFilter {
	case "off", "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("%w: unknown log_level_filter %q", ErrInvalidConfig, c.LogLevelFilter)
	}

	if c.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, c.K)
	}
	if c.Alpha <= 0 {
		return fmt.Errorf("%w: alpha must be positive, got %d", ErrInvalidConfig, c.Alpha)
	}
	if c.Alpha > c.K {
		return fmt.Errorf("%w: alpha (%d) must not exceed k (%d)", ErrInvalidConfig, c.Alpha, c.K)
	}
	if c.NumPeers <= 0 {
		return fmt.Errorf("%w: num_peers must be positive, got %d", ErrInvalidConfig, c.NumPeers)
	}

	switch c.DelayDistribution {
	case DelayConstant:
		if c.DelayMean < 0 {
			return fmt.Errorf("%w: delay_mean must be non-negative", ErrInvalidConfig)
		}
	case DelayUniform:
		if c.DelayMin < 0 {
			return fmt.Errorf("%w: delay_min must be non-negative", ErrInvalidConfig)
		}
		if c.DelayMax < c.DelayMin {
			return fmt.Errorf("%w: delay_max (%v) must not be less than delay_min (%v)",
				ErrInvalidConfig, c.DelayMax, c.DelayMin)
		}
	case DelayPositiveNormal:
		if c.DelayMean < 0 {
			return fmt.Errorf("%w: delay_mean must be non-negative", ErrInvalidConfig)
		}
		if c.DelayStdDev < 0 {
			return fmt.Errorf("%w: delay_std_dev must be non-negative", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown delay_distribution %q", ErrInvalidConfig, c.DelayDistribution)
	}

	switch c.Topology {
	case TopologyFull:
		if c.TopologyLastID < 0 {
			c.TopologyLastID = c.NumPeers - 1
		}
		if c.TopologyFirstID < 0 || c.TopologyLastID >= c.NumPeers || c.TopologyFirstID > c.TopologyLastID {
			return fmt.Errorf("%w: full topology range [%d, %d] out of bounds for %d peers",
				ErrInvalidConfig, c.TopologyFirstID, c.TopologyLastID, c.NumPeers)
		}
	case TopologyRing:
	case TopologyStar:
		if c.TopologyCenter < 0 || c.TopologyCenter >= c.NumPeers {
			return fmt.Errorf("%w: star topology center %d out of bounds for %d peers",
				ErrInvalidConfig, c.TopologyCenter, c.NumPeers)
		}
	default:
		return fmt.Errorf("%w: unknown topology %q", ErrInvalidConfig, c.Topology)
	}

	if c.RecordPublicationInterval < 0 {
		return fmt.Errorf("%w: record_publication_interval must be non-negative", ErrInvalidConfig)
	}
	if c.RecordExpirationInterval < 0 {
		return fmt.Errorf("%w: record_expiration_interval must be non-negative", ErrInvalidConfig)
	}
	if c.KBucketsRefreshInterval < 0 {
		return fmt.Errorf("%w: kbuckets_refresh_interval must be non-negative", ErrInvalidConfig)
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("%w: query_timeout must be non-negative", ErrInvalidConfig)
	}
	if c.CachingMaxPeers < 0 {
		return fmt.Errorf("%w: caching_max_peers must be non-negative", ErrInvalidConfig)
	}

	if c.Horizon < 0 {
		return fmt.Errorf("%w: horizon must be non-negative", ErrInvalidConfig)
	}
	recurring := c.EnableUserLoadGeneration || c.EnableRepublishing ||
		c.RefreshEnabled() || c.ExpirationEnabled()
	if recurring && c.Horizon == 0 {
		return fmt.Errorf("%w: recurring activity (refresh, republishing, expiration or user load) requires a positive horizon", ErrInvalidConfig)
	}

	if c.EnableRepublishing && c.RecordPublicationInterval <= 0 {
		return fmt.Errorf("%w: enable_republishing requires a positive record_publication_interval",
			ErrInvalidConfig)
	}

	if c.EnableUserLoadGeneration {
		if c.UserLoadBlockSize <= 0 {
			return fmt.Errorf("%w: missing user_load_block_size", ErrInvalidConfig)
		}
		if c.UserLoadBlocksPoolSize <= 0 {
			return fmt.Errorf("%w: missing user_load_blocks_pool_size", ErrInvalidConfig)
		}
		if c.UserLoadEventsInterval <= 0 {
			return fmt.Errorf("%w: missing user_load_events_interval", ErrInvalidConfig)
		}
	}

	return nil
}

// ExpirationEnabled reports whether record expiration sweeps run.
func (c *Config) ExpirationEnabled() bool {
	return c.RecordExpirationInterval > 0
}

// RefreshEnabled reports whether periodic bucket refresh runs.
func (c *Config) RefreshEnabled() bool {
	return c.KBucketsRefreshInterval > 0
}
