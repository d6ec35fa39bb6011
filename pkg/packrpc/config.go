package packrpc

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a packrpc deployment.
type Config struct {
	Pool     PoolConfig     `mapstructure:"pool"`
	Server   ServerConfig   `mapstructure:"server"`
	Socket   SocketConfig   `mapstructure:"socket"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Security SecurityConfig `mapstructure:"security"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// PoolConfig defines listener pool settings.
type PoolConfig struct {
	Servers        int           `mapstructure:"servers"`
	MaxInFlight    int           `mapstructure:"max_in_flight"`
	StartTimeout   time.Duration `mapstructure:"start_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	Restart        RestartConfig `mapstructure:"restart"`
}

// RestartConfig defines the backoff policy for restarting a failed server.
type RestartConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

// ServerConfig defines settings for an individual in-process server.
type ServerConfig struct {
	Codec         string        `mapstructure:"codec"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// SocketConfig defines Unix domain socket settings.
type SocketConfig struct {
	Dir         string `mapstructure:"dir"`
	Prefix      string `mapstructure:"prefix"`
	Permissions uint32 `mapstructure:"permissions"`
}

// ProtocolConfig defines wire protocol settings.
type ProtocolConfig struct {
	MaxFrameSize      int           `mapstructure:"max_frame_size"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	Enhanced          bool          `mapstructure:"enhanced"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	TraceEnabled bool   `mapstructure:"trace_enabled"`
}

// SecurityMode selects how connections to a server's socket are verified.
type SecurityMode string

const (
	// SecurityNone performs no peer verification.
	SecurityNone SecurityMode = "none"
	// SecurityPeerCred verifies SO_PEERCRED/LOCAL_PEERCRED on accept.
	SecurityPeerCred SecurityMode = "peercred"
	// SecurityHMAC performs an HMAC challenge-response handshake on accept.
	SecurityHMAC SecurityMode = "hmac"
)

// SecurityConfig defines which authentication mode guards a server's socket.
type SecurityConfig struct {
	Mode            SecurityMode `mapstructure:"mode"`
	RequireSameUser bool         `mapstructure:"require_same_user"`
	AllowedUIDs     []uint32     `mapstructure:"allowed_uids"`
	AllowedGIDs     []uint32     `mapstructure:"allowed_gids"`
	HMACSecretHex   string       `mapstructure:"hmac_secret_hex"`
}

// MetricsConfig defines metrics collection settings.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Path     string `mapstructure:"path"`
}

// LoadConfig loads configuration from file and environment, falling back
// to defaults for anything unset.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/packrpc")
	}

	v.SetEnvPrefix("PACKRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Pool.StartTimeout *= time.Second
	cfg.Pool.HealthInterval *= time.Second
	cfg.Pool.Restart.InitialBackoff *= time.Millisecond
	cfg.Pool.Restart.MaxBackoff *= time.Millisecond
	cfg.Server.ShutdownGrace *= time.Second
	cfg.Protocol.RequestTimeout *= time.Second
	cfg.Protocol.ConnectionTimeout *= time.Second

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.servers", 4)
	v.SetDefault("pool.max_in_flight", 64)
	v.SetDefault("pool.start_timeout", 30)
	v.SetDefault("pool.health_interval", 30)
	v.SetDefault("pool.restart.max_attempts", 5)
	v.SetDefault("pool.restart.initial_backoff", 1000)
	v.SetDefault("pool.restart.max_backoff", 30000)
	v.SetDefault("pool.restart.multiplier", 2.0)

	v.SetDefault("server.codec", "msgpack")
	v.SetDefault("server.shutdown_grace", 5)

	v.SetDefault("socket.dir", "/tmp")
	v.SetDefault("socket.prefix", "packrpc")
	v.SetDefault("socket.permissions", 0600)

	v.SetDefault("protocol.max_frame_size", 10485760)
	v.SetDefault("protocol.request_timeout", 60)
	v.SetDefault("protocol.connection_timeout", 5)
	v.SetDefault("protocol.enhanced", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.trace_enabled", true)

	v.SetDefault("security.mode", "peercred")
	v.SetDefault("security.require_same_user", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", ":9090")
	v.SetDefault("metrics.path", "/metrics")
}
