package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Simulation defaults applied when a request omits them
	Simulation SimulationConfig `json:"simulation"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			OutcomeTTL:   time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Simulation: SimulationConfig{
			Confidence: DefaultConfidence,
			RunCount:   DefaultRunCount,
			Percentile: DefaultVaRPercentile,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		OutcomeTTL:     time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
