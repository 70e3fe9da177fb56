package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Sink backends.
const (
	SinkKafka  = "kafka"
	SinkSQLite = "sqlite"
)

// Sink encodings.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Sink selection.
	Sink       string
	SinkFormat string
	SQLitePath string

	// Processing options applied to every record.
	DropMinMM     float64
	DropMaxMM     float64
	AirPressureMb float64

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s")
	mapboxTimeout, err2 := time.ParseDuration(mapboxTimeoutStr)
	if err2 != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	dropMin, err := parseFloatEnv("DROP_MIN_MM", 0)
	if err != nil {
		return nil, err
	}
	dropMax, err := parseFloatEnv("DROP_MAX_MM", 0)
	if err != nil {
		return nil, err
	}
	pressure, err := parseFloatEnv("AIR_PRESSURE_MB", 1000)
	if err != nil {
		return nil, err
	}

	mapboxCacheSize := parseMapboxCacheSize()

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-dsd-observations"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "parameterized-dsd"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-dsd-etl"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		Sink:       sharedcfg.EnvOrDefault("SINK", SinkKafka),
		SinkFormat: sharedcfg.EnvOrDefault("SINK_FORMAT", FormatJSON),
		SQLitePath: sharedcfg.EnvOrDefault("SQLITE_PATH", "dsd.db"),

		DropMinMM:     dropMin,
		DropMaxMM:     dropMax,
		AirPressureMb: pressure,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if err := cfg.validateSink(); err != nil {
		return nil, err
	}
	if cfg.DropMaxMM > 0 && cfg.DropMaxMM <= cfg.DropMinMM {
		return nil, fmt.Errorf("DROP_MAX_MM (%g) must exceed DROP_MIN_MM (%g)", cfg.DropMaxMM, cfg.DropMinMM)
	}
	if cfg.AirPressureMb <= 0 {
		return nil, errors.New("AIR_PRESSURE_MB must be positive")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func (c *Config) validateSink() error {
	switch c.Sink {
	case SinkKafka:
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required")
		}
	case SinkSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when SINK is sqlite")
		}
	default:
		return fmt.Errorf("invalid SINK %q: must be kafka or sqlite", c.Sink)
	}

	switch c.SinkFormat {
	case FormatJSON, FormatMsgpack:
		return nil
	default:
		return fmt.Errorf("invalid SINK_FORMAT %q: must be json or msgpack", c.SinkFormat)
	}
}

func parseFloatEnv(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
