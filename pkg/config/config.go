// Package config loads vecdb's runtime configuration from environment
// variables, all prefixed VECDB_.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of a running vecdb instance.
type Config struct {
	Database    DatabaseConfig
	Persistence PersistenceConfig
	Snapshot    SnapshotConfig
	Logging     LoggingConfig
	Features    FeaturesConfig
}

// DatabaseConfig controls collection defaults and routing thresholds.
type DatabaseConfig struct {
	DataDir              string
	DefaultDistance      string // cosine, dot, euclidean
	BruteForceThreshold  int    // below this point count, search skips the HNSW graph
	RebuildThreshold     int    // point count that triggers a background HNSW rebuild
	MaxConcurrentBatches int
}

// PersistenceConfig controls whole-process snapshot (dump.rdb) behavior.
type PersistenceConfig struct {
	Enabled         bool
	DumpPath        string
	BgsaveInterval  time.Duration
	BgsaveOnChanges int // bgsave after this many writes, even before the interval elapses
	WALEnabled      bool
	WALSyncOnWrite  bool
}

// SnapshotConfig controls per-collection gzip(JSON) snapshot artifacts.
type SnapshotConfig struct {
	Dir               string
	EncryptionEnabled bool
	EncryptionKeyPath string
}

// LoggingConfig controls log verbosity and destination.
type LoggingConfig struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

// FeaturesConfig toggles optional subsystems.
type FeaturesConfig struct {
	MultiVectorEnabled bool
	FullTextEnabled    bool
	PayloadIndexing    bool
}

// LoadFromEnv loads configuration from VECDB_-prefixed environment
// variables, falling back to defaults for anything unset.
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Database.DataDir = getEnv("VECDB_DATA_DIR", "./data")
	cfg.Database.DefaultDistance = getEnv("VECDB_DEFAULT_DISTANCE", "cosine")
	cfg.Database.BruteForceThreshold = getEnvInt("VECDB_BRUTE_FORCE_THRESHOLD", 1000)
	cfg.Database.RebuildThreshold = getEnvInt("VECDB_REBUILD_THRESHOLD", 10000)
	cfg.Database.MaxConcurrentBatches = getEnvInt("VECDB_MAX_CONCURRENT_BATCHES", 4)

	cfg.Persistence.Enabled = getEnvBool("VECDB_PERSISTENCE_ENABLED", true)
	cfg.Persistence.DumpPath = getEnv("VECDB_DUMP_PATH", "./data/dump.rdb")
	cfg.Persistence.BgsaveInterval = getEnvDuration("VECDB_BGSAVE_INTERVAL", 5*time.Minute)
	cfg.Persistence.BgsaveOnChanges = getEnvInt("VECDB_BGSAVE_ON_CHANGES", 10000)
	cfg.Persistence.WALEnabled = getEnvBool("VECDB_WAL_ENABLED", true)
	cfg.Persistence.WALSyncOnWrite = getEnvBool("VECDB_WAL_SYNC_ON_WRITE", false)

	cfg.Snapshot.Dir = getEnv("VECDB_SNAPSHOT_DIR", "./data/snapshots")
	cfg.Snapshot.EncryptionEnabled = getEnvBool("VECDB_SNAPSHOT_ENCRYPTION_ENABLED", false)
	cfg.Snapshot.EncryptionKeyPath = getEnv("VECDB_SNAPSHOT_ENCRYPTION_KEY_PATH", "")

	cfg.Logging.Level = getEnv("VECDB_LOG_LEVEL", "INFO")
	cfg.Logging.Format = getEnv("VECDB_LOG_FORMAT", "text")
	cfg.Logging.Output = getEnv("VECDB_LOG_OUTPUT", "stdout")

	cfg.Features.MultiVectorEnabled = getEnvBool("VECDB_FEATURE_MULTIVECTOR", true)
	cfg.Features.FullTextEnabled = getEnvBool("VECDB_FEATURE_FULLTEXT", true)
	cfg.Features.PayloadIndexing = getEnvBool("VECDB_FEATURE_PAYLOAD_INDEXING", true)

	return cfg
}

// Validate checks the configuration for logically invalid values.
func (c *Config) Validate() error {
	if c.Database.BruteForceThreshold <= 0 {
		return fmt.Errorf("brute force threshold must be positive: %d", c.Database.BruteForceThreshold)
	}
	if c.Database.RebuildThreshold <= c.Database.BruteForceThreshold {
		return fmt.Errorf("rebuild threshold (%d) must exceed brute force threshold (%d)",
			c.Database.RebuildThreshold, c.Database.BruteForceThreshold)
	}
	if c.Database.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("max concurrent batches must be positive: %d", c.Database.MaxConcurrentBatches)
	}
	switch c.Database.DefaultDistance {
	case "cosine", "dot", "euclidean":
	default:
		return fmt.Errorf("unknown default distance metric: %q", c.Database.DefaultDistance)
	}
	if c.Snapshot.EncryptionEnabled && c.Snapshot.EncryptionKeyPath == "" {
		return fmt.Errorf("snapshot encryption enabled but no key path provided")
	}
	return nil
}

// String returns a log-safe summary (no key material).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DataDir: %s, Distance: %s, Persistence: %v, Snapshots: %s}",
		c.Database.DataDir, c.Database.DefaultDistance, c.Persistence.Enabled, c.Snapshot.Dir)
}

// ApplyRuntimeMemory tunes the Go runtime's GC behavior from VECDB_GC_PERCENT.
// Should be called early in main() before heavy allocations.
func ApplyRuntimeMemory() {
	if pct := getEnvInt("VECDB_GC_PERCENT", 100); pct != 100 {
		debug.SetGCPercent(pct)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
