package shuffleread

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// Supported block compression codecs for decoded reads
const (
	CompressionNone = ""
	CompressionLZ4  = "lz4"
	CompressionZstd = "zstd"
)

// ReadConfig configures the budgets and policies of a read session. A session's behaviour
// is a pure function of its ReadConfig - nothing is read from ambient process state.
type ReadConfig struct {
	MaxBytesInFlight       int64  // cap on total bytes of fetched-but-not-yet-consumed block data
	MaxConcurrentRequests  int64  // cap on simultaneously in-progress fetch requests
	MaxBlocksPerLocation   int    // cap on simultaneously outstanding blocks against one location
	MaxRemoteBlockInMemory int64  // remote blocks larger than this spill to a temp file before streaming
	DetectCorruption       bool   // iff true, verify fetched bytes against descriptor checksums
	LocalFetch             bool   // iff true, read blocks located on LocalHost from the local store, skipping the transport
	LocalHost              string // hostname used to recognize local block locations
	TempDir                string // location for storing temporary files (primarily spilled blocks)
	Compression            string // codec applied to block bytes by the producers, for decoded reads
	LogLevel               int    // minimum logging level emitted by the session
}

// CloneReadConfig makes a copy of a ReadConfig
func CloneReadConfig(cfg *ReadConfig) *ReadConfig {
	return &ReadConfig{
		MaxBytesInFlight:       cfg.MaxBytesInFlight,
		MaxConcurrentRequests:  cfg.MaxConcurrentRequests,
		MaxBlocksPerLocation:   cfg.MaxBlocksPerLocation,
		MaxRemoteBlockInMemory: cfg.MaxRemoteBlockInMemory,
		DetectCorruption:       cfg.DetectCorruption,
		LocalFetch:             cfg.LocalFetch,
		LocalHost:              cfg.LocalHost,
		TempDir:                cfg.TempDir,
		Compression:            cfg.Compression,
		LogLevel:               cfg.LogLevel,
	}
}

// EnsureDefaultReadConfigValues defaults unset ReadConfig fields
func EnsureDefaultReadConfigValues(cfg *ReadConfig) {
	if cfg.MaxBytesInFlight == 0 {
		cfg.MaxBytesInFlight = 48 * 1024 * 1024
	}
	if cfg.MaxConcurrentRequests == 0 {
		cfg.MaxConcurrentRequests = 8
	}
	if cfg.MaxBlocksPerLocation == 0 {
		cfg.MaxBlocksPerLocation = 4
	}
	if cfg.MaxRemoteBlockInMemory == 0 {
		cfg.MaxRemoteBlockInMemory = 64 * 1024 * 1024
	}
	if len(cfg.TempDir) == 0 {
		cfg.TempDir = os.TempDir()
	}
}

// ValidateReadConfig returns an error if a ReadConfig is unusable
func ValidateReadConfig(cfg *ReadConfig) error {
	if cfg.MaxBytesInFlight < 0 || cfg.MaxConcurrentRequests < 0 || cfg.MaxBlocksPerLocation < 0 || cfg.MaxRemoteBlockInMemory < 0 {
		return fmt.Errorf("ReadConfig budgets must not be negative")
	}
	switch cfg.Compression {
	case CompressionNone, CompressionLZ4, CompressionZstd:
	default:
		return fmt.Errorf("Unknown compression codec %s", cfg.Compression)
	}
	if cfg.LocalFetch && len(cfg.LocalHost) == 0 {
		return fmt.Errorf("ReadConfig.LocalHost must be set when LocalFetch is enabled")
	}
	return nil
}

// ReadConfigFromJSON parses a ReadConfig from a JSON document, defaulting absent fields
func ReadConfigFromJSON(doc string) (*ReadConfig, error) {
	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("ReadConfig document is not valid JSON")
	}
	cfg := &ReadConfig{
		MaxBytesInFlight:       gjson.Get(doc, "max_bytes_in_flight").Int(),
		MaxConcurrentRequests:  gjson.Get(doc, "max_concurrent_requests").Int(),
		MaxBlocksPerLocation:   int(gjson.Get(doc, "max_blocks_per_location").Int()),
		MaxRemoteBlockInMemory: gjson.Get(doc, "max_remote_block_in_memory").Int(),
		DetectCorruption:       gjson.Get(doc, "detect_corruption").Bool(),
		LocalFetch:             gjson.Get(doc, "local_fetch").Bool(),
		LocalHost:              gjson.Get(doc, "local_host").String(),
		TempDir:                gjson.Get(doc, "temp_dir").String(),
		Compression:            gjson.Get(doc, "compression").String(),
		LogLevel:               int(gjson.Get(doc, "log_level").Int()),
	}
	EnsureDefaultReadConfigValues(cfg)
	if err := ValidateReadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
