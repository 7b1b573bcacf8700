// Package config provides configuration loading for the engine.
//
// Configuration is split into two layers: a YAML file carrying the bulk
// of the engine's durable settings (paths, queues, processing
// parameters, sync routes), and environment variables overlaying
// deployment secrets and overrides. The result is captured as one
// immutable snapshot at startup; components never read the environment
// directly.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Static errors for configuration validation.
var (
	// ErrInvalidMP3Encoding is returned when MP3Encoding is not v0 or cbr320.
	ErrInvalidMP3Encoding = errors.New("config: mp3_encoding must be \"v0\" or \"cbr320\"")
	// ErrInvalidCorruptDest is returned when CorruptDest is not archive or quarantine.
	ErrInvalidCorruptDest = errors.New("config: corrupt_dest must be \"archive\" or \"quarantine\"")
	// ErrInvalidSyncMethod is returned when Sync.Method is not a known backend.
	ErrInvalidSyncMethod = errors.New("config: sync.method must be one of rsync, s3, scp, local")
	// ErrNoQueues is returned when no queue roots are configured.
	ErrNoQueues = errors.New("config: at least one queue root is required")
)

// QueueRoot names one discoverable queue directory under Paths.Incoming.
type QueueRoot struct {
	Name string `yaml:"name" validate:"required"`
	Root string `yaml:"root" validate:"required"`
}

// Route matches artifacts to a sync destination. An empty Kind or
// Variant matches anything, per §4.8 step 2.
type Route struct {
	Kind    string `yaml:"kind,omitempty"`
	Variant string `yaml:"variant,omitempty"`
	To      string `yaml:"to" validate:"required"`
}

// Paths groups every filesystem root the engine touches.
type Paths struct {
	Incoming   string `yaml:"incoming" validate:"required"`
	Working    string `yaml:"working" validate:"required"`
	OutputsDir string `yaml:"outputs_dir" validate:"required"`
	MusicLib   string `yaml:"music_library"`
	ArchiveDir string `yaml:"archive_dir" validate:"required"`
	Quarantine string `yaml:"quarantine_dir"`
	LogDir     string `yaml:"log_dir" validate:"required"`
	DBPath     string `yaml:"db_path"`
}

// Processing groups chunking, separation and encoding parameters.
type Processing struct {
	Model            string        `yaml:"model" validate:"required"`
	SampleRate       int           `yaml:"sample_rate" validate:"required,gt=0"`
	BitDepth         int           `yaml:"bit_depth" validate:"required,gt=0"`
	MP3Encoding      string        `yaml:"mp3_encoding" validate:"required,oneof=v0 cbr320"`
	ChunkingEnabled  bool          `yaml:"chunking_enabled"`
	ChunkSeconds     int           `yaml:"chunk_seconds" validate:"required,gt=0"`
	ChunkOverlapSec  int           `yaml:"chunk_overlap_sec" validate:"gte=0"`
	CrossfadeMs      int           `yaml:"crossfade_ms" validate:"gte=0"`
	ChunkMax         int           `yaml:"chunk_max" validate:"required,gt=0"`
	TimeoutSec       int           `yaml:"timeout_sec" validate:"required,gt=0"`
	MaxRetries       int           `yaml:"max_retries" validate:"gte=0"`
	Timeout          time.Duration `yaml:"-"`
	Variants         []string      `yaml:"variants"`
	PreserveStems    bool          `yaml:"preserve_stems"`
	PublishToLibrary bool          `yaml:"publish_to_library"`
}

// Recovery groups the corrupt-input recovery policy.
type Recovery struct {
	CorruptDest string `yaml:"corrupt_dest" validate:"required,oneof=archive quarantine"`
}

// SyncConfig groups the Sync Router's configuration.
type SyncConfig struct {
	Method              string            `yaml:"method" validate:"required,oneof=rsync s3 scp local"`
	Routes              []Route           `yaml:"routes"`
	RemoteRoots         map[string]string `yaml:"remote_roots"`
	SkipOnMissingRemote bool              `yaml:"skip_on_missing_remote"`
	DryRun              bool              `yaml:"dry_run"`
	PollIntervalSec     int               `yaml:"poll_interval_sec" validate:"required,gt=0"`
	PollInterval        time.Duration     `yaml:"-"`
	BandwidthLimitKbps  int               `yaml:"bandwidth_limit_kbps"`
	Compress            bool              `yaml:"compress"`
	S3Bucket            string            `yaml:"s3_bucket"`
	S3Prefix            string            `yaml:"s3_prefix"`
	S3Region            string            `yaml:"s3_region"`
	S3Endpoint          string            `yaml:"s3_endpoint"`
	SCPHost             string            `yaml:"scp_host"`
	SCPUser             string            `yaml:"scp_user"`
	SCPKeyPath          string            `yaml:"scp_key_path"`
}

// Secrets holds values that should never be checked into the YAML file.
// Populated exclusively from the environment.
type Secrets struct {
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"`
}

// Logging groups log output configuration.
type Logging struct {
	Format string `env:"LOG_FORMAT, overwrite" yaml:"format" validate:"oneof=json console"`
	Level  string `env:"LOG_LEVEL, overwrite" yaml:"level"`
}

// Config is the fully validated, immutable configuration snapshot
// threaded through every component. Build one with Load and never
// mutate it; use Reload to produce a new snapshot instead.
type Config struct {
	Paths      Paths       `yaml:"paths" validate:"required"`
	Queues     []QueueRoot `yaml:"queues" validate:"required,min=1,dive"`
	Processing Processing  `yaml:"processing" validate:"required"`
	Recovery   Recovery    `yaml:"recovery" validate:"required"`
	Sync       SyncConfig  `yaml:"sync" validate:"required"`
	Logging    Logging     `yaml:"logging"`
	Secrets    Secrets     `yaml:"-"`

	// TmpSuffix marks bundle/work directories invisible to consumers
	// until atomically renamed away from it (§3 invariant, §6.1).
	TmpSuffix string `yaml:"tmp_suffix"`
}

var validate = validator.New()

// Load reads the YAML config file at path, overlays environment
// variables for secrets/logging, validates the result, and returns an
// immutable snapshot.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path is an operator-supplied flag
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process(context.Background(), &cfg.Logging); err != nil {
		return nil, fmt.Errorf("config: logging env overlay: %w", err)
	}
	if err := envconfig.Process(context.Background(), &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("config: secrets env overlay: %w", err)
	}

	cfg.Processing.Timeout = time.Duration(cfg.Processing.TimeoutSec) * time.Second
	cfg.Sync.PollInterval = time.Duration(cfg.Sync.PollIntervalSec) * time.Second
	if cfg.TmpSuffix == "" {
		cfg.TmpSuffix = ".tmp"
	}
	if len(cfg.Processing.Variants) == 0 {
		cfg.Processing.Variants = []string{"instrumental"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with the engine's defaults,
// to be overridden by the YAML file and environment.
func defaults() *Config {
	return &Config{
		Paths: Paths{
			Incoming:   "./queues",
			Working:    "./working",
			OutputsDir: "./outputs",
			ArchiveDir: "./archive",
			LogDir:     "./logs",
		},
		Processing: Processing{
			Model:           "htdemucs",
			SampleRate:      44100,
			BitDepth:        16,
			MP3Encoding:     "v0",
			ChunkingEnabled: true,
			ChunkSeconds:    300,
			ChunkOverlapSec: 5,
			CrossfadeMs:     500,
			ChunkMax:        20,
			TimeoutSec:      600,
			MaxRetries:      2,
			Variants:        []string{"instrumental"},
		},
		Recovery: Recovery{CorruptDest: "archive"},
		Sync: SyncConfig{
			Method:          "local",
			PollIntervalSec: 30,
		},
		Logging:   Logging{Format: "console", Level: "info"},
		TmpSuffix: ".tmp",
	}
}

// Validate checks structural and semantic constraints beyond struct
// tags (cross-field rules the validator library can't express).
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(c.Queues) == 0 {
		return ErrNoQueues
	}
	switch c.Processing.MP3Encoding {
	case "v0", "cbr320":
	default:
		return ErrInvalidMP3Encoding
	}
	switch c.Recovery.CorruptDest {
	case "archive", "quarantine":
	default:
		return ErrInvalidCorruptDest
	}
	switch c.Sync.Method {
	case "rsync", "s3", "scp", "local":
	default:
		return ErrInvalidSyncMethod
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Snapshot holds the current Config behind an atomic pointer so that
// Reload can swap in a freshly validated Config without a restart,
// per the Design Notes' call for an explicit reload operation.
type Snapshot struct {
	ptr atomic.Pointer[Config]
}

// NewSnapshot creates a Snapshot initialized with cfg.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.ptr.Store(cfg)
	return s
}

// Current returns the currently active Config.
func (s *Snapshot) Current() *Config {
	return s.ptr.Load()
}

// Reload loads a fresh Config from path and swaps it in atomically.
// Dependent caches (sync route tables, queue root lists) are rebuilt
// by callers reading Current() on their next iteration.
func (s *Snapshot) Reload(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return fmt.Errorf("config: reload: %w", err)
	}
	s.ptr.Store(cfg)
	return nil
}
