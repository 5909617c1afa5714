package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"meetscribe/internal/media"
)

// Config holds the fully processed application configuration.
type Config struct {
	// DataDir roots the flat-file artifact store.
	DataDir string
	// WorkDir is the parent directory for per-run segment directories.
	WorkDir string
	// MaxSegmentBytes bounds the encoded size of each audio segment.
	MaxSegmentBytes int
	// Workers bounds concurrent segment units per pipeline run.
	Workers int
	// SegmentTimeout bounds one segment's cut plus transcription.
	SegmentTimeout time.Duration
	// TranscribeEndpoint and TranscribeModel select the speech-to-text
	// service; empty values fall back to the client defaults.
	TranscribeEndpoint string
	TranscribeModel    string
	// InsightsBaseURL and InsightsModel select the chat completion
	// service used for transcript post-processing.
	InsightsBaseURL string
	InsightsModel   string
	// APIKey is the bearer credential for both remote services. It is
	// only ever read from the environment, never from the file.
	APIKey string
}

// rawConfig is the intermediate structure that maps directly to the JSON file.
type rawConfig struct {
	DataDir            string `json:"DataDir"`
	WorkDir            string `json:"WorkDir"`
	MaxSegmentBytes    int    `json:"MaxSegmentBytes"`
	Workers            int    `json:"Workers"`
	SegmentTimeoutSecs int    `json:"SegmentTimeoutSecs"`
	TranscribeEndpoint string `json:"TranscribeEndpoint"`
	TranscribeModel    string `json:"TranscribeModel"`
	InsightsBaseURL    string `json:"InsightsBaseURL"`
	InsightsModel      string `json:"InsightsModel"`
}

// Defaults chosen to match the 10 MiB segment bound and mp3 target the
// pipeline was built around.
const (
	defaultDataDir            = "./data"
	defaultWorkDir            = "./split_audio"
	defaultMaxSegmentBytes    = 10 * 1024 * 1024
	defaultWorkers            = 4
	defaultSegmentTimeoutSecs = 300
)

// apiKeyEnv is the environment variable carrying the bearer credential.
const apiKeyEnv = "OPENAI_API_KEY"

// LoadConfig reads and validates the configuration file at the given
// path. A missing file yields the defaults; any other read or parse
// failure is an error.
func LoadConfig(path string) (*Config, error) {
	var raw rawConfig

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	if raw.DataDir == "" {
		raw.DataDir = defaultDataDir
	}
	if raw.WorkDir == "" {
		raw.WorkDir = defaultWorkDir
	}
	if raw.MaxSegmentBytes == 0 {
		raw.MaxSegmentBytes = defaultMaxSegmentBytes
	}
	if raw.Workers == 0 {
		raw.Workers = defaultWorkers
	}
	if raw.SegmentTimeoutSecs == 0 {
		raw.SegmentTimeoutSecs = defaultSegmentTimeoutSecs
	}

	cfg := &Config{
		DataDir:            raw.DataDir,
		WorkDir:            raw.WorkDir,
		MaxSegmentBytes:    raw.MaxSegmentBytes,
		Workers:            raw.Workers,
		SegmentTimeout:     time.Duration(raw.SegmentTimeoutSecs) * time.Second,
		TranscribeEndpoint: raw.TranscribeEndpoint,
		TranscribeModel:    raw.TranscribeModel,
		InsightsBaseURL:    raw.InsightsBaseURL,
		InsightsModel:      raw.InsightsModel,
		APIKey:             os.Getenv(apiKeyEnv),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects parameter combinations the pipeline would refuse
// anyway, before any work is scheduled.
func (c *Config) validate() error {
	if c.MaxSegmentBytes < media.BitrateBytesPerSec {
		return fmt.Errorf("MaxSegmentBytes %d is below one second of encoded audio (%d bytes)",
			c.MaxSegmentBytes, media.BitrateBytesPerSec)
	}
	if c.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1, got %d", c.Workers)
	}
	if c.SegmentTimeout <= 0 {
		return fmt.Errorf("SegmentTimeoutSecs must be positive, got %v", c.SegmentTimeout)
	}
	return nil
}
