package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ScriptModeLocal    = "local"
	ScriptModeProvider = "provider"

	CombineModeNarration = "narration"
	CombineModeSegments  = "segments"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort     string        `yaml:"server_port"`
	FrontendURL    string        `yaml:"frontend_url"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`

	// Working directories
	DataDir string `yaml:"data_dir"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Job store
	JobStoreDriver    string        `yaml:"job_store_driver"`
	DatabaseURL       string        `yaml:"database_url"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	StallThreshold    time.Duration `yaml:"stall_threshold"`

	// Transcoder
	FFmpegBin    string `yaml:"ffmpeg_bin"`
	CombineMode  string `yaml:"combine_mode"`
	TrimToScript bool   `yaml:"trim_to_script"`

	// Content analysis
	GeminiAPIKey     string        `yaml:"gemini_api_key"`
	GeminiModel      string        `yaml:"gemini_model"`
	GeminiBaseURL    string        `yaml:"gemini_base_url"`
	ScriptMode       string        `yaml:"script_mode"`
	ScriptRetries    int           `yaml:"script_retries"`
	ScriptRetryDelay time.Duration `yaml:"script_retry_delay"`

	// Narration
	ElevenLabsAPIKey  string `yaml:"elevenlabs_api_key"`
	ElevenLabsVoiceID string `yaml:"elevenlabs_voice_id"`
	ElevenLabsModelID string `yaml:"elevenlabs_model_id"`
	ElevenLabsBaseURL string `yaml:"elevenlabs_base_url"`

	// Durable storage
	S3Bucket        string        `yaml:"s3_bucket"`
	AWSRegion       string        `yaml:"aws_region"`
	S3Prefix        string        `yaml:"s3_prefix"`
	S3PublicBaseURL string        `yaml:"s3_public_base_url"`
	S3URLExpiry     time.Duration `yaml:"s3_url_expiry"`

	// Script templates
	TemplatesFile string `yaml:"templates_file"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ServerPort:        "5000",
		FrontendURL:       "http://localhost:3000",
		MaxUploadBytes:    500 << 20,
		ShutdownGrace:     2 * time.Minute,
		DataDir:           ".",
		LogLevel:          "info",
		LogFormat:         "auto",
		JobStoreDriver:    "memory",
		MaxConcurrentJobs: 2,
		StallThreshold:    15 * time.Minute,
		FFmpegBin:         "ffmpeg",
		CombineMode:       CombineModeNarration,
		GeminiModel:       "gemini-2.5-flash",
		GeminiBaseURL:     "https://generativelanguage.googleapis.com/v1beta",
		ScriptMode:        ScriptModeLocal,
		ScriptRetries:     2,
		ScriptRetryDelay:  5 * time.Second,
		ElevenLabsVoiceID: "21m00Tcm4TlvDq8ikWAM",
		ElevenLabsModelID: "eleven_monolingual_v1",
		ElevenLabsBaseURL: "https://api.elevenlabs.io/v1",
		AWSRegion:         "us-east-1",
		S3Prefix:          "outputs",
		S3URLExpiry:       time.Hour,
	}
}

// Load loads configuration from the optional CONFIG_FILE overlay and then
// environment variables, which win.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.JobStoreDriver = getEnv("JOB_STORE_DRIVER", c.JobStoreDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.FFmpegBin = getEnv("FFMPEG_BIN", c.FFmpegBin)
	c.CombineMode = getEnv("COMBINE_MODE", c.CombineMode)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.GeminiBaseURL = getEnv("GEMINI_BASE_URL", c.GeminiBaseURL)
	c.ScriptMode = getEnv("SCRIPT_MODE", c.ScriptMode)
	c.ElevenLabsAPIKey = getEnv("ELEVENLABS_API_KEY", c.ElevenLabsAPIKey)
	c.ElevenLabsVoiceID = getEnv("ELEVENLABS_VOICE_ID", c.ElevenLabsVoiceID)
	c.ElevenLabsModelID = getEnv("ELEVENLABS_MODEL_ID", c.ElevenLabsModelID)
	c.ElevenLabsBaseURL = getEnv("ELEVENLABS_BASE_URL", c.ElevenLabsBaseURL)
	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.S3Prefix = getEnv("S3_PREFIX", c.S3Prefix)
	c.S3PublicBaseURL = getEnv("S3_PUBLIC_BASE_URL", c.S3PublicBaseURL)
	c.TemplatesFile = getEnv("TEMPLATES_FILE", c.TemplatesFile)

	var err error
	if c.MaxUploadBytes, err = getEnvInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes); err != nil {
		return err
	}
	if c.MaxConcurrentJobs, err = getEnvInt("MAX_CONCURRENT_JOBS", c.MaxConcurrentJobs); err != nil {
		return err
	}
	if c.ScriptRetries, err = getEnvInt("SCRIPT_RETRIES", c.ScriptRetries); err != nil {
		return err
	}
	if c.ScriptRetryDelay, err = getEnvDuration("SCRIPT_RETRY_DELAY", c.ScriptRetryDelay); err != nil {
		return err
	}
	if c.S3URLExpiry, err = getEnvDuration("S3_URL_EXPIRY", c.S3URLExpiry); err != nil {
		return err
	}
	if c.ShutdownGrace, err = getEnvDuration("SHUTDOWN_GRACE", c.ShutdownGrace); err != nil {
		return err
	}
	if c.StallThreshold, err = getEnvDuration("STALL_THRESHOLD", c.StallThreshold); err != nil {
		return err
	}
	if c.TrimToScript, err = getEnvBool("TRIM_TO_SCRIPT", c.TrimToScript); err != nil {
		return err
	}
	return nil
}

// Validate checks enumerations and required pairs
func (c *Config) Validate() error {
	switch c.JobStoreDriver {
	case "memory":
	case "postgres", "sqlite":
		if c.DatabaseURL == "" && c.JobStoreDriver == "postgres" {
			return fmt.Errorf("DATABASE_URL is required for the postgres job store")
		}
	default:
		return fmt.Errorf("unknown JOB_STORE_DRIVER %q", c.JobStoreDriver)
	}
	switch c.ScriptMode {
	case ScriptModeLocal, ScriptModeProvider:
	default:
		return fmt.Errorf("unknown SCRIPT_MODE %q", c.ScriptMode)
	}
	switch c.CombineMode {
	case CombineModeNarration, CombineModeSegments:
	default:
		return fmt.Errorf("unknown COMBINE_MODE %q", c.CombineMode)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxConcurrentJobs < 0 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must not be negative")
	}
	if c.ScriptRetries < 1 {
		c.ScriptRetries = 1
	}
	return nil
}

// SQLiteDSN returns the sqlite database path, defaulting under the data dir.
func (c *Config) SQLiteDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.DataDir, "jobs.db")
}

// StorageEnabled reports whether durable storage is configured.
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
