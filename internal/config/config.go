// Package config loads settings from metermeter.yaml, the environment and a
// .env file, in the manner of most twelve-factor CLIs: flags beat
// environment, environment beats the file, the file beats defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/valpere/metermeter/internal"
	"github.com/valpere/metermeter/internal/refiner"
)

// EnvPrefix prefixes every environment variable, e.g. METERMETER_LLM_MODEL.
const EnvPrefix = "METERMETER"

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LexiconConfig struct {
	// Path is an optional pronunciation dictionary (JSON or gzip JSON).
	Path string `mapstructure:"path"`
	// ExtraPath overrides both the builtin lexicon and Path.
	ExtraPath string `mapstructure:"extra_path"`
}

type DBConfig struct {
	Path     string `mapstructure:"path"`
	Disabled bool   `mapstructure:"disabled"`
}

type LLMConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Model            string  `mapstructure:"model"`
	APIKey           string  `mapstructure:"api_key"`
	TimeoutMS        int     `mapstructure:"timeout_ms"`
	Temperature      float64 `mapstructure:"temperature"`
	MaxLinesPerScan  int     `mapstructure:"max_lines_per_scan"`
	ChunkSize        int     `mapstructure:"chunk_size"`
	RetryAttempts    int     `mapstructure:"retry_attempts"`
	MaxSingleRetries int     `mapstructure:"max_single_retries"`
	ErrorCooldownMS  int     `mapstructure:"error_cooldown_ms"`
	CacheSize        int     `mapstructure:"cache_size"`
	PromptVersion    string  `mapstructure:"prompt_version"`
	DebugDumpPath    string  `mapstructure:"debug_dump_path"`
}

type BatchConfig struct {
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Lexicon LexiconConfig `mapstructure:"lexicon"`
	DB      DBConfig      `mapstructure:"db"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Batch   BatchConfig   `mapstructure:"batch"`
}

// SetDefaults registers every key, which also lets viper map each one to
// its environment variable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("lexicon.path", "")
	v.SetDefault("lexicon.extra_path", "")
	v.SetDefault("db.path", "./data/metermeter.db")
	v.SetDefault("db.disabled", false)
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout_ms", 30000)
	v.SetDefault("llm.temperature", refiner.DefaultTemperature)
	v.SetDefault("llm.max_lines_per_scan", 64)
	v.SetDefault("llm.chunk_size", refiner.DefaultChunkSize)
	v.SetDefault("llm.retry_attempts", refiner.DefaultRetryAttempts)
	v.SetDefault("llm.max_single_retries", refiner.DefaultMaxSingleRetries)
	v.SetDefault("llm.error_cooldown_ms", int(refiner.DefaultErrorCooldown/time.Millisecond))
	v.SetDefault("llm.cache_size", refiner.DefaultCacheSize)
	v.SetDefault("llm.prompt_version", refiner.DefaultPromptVersion)
	v.SetDefault("llm.debug_dump_path", "")
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.timeout", 2*time.Minute)
}

// Load reads configuration into v and decodes it. dotenv files are loaded
// into the process environment first without overriding it; a missing
// .env is not an error. configFile may be empty to search the working
// directory and $HOME/.metermeter for metermeter.yaml.
func Load(v *viper.Viper, configFile string, dotenv ...string) (*Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, path := range dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("metermeter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.metermeter")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once. Missing LLM endpoint or
// model is left to the scan, which reports it per request.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zap.ParseAtomicLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: %q is not json or console", c.Log.Format))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errs = append(errs, fmt.Errorf("llm.temperature: %v is outside [0,1]", c.LLM.Temperature))
	}
	for name, n := range map[string]int{
		"llm.timeout_ms":         c.LLM.TimeoutMS,
		"llm.max_lines_per_scan": c.LLM.MaxLinesPerScan,
		"llm.chunk_size":         c.LLM.ChunkSize,
		"llm.retry_attempts":     c.LLM.RetryAttempts,
		"llm.max_single_retries": c.LLM.MaxSingleRetries,
		"llm.error_cooldown_ms":  c.LLM.ErrorCooldownMS,
		"llm.cache_size":         c.LLM.CacheSize,
		"batch.workers":          c.Batch.Workers,
	} {
		if n < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative, got %d", name, n))
		}
	}
	switch c.LLM.PromptVersion {
	case "v1", "v2":
	default:
		errs = append(errs, fmt.Errorf("llm.prompt_version: %q is not v1 or v2", c.LLM.PromptVersion))
	}
	if c.Batch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("batch.timeout: must not be negative"))
	}
	return errors.Join(errs...)
}

// RefinerConfig is the shared refiner configuration. Endpoint, model and
// key are set per request.
func (c *Config) RefinerConfig() refiner.Config {
	cooldown := time.Duration(c.LLM.ErrorCooldownMS) * time.Millisecond
	if c.LLM.ErrorCooldownMS == 0 {
		cooldown = -1
	}
	return refiner.Config{
		Timeout:          time.Duration(c.LLM.TimeoutMS) * time.Millisecond,
		Temperature:      c.LLM.Temperature,
		ChunkSize:        c.LLM.ChunkSize,
		RetryAttempts:    c.LLM.RetryAttempts,
		MaxSingleRetries: c.LLM.MaxSingleRetries,
		ErrorCooldown:    cooldown,
		CacheSize:        c.LLM.CacheSize,
		PromptVersion:    c.LLM.PromptVersion,
		DebugDumpPath:    c.LLM.DebugDumpPath,
	}
}

// LLMOptions are the scan options implied by the configuration, or nil
// when LLM refinement is off.
func (c *Config) LLMOptions() *internal.LLMOptions {
	if !c.LLM.Enabled {
		return nil
	}
	temperature := c.LLM.Temperature
	return &internal.LLMOptions{
		Enabled:         true,
		Endpoint:        c.LLM.Endpoint,
		Model:           c.LLM.Model,
		TimeoutMS:       c.LLM.TimeoutMS,
		Temperature:     &temperature,
		MaxLinesPerScan: c.LLM.MaxLinesPerScan,
		APIKey:          c.LLM.APIKey,
	}
}
