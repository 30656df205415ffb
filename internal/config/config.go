package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the booksearch configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Query      QueryConfig      `yaml:"query"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cache      CacheConfig      `yaml:"cache"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys disables authentication.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CorpusConfig describes where the catalog comes from and how it is cleaned.
type CorpusConfig struct {
	Path        string             `yaml:"path"`
	Supplements []SupplementConfig `yaml:"supplements"`
	IDColumn    string             `yaml:"id_column"`
	Renames     map[string]string  `yaml:"renames"`
	DedupeBy    string             `yaml:"dedupe_by"`
	Require     string             `yaml:"require"`
}

// SupplementConfig names a summary table joined onto the catalog by the dedupe column.
type SupplementConfig struct {
	Path    string   `yaml:"path"`
	Columns []string `yaml:"columns"`
}

// QueryConfig holds query defaults and limits.
type QueryConfig struct {
	DefaultStrategy   string `yaml:"default_strategy"`
	DefaultField      string `yaml:"default_field"`
	TimeoutSec        int    `yaml:"timeout_sec"`
	LexicalVocabulary string `yaml:"lexical_vocabulary"` // prompt | corpus
}

// EmbeddingConfig holds the semantic encoder settings.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider"` // openai | bedrock | none
	Model         string        `yaml:"model"`
	Dimensions    int           `yaml:"dimensions"`
	MaxInputWords int           `yaml:"max_input_words"`
	BatchSize     int           `yaml:"batch_size"`
	Workers       int           `yaml:"workers"`
	OpenAI        OpenAIConfig  `yaml:"openai"`
	Bedrock       BedrockConfig `yaml:"bedrock"`
}

// OpenAIConfig holds OpenAI-compatible provider settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	User    string `yaml:"user"`
}

// BedrockConfig holds AWS Bedrock settings. Credentials come from the default AWS chain.
type BedrockConfig struct {
	Region    string `yaml:"region"`
	Normalize bool   `yaml:"normalize"`
}

// CacheConfig holds the embedding cache settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, none (default: memory)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TTLSec           int      `yaml:"ttl_sec"`
	MaxBytes         int64    `yaml:"max_bytes"`
	ColumnMemoBytes  int64    `yaml:"column_memo_bytes"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EvaluationConfig holds validation-prompt run settings.
type EvaluationConfig struct {
	Workers int      `yaml:"workers"`
	Fields  []string `yaml:"fields"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML after ${VAR} substitution, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Corpus.DedupeBy == "" {
		c.Corpus.DedupeBy = "Title"
	}
	if c.Corpus.Require == "" {
		c.Corpus.Require = "Summary"
	}
	if c.Query.DefaultStrategy == "" {
		c.Query.DefaultStrategy = "lexical_similarity"
	}
	if c.Query.DefaultField == "" {
		c.Query.DefaultField = "Summary"
	}
	if c.Query.TimeoutSec <= 0 {
		c.Query.TimeoutSec = 30
	}
	if c.Query.LexicalVocabulary == "" {
		c.Query.LexicalVocabulary = "prompt"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
		if c.Embedding.Provider == "bedrock" {
			c.Embedding.Model = "amazon.titan-embed-text-v2:0"
		}
	}
	if c.Embedding.MaxInputWords <= 0 {
		c.Embedding.MaxInputWords = 512
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 256
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = 4
	}
	if c.Embedding.Bedrock.Region == "" {
		c.Embedding.Bedrock.Region = "us-east-1"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Evaluation.Workers <= 0 {
		c.Evaluation.Workers = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	for i, sup := range c.Corpus.Supplements {
		if sup.Path == "" || len(sup.Columns) == 0 {
			return fmt.Errorf("corpus.supplements[%d] needs path and columns", i)
		}
	}
	switch c.Query.LexicalVocabulary {
	case "prompt", "corpus":
	default:
		return fmt.Errorf("query.lexical_vocabulary must be \"prompt\" or \"corpus\", got %q", c.Query.LexicalVocabulary)
	}
	switch c.Embedding.Provider {
	case "openai", "bedrock", "none":
	default:
		return fmt.Errorf("embedding.provider must be \"openai\", \"bedrock\" or \"none\", got %q", c.Embedding.Provider)
	}
	switch c.Cache.Driver {
	case "memory", "none":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be \"memory\", \"redis\" or \"none\", got %q", c.Cache.Driver)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
