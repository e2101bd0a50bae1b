package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "ECOOPEN_"

type Config struct {
	EmbedLLM   LLMConfig        `yaml:"embed_llm"`
	AgentLLM   LLMConfig        `yaml:"agent_llm"`
	RAG        RAGConfig        `yaml:"rag"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Batch      BatchConfig      `yaml:"batch"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
}

// LLMConfig describes one OpenAI-compatible or Ollama endpoint.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai or ollama
	BaseURL     string        `yaml:"base_url"`
	Key         string        `yaml:"key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	BatchSize   int           `yaml:"batch_size"`
	Temperature float64       `yaml:"temperature"`
}

type RAGConfig struct {
	ChunkSize       int `yaml:"chunk_size"`
	ChunkOverlap    int `yaml:"chunk_overlap"`
	TopK            int `yaml:"top_k"`
	MaxContextChars int `yaml:"max_context_chars"`
}

type ExtractionConfig struct {
	// StructuredAvailability asks the agent for a JSON verdict covering both
	// statements at once instead of two free-text prompts.
	StructuredAvailability bool          `yaml:"structured_availability"`
	ContextExpansion       bool          `yaml:"context_expansion"`
	DOIRegistry            bool          `yaml:"doi_registry"`
	RegistryURL            string        `yaml:"registry_url"`
	RegistryTimeout        time.Duration `yaml:"registry_timeout"`
	// RegistryMailto is sent in the User-Agent so Crossref can reach the
	// operator.
	RegistryMailto         string        `yaml:"registry_mailto"`
}

type BatchConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // pgdriver (default) or pq
	DSN     string `yaml:"dsn"`
	Debug   bool   `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Defaults returns a configuration pointing at a local Ollama instance.
func Defaults() *Config {
	return &Config{
		EmbedLLM: LLMConfig{
			Provider:  "ollama",
			BaseURL:   "http://localhost:11434",
			Model:     "nomic-embed-text",
			Timeout:   60 * time.Second,
			BatchSize: 64,
		},
		AgentLLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "http://localhost:11434/v1",
			Key:         "ollama",
			Model:       "llama3.1",
			Timeout:     120 * time.Second,
			Temperature: 0,
		},
		RAG: RAGConfig{
			ChunkSize:       1800,
			ChunkOverlap:    250,
			TopK:            6,
			MaxContextChars: 12000,
		},
		Extraction: ExtractionConfig{
			ContextExpansion: true,
			RegistryURL:      "https://api.crossref.org",
			RegistryTimeout:  10 * time.Second,
		},
		Batch: BatchConfig{
			Workers: 1,
			Timeout: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "pgdriver",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads the yaml file at path on top of Defaults. A missing file is not
// an error. Environment overrides are applied afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; existing variables win.
func LoadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides settings from ECOOPEN_* variables. lookup is
// os.LookupEnv outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("AGENT_PROVIDER", &c.AgentLLM.Provider)
	str("AGENT_BASE_URL", &c.AgentLLM.BaseURL)
	str("AGENT_KEY", &c.AgentLLM.Key)
	str("AGENT_MODEL", &c.AgentLLM.Model)
	dur("AGENT_TIMEOUT", &c.AgentLLM.Timeout)

	str("EMBED_PROVIDER", &c.EmbedLLM.Provider)
	str("EMBED_BASE_URL", &c.EmbedLLM.BaseURL)
	str("EMBED_KEY", &c.EmbedLLM.Key)
	str("EMBED_MODEL", &c.EmbedLLM.Model)
	num("EMBED_BATCH_SIZE", &c.EmbedLLM.BatchSize)

	num("CHUNK_SIZE", &c.RAG.ChunkSize)
	num("CHUNK_OVERLAP", &c.RAG.ChunkOverlap)
	num("TOP_K", &c.RAG.TopK)
	num("MAX_CONTEXT_CHARS", &c.RAG.MaxContextChars)

	flag("STRUCTURED_AVAILABILITY", &c.Extraction.StructuredAvailability)
	flag("CONTEXT_EXPANSION", &c.Extraction.ContextExpansion)
	flag("DOI_REGISTRY", &c.Extraction.DOIRegistry)
	str("REGISTRY_MAILTO", &c.Extraction.RegistryMailto)

	num("WORKERS", &c.Batch.Workers)
	dur("TIMEOUT", &c.Batch.Timeout)

	flag("DB_ENABLED", &c.Database.Enabled)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)

	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK))
	}
	if c.Batch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers))
	}
	for name, llm := range map[string]LLMConfig{"agent_llm": c.AgentLLM, "embed_llm": c.EmbedLLM} {
		switch llm.Provider {
		case "openai", "ollama":
		default:
			errs = append(errs, fmt.Errorf("%s.provider must be openai or ollama, got %q", name, llm.Provider))
		}
		if llm.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", name))
		}
	}
	if c.Database.Enabled {
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required when the job store is enabled"))
		}
		if c.Database.Driver != "pgdriver" && c.Database.Driver != "pq" {
			errs = append(errs, fmt.Errorf("database.driver must be pgdriver or pq, got %q", c.Database.Driver))
		}
	}
	return errors.Join(errs...)
}
