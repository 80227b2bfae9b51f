package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fsec/internal"
	"fsec/internal/operator"
	"fsec/internal/pipeline"
	"fsec/internal/registry"
	"fsec/internal/storage"
)

type Config struct {
	DataDir      string
	DownloadDir  string
	OutputDir    string
	AliasMapPath string
	UnknownPath  string
	DownloadLog  string
	SchemaPath   string

	RegistryBackend  string
	RegistryPath     string
	RegistryDSN      string
	RegistryRedisURL string
	RegistrySource   string

	MatchMinLen     int
	MatchMaxLen     int
	MatchMinScore   int
	MatchAliasScore int

	HeaderSensitivity int
	HeaderSpecificity int
	HeaderSampleSize  int
	HeaderSeed        int64

	ExcludeTokens []string
	MergePolicy   string

	StorageDriver string
	StorageDSN    string
	Sinks         []string

	LogLevel  string
	LogFormat string

	WatchIntervalSec int
	WatchRecursive   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}
	dataDir := getEnv("FSEC_DATA_DIR", filepath.Join(cwd, "data"))

	cfg := Config{
		DataDir:      dataDir,
		DownloadDir:  getEnv("FSEC_DOWNLOAD_DIR", filepath.Join(dataDir, "downloads")),
		OutputDir:    getEnv("FSEC_OUTPUT_DIR", filepath.Join(cwd, "out")),
		AliasMapPath: getEnv("FSEC_ALIAS_MAP", filepath.Join(dataDir, "aliases.yaml")),
		UnknownPath:  getEnv("FSEC_UNKNOWN_NAMES", filepath.Join(dataDir, "unknown_names.yaml")),
		DownloadLog:  getEnv("FSEC_DOWNLOAD_LOG", filepath.Join(dataDir, "download_log.yaml")),
		SchemaPath:   getEnv("FSEC_SCHEMA", filepath.Join(dataDir, "schema.yaml")),

		RegistryBackend:  getEnv("REGISTRY_BACKEND", string(registry.BackendJSON)),
		RegistryPath:     getEnv("REGISTRY_PATH", filepath.Join(dataDir, "operators.json")),
		RegistryDSN:      getEnv("REGISTRY_DSN", filepath.Join(dataDir, "operators.db")),
		RegistryRedisURL: getEnv("REGISTRY_REDIS_URL", "redis://localhost:6379/0"),
		RegistrySource:   getEnv("REGISTRY_SOURCE", "fsec"),

		MatchMinLen:     getEnvInt("MATCH_MIN_LEN", 3),
		MatchMaxLen:     getEnvInt("MATCH_MAX_LEN", 35),
		MatchMinScore:   getEnvInt("MATCH_MIN_SCORE", 90),
		MatchAliasScore: getEnvInt("MATCH_ALIAS_SCORE", 75),

		HeaderSensitivity: getEnvInt("HEADER_SENSITIVITY", 2),
		HeaderSpecificity: getEnvInt("HEADER_SPECIFICITY", 2),
		HeaderSampleSize:  getEnvInt("HEADER_SAMPLE_SIZE", 0),
		HeaderSeed:        int64(getEnvInt("HEADER_SEED", 1)),

		ExcludeTokens: getEnvList("PARSER_EXCLUDE_TOKENS", DefaultExcludeTokens()),
		MergePolicy:   getEnv("PARSER_MERGE_POLICY", string(pipeline.MergeMin)),

		StorageDriver: getEnv("STORAGE_DRIVER", string(storage.SQLite)),
		StorageDSN:    getEnv("STORAGE_DSN", filepath.Join(dataDir, "fsec.db")),
		Sinks:         getEnvList("OUTPUT_SINKS", []string{"xlsx", "db"}),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 60),
		WatchRecursive:   getEnvBool("WATCH_RECURSIVE", false),
	}

	return cfg, nil
}

// DefaultExcludeTokens are filename words that never name an operator.
func DefaultExcludeTokens() []string {
	tokens := []string{"mb", "pb", "frac", "schedule", "3monthfracschedule"}
	for m := time.January; m <= time.December; m++ {
		tokens = append(tokens, strings.ToLower(m.String()))
	}
	return tokens
}

func (c Config) Validate() error {
	var errs []error
	if _, err := registry.ParseBackend(c.RegistryBackend); err != nil {
		errs = append(errs, err)
	}
	if _, err := pipeline.ParseMergePolicy(c.MergePolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := storage.ParseDialect(c.StorageDriver); err != nil {
		errs = append(errs, err)
	}
	if c.MatchMinScore < 0 || c.MatchMinScore > 100 {
		errs = append(errs, fmt.Errorf("MATCH_MIN_SCORE out of range: %d", c.MatchMinScore))
	}
	if c.MatchAliasScore < 0 || c.MatchAliasScore > 100 {
		errs = append(errs, fmt.Errorf("MATCH_ALIAS_SCORE out of range: %d", c.MatchAliasScore))
	}
	if c.MatchMinLen < 1 || c.MatchMaxLen < c.MatchMinLen {
		errs = append(errs, fmt.Errorf("match length bounds invalid: %d..%d", c.MatchMinLen, c.MatchMaxLen))
	}
	if c.HeaderSensitivity < 1 || c.HeaderSpecificity < 1 {
		errs = append(errs, errors.New("header sensitivity and specificity must be positive"))
	}
	for _, s := range c.Sinks {
		switch s {
		case "xlsx", "parquet", "db":
		default:
			errs = append(errs, fmt.Errorf("unknown output sink: %s", s))
		}
	}
	if c.WatchIntervalSec < 1 {
		errs = append(errs, fmt.Errorf("WATCH_INTERVAL_SEC must be positive: %d", c.WatchIntervalSec))
	}
	return errors.Join(errs...)
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) HeaderConfig() pipeline.HeaderConfig {
	return pipeline.HeaderConfig{
		Sensitivity: c.HeaderSensitivity,
		Specificity: c.HeaderSpecificity,
		SampleSize:  c.HeaderSampleSize,
		Seed:        c.HeaderSeed,
	}
}

func (c Config) ResolverConfig() operator.Config {
	rc := operator.DefaultConfig()
	rc.MinLen = c.MatchMinLen
	rc.MaxLen = c.MatchMaxLen
	rc.MinScore = c.MatchMinScore
	rc.AliasScore = c.MatchAliasScore
	rc.Source = c.RegistrySource
	return rc
}

func (c Config) RegistryConfig() registry.Config {
	return registry.Config{
		Backend:  c.RegistryBackend,
		Path:     c.RegistryPath,
		DSN:      c.RegistryDSN,
		RedisURL: c.RegistryRedisURL,
	}
}

// LoadSchema reads the canonical schema file, a YAML list of name/type
// pairs. A missing file yields the built-in schema.
func LoadSchema(path string) (internal.Schema, error) {
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return internal.DefaultSchema(), nil
	}
	if err != nil {
		return nil, err
	}

	var schema internal.Schema
	if err := yaml.Unmarshal(blob, &schema); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", path, err)
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema %s is empty", path)
	}
	seen := map[string]struct{}{}
	for _, col := range schema {
		if col.Name == "" {
			return nil, fmt.Errorf("schema %s: column without a name", path)
		}
		if !col.Type.Valid() {
			return nil, fmt.Errorf("schema %s: column %s has unknown type %q", path, col.Name, col.Type)
		}
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate column %s", path, col.Name)
		}
		seen[col.Name] = struct{}{}
	}
	return schema, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
