package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	ferrors "github.com/hpungsan/fern/internal/errors"
)

// Character limit bounds for the prefix/suffix sent to the backend.
const (
	MinCharLimit = 100
	MaxCharLimit = 100000
)

// DefaultSystemMessage is the base system prompt; context-specific guidance is appended to it.
const DefaultSystemMessage = `Your job is to complete text inside a markdown file.
Your text can be code, LaTex math surrounded by $ and $$ characters, a single word, or multiple sentences. Your answer must be in the same language as the text.`

// ModelOptions are the sampling options forwarded to the backend.
// Pointer fields distinguish "unset" from an explicit zero.
type ModelOptions struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	NumCtx           int      `json:"num_ctx,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// Host is the base URL of the Ollama-compatible backend.
	Host string `json:"host,omitempty"`

	// Model is the backend model name. Required for predictions.
	Model string `json:"model,omitempty"`

	// SystemMessage is the base system prompt.
	SystemMessage string `json:"system_message,omitempty"`

	ModelOptions ModelOptions `json:"model_options,omitempty"`

	// MathBlockConversion rewrites $/$$ to \(\)/\[\] before dispatch and back afterwards.
	MathBlockConversion *bool `json:"math_block_conversion,omitempty"`

	// DataviewStripping removes dataview code blocks from the prompt and
	// suppresses predictions inside them.
	DataviewStripping *bool `json:"dataview_stripping,omitempty"`

	DuplicateMathIndicatorSuppression *bool `json:"duplicate_math_indicator_suppression,omitempty"`
	DuplicateCodeIndicatorSuppression *bool `json:"duplicate_code_indicator_suppression,omitempty"`

	// PrefixCharLimit and SuffixCharLimit bound the text sent around the cursor.
	PrefixCharLimit int `json:"prefix_char_limit,omitempty"`
	SuffixCharLimit int `json:"suffix_char_limit,omitempty"`

	// CacheSuggestions reuses stored completions for identical requests.
	CacheSuggestions *bool `json:"cache_suggestions,omitempty"`

	// Debug logs the outgoing request and the final response.
	Debug bool `json:"debug,omitempty"`

	// PostProcessScript is an optional Lua file defining
	// process(prefix, suffix, completion, context).
	PostProcessScript string `json:"post_process_script,omitempty"`

	// RequestTimeoutSeconds bounds a whole backend request. 0 means 120s.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// AllowedPaths are extra absolute directories export and import may use
	// besides ~/.fern/exports.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths lifts the directory restriction for export and import.
	// Symlinks are still rejected.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

// enabled treats an unset toggle as on.
func enabled(p *bool) bool { return p == nil || *p }

func pickBool(base, overlay *bool) *bool {
	if overlay != nil {
		return overlay
	}
	return base
}

func pickFloat(base, overlay *float64) *float64 {
	if overlay != nil {
		return overlay
	}
	return base
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:          "http://localhost:11434",
		SystemMessage: DefaultSystemMessage,
		ModelOptions: ModelOptions{
			Temperature:      floatPtr(1),
			TopP:             floatPtr(0.1),
			FrequencyPenalty: floatPtr(0.25),
			PresencePenalty:  floatPtr(0),
			MaxTokens:        800,
			NumCtx:           1024,
		},
		MathBlockConversion:               boolPtr(true),
		DataviewStripping:                 boolPtr(true),
		DuplicateMathIndicatorSuppression: boolPtr(true),
		DuplicateCodeIndicatorSuppression: boolPtr(true),
		PrefixCharLimit:                   4000,
		SuffixCharLimit:                   4000,
		CacheSuggestions:                  boolPtr(true),
		RequestTimeoutSeconds:             120,
	}
}

// MathConversionEnabled reports whether math delimiters are normalized.
func (c *Config) MathConversionEnabled() bool { return enabled(c.MathBlockConversion) }

// DataviewStrippingEnabled reports whether dataview blocks are stripped.
func (c *Config) DataviewStrippingEnabled() bool { return enabled(c.DataviewStripping) }

// MathIndicatorSuppressionEnabled reports whether repeated $$ are stripped from completions.
func (c *Config) MathIndicatorSuppressionEnabled() bool {
	return enabled(c.DuplicateMathIndicatorSuppression)
}

// CodeIndicatorSuppressionEnabled reports whether repeated ``` are stripped from completions.
func (c *Config) CodeIndicatorSuppressionEnabled() bool {
	return enabled(c.DuplicateCodeIndicatorSuppression)
}

// CacheEnabled reports whether suggestions are cached.
func (c *Config) CacheEnabled() bool { return enabled(c.CacheSuggestions) }

// Validate checks value ranges. It returns an INVALID_CONFIG error for the
// first offending field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ferrors.NewInvalidConfig("host", "must not be empty")
	}
	if len(strings.TrimSpace(c.SystemMessage)) < 3 {
		return ferrors.NewInvalidConfig("system_message", "must be at least 3 characters long")
	}
	if err := checkLimit("prefix_char_limit", c.PrefixCharLimit); err != nil {
		return err
	}
	if err := checkLimit("suffix_char_limit", c.SuffixCharLimit); err != nil {
		return err
	}
	if t := c.ModelOptions.Temperature; t != nil && (*t < 0 || *t > 2) {
		return ferrors.NewInvalidConfig("model_options.temperature", "must be between 0 and 2")
	}
	if p := c.ModelOptions.TopP; p != nil && (*p < 0 || *p > 1) {
		return ferrors.NewInvalidConfig("model_options.top_p", "must be between 0 and 1")
	}
	if c.ModelOptions.MaxTokens < 0 {
		return ferrors.NewInvalidConfig("model_options.max_tokens", "must not be negative")
	}
	if c.RequestTimeoutSeconds < 0 {
		return ferrors.NewInvalidConfig("request_timeout_seconds", "must not be negative")
	}
	return nil
}

func checkLimit(field string, v int) error {
	if v < MinCharLimit {
		return ferrors.NewInvalidConfig(field, "must be at least 100")
	}
	if v > MaxCharLimit {
		return ferrors.NewInvalidConfig(field, "must be at most 100000")
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.fern.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.fern) and repo (.fern) directories.
// Repo config is found by walking upward from startDir to find the nearest .fern/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .fern/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".fern", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Strings and ints: overlay wins if non-zero, else base
	result.Host = pickString(base.Host, overlay.Host)
	result.Model = pickString(base.Model, overlay.Model)
	result.SystemMessage = pickString(base.SystemMessage, overlay.SystemMessage)
	result.PostProcessScript = pickString(base.PostProcessScript, overlay.PostProcessScript)
	result.PrefixCharLimit = pickInt(base.PrefixCharLimit, overlay.PrefixCharLimit)
	result.SuffixCharLimit = pickInt(base.SuffixCharLimit, overlay.SuffixCharLimit)
	result.RequestTimeoutSeconds = pickInt(base.RequestTimeoutSeconds, overlay.RequestTimeoutSeconds)
	result.DBMaxOpenConns = pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.ModelOptions = ModelOptions{
		Temperature:      pickFloat(base.ModelOptions.Temperature, overlay.ModelOptions.Temperature),
		TopP:             pickFloat(base.ModelOptions.TopP, overlay.ModelOptions.TopP),
		FrequencyPenalty: pickFloat(base.ModelOptions.FrequencyPenalty, overlay.ModelOptions.FrequencyPenalty),
		PresencePenalty:  pickFloat(base.ModelOptions.PresencePenalty, overlay.ModelOptions.PresencePenalty),
		MaxTokens:        pickInt(base.ModelOptions.MaxTokens, overlay.ModelOptions.MaxTokens),
		NumCtx:           pickInt(base.ModelOptions.NumCtx, overlay.ModelOptions.NumCtx),
	}

	// Toggles: an explicit overlay value wins, so repo config can switch a default off
	result.MathBlockConversion = pickBool(base.MathBlockConversion, overlay.MathBlockConversion)
	result.DataviewStripping = pickBool(base.DataviewStripping, overlay.DataviewStripping)
	result.DuplicateMathIndicatorSuppression = pickBool(base.DuplicateMathIndicatorSuppression, overlay.DuplicateMathIndicatorSuppression)
	result.DuplicateCodeIndicatorSuppression = pickBool(base.DuplicateCodeIndicatorSuppression, overlay.DuplicateCodeIndicatorSuppression)
	result.CacheSuggestions = pickBool(base.CacheSuggestions, overlay.CacheSuggestions)

	// Booleans: overlay wins if true, else base
	result.Debug = base.Debug || overlay.Debug
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)

	return result
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
