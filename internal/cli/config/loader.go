package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of configuration environment variables:
// FILL_OUTPUT_MODE sets output_mode.
const EnvPrefix = "FILL_"

// jobsKey holds named overrides in the config file.
const jobsKey = "jobs"

// pathKeys are resolved against the config file directory when they come
// from the file.
var pathKeys = []string{"template", "values", "output", "macros_dir"}

// loggerKey and configKey are context keys shared with the commands package.
type (
	loggerKey struct{}
	configKey struct{}
)

// findConfigFile returns the explicit path or the first ConfigFileNames
// entry present in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range ConfigFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// defaults returns the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"separator":  DefaultSeparator,
		"filename":   DefaultFilename,
		"batch":      0,
		"preprocess": DefaultPreprocess,
		"strict":     false,
		"verbose":    false,
		"log_format": DefaultLogFormat,
		"format":     DefaultFormat,
	}
}

// LoadConfig loads configuration from defaults, the config file, FILL_*
// environment variables and flags. Precedence (highest to lowest):
// flags > env vars > selected job > config file > defaults.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigWithJob(cfgFile, "", flags)
}

// LoadConfigWithJob loads configuration and applies the named entry of the
// file's jobs section on top of the file's top-level settings.
func LoadConfigWithJob(cfgFile, job string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file, then the selected job
	fileLayer := koanf.New(".")
	configFile := findConfigFile(cfgFile)
	if configFile != "" {
		if err := fileLayer.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}
	if job != "" {
		path := jobsKey + "." + job
		if !fileLayer.Exists(path) {
			return nil, fmt.Errorf("unknown job %q (available: %s)", job, strings.Join(jobNames(fileLayer), ", "))
		}
		if err := fileLayer.Merge(fileLayer.Cut(path)); err != nil {
			return nil, fmt.Errorf("failed to apply job %q: %w", job, err)
		}
	}
	if err := k.Merge(fileLayer); err != nil {
		return nil, fmt.Errorf("failed to merge config file: %w", err)
	}

	// 3. Environment variables: FILL_MACROS_DIR -> macros_dir
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Job = job
	cfg.ConfigFile = configFile

	// 6. Paths written in the file are relative to the file
	if configFile != "" {
		baseDir := filepath.Dir(configFile)
		for _, key := range pathKeys {
			if flagChanged(flags, key) || os.Getenv(EnvPrefix+strings.ToUpper(key)) != "" || !fileLayer.Exists(key) {
				continue
			}
			cfg.setPath(key, resolvePathRelativeTo(expandEnvVars(cfg.path(key)), baseDir))
		}
	}

	return &cfg, nil
}

// envKey maps FILL_OUTPUT_MODE to output_mode.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// flagKey maps --output-mode to output_mode.
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func flagChanged(flags *pflag.FlagSet, key string) bool {
	if flags == nil {
		return false
	}
	f := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
	return f != nil && f.Changed
}

// jobNames lists the jobs defined in a config layer.
func jobNames(k *koanf.Koanf) []string {
	names := k.MapKeys(jobsKey)
	sort.Strings(names)
	if len(names) == 0 {
		return []string{"none defined"}
	}
	return names
}

// Jobs returns the job names defined in the config file, sorted.
func Jobs(cfgFile string) ([]string, error) {
	path := findConfigFile(cfgFile)
	if path == "" {
		return nil, nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	names := k.MapKeys(jobsKey)
	sort.Strings(names)
	return names, nil
}

func (c *Config) path(key string) string {
	switch key {
	case "template":
		return c.Template
	case "values":
		return c.Values
	case "output":
		return c.Output
	default:
		return c.MacrosDir
	}
}

func (c *Config) setPath(key, value string) {
	switch key {
	case "template":
		c.Template = value
	case "values":
		c.Values = value
	case "output":
		c.Output = value
	default:
		c.MacrosDir = value
	}
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} in s. Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// NewLogger builds the CLI logger: text or JSON on w, Debug level when
// verbose and Warn otherwise.
func NewLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// GetConfig retrieves the configuration from the command context, falling
// back to defaults.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return &Config{
		Separator:  DefaultSeparator,
		Filename:   DefaultFilename,
		Preprocess: DefaultPreprocess,
		LogFormat:  DefaultLogFormat,
		Format:     DefaultFormat,
	}
}
