// Package config loads the fill configuration from defaults, fill.yaml,
// FILL_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"github.com/sherlockq/fill/internal/fill"
	writer "github.com/sherlockq/fill/internal/output"
	"github.com/sherlockq/fill/internal/preprocess"
)

// Config holds all CLI configuration options.
type Config struct {
	Template   string `koanf:"template"`
	Values     string `koanf:"values"`
	Output     string `koanf:"output"`
	OutputMode string `koanf:"output_mode"`
	Separator  string `koanf:"separator"`
	Filename   string `koanf:"filename"`
	Batch      int    `koanf:"batch"`
	Preprocess string `koanf:"preprocess"`
	Strict     bool   `koanf:"strict"`
	MacrosDir  string `koanf:"macros_dir"`

	Verbose   bool   `koanf:"verbose"`
	LogFormat string `koanf:"log_format"`
	// Format is the display format of informational commands.
	Format string `koanf:"format"`

	// Job is the name of the jobs entry applied on top of the file.
	Job string `koanf:"-"`
	// ConfigFile is the config file used, if any.
	ConfigFile string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultSeparator  = writer.DefaultSeparator
	DefaultFilename   = writer.DefaultFilename
	DefaultPreprocess = string(preprocess.ModeNone)
	DefaultLogFormat  = "text"
	DefaultFormat     = "auto"
)

// ConfigFileNames are searched, in order, in the working directory.
var ConfigFileNames = []string{"fill.yaml", "fill.yml"}

// FillConfig converts the CLI configuration into a run configuration.
// Call Validate first.
func (c *Config) FillConfig() fill.Config {
	mode, _ := preprocess.ParseMode(c.Preprocess)
	outMode, _ := writer.ParseMode(c.OutputMode)
	return fill.Config{
		TemplatePath: c.Template,
		ValuesPath:   c.Values,
		OutputPath:   c.Output,
		OutputMode:   outMode,
		Separator:    writer.DecodeEscapes(c.Separator),
		Filename:     c.Filename,
		BatchSize:    c.Batch,
		Preprocess:   mode,
		Strict:       c.Strict,
		MacrosDir:    c.MacrosDir,
	}
}
