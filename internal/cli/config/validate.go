package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	clioutput "github.com/sherlockq/fill/internal/cli/output"
	writer "github.com/sherlockq/fill/internal/output"
	"github.com/sherlockq/fill/internal/preprocess"
)

// LogFormats lists the valid log formats.
var LogFormats = []string{"text", "json"}

// Validate checks enumerated values and the batch size. Empty values are
// accepted; RequireRender and RequireTemplate check presence.
func (c *Config) Validate() error {
	var errs []error

	if c.OutputMode != "" {
		if _, err := writer.ParseMode(c.OutputMode); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := preprocess.ParseMode(c.Preprocess); err != nil {
		errs = append(errs, err)
	}
	if c.Batch < 0 {
		errs = append(errs, fmt.Errorf("batch must not be negative, got %d", c.Batch))
	}
	if c.LogFormat != "" && !slices.Contains(LogFormats, strings.ToLower(c.LogFormat)) {
		errs = append(errs, fmt.Errorf("invalid log_format %q (valid: %s)", c.LogFormat, strings.Join(LogFormats, ", ")))
	}
	if c.Format != "" && !slices.Contains(clioutput.Modes, clioutput.Mode(c.Format)) {
		errs = append(errs, fmt.Errorf("invalid format %q (valid: auto, text, markdown, json)", c.Format))
	}

	return errors.Join(errs...)
}

// RequireTemplate checks that a template is configured and exists.
func (c *Config) RequireTemplate() error {
	if c.Template == "" {
		return fmt.Errorf("template is required\nHint: pass --template or set template in fill.yaml")
	}
	return requireFile("template", c.Template)
}

// RequireRender checks everything a render needs: template, values, output
// and output mode.
func (c *Config) RequireRender() error {
	var missing []string
	for _, f := range []struct{ key, value string }{
		{"template", c.Template},
		{"values", c.Values},
		{"output", c.Output},
		{"output_mode", c.OutputMode},
	} {
		if f.value == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s\nHint: pass them as flags (--%s) or set them in fill.yaml",
			strings.Join(missing, ", "), strings.ReplaceAll(missing[0], "_", "-"))
	}

	if err := requireFile("template", c.Template); err != nil {
		return err
	}
	return requireFile("values", c.Values)
}

func requireFile(kind, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s file does not exist: %s", kind, path)
	}
	if err != nil {
		return fmt.Errorf("failed to access %s file: %w", kind, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s path is a directory: %s", kind, path)
	}
	return nil
}
