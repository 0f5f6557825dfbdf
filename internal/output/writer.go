// Package output writes rendered texts either concatenated into one file,
// each followed by a rendered separator, or as one file per text.
package output

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/sherlockq/fill/internal/template"
)

// Mode selects how outputs are written.
type Mode string

// Mode constants.
const (
	ModeOneFile       Mode = "one-file"
	ModeMultipleFiles Mode = "multiple-files"
)

// Modes lists the valid modes.
var Modes = []Mode{ModeOneFile, ModeMultipleFiles}

// Defaults.
const (
	DefaultSeparator = "\n--{{index}}-\n\n"
	DefaultFilename  = "output_{{ index }}.txt"
)

// indexKey is set in every item context to the 1-based item position.
const indexKey = "index"

// InvalidModeError is returned for an unknown output mode.
type InvalidModeError struct {
	Mode string
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid output mode %q (valid: %s, %s)", e.Mode, ModeOneFile, ModeMultipleFiles)
}

// ParseMode parses an output mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOneFile, ModeMultipleFiles:
		return m, nil
	default:
		return "", &InvalidModeError{Mode: s}
	}
}

func (m Mode) String() string {
	return string(m)
}

// Config holds writer configuration.
type Config struct {
	// Path is the output file in one-file mode and the output directory in
	// multiple-files mode.
	Path string
	Mode Mode
	// Separator is a template rendered after every item in one-file mode.
	Separator string
	// Filename is a template naming each file in multiple-files mode.
	Filename string
	// Env renders the separator and filename templates.
	Env    *template.Environment
	Logger *slog.Logger
}

// Result describes what was written.
type Result struct {
	Mode  Mode
	Path  string
	Files []string
}

// Message returns the summary line printed after a successful write.
func (r *Result) Message() string {
	if r.Mode == ModeOneFile {
		return fmt.Sprintf("Wrote combined output to: %s", r.Path)
	}
	return fmt.Sprintf("Wrote %d files to: %s%c", len(r.Files), r.Path, filepath.Separator)
}

// Writer writes rendered outputs.
type Writer struct {
	cfg       Config
	separator *template.Template
	filename  *template.Template
	logger    *slog.Logger
}

// NewWriter validates cfg and compiles its templates.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	env := cfg.Env
	if env == nil {
		var err error
		if env, err = template.NewEnvironment(); err != nil {
			return nil, err
		}
	}

	w := &Writer{cfg: cfg, logger: logger}

	var err error
	switch cfg.Mode {
	case ModeOneFile:
		w.separator, err = env.Parse(cfg.Separator, "<separator>")
		if err != nil {
			return nil, fmt.Errorf("failed to parse separator: %w", err)
		}
	case ModeMultipleFiles:
		name := cfg.Filename
		if name == "" {
			name = DefaultFilename
		}
		w.filename, err = env.Parse(name, "<filename>")
		if err != nil {
			return nil, fmt.Errorf("failed to parse filename: %w", err)
		}
	}

	return w, nil
}

// Write writes outputs, where contexts[i] describes outputs[i]. Every
// separator and filename is rendered before anything touches the
// filesystem, so a render error leaves no output behind.
func (w *Writer) Write(outputs []string, contexts []map[string]any) (*Result, error) {
	if len(outputs) != len(contexts) {
		return nil, fmt.Errorf("got %d outputs but %d contexts", len(outputs), len(contexts))
	}

	if w.cfg.Mode == ModeOneFile {
		return w.writeOneFile(outputs, contexts)
	}
	return w.writeMultipleFiles(outputs, contexts)
}

// itemContext copies ctx and sets its index to the 1-based position.
func itemContext(ctx map[string]any, i int) map[string]any {
	item := make(map[string]any, len(ctx)+1)
	maps.Copy(item, ctx)
	item[indexKey] = i + 1
	return item
}

func (w *Writer) writeOneFile(outputs []string, contexts []map[string]any) (*Result, error) {
	var b strings.Builder
	for i, out := range outputs {
		sep, err := w.separator.Render(itemContext(contexts[i], i))
		if err != nil {
			return nil, fmt.Errorf("failed to render separator for item %d: %w", i+1, err)
		}
		b.WriteString(out)
		b.WriteString(sep)
	}

	if dir := filepath.Dir(w.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(w.cfg.Path, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}

	w.logger.Debug("wrote combined output", "path", w.cfg.Path, "items", len(outputs), "bytes", b.Len())
	return &Result{Mode: ModeOneFile, Path: w.cfg.Path, Files: []string{w.cfg.Path}}, nil
}

func (w *Writer) writeMultipleFiles(outputs []string, contexts []map[string]any) (*Result, error) {
	files := make([]string, len(outputs))
	seen := make(map[string]int, len(outputs))
	for i := range outputs {
		name, err := w.filename.Render(itemContext(contexts[i], i))
		if err != nil {
			return nil, fmt.Errorf("failed to render filename for item %d: %w", i+1, err)
		}
		name = strings.TrimSpace(name)
		if name == "" || !filepath.IsLocal(name) {
			return nil, fmt.Errorf("invalid filename %q for item %d", name, i+1)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("filename %q of item %d repeats item %d", name, i+1, prev)
		}
		seen[name] = i + 1
		files[i] = filepath.Join(w.cfg.Path, name)
	}

	for i, out := range outputs {
		if err := os.MkdirAll(filepath.Dir(files[i]), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(files[i], []byte(out), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", files[i], err)
		}
		w.logger.Debug("wrote output file", "path", files[i], "bytes", len(out))
	}

	if len(outputs) == 0 {
		if err := os.MkdirAll(w.cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	return &Result{Mode: ModeMultipleFiles, Path: w.cfg.Path, Files: files}, nil
}
