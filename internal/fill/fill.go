// Package fill runs a template over rows of input: it loads the rows,
// preprocesses and compiles the template, renders it once per row or per
// batch and hands the results to the output writer.
package fill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sherlockq/fill/internal/batch"
	"github.com/sherlockq/fill/internal/macro"
	"github.com/sherlockq/fill/internal/output"
	"github.com/sherlockq/fill/internal/preprocess"
	"github.com/sherlockq/fill/internal/template"
	"github.com/sherlockq/fill/internal/values"
)

// Config holds run configuration.
type Config struct {
	// TemplatePath is the template file.
	TemplatePath string
	// ValuesPath is the CSV or YAML file holding the rows.
	ValuesPath string
	// OutputPath is the output file or directory, depending on OutputMode.
	OutputPath string
	OutputMode output.Mode
	// Separator is rendered after every item in one-file mode.
	Separator string
	// Filename names the files in multiple-files mode.
	Filename string
	// BatchSize groups rows; 0 renders each row on its own unless
	// Preprocess is batch-sql, which then uses a single batch.
	BatchSize  int
	Preprocess preprocess.Mode
	// Strict makes undefined variables render errors.
	Strict bool
	// MacrosDir holds optional *.star macro files.
	MacrosDir string
	// Clock is the time source of now(); defaults to time.Now.
	Clock func() time.Time
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Batched reports whether rows are rendered in batches.
func (c Config) Batched() bool {
	return c.BatchSize > 0 || c.Preprocess.Batched()
}

// Engine renders a template against input rows.
type Engine struct {
	cfg    Config
	env    *template.Environment
	logger *slog.Logger
}

// Result summarizes a run.
type Result struct {
	Rows       int
	Renders    int
	Statements []preprocess.Statement
	Output     *output.Result
}

// New creates an engine. Macros are loaded here so that a bad macro file
// fails before any input is read.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("batch size must not be negative, got %d", cfg.BatchSize)
	}

	macros, err := macro.Globals(cfg.MacrosDir, template.Builtins(cfg.Clock), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load macros: %w", err)
	}

	env, err := template.NewEnvironment(
		template.WithStrict(cfg.Strict),
		template.WithMacros(macros),
		template.WithClock(cfg.Clock),
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("initializing fill engine",
		"template", cfg.TemplatePath,
		"values", cfg.ValuesPath,
		"preprocess", cfg.Preprocess,
		"batch", cfg.BatchSize,
		"strict", cfg.Strict)

	return &Engine{cfg: cfg, env: env, logger: logger}, nil
}

// Environment returns the template environment of the run.
func (e *Engine) Environment() *template.Environment {
	return e.env
}

// Compile reads, preprocesses and parses the template.
func (e *Engine) Compile() (*template.Template, []preprocess.Statement, error) {
	raw, err := os.ReadFile(e.cfg.TemplatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read template: %w", err)
	}

	src, statements := e.cfg.Preprocess.Transform(string(raw))
	for _, stmt := range statements {
		e.logger.Debug("rewrote insert statement",
			"table", stmt.Table(),
			"references", stmt.References,
			"transformed", stmt.Transformed)
	}

	tmpl, err := e.env.Parse(src, e.cfg.TemplatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, statements, nil
}

// RenderAll renders tmpl for rows and returns the outputs with the context
// the writer sees for each of them.
func (e *Engine) RenderAll(ctx context.Context, tmpl *template.Template, rows []values.Row) ([]string, []map[string]any, error) {
	if !e.cfg.Batched() {
		contexts := batch.RowContexts(rows)
		outputs := make([]string, len(contexts))
		for i, c := range contexts {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			out, err := tmpl.Render(c)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			outputs[i] = out
		}
		return outputs, contexts, nil
	}

	batches := batch.Build(rows, e.cfg.BatchSize)
	outputs := make([]string, len(batches))
	summaries := make([]map[string]any, len(batches))
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		out, err := tmpl.Render(b.Context())
		if err != nil {
			return nil, nil, fmt.Errorf("batch %d (rows %d..%d): %w", b.Index, b.StartIndex, b.EndIndex, err)
		}
		e.logger.Debug("rendered batch",
			"batch_index", b.Index,
			"start_index", b.StartIndex,
			"end_index", b.EndIndex,
			"size", b.Size())
		outputs[i] = out
		summaries[i] = b.Summary()
	}
	return outputs, summaries, nil
}

// Run executes the whole pipeline. Nothing is written unless every render
// succeeds.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	writer, err := output.NewWriter(output.Config{
		Path:      e.cfg.OutputPath,
		Mode:      e.cfg.OutputMode,
		Separator: e.cfg.Separator,
		Filename:  e.cfg.Filename,
		Env:       e.env,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}

	tmpl, statements, err := e.Compile()
	if err != nil {
		return nil, err
	}

	rows, err := values.Load(e.cfg.ValuesPath)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("loaded rows", "path", e.cfg.ValuesPath, "count", len(rows))

	outputs, contexts, err := e.RenderAll(ctx, tmpl, rows)
	if err != nil {
		return nil, err
	}

	written, err := writer.Write(outputs, contexts)
	if err != nil {
		return nil, err
	}

	return &Result{
		Rows:       len(rows),
		Renders:    len(outputs),
		Statements: statements,
		Output:     written,
	}, nil
}
