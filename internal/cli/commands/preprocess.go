package commands

import (
	"fmt"
	"os"

	"github.com/sherlockq/fill/internal/cli/output"
	"github.com/sherlockq/fill/internal/preprocess"
	"github.com/spf13/cobra"
)

// PreprocessOutput is the JSON form of the preprocess command.
type PreprocessOutput struct {
	Template   string          `json:"template"`
	Source     string          `json:"source"`
	Statements []StatementInfo `json:"statements"`
}

// NewPreprocessCommand creates the preprocess command.
func NewPreprocessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Print the batch-sql rewrite of a template",
		Long: `Print the template as the batch-sql preprocessor rewrites it, before any
rendering. Every INSERT ... VALUES (...); statement becomes a loop over the
batch that joins one VALUES tuple per row.

This is useful for debugging templates that produce unexpected INSERTs.

Output adapts to environment:
  - Terminal: the rewritten template as is
  - Piped/Scripted: Markdown with a code block`,
		Example: `  # Show the rewrite
  fill preprocess --template insert.sql

  # As JSON, with the statements found
  fill preprocess --template insert.sql --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPreprocess(cmd)
		},
	}

	return cmd
}

func runPreprocess(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	if err := cmdCtx.Cfg.RequireTemplate(); err != nil {
		return err
	}
	r := cmdCtx.Renderer

	raw, err := os.ReadFile(cmdCtx.Cfg.Template)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	src, statements := preprocess.ModeBatchSQL.Transform(string(raw))
	cmdCtx.Logger.Debug("preprocessed template", "template", cmdCtx.Cfg.Template, "statements", len(statements))

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(PreprocessOutput{
			Template:   cmdCtx.Cfg.Template,
			Source:     src,
			Statements: statementInfos(statements, string(raw)),
		})
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Preprocessed: "+cmdCtx.Cfg.Template))
		r.Println("")
		r.Println(output.FormatCodeBlock("sql", src))
	default:
		r.Printf("%s", src)
	}

	if len(statements) == 0 {
		r.Warning("no INSERT ... VALUES statements found; template unchanged")
	}
	return nil
}
