package commands

import (
	"github.com/spf13/cobra"
)

// NewRenderCommand creates the render command. The root command runs the
// same action when called without a subcommand.
func NewRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a template once per row or batch of a values file",
		Long: `Render the template against every row of the values file and write the
results.

With --output-mode one-file, all renders are concatenated into the output
file, each followed by the rendered separator. With --output-mode
multiple-files, the output path is a directory receiving one file per render.

--batch N groups rows into batches of N; the template then sees the batch
as "batch" instead of one row at a time. --preprocess batch-sql rewrites
INSERT ... VALUES statements so that a single-row template emits one
multi-row INSERT per batch.`,
		Example: `  # One combined file
  fill render --template insert.sql --values rows.csv --output out.sql --output-mode one-file

  # One file per row
  fill --template mail.txt --values people.yaml --output mails --output-mode multiple-files

  # Multi-row INSERTs of 500 rows each
  fill --template insert.sql --values rows.csv --output out.sql \
    --output-mode one-file --preprocess batch-sql --batch 500

  # Run a job from fill.yaml
  fill --job nightly`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return RunRender(cmd)
		},
	}

	return cmd
}

// RunRender renders the configured template and writes the output.
func RunRender(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	if err := cmdCtx.Cfg.RequireRender(); err != nil {
		return err
	}

	eng, err := cmdCtx.Engine()
	if err != nil {
		return err
	}

	res, err := eng.Run(cmd.Context())
	if err != nil {
		return err
	}

	cmdCtx.Logger.Info("fill completed",
		"rows", res.Rows,
		"renders", res.Renders,
		"statements", len(res.Statements),
		"output", res.Output.Path)
	cmdCtx.Renderer.Success(res.Output.Message())
	return nil
}
