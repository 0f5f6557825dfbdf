package commands

import (
	"log/slog"

	"github.com/sherlockq/fill/internal/cli/config"
	"github.com/sherlockq/fill/internal/cli/output"
	"github.com/sherlockq/fill/internal/fill"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds a CommandContext from the configuration and
// logger the root command stored in the command context.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Format))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Engine creates a fill engine from the current configuration.
func (c *CommandContext) Engine() (*fill.Engine, error) {
	fc := c.Cfg.FillConfig()
	fc.Logger = c.Logger
	return fill.New(fc)
}
