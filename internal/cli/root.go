// Package cli provides the command-line interface for fill.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sherlockq/fill/internal/cli/commands"
	"github.com/sherlockq/fill/internal/cli/config"
	writer "github.com/sherlockq/fill/internal/output"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command. Called without a
// subcommand it renders, as "fill render" does.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile string
		job     string
	)

	rootCmd := &cobra.Command{
		Use:   "fill",
		Short: "fill - render a template once per row of a CSV or YAML file",
		Long: `fill renders a Jinja-style template against every row of a CSV or YAML
file and writes the results to one combined file or to one file per render.

Rows can be grouped into batches, and the batch-sql preprocessor rewrites
single-row INSERT ... VALUES statements into multi-row INSERTs.

Settings come from flags, FILL_* environment variables, an optional job of
fill.yaml and fill.yaml itself, in that order of precedence.`,
		Example: `  fill --template insert.sql --values rows.csv --output out.sql --output-mode one-file
  fill --job nightly
  fill inspect --template insert.sql`,
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfigWithJob(cfgFile, job, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogFormat)
			if cfg.ConfigFile != "" {
				logger.Debug("using config file", "path", cfg.ConfigFile, "job", cfg.Job)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = config.WithConfig(ctx, cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return commands.RunRender(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./fill.yaml)")
	flags.StringVarP(&job, "job", "j", "", "Job of the config file to apply")
	flags.StringP("template", "t", "", "Template file")
	flags.String("values", "", "Values file (.csv, .yaml or .yml)")
	flags.StringP("output", "o", "", "Output file (one-file) or directory (multiple-files)")
	flags.String("output-mode", "", "Output mode (one-file|multiple-files)")
	flags.String("separator", "", `Separator template rendered after each item in one-file mode (default "\n--{{index}}-\n\n")`)
	flags.String("filename", "", `File name template in multiple-files mode (default "output_{{ index }}.txt")`)
	flags.IntP("batch", "b", 0, "Rows per batch (0 renders each row on its own)")
	flags.String("preprocess", "", "Template preprocessing (none|batch-sql)")
	flags.Bool("strict", false, "Fail on undefined variables")
	flags.String("macros-dir", "", "Directory of Starlark macro files (*.star)")
	flags.BoolP("verbose", "v", false, "Verbose logging")
	flags.String("log-format", "", "Log format (text|json)")
	flags.String("format", "", "Display format of informational commands (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output-mode", fixedCompletion(writer.ModeOneFile.String(), writer.ModeMultipleFiles.String()))
	_ = rootCmd.RegisterFlagCompletionFunc("preprocess", fixedCompletion("none", "batch-sql"))
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", fixedCompletion(config.LogFormats...))
	_ = rootCmd.RegisterFlagCompletionFunc("format", fixedCompletion("auto", "text", "markdown", "json"))
	_ = rootCmd.RegisterFlagCompletionFunc("job", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		jobs, _ := config.Jobs(cfgFile)
		return jobs, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(commands.BuildInfo{Version: Version, Commit: GitCommit, Date: BuildDate}))
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewPreprocessCommand())
	rootCmd.AddCommand(commands.NewInspectCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for fill.

To load completions:

Bash:
  $ source <(fill completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ fill completion bash > /etc/bash_completion.d/fill
  # macOS:
  $ fill completion bash > $(brew --prefix)/etc/bash_completion.d/fill

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ fill completion zsh > "${fpath[1]}/_fill"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ fill completion fish | source

  # To load completions for each session, execute once:
  $ fill completion fish > ~/.config/fish/completions/fill.fish

PowerShell:
  PS> fill completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> fill completion powershell > fill.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
