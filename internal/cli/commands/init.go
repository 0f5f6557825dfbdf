package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sherlockq/fill/internal/cli/config"
	"github.com/sherlockq/fill/internal/cli/output"
	"github.com/spf13/cobra"
)

// exampleTemplate is the embedded project created by init.
const exampleTemplate = "example"

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create an example fill project",
		Long: `Create a small working fill project:

  - fill.yaml        configuration, with two jobs
  - template.sql     an INSERT template for the batch-sql preprocessor
  - values.csv       three rows of input
  - macros/keys.star a Starlark macro used by the template

Run 'fill' in the directory afterwards to render out/customers.sql.`,
		Example: `  # Initialize in current directory
  fill init

  # Initialize in a new directory
  fill init my-project

  # Overwrite an existing fill.yaml
  fill init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := config.GetConfig(cmd.Context())
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Format))
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.ConfigFileNames[0])
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", configPath)
	}

	if err := copyTemplate(exampleTemplate, dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, err := listTemplateFiles(exampleTemplate)
	if err != nil {
		return fmt.Errorf("failed to list project files: %w", err)
	}
	groups := groupTemplateFiles(files)

	for i, group := range []struct{ key, title string }{
		{"config", "Configuration"},
		{"templates", "Templates"},
		{"values", "Values"},
		{"macros", "Macros"},
	} {
		if i > 0 {
			r.Println("")
		}
		r.Header(2, group.title)
		for _, f := range groups[group.key] {
			r.StatusLine(f, "success", "")
		}
	}

	r.Println("")
	r.Success("fill project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  fill              Render out/customers.sql in batches of 2")
	r.Println("  fill --job files  Write one file per batch to out/batches/")
	r.Println("  fill inspect      Show the INSERT statements and macros")
	r.Println("  fill preprocess   Print the batch-sql rewrite of template.sql")

	return nil
}
