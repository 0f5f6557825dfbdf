package commands

import (
	"fmt"
	"io"

	writer "github.com/sherlockq/fill/internal/output"
	"github.com/sherlockq/fill/internal/preprocess"
	"github.com/spf13/cobra"
)

// BuildInfo identifies a fill binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and supported modes",
		Long: `Print the fill version, the commit and date it was built from, and the
output modes, preprocessors and values formats this build supports.`,
		Example: `  fill version
  fill version --short`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout(), info, short)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print the version number only")

	return cmd
}

func printVersion(w io.Writer, info BuildInfo, short bool) {
	if short {
		_, _ = fmt.Fprintln(w, info.Version)
		return
	}

	_, _ = fmt.Fprintf(w, "fill v%s\n", info.Version)
	_, _ = fmt.Fprintf(w, "  commit:         %s\n", orUnknown(info.Commit))
	_, _ = fmt.Fprintf(w, "  built:          %s\n", orUnknown(info.Date))
	_, _ = fmt.Fprintf(w, "  output modes:   %s\n", joinModes(writer.Modes))
	_, _ = fmt.Fprintf(w, "  preprocessors:  %s\n", joinModes(preprocess.Modes))
	_, _ = fmt.Fprintln(w, "  values formats: .csv, .yaml, .yml")
}

func joinModes[M ~string](modes []M) string {
	s := ""
	for i, m := range modes {
		if i > 0 {
			s += ", "
		}
		s += string(m)
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
