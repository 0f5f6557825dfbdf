package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sherlockq/fill/internal/batch"
	"github.com/sherlockq/fill/internal/cli/output"
	"github.com/sherlockq/fill/internal/macro"
	"github.com/sherlockq/fill/internal/preprocess"
	"github.com/sherlockq/fill/internal/values"
	"github.com/spf13/cobra"
)

// StatementInfo describes one INSERT ... VALUES statement of a template.
type StatementInfo struct {
	Table       string `json:"table"`
	Line        int    `json:"line,omitempty"`
	References  int    `json:"references"`
	Transformed bool   `json:"transformed"`
}

// MacroInfo describes one macro function.
type MacroInfo struct {
	Namespace string `json:"namespace"`
	Signature string `json:"signature"`
	Summary   string `json:"summary,omitempty"`
}

// ValuesInfo summarizes the values file.
type ValuesInfo struct {
	Path    string   `json:"path"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
	Renders int      `json:"renders"`
}

// InspectOutput is the JSON form of the inspect command.
type InspectOutput struct {
	Template   string          `json:"template"`
	Statements []StatementInfo `json:"statements"`
	Macros     []MacroInfo     `json:"macros,omitempty"`
	Values     *ValuesInfo     `json:"values,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show what a run would do without rendering",
		Long: `Inspect the configured template and its inputs without rendering anything:

  - every INSERT ... VALUES statement the batch-sql preprocessor finds, with
    the number of row variables it rewrites
  - the macro functions available from --macros-dir
  - the size and columns of the values file, and how many renders a run
    would perform with the current batch settings`,
		Example: `  # Inspect a template
  fill inspect --template insert.sql

  # Include values and batching
  fill inspect --template insert.sql --values rows.csv --batch 100

  # As JSON
  fill inspect --template insert.sql --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd)
		},
	}

	return cmd
}

func runInspect(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	cfg := cmdCtx.Cfg
	if err := cfg.RequireTemplate(); err != nil {
		return err
	}

	raw, err := os.ReadFile(cfg.Template)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	out := InspectOutput{
		Template:   cfg.Template,
		Statements: statementInfos(preprocess.FindStatements(string(raw)), string(raw)),
	}

	if cfg.MacrosDir != "" {
		namespaces, err := macro.NewLoader(cfg.MacrosDir, macro.WithLogger(cmdCtx.Logger)).Describe()
		if err != nil {
			return fmt.Errorf("failed to describe macros: %w", err)
		}
		out.Macros = macroInfos(namespaces)
	}

	if cfg.Values != "" {
		rows, err := values.Load(cfg.Values)
		if err != nil {
			return err
		}
		out.Values = valuesInfo(cfg.Values, rows, cfg.Batch, cfg.FillConfig().Batched())
	}

	return renderInspect(cmdCtx.Renderer, out)
}

// statementInfos converts located statements. When src is given, lines are
// computed from statement offsets.
func statementInfos(statements []preprocess.Statement, src ...string) []StatementInfo {
	infos := make([]StatementInfo, len(statements))
	for i, s := range statements {
		infos[i] = StatementInfo{
			Table:       s.Table(),
			References:  s.References,
			Transformed: s.Transformed,
		}
		if len(src) > 0 && s.Start <= len(src[0]) {
			infos[i].Line = strings.Count(src[0][:s.Start], "\n") + 1
		}
	}
	return infos
}

func macroInfos(namespaces []*macro.Namespace) []MacroInfo {
	var infos []MacroInfo
	for _, ns := range namespaces {
		for _, fn := range ns.Functions {
			infos = append(infos, MacroInfo{
				Namespace: ns.Name,
				Signature: ns.Name + "." + fn.Signature(),
				Summary:   fn.Summary(),
			})
		}
	}
	return infos
}

func valuesInfo(path string, rows []values.Row, size int, batched bool) *ValuesInfo {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	renders := len(rows)
	if batched {
		renders = len(batch.Chunk(rows, size))
	}
	return &ValuesInfo{Path: path, Rows: len(rows), Columns: columns, Renders: renders}
}

func renderInspect(r *output.Renderer, out InspectOutput) error {
	mode := r.EffectiveMode()
	if mode == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Template: "+out.Template)
	r.Println("")

	r.Header(2, "Statements")
	if len(out.Statements) == 0 {
		r.Println("No INSERT ... VALUES statements found.")
	} else {
		rows := make([]table.Row, len(out.Statements))
		for i, s := range out.Statements {
			rows[i] = table.Row{s.Line, s.Table, s.References, yesNo(s.Transformed)}
		}
		renderTable(r, table.Row{"Line", "Table", "Row variables", "Transformed"}, rows)
	}

	if len(out.Macros) > 0 {
		r.Println("")
		r.Header(2, "Macros")
		rows := make([]table.Row, len(out.Macros))
		for i, m := range out.Macros {
			rows[i] = table.Row{m.Signature, m.Summary}
		}
		renderTable(r, table.Row{"Function", "Description"}, rows)
	}

	if out.Values != nil {
		r.Println("")
		r.Header(2, "Values")
		renderTable(r, table.Row{"Path", "Rows", "Renders", "Columns"}, []table.Row{{
			out.Values.Path,
			out.Values.Rows,
			out.Values.Renders,
			strings.Join(out.Values.Columns, ", "),
		}})
	}
	return nil
}

// renderTable writes a table, as Markdown when output is piped.
func renderTable(r *output.Renderer, header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(t.RenderMarkdown())
		return
	}
	r.Println(t.Render())
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
