package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherlockq/fill/internal/cli/config"
	"github.com/sherlockq/fill/internal/cli/testutil"
	logtest "github.com/sherlockq/fill/internal/testutil"
)

// execute runs cmd with cfg in its context and returns stdout and stderr.
func execute(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()

	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	ctx := config.WithConfig(context.Background(), cfg)
	ctx = context.WithValue(ctx, config.LoggerKey(), logtest.NewTestLogger(t))
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// projectConfig returns a render configuration for a SetupTestProject dir.
func projectConfig(dir string) *config.Config {
	return &config.Config{
		Template:   filepath.Join(dir, "insert.sql"),
		Values:     filepath.Join(dir, "rows.csv"),
		Output:     filepath.Join(dir, "out.sql"),
		OutputMode: "one-file",
		Separator:  `\n\n`,
		Filename:   config.DefaultFilename,
		Preprocess: "none",
		LogFormat:  "text",
		Format:     "text",
	}
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		use  string
		flag string
	}{
		{NewRenderCommand(), "render", ""},
		{NewPreprocessCommand(), "preprocess", ""},
		{NewInspectCommand(), "inspect", ""},
		{NewInitCommand(), "init [directory]", "force"},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Example, "Example should not be empty")
			if tt.flag != "" {
				assert.NotNil(t, tt.cmd.Flags().Lookup(tt.flag), "flag %q should exist", tt.flag)
			}
		})
	}
}

func TestRender_OneFileBatchSQL(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)
	cfg.Preprocess = "batch-sql"
	cfg.Batch = 2

	_, stderr, err := execute(t, NewRenderCommand(), cfg)
	require.NoError(t, err)

	content, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO customers (id, name) VALUES('1', 'Alice'),\n('2', 'Bob')\n;\n"+
			"INSERT INTO customers (id, name) VALUES('3', 'O''Neil')\n;\n",
		string(content))
	assert.Contains(t, stderr, "Wrote combined output to: "+cfg.Output)
}

func TestRender_MultipleFiles(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)
	cfg.Output = filepath.Join(dir, "out")
	cfg.OutputMode = "multiple-files"

	_, stderr, err := execute(t, NewRenderCommand(), cfg)
	require.NoError(t, err)

	for i, name := range []string{"Alice", "Bob", "O''Neil"} {
		content, err := os.ReadFile(filepath.Join(cfg.Output, "output_"+string(rune('1'+i))+".txt"))
		require.NoError(t, err)
		assert.Contains(t, string(content), "'"+name+"'")
	}
	assert.Contains(t, stderr, "Wrote 3 files to: "+cfg.Output+string(filepath.Separator))
}

func TestRender_MissingSettings(t *testing.T) {
	_, _, err := execute(t, NewRenderCommand(), &config.Config{Preprocess: "none"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required settings")
}

func TestRender_FailedRenderWritesNothing(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)
	cfg.Strict = true
	require.NoError(t, os.WriteFile(cfg.Template, []byte("{{ missing }}"), 0o600))

	_, _, err := execute(t, NewRenderCommand(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
	assert.NoFileExists(t, cfg.Output)
}

func TestPreprocess_Text(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)

	stdout, stderr, err := execute(t, NewPreprocessCommand(), cfg)
	require.NoError(t, err)

	assert.Contains(t, stdout, "INSERT INTO customers (id, name) VALUES")
	assert.Contains(t, stdout, "{%- for row in batch %}")
	assert.Contains(t, stdout, "'{{ row.id }}'")
	assert.Contains(t, stdout, "'{{ row.name| sqlquote  }}'")
	assert.Empty(t, stderr)
}

func TestPreprocess_Markdown(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)
	cfg.Format = "markdown"

	stdout, _, err := execute(t, NewPreprocessCommand(), cfg)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "# Preprocessed: "+cfg.Template))
	assert.Contains(t, stdout, "```sql\n")
	testutil.AssertValidMarkdown(t, stdout)
	testutil.AssertNoANSI(t, stdout)
}

func TestPreprocess_JSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)
	cfg.Format = "json"

	stdout, _, err := execute(t, NewPreprocessCommand(), cfg)
	require.NoError(t, err)

	var got PreprocessOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, cfg.Template, got.Template)
	assert.Contains(t, got.Source, "__tuples")
	require.Len(t, got.Statements, 1)
	assert.Equal(t, StatementInfo{Table: "customers", Line: 1, References: 2, Transformed: true}, got.Statements[0])
}

func TestPreprocess_NoStatementsWarns(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)
	require.NoError(t, os.WriteFile(cfg.Template, []byte("Hello {{ name }}\n"), 0o600))

	stdout, stderr, err := execute(t, NewPreprocessCommand(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "Hello {{ name }}\n", stdout)
	assert.Contains(t, stderr, "no INSERT ... VALUES statements found")
}

func TestPreprocess_RequiresTemplate(t *testing.T) {
	_, _, err := execute(t, NewPreprocessCommand(), &config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template is required")
}

func TestInspect_JSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)
	cfg.MacrosDir = filepath.Join(dir, "macros")
	cfg.Batch = 2
	cfg.Format = "json"

	stdout, _, err := execute(t, NewInspectCommand(), cfg)
	require.NoError(t, err)

	var got InspectOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))

	require.Len(t, got.Statements, 1)
	assert.Equal(t, "customers", got.Statements[0].Table)

	require.Len(t, got.Macros, 1)
	assert.Equal(t, MacroInfo{Namespace: "text", Signature: "text.shout(s)", Summary: "Upper-case s."}, got.Macros[0])

	require.NotNil(t, got.Values)
	assert.Equal(t, 3, got.Values.Rows)
	assert.Equal(t, 2, got.Values.Renders)
	assert.Equal(t, []string{"id", "name"}, got.Values.Columns)
}

func TestInspect_Markdown(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := projectConfig(dir)
	cfg.Values = ""
	cfg.Format = "markdown"

	tr := testutil.NewTestRendererMarkdown()
	out := InspectOutput{
		Template:   cfg.Template,
		Statements: []StatementInfo{{Table: "customers", Line: 1, References: 2, Transformed: true}},
	}
	require.NoError(t, renderInspect(tr.Renderer, out))

	md := tr.Output()
	assert.Contains(t, md, "# Template: "+cfg.Template)
	assert.Contains(t, md, "## Statements")
	assert.Contains(t, md, "| 1 | customers | 2 | yes |")
	assert.NotContains(t, md, "## Values")
	testutil.AssertValidMarkdown(t, md)
	testutil.AssertOutputMode(t, tr, "markdown")
}

func TestInspect_NoStatements(t *testing.T) {
	tr := testutil.NewTestRendererText()
	require.NoError(t, renderInspect(tr.Renderer, InspectOutput{Template: "t.txt"}))
	assert.Contains(t, tr.Output(), "No INSERT ... VALUES statements found.")
}

func TestValuesInfo(t *testing.T) {
	rows := []map[string]any{{"b": 1}, {"a": 2, "b": 3}, {"c": 4}}

	tests := []struct {
		name    string
		size    int
		batched bool
		renders int
	}{
		{"unbatched", 0, false, 3},
		{"batches of two", 2, true, 2},
		{"single batch", 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := valuesInfo("v.yaml", rows, tt.size, tt.batched)
			assert.Equal(t, 3, info.Rows)
			assert.Equal(t, tt.renders, info.Renders)
			assert.Equal(t, []string{"a", "b", "c"}, info.Columns)
		})
	}
}
