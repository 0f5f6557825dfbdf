// Package values loads the input rows a template is rendered against.
// Rows come from CSV files (header row as keys, values as strings) or YAML
// documents.
package values

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Row is one input record.
type Row = map[string]any

// ListKeys are the mapping keys, in priority order, whose list value is used
// as the rows of a YAML document.
var ListKeys = []string{"rows", "items", "data", "values"}

// ValueKey wraps scalar list items so every row is a mapping.
const ValueKey = "value"

// utf8BOM is stripped from the first CSV header cell.
const utf8BOM = "\uFEFF"

// UnsupportedFormatError is returned for a values file whose extension is
// not .csv, .yaml or .yml.
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported values file type: %s (use .csv, .yaml or .yml)", e.Path)
}

// Format identifies a values file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// DetectFormat returns the format of path from its extension, ignoring case.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", &UnsupportedFormatError{Path: path}
	}
}

// Load reads the rows of a CSV or YAML file. The format is chosen before the
// file is opened, so an unsupported extension never touches the filesystem.
func Load(path string) ([]Row, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open values file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var rows []Row
	switch format {
	case FormatCSV:
		rows, err = LoadCSV(f)
	default:
		rows, err = LoadYAML(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return rows, nil
}

// LoadCSV reads rows keyed by the header row. Every value is a string. Short
// records leave missing fields nil and extra fields are dropped.
func LoadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	rows := []Row{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		row := make(Row, len(header))
		for i, key := range header {
			if i < len(record) {
				row[key] = record[i]
			} else {
				row[key] = nil
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// LoadYAML reads rows from a YAML document. A list is used as is. A mapping
// holding a list under one of ListKeys yields that list; any other mapping is
// a single row. Scalar list items become {"value": item}. An empty document
// has no rows.
func LoadYAML(r io.Reader) ([]Row, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []Row{}, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	switch v := doc.(type) {
	case nil:
		return []Row{}, nil
	case []any:
		return toRows(v), nil
	case map[any]any:
		return []Row{stringKeys(v)}, nil
	case map[string]any:
		for _, key := range ListKeys {
			if list, ok := v[key].([]any); ok {
				return toRows(list), nil
			}
		}
		return []Row{v}, nil
	default:
		return nil, fmt.Errorf("YAML document must be a mapping or a list, got %T", doc)
	}
}

func toRows(items []any) []Row {
	rows := make([]Row, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case map[string]any:
			rows[i] = v
		case map[any]any:
			rows[i] = stringKeys(v)
		default:
			rows[i] = Row{ValueKey: item}
		}
	}
	return rows
}

// stringKeys converts a mapping with non-string keys, such as {1: a}.
func stringKeys(m map[any]any) Row {
	row := make(Row, len(m))
	for k, v := range m {
		row[fmt.Sprint(k)] = v
	}
	return row
}
