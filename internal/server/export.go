package server

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"sqlgate-mcp/internal/db"
)

// exportCSV writes a ResultTable to path as CSV (header row first) and
// returns the absolute path written. The export goes through the same
// read-only gateway as run_query; shelling out to dump tools would bypass
// session-level enforcement, so that is deliberately not offered.
func exportCSV(path string, table *db.ResultTable) (string, error) {
	abs, err := validateExportPath(path)
	if err != nil {
		return "", err
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, v := range row {
			record[i] = formatCSVValue(v)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	return abs, nil
}

// formatCSVValue renders one cell. NULL becomes the empty string.
func formatCSVValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// validateExportPath validates and normalizes the output file path for
// export. It ensures the parent directory exists.
func validateExportPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	dir := filepath.Dir(abs)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("parent directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("parent path is not a directory: %s", dir)
	}
	return abs, nil
}
