// Package csvsink appends measurements to a CSV audit file alongside the
// primary database sink.
package csvsink

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/lzajac/airdata/internal/model"
)

// Writer appends rows to a single audit file, creating it (with a header row)
// on first use.
type Writer struct {
	path string
}

// New builds a writer for the given file path.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Append writes one measurement row. The parent directory is created on
// demand; the header is written only when the file does not exist yet.
func (w *Writer) Append(m model.Measurement) error {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	_, statErr := os.Stat(w.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(model.CSVHeaders); err != nil {
			return err
		}
	}
	if err := cw.Write(m.CSVRow()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
