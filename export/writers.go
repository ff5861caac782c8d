package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Writer is the destination for exported rows.
type Writer interface {
	Write(rows []Row) error
	Close() error
	Validate() error
}

// NewWriter returns a writer for format: csv, json or dual. Dual writes
// filename as CSV and a sibling .jsonl file.
func NewWriter(format, filename string) (Writer, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl"
		return NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// CSVWriter writes rows to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{file: f, writer: writer}, nil
}

// Write appends rows to the CSV output.
func (cw *CSVWriter) Write(rows []Row) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, row := range rows {
		if err := cw.writer.Write(row.record()); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate checks the file has at least one row below the header.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	f, err := os.Open(cw.file.Name())
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(csvHeader)
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("csv file is empty: %w", err)
	}
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("csv file has no rows: %w", err)
	}
	return nil
}

// JSONWriter writes newline-delimited JSON rows.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates filename for JSON lines output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends rows in JSONL format.
func (jw *JSONWriter) Write(rows []Row) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, row := range rows {
		if err := jw.encoder.Encode(row); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate checks the file has data.
func (jw *JSONWriter) Validate() error {
	info, err := os.Stat(jw.file.Name())
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
