package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/jonguttman/MasterStat/internal/model"
)

// Log is the durable append-only CSV record of the sample history. It is the
// source of truth for gap detection: rows survive restarts and are appended
// without rewriting prior content, except for the one-time full rewrite after
// a backfill merge.
type Log struct {
	path string
}

// OpenLog opens the CSV log at path, creating it with a header row when it
// does not exist yet.
func OpenLog(path string) (*Log, error) {
	l := &Log{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create csv log %q: %w", path, err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(model.CSVHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
		if err := f.Close(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat csv log %q: %w", path, err)
	}
	return l, nil
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append writes one sample as a new row at the end of the log.
func (l *Log) Append(s model.Sample) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv log for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(s.CSVRecord()); err != nil {
		return fmt.Errorf("append csv row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Rewrite replaces the full log content with the given samples, preserving
// the row format. Used only after a backfill merge restores timestamp order.
func (l *Log) Rewrite(samples []model.Sample) error {
	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create csv rewrite temp: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(model.CSVHeader); err != nil {
		f.Close()
		return err
	}
	for _, s := range samples {
		if err := w.Write(s.CSVRecord()); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Scan streams valid rows to fn in file order. Header rows and malformed
// rows are skipped, never fatal; a missing file yields zero rows.
func (l *Log) Scan(fn func(model.Sample)) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open csv log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Garbled row; keep scanning from the next line.
			continue
		}
		if len(record) > 0 && record[0] == "timestamp" {
			continue
		}
		s, err := model.ParseCSVRecord(record)
		if err != nil {
			continue
		}
		fn(s)
	}
}
