package sink

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/gridwatch/collector-cli/internal/model"
)

// CSVSink stores each collection as one CSV file under a data directory.
// Writes are full rewrites through a temp file and rename, so a failed write
// never leaves a half-written collection behind.
type CSVSink struct {
	dir string
}

// NewCSV creates a CSV sink rooted at dir.
func NewCSV(dir string) *CSVSink {
	return &CSVSink{dir: dir}
}

func (s *CSVSink) path(collection string) string {
	return filepath.Join(s.dir, collection+".csv")
}

// ReadAll loads a collection. A missing file reads as an empty collection.
func (s *CSVSink) ReadAll(ctx context.Context, collection string) ([]model.Row, error) {
	f, err := os.Open(s.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "csv sink: open %s", collection)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "csv sink: read header of %s", collection)
	}

	var rows []model.Row
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv sink: read cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv sink: read row of %s", collection)
		}
		row := make(model.Row, len(header))
		for i, key := range header {
			if i < len(record) {
				row[key] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteAll rewrites the collection file with the given rows. The header is
// the union of all row keys, ordered by first appearance, so optional fields
// survive across heterogeneous rows.
func (s *CSVSink) WriteAll(ctx context.Context, collection string, rows []model.Row) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrap(err, "csv sink: create data dir")
	}

	tmp, err := os.CreateTemp(s.dir, collection+"-*.csv.tmp")
	if err != nil {
		return eris.Wrap(err, "csv sink: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	header := model.UnionKeys(rows)
	w := csv.NewWriter(tmp)
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			tmp.Close()
			return eris.Wrap(err, "csv sink: write header")
		}
	}
	record := make([]string, len(header))
	for _, row := range rows {
		if ctx.Err() != nil {
			tmp.Close()
			return eris.Wrap(ctx.Err(), "csv sink: write cancelled")
		}
		for i, key := range header {
			record[i] = row[key]
		}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return eris.Wrap(err, "csv sink: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "csv sink: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "csv sink: close temp file")
	}

	if err := os.Rename(tmpName, s.path(collection)); err != nil {
		return eris.Wrapf(err, "csv sink: replace %s", collection)
	}
	return nil
}

// Close is a no-op for the file-based sink.
func (s *CSVSink) Close() error { return nil }
