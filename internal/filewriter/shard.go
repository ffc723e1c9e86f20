// Package filewriter renders aggregated rows to gzip-compressed CSV
// shard files, one sequence per table per change kind, ready for the
// uploader to ship to S3. Grounded on original_source/src/file_writer.rs.
package filewriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/meetcleo/cdc-pipeline/internal/parser"
)

// Kind distinguishes the three staging shapes a table's changes are
// written as. Insert and Delete each get exactly one shard per table per
// epoch; Update gets one shard per distinct set of actually-changed
// columns, since every row in a shard must share one CSV header.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// ShardFile is one gzip+CSV file accumulating rows for a single
// (table, kind, column-set) group until Finalize flushes and closes it.
type ShardFile struct {
	dir   string
	table parser.TableName
	kind  Kind
	seq   int

	f      *os.File
	gz     *gzip.Writer
	csvw   *csv.Writer
	header []string
	rows   int
	path   string
}

var shardFileRe = regexp.MustCompile(`^(\d+)_(.+)_(insert|update|delete)\.csv\.gz$`)

// KindOfShardPath recovers the Kind encoded in a shard file's name, for
// callers (like the pipeline's upload enqueue step) that only have the
// finalized path to work from.
func KindOfShardPath(path string) string {
	m := shardFileRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return string(KindInsert)
	}
	return m[3]
}

// nextSequence globs dir for existing shard files belonging to
// (table, kind) and returns one past the highest sequence number found
// (1 when there is none), so restarts never overwrite a file still
// waiting to be uploaded.
func nextSequence(dir string, table parser.TableName, kind Kind) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("filewriter: list %s: %w", dir, err)
	}
	max := 0
	for _, ent := range entries {
		m := shardFileRe.FindStringSubmatch(ent.Name())
		if m == nil || m[2] != string(table) || m[3] != string(kind) {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// NewShardFile opens a fresh shard file for table/kind in dir, choosing
// the next unused sequence number.
func NewShardFile(dir string, table parser.TableName, kind Kind) (*ShardFile, error) {
	seq, err := nextSequence(dir, table, kind)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%d_%s_%s.csv.gz", seq, table, kind)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("filewriter: create %s: %w", path, err)
	}
	gz := gzip.NewWriter(f)
	return &ShardFile{dir: dir, table: table, kind: kind, seq: seq, f: f, gz: gz, csvw: csv.NewWriter(gz), path: path}, nil
}

// WriteRow appends one row. cols must be exactly the shard's declared
// column set: the header is pinned from the first call's cols, and every
// subsequent call is expected to carry the same names in the same order.
// Unchanged columns must already be filtered out by the caller.
func (s *ShardFile) WriteRow(cols []parser.Column) error {
	if s.header == nil {
		s.header = make([]string, len(cols))
		for i, c := range cols {
			s.header[i] = c.Info.Name
		}
		if err := s.csvw.Write(s.header); err != nil {
			return err
		}
	}
	record := make([]string, len(cols))
	for i, c := range cols {
		record[i] = renderValue(c.Value)
	}
	if err := s.csvw.Write(record); err != nil {
		return fmt.Errorf("filewriter: write row for %s: %w", s.table, err)
	}
	s.rows++
	return nil
}

// Finalize flushes the CSV and gzip writers, closes the file, and
// returns its path and row count. An empty shard (zero rows written) is
// removed instead of being handed to the uploader.
func (s *ShardFile) Finalize() (path string, rows int, err error) {
	s.csvw.Flush()
	if err := s.csvw.Error(); err != nil {
		return "", 0, fmt.Errorf("filewriter: flush csv for %s: %w", s.table, err)
	}
	if err := s.gz.Close(); err != nil {
		return "", 0, fmt.Errorf("filewriter: close gzip for %s: %w", s.table, err)
	}
	if err := s.f.Close(); err != nil {
		return "", 0, fmt.Errorf("filewriter: close file %s: %w", s.path, err)
	}
	if s.rows == 0 {
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return "", 0, fmt.Errorf("filewriter: remove empty shard %s: %w", s.path, rmErr)
		}
		return "", 0, nil
	}
	return s.path, s.rows, nil
}

// changedColumns drops UnchangedToastValue columns from a row: those are
// columns test_decoding didn't transmit because their TOASTed value
// didn't change, and they must never appear in a shard's header or rows.
func changedColumns(cd *parser.ChangedDataLine) []parser.Column {
	out := make([]parser.Column, 0, len(cd.Columns))
	for _, c := range cd.Columns {
		if _, unchanged := c.Value.(parser.UnchangedToastValue); unchanged {
			continue
		}
		out = append(out, c)
	}
	return out
}

// idColumns returns just the primary-key column, the only thing a Delete
// shard needs.
func idColumns(cd *parser.ChangedDataLine) ([]parser.Column, error) {
	for _, c := range cd.Columns {
		if c.Info.IsID() {
			return []parser.Column{c}, nil
		}
	}
	return nil, fmt.Errorf("filewriter: table %s: change has no id column", cd.Table)
}

// columnSetKey renders the sorted, comma-joined set of column names in
// cols, the key Update rows are grouped by so that every row landing in
// one shard shares an identical header.
func columnSetKey(cols []parser.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Info.Name
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// renderValue formats one column's value the way the COPY options in
// internal/warehouse expect: NULL renders as the empty field, which
// EMPTYASNULL/BLANKSASNULL interprets as SQL NULL.
func renderValue(v parser.ColumnValue) string {
	switch val := v.(type) {
	case parser.NullValue:
		return ""
	case parser.UnchangedToastValue:
		panic("filewriter: unchanged-toast column reached renderValue; callers must filter it out first")
	case parser.BooleanValue:
		if val {
			return "t"
		}
		return "f"
	case parser.IntegerValue:
		return strconv.FormatInt(int64(val), 10)
	case parser.NumericValue:
		return string(val)
	case parser.RoundingNumericValue:
		return string(val)
	case parser.TextValue:
		return string(val)
	case parser.IncompleteTextValue:
		panic("filewriter: incomplete text value reached the file writer; the parser must resolve continuations before aggregation")
	default:
		panic(fmt.Sprintf("filewriter: unhandled column value type %T", v))
	}
}

// writeShard drains rows into a single shard file by rendering each
// row's columns through colsOf, then finalizes it. It returns ("", 0, nil)
// if every row ended up producing zero written rows (colsOf never
// returns an empty set in practice, so this only happens for an empty
// input slice).
func writeShard(dir string, table parser.TableName, kind Kind, rows []*parser.ChangedDataLine, colsOf func(*parser.ChangedDataLine) ([]parser.Column, error)) (string, int, error) {
	sf, err := NewShardFile(dir, table, kind)
	if err != nil {
		return "", 0, err
	}
	for _, r := range rows {
		cols, err := colsOf(r)
		if err != nil {
			return "", 0, err
		}
		if err := sf.WriteRow(cols); err != nil {
			return "", 0, err
		}
	}
	return sf.Finalize()
}

// WriteTable writes every row for one table out to shard files: one
// Insert shard, one Delete shard, and one Update shard per distinct set
// of actually-changed columns, and returns the finalized (non-empty)
// shard paths.
func WriteTable(dir string, table parser.TableName, rows []*parser.ChangedDataLine) ([]string, error) {
	var inserts, deletes []*parser.ChangedDataLine
	updateGroups := make(map[string][]*parser.ChangedDataLine)
	var updateKeys []string

	for _, r := range rows {
		switch r.Kind {
		case parser.ChangeInsert:
			inserts = append(inserts, r)
		case parser.ChangeDelete:
			deletes = append(deletes, r)
		case parser.ChangeUpdate:
			key := columnSetKey(changedColumns(r))
			if _, seen := updateGroups[key]; !seen {
				updateKeys = append(updateKeys, key)
			}
			updateGroups[key] = append(updateGroups[key], r)
		}
	}
	sort.Strings(updateKeys)

	var paths []string

	if len(inserts) > 0 {
		path, n, err := writeShard(dir, table, KindInsert, inserts, func(cd *parser.ChangedDataLine) ([]parser.Column, error) {
			return changedColumns(cd), nil
		})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			paths = append(paths, path)
		}
	}

	for _, key := range updateKeys {
		path, n, err := writeShard(dir, table, KindUpdate, updateGroups[key], func(cd *parser.ChangedDataLine) ([]parser.Column, error) {
			return changedColumns(cd), nil
		})
		if err != nil {
			return nil, err
		}
		if n > 0 {
			paths = append(paths, path)
		}
	}

	if len(deletes) > 0 {
		path, n, err := writeShard(dir, table, KindDelete, deletes, idColumns)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			paths = append(paths, path)
		}
	}

	return paths, nil
}
