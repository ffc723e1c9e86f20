// Package aggregator collapses the stream of per-row ChangedDataLine
// values within one WAL epoch down to the single latest state per
// primary key, so the file writer only ever has to emit one row per key
// per epoch regardless of how many times it changed. Grounded on
// original_source/src/change_processing.rs, with the full call surface
// (RegisterWalEpoch/AddChange/DrainFinalChanges/PrintStats) reconstructed
// from its callers in input_manager.rs and main.rs.
package aggregator

import (
	"fmt"

	"github.com/meetcleo/cdc-pipeline/internal/parser"
)

// rowKey is the primary key of a changed row. A table's key type
// (integer or text) is fixed by whichever kind of "id" column value
// arrives first; any row of the other kind afterwards is a fatal
// configuration error, not a value this pipeline can reconcile.
type rowKey struct {
	i     int64
	s     string
	isInt bool
}

// Table holds the collapsed per-key latest state for one source table
// within the epoch currently being aggregated.
type Table struct {
	Name parser.TableName

	keyKnown bool
	keyIsInt bool

	intRows   map[int64]*parser.ChangedDataLine
	textRows  map[string]*parser.ChangedDataLine
	intOrder  []int64
	textOrder []string
}

func newTable(name parser.TableName) *Table {
	return &Table{
		Name:     name,
		intRows:  make(map[int64]*parser.ChangedDataLine),
		textRows: make(map[string]*parser.ChangedDataLine),
	}
}

func primaryKeyOf(cd *parser.ChangedDataLine) (rowKey, error) {
	for _, c := range cd.Columns {
		if !c.Info.IsID() {
			continue
		}
		switch v := c.Value.(type) {
		case parser.IntegerValue:
			return rowKey{i: int64(v), isInt: true}, nil
		case parser.TextValue:
			return rowKey{s: string(v)}, nil
		default:
			return rowKey{}, fmt.Errorf("aggregator: table %s: id column has non-key value type %T", cd.Table, v)
		}
	}
	return rowKey{}, fmt.Errorf("aggregator: table %s: change has no id column", cd.Table)
}

// add folds one changed-data line into the table's latest-state-per-key
// view. A later change for the same key simply replaces the earlier one:
// an INSERT followed by an UPDATE collapses to the UPDATE's row image, a
// DELETE after either collapses to the DELETE.
func (t *Table) add(cd *parser.ChangedDataLine) error {
	key, err := primaryKeyOf(cd)
	if err != nil {
		return err
	}

	if !t.keyKnown {
		t.keyKnown = true
		t.keyIsInt = key.isInt
	} else if t.keyIsInt != key.isInt {
		return fmt.Errorf("aggregator: table %s: primary key type changed from int=%v to int=%v mid-stream, refusing to aggregate", cd.Table, t.keyIsInt, key.isInt)
	}

	if key.isInt {
		if _, exists := t.intRows[key.i]; !exists {
			t.intOrder = append(t.intOrder, key.i)
		}
		t.intRows[key.i] = cd
	} else {
		if _, exists := t.textRows[key.s]; !exists {
			t.textOrder = append(t.textOrder, key.s)
		}
		t.textRows[key.s] = cd
	}
	return nil
}

// drain returns the collapsed rows in first-seen order and resets the
// table's state for the next epoch.
func (t *Table) drain() []*parser.ChangedDataLine {
	out := make([]*parser.ChangedDataLine, 0, len(t.intOrder)+len(t.textOrder))
	for _, k := range t.intOrder {
		out = append(out, t.intRows[k])
	}
	for _, k := range t.textOrder {
		out = append(out, t.textRows[k])
	}
	t.intRows = make(map[int64]*parser.ChangedDataLine)
	t.textRows = make(map[string]*parser.ChangedDataLine)
	t.intOrder = nil
	t.textOrder = nil
	return out
}

func (t *Table) rowCount() int {
	return len(t.intRows) + len(t.textRows)
}
