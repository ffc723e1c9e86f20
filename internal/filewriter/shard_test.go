package filewriter

import (
	"os"
	"testing"

	"github.com/klauspost/compress/gzip"

	"encoding/csv"

	"github.com/meetcleo/cdc-pipeline/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readShard(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()
	records, err := csv.NewReader(gz).ReadAll()
	require.NoError(t, err)
	return records
}

func row(table string, kind parser.ChangeKind, id int64, name string) *parser.ChangedDataLine {
	return &parser.ChangedDataLine{
		Table: parser.InternTable(table),
		Kind:  kind,
		Columns: []parser.Column{
			{Info: parser.ColumnInfo{Name: "id", Category: parser.CategoryInteger}, Value: parser.IntegerValue(id)},
			{Info: parser.ColumnInfo{Name: "name", Category: parser.CategoryText}, Value: parser.TextValue(name)},
		},
	}
}

func TestWriteTableInsertShard(t *testing.T) {
	dir := t.TempDir()
	rows := []*parser.ChangedDataLine{
		row("public.orders", parser.ChangeInsert, 1, "a"),
		row("public.orders", parser.ChangeInsert, 2, "b"),
	}
	paths, err := WriteTable(dir, parser.InternTable("public.orders"), rows)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	records := readShard(t, paths[0])
	assert.Equal(t, []string{"id", "name"}, records[0])
	assert.Equal(t, []string{"1", "a"}, records[1])
	assert.Equal(t, []string{"2", "b"}, records[2])
}

func TestWriteTableSplitsDeletesIntoOwnShard(t *testing.T) {
	dir := t.TempDir()
	rows := []*parser.ChangedDataLine{
		row("public.orders", parser.ChangeInsert, 1, "a"),
		row("public.orders", parser.ChangeDelete, 2, "b"),
	}
	paths, err := WriteTable(dir, parser.InternTable("public.orders"), rows)
	require.NoError(t, err)
	require.Len(t, paths, 2)
}

// TestWriteTableUpdateDropsUnchangedToastColumn is the spec's S3 scenario:
// an UPDATE touching col_a with col_b unchanged-toast must produce a shard
// keyed and headered by id and col_a only; col_b must not appear at all.
func TestWriteTableUpdateDropsUnchangedToastColumn(t *testing.T) {
	dir := t.TempDir()
	cd := &parser.ChangedDataLine{
		Table: parser.InternTable("public.orders"),
		Kind:  parser.ChangeUpdate,
		Columns: []parser.Column{
			{Info: parser.ColumnInfo{Name: "id", Category: parser.CategoryInteger}, Value: parser.IntegerValue(1)},
			{Info: parser.ColumnInfo{Name: "col_a", Category: parser.CategoryText}, Value: parser.TextValue("new")},
			{Info: parser.ColumnInfo{Name: "col_b", Category: parser.CategoryText}, Value: parser.UnchangedToastValue{}},
		},
	}
	paths, err := WriteTable(dir, parser.InternTable("public.orders"), []*parser.ChangedDataLine{cd})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	records := readShard(t, paths[0])
	assert.Equal(t, []string{"id", "col_a"}, records[0])
	assert.Equal(t, []string{"1", "new"}, records[1])
}

// TestWriteTableUpdateSplitsByChangedColumnSet verifies that two UPDATE
// rows touching different column sets land in separate shards, each with
// its own uniform header, rather than being merged into one shard with a
// ragged row shape.
func TestWriteTableUpdateSplitsByChangedColumnSet(t *testing.T) {
	dir := t.TempDir()
	rowA := &parser.ChangedDataLine{
		Table: parser.InternTable("public.orders"),
		Kind:  parser.ChangeUpdate,
		Columns: []parser.Column{
			{Info: parser.ColumnInfo{Name: "id", Category: parser.CategoryInteger}, Value: parser.IntegerValue(1)},
			{Info: parser.ColumnInfo{Name: "col_a", Category: parser.CategoryText}, Value: parser.TextValue("x")},
			{Info: parser.ColumnInfo{Name: "col_b", Category: parser.CategoryText}, Value: parser.UnchangedToastValue{}},
		},
	}
	rowB := &parser.ChangedDataLine{
		Table: parser.InternTable("public.orders"),
		Kind:  parser.ChangeUpdate,
		Columns: []parser.Column{
			{Info: parser.ColumnInfo{Name: "id", Category: parser.CategoryInteger}, Value: parser.IntegerValue(2)},
			{Info: parser.ColumnInfo{Name: "col_a", Category: parser.CategoryText}, Value: parser.UnchangedToastValue{}},
			{Info: parser.ColumnInfo{Name: "col_b", Category: parser.CategoryText}, Value: parser.TextValue("y")},
		},
	}
	paths, err := WriteTable(dir, parser.InternTable("public.orders"), []*parser.ChangedDataLine{rowA, rowB})
	require.NoError(t, err)
	require.Len(t, paths, 2, "each distinct changed-column set gets its own shard")

	first := readShard(t, paths[0])
	second := readShard(t, paths[1])
	assert.Equal(t, []string{"id", "col_a"}, first[0])
	assert.Equal(t, []string{"id", "col_b"}, second[0])
}

func TestWriteTableNullRendersAsEmptyField(t *testing.T) {
	dir := t.TempDir()
	cd := &parser.ChangedDataLine{
		Table: parser.InternTable("public.orders"),
		Kind:  parser.ChangeInsert,
		Columns: []parser.Column{
			{Info: parser.ColumnInfo{Name: "id", Category: parser.CategoryInteger}, Value: parser.IntegerValue(1)},
			{Info: parser.ColumnInfo{Name: "note", Category: parser.CategoryText}, Value: parser.NullValue{}},
		},
	}
	paths, err := WriteTable(dir, parser.InternTable("public.orders"), []*parser.ChangedDataLine{cd})
	require.NoError(t, err)
	records := readShard(t, paths[0])
	assert.Equal(t, []string{"1", ""}, records[1])
}

func TestWriteTableNoRowsProducesNoShards(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteTable(dir, parser.InternTable("public.orders"), nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSequenceNumbersIncrementAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	rows := []*parser.ChangedDataLine{row("public.orders", parser.ChangeInsert, 1, "a")}

	first, err := WriteTable(dir, parser.InternTable("public.orders"), rows)
	require.NoError(t, err)
	second, err := WriteTable(dir, parser.InternTable("public.orders"), rows)
	require.NoError(t, err)

	assert.NotEqual(t, first[0], second[0])
}

func TestKindOfShardPath(t *testing.T) {
	assert.Equal(t, "insert", KindOfShardPath("/tmp/0_public.orders_insert.csv.gz"))
	assert.Equal(t, "update", KindOfShardPath("/tmp/3_public.orders_update.csv.gz"))
	assert.Equal(t, "delete", KindOfShardPath("/tmp/1_public.orders_delete.csv.gz"))
}
