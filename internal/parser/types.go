package parser

import "fmt"

// ColumnTypeCategory buckets a Postgres type name into the handful of
// wire representations test_decoding actually needs to distinguish.
type ColumnTypeCategory int

const (
	CategoryBoolean ColumnTypeCategory = iota
	CategoryInteger
	CategoryNumeric
	CategoryRoundingNumeric
	CategoryText
	CategoryTimestamp
)

// categoryForType maps a raw Postgres type name (as it appears between
// the brackets of a test_decoding column token) to its category. Array
// types are rewritten to "array" by the caller before this is consulted.
// Unknown types are a fatal configuration error: the wire format only
// ever emits types this warehouse was told about.
func categoryForType(t string) (ColumnTypeCategory, bool) {
	switch t {
	case "boolean":
		return CategoryBoolean, true
	case "smallint", "integer", "bigint":
		return CategoryInteger, true
	case "numeric", "decimal":
		return CategoryRoundingNumeric, true
	case "double precision":
		return CategoryNumeric, true
	case "character varying", "text", "public.citext", "uuid", "jsonb", "json",
		"public.hstore", "interval", "array":
		return CategoryText, true
	case "timestamp without time zone", "date":
		return CategoryTimestamp, true
	default:
		return 0, false
	}
}

// ColumnInfo is the (name, type) pair test_decoding prints for every
// column token, independent of whether the value changed.
type ColumnInfo struct {
	Name     string
	Type     string
	Category ColumnTypeCategory
}

// IsID reports whether this column is the row's primary key, the only
// column the aggregator keys changes on.
func (c ColumnInfo) IsID() bool {
	return c.Name == "id"
}

func newColumnInfo(name, rawType string) (ColumnInfo, error) {
	t := rawType
	if len(t) >= 2 && t[len(t)-2:] == "[]" {
		t = "array"
	}
	cat, ok := categoryForType(t)
	if !ok {
		return ColumnInfo{}, fmt.Errorf("parser: unrecognized column type %q", rawType)
	}
	return ColumnInfo{Name: name, Type: rawType, Category: cat}, nil
}

// ColumnValue is the closed set of shapes a column's wire value can take.
// It is a tagged union: exhaustive consumers must type-switch over the
// concrete types below and panic in the default arm on an impossible case.
type ColumnValue interface {
	isColumnValue()
}

type BooleanValue bool

func (BooleanValue) isColumnValue() {}

type IntegerValue int64

func (IntegerValue) isColumnValue() {}

// NumericValue holds a Postgres `double precision` value rendered verbatim as text;
// unlike RoundingNumericValue it is never clamped or rounded, since the
// warehouse column is assumed wide enough to hold it unchanged.
type NumericValue string

func (NumericValue) isColumnValue() {}

// RoundingNumericValue holds a `numeric`/`decimal` value that has already
// been clamped/rounded to a fixed (precision, scale), e.g. Redshift
// NUMERIC(19,8). See RenderRoundingNumeric.
type RoundingNumericValue string

func (RoundingNumericValue) isColumnValue() {}

type TextValue string

func (TextValue) isColumnValue() {}

// IncompleteTextValue is a text value truncated at end-of-line because
// it contains an embedded newline; continuation lines are appended to it
// until the closing quote is found unescaped.
type IncompleteTextValue string

func (IncompleteTextValue) isColumnValue() {}

// UnchangedToastValue marks a column test_decoding omitted because its
// TOASTed value didn't change in this UPDATE.
type UnchangedToastValue struct{}

func (UnchangedToastValue) isColumnValue() {}

// NullValue marks an explicit SQL NULL.
type NullValue struct{}

func (NullValue) isColumnValue() {}

// Column pairs a ColumnInfo with its ColumnValue for one changed-data line.
type Column struct {
	Info  ColumnInfo
	Value ColumnValue
}

// IsIncomplete reports whether this column's text value was truncated at
// an embedded newline and needs further continuation lines appended.
func (c Column) IsIncomplete() bool {
	_, ok := c.Value.(IncompleteTextValue)
	return ok
}

// ChangeKind is the DML operation a changed-data line represents.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "INSERT"
	case ChangeUpdate:
		return "UPDATE"
	case ChangeDelete:
		return "DELETE"
	default:
		panic(fmt.Sprintf("parser: impossible ChangeKind %d", int(k)))
	}
}

// ParsedLine is the closed set of things one line of test_decoding
// output can parse into.
type ParsedLine interface {
	isParsedLine()
}

type BeginLine struct{ XID uint64 }

func (BeginLine) isParsedLine() {}

type CommitLine struct{ XID uint64 }

func (CommitLine) isParsedLine() {}

// ChangedDataLine is an INSERT/UPDATE/DELETE row change. Columns is
// ordered as test_decoding printed them.
type ChangedDataLine struct {
	Table   TableName
	Kind    ChangeKind
	Columns []Column
}

func (*ChangedDataLine) isParsedLine() {}

// TruncateLine is a TRUNCATE statement; the pipeline drops these rather
// than reflecting them into the warehouse (see Non-goals).
type TruncateLine struct{ Table TableName }

func (TruncateLine) isParsedLine() {}

// ContinueParseLine signals that the previous ChangedDataLine emitted on
// this same call had an incomplete column and the next raw line must be
// fed back in to complete it, rather than parsed as a fresh line.
type ContinueParseLine struct{}

func (ContinueParseLine) isParsedLine() {}

// InfoMessageLine is a pg_recvlogical/non-test_decoding diagnostic line
// (e.g. "pg_recvlogical: starting log streaming at ..."); it carries no
// row data and is logged, not aggregated.
type InfoMessageLine struct{ Text string }

func (InfoMessageLine) isParsedLine() {}
