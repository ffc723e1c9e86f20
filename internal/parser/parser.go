// Package parser turns raw test_decoding / pg_recvlogical output lines
// into ParsedLine values. Grounded on original_source/src/parser.rs.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// columnHeaderRe matches one column header token: an optionally
// double-quoted name, a bracketed type (which may itself end in "[]"
// for array columns), and the trailing colon that introduces the value.
var columnHeaderRe = regexp.MustCompile(`(?:"([^"]+)"|([A-Za-z_][A-Za-z0-9_$]*))\[([A-Za-z0-9_. ]+(?:\[\])?)\]:`)

// Parser holds the small amount of state needed across lines: the table
// blacklist, the configured destination schema name, the last observed
// WAL segment number, and (when a text value spans multiple raw lines)
// the ChangedDataLine still waiting for its final column.
type Parser struct {
	blacklist     map[string]bool
	targetSchema  string
	walFileNumber uint64

	pending            *ChangedDataLine
	pendingIdx         int
	pendingBlacklisted bool
}

// NewParser builds a Parser. blacklist entries are "schema.table" names
// that are dropped at parse time rather than flowing into the
// aggregator. targetSchema (TARGET_SCHEMA_NAME) is stored on the Parser
// but not applied to parsed table names, which keep their source schema;
// the warehouse applier applies the override when it names the
// destination table.
func NewParser(blacklist []string, targetSchema string) *Parser {
	bl := make(map[string]bool, len(blacklist))
	for _, b := range blacklist {
		bl[b] = true
	}
	return &Parser{blacklist: bl, targetSchema: targetSchema}
}

// RegisterWalNumber records the WAL segment number backing the stream
// currently being parsed; WalNumber returns it.
func (p *Parser) RegisterWalNumber(n uint64) {
	p.walFileNumber = n
}

func (p *Parser) WalNumber() uint64 {
	return p.walFileNumber
}

// Parse consumes exactly one raw line and returns the ParsedLine it
// represents. A ContinueParseLine result means the line was consumed
// into an in-progress multi-line text value; the caller should keep
// feeding Parse subsequent raw lines until something other than
// ContinueParseLine comes back.
//
// Recognized prefixes are checked before the continuation state, matching
// original_source/src/parser.rs: BEGIN/COMMIT/table/pg_recvlogical are
// matched first, and only a line matching none of them falls through to
// the in-progress continuation (if any) or is a fatal parse error.
func (p *Parser) Parse(line string) (ParsedLine, error) {
	switch {
	case strings.HasPrefix(line, "BEGIN "):
		// bitSize 63: an xid must fit in a signed 64-bit integer.
		xid, err := strconv.ParseUint(strings.TrimSpace(line[len("BEGIN "):]), 10, 63)
		if err != nil {
			return nil, fmt.Errorf("parser: malformed BEGIN line %q: %w", line, err)
		}
		return BeginLine{XID: xid}, nil

	case strings.HasPrefix(line, "COMMIT "):
		xid, err := strconv.ParseUint(strings.TrimSpace(line[len("COMMIT "):]), 10, 63)
		if err != nil {
			return nil, fmt.Errorf("parser: malformed COMMIT line %q: %w", line, err)
		}
		return CommitLine{XID: xid}, nil

	case strings.HasPrefix(line, "table "):
		return p.parseTableLine(line[len("table "):])

	case strings.HasPrefix(line, "pg_recvlogical: "):
		return InfoMessageLine{Text: line[len("pg_recvlogical: "):]}, nil

	case p.pending != nil:
		return p.continueParse(line)

	default:
		return nil, fmt.Errorf("parser: unrecognized line %q", line)
	}
}

func (p *Parser) parseTableLine(rest string) (ParsedLine, error) {
	sepIdx := strings.Index(rest, ": ")
	if sepIdx < 0 {
		return nil, fmt.Errorf("parser: malformed table line %q", rest)
	}
	tableName := rest[:sepIdx]
	after := rest[sepIdx+2:]

	kindIdx := strings.Index(after, ": ")
	var kindStr, columnsStr string
	if kindIdx < 0 {
		// TRUNCATE has no trailing columns, e.g. "public.foo: TRUNCATE"
		kindStr = strings.TrimSuffix(after, ":")
		columnsStr = ""
	} else {
		kindStr = after[:kindIdx]
		columnsStr = after[kindIdx+2:]
	}

	table := InternTable(tableName)
	blacklisted := p.blacklist[tableName]

	switch kindStr {
	case "TRUNCATE":
		if blacklisted {
			return InfoMessageLine{Text: "dropped blacklisted table " + tableName}, nil
		}
		return TruncateLine{Table: table}, nil
	case "INSERT", "UPDATE", "DELETE":
		var kind ChangeKind
		switch kindStr {
		case "INSERT":
			kind = ChangeInsert
		case "UPDATE":
			kind = ChangeUpdate
		case "DELETE":
			kind = ChangeDelete
		}
		columns, incompleteAt, err := p.parseColumns(columnsStr)
		if err != nil {
			return nil, err
		}
		cd := &ChangedDataLine{Table: table, Kind: kind, Columns: columns}
		if incompleteAt >= 0 {
			// Parsing isn't complete yet: the blacklist conversion happens
			// once the final column resolves, in continueParse, so
			// continuation bookkeeping stays correct even for rows that
			// will end up dropped.
			p.pending = cd
			p.pendingIdx = incompleteAt
			p.pendingBlacklisted = blacklisted
			return ContinueParseLine{}, nil
		}
		if blacklisted {
			return InfoMessageLine{Text: "dropped blacklisted table " + tableName}, nil
		}
		return cd, nil
	default:
		return nil, fmt.Errorf("parser: unknown change kind %q in line %q", kindStr, rest)
	}
}

// parseColumns tokenizes a changed-data line's column section using
// columnHeaderRe to locate each "name[type]:" header, then slices the
// value for each header out of the gap before the next header (or end
// of string). It returns the index of the first column whose text value
// was left incomplete (no unescaped closing quote before end of line),
// or -1 if every column parsed completely.
func (p *Parser) parseColumns(s string) ([]Column, int, error) {
	matches := columnHeaderRe.FindAllStringSubmatchIndex(s, -1)
	columns := make([]Column, 0, len(matches))
	for i, m := range matches {
		name := submatch(s, m, 1)
		if name == "" {
			name = submatch(s, m, 2)
		}
		rawType := submatch(s, m, 3)

		valStart := m[1]
		valEnd := len(s)
		if i+1 < len(matches) {
			valEnd = matches[i+1][0]
		}
		rawValue := strings.TrimSuffix(s[valStart:valEnd], " ")

		info, err := newColumnInfo(name, rawType)
		if err != nil {
			return nil, -1, err
		}

		value, complete := parseValue(info, rawValue)
		columns = append(columns, Column{Info: info, Value: value})
		if !complete {
			return columns, i, nil
		}
	}
	return columns, -1, nil
}

func submatch(s string, m []int, group int) string {
	start, end := m[2*group], m[2*group+1]
	if start < 0 || end < 0 {
		return ""
	}
	return s[start:end]
}

// parseValue interprets one column's raw token according to its
// category, returning (value, complete). complete is false only for a
// text-category value whose closing quote wasn't found on this line.
func parseValue(info ColumnInfo, raw string) (ColumnValue, bool) {
	switch raw {
	case "null":
		return NullValue{}, true
	case "unchanged-toast-datum":
		return UnchangedToastValue{}, true
	}

	switch info.Category {
	case CategoryBoolean:
		return BooleanValue(raw == "true"), true
	case CategoryInteger:
		n, err := strconv.ParseInt(trimQuotes(raw), 10, 64)
		if err != nil {
			return TextValue(raw), true
		}
		return IntegerValue(n), true
	case CategoryNumeric:
		return NumericValue(trimQuotes(raw)), true
	case CategoryRoundingNumeric:
		return RoundingNumericValue(RenderRoundingNumeric(trimQuotes(raw), DefaultPrecision, DefaultScale)), true
	default: // text, timestamp, array
		return parseTextValue(raw)
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return unescapeQuotes(s[1 : len(s)-1])
	}
	return s
}

// parseTextValue handles the single-quoted, ''-escaped text encoding
// test_decoding uses for text/timestamp/array columns. If the raw token
// has no unescaped closing quote, the value is incomplete and the
// caller must supply the next raw line via continueParse.
func parseTextValue(raw string) (ColumnValue, bool) {
	if !strings.HasPrefix(raw, "'") {
		return TextValue(raw), true
	}
	body := raw[1:]
	closeIdx, found := findUnescapedQuote(body)
	if !found {
		return IncompleteTextValue(body), false
	}
	return TextValue(unescapeQuotes(body[:closeIdx])), true
}

// findUnescapedQuote scans s for the first ' that is not immediately
// followed by a second ' (the doubled-quote escape for a literal quote
// inside the value). Returns the byte index of that quote and true, or
// (len(s), false) if every ' in s is part of a doubled escape pair, i.e.
// the value's closing quote hasn't arrived yet.
func findUnescapedQuote(s string) (int, bool) {
	i := 0
	for i < len(s) {
		if s[i] == '\'' {
			if i+1 < len(s) && s[i+1] == '\'' {
				i += 2
				continue
			}
			return i, true
		}
		i++
	}
	return len(s), false
}

func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, "''", "'")
}

// continueParse appends a raw continuation line to the in-progress
// incomplete column and either resolves it (closing quote found,
// remaining columns on the line parsed normally) or remains incomplete.
func (p *Parser) continueParse(line string) (ParsedLine, error) {
	pending := p.pending
	idx := p.pendingIdx
	partial := string(pending.Columns[idx].Value.(IncompleteTextValue))
	combined := partial + "\n" + line

	closeIdx, found := findUnescapedQuote(combined)
	if !found {
		pending.Columns[idx].Value = IncompleteTextValue(combined)
		return ContinueParseLine{}, nil
	}

	pending.Columns[idx].Value = TextValue(unescapeQuotes(combined[:closeIdx]))
	remainder := strings.TrimPrefix(combined[closeIdx+1:], " ")

	if remainder != "" {
		restColumns, incompleteAt, err := p.parseColumns(remainder)
		if err != nil {
			return nil, err
		}
		pending.Columns = append(pending.Columns, restColumns...)
		if incompleteAt >= 0 {
			p.pendingIdx = idx + 1 + incompleteAt
			return ContinueParseLine{}, nil
		}
	}

	blacklisted := p.pendingBlacklisted
	p.pending = nil
	p.pendingBlacklisted = false
	if blacklisted {
		return InfoMessageLine{Text: "dropped blacklisted table " + string(pending.Table)}, nil
	}
	return pending, nil
}
