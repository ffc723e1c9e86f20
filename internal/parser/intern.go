// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package parser

import "sync"

// TableName is an interned "schema.table" string: equal names share the
// same backing string so repeated occurrences across millions of rows
// don't each allocate.
type TableName string

var tablePool = struct {
	mu   sync.Mutex
	seen map[string]TableName
}{seen: make(map[string]TableName)}

// InternTable returns the canonical TableName for s, interning it on
// first sight.
func InternTable(s string) TableName {
	tablePool.mu.Lock()
	defer tablePool.mu.Unlock()
	if t, ok := tablePool.seen[s]; ok {
		return t
	}
	t := TableName(s)
	tablePool.seen[s] = t
	return t
}

// SchemaAndTable splits a TableName into its schema and bare table name.
// If targetSchema is non-empty it overrides the source schema, mirroring
// TARGET_SCHEMA_NAME.
func (t TableName) SchemaAndTable(targetSchema string) (schema, table string) {
	idx := indexByte(string(t), '.')
	if idx < 0 {
		return "", string(t)
	}
	schema, table = string(t)[:idx], string(t)[idx+1:]
	if targetSchema != "" {
		schema = targetSchema
	}
	return schema, table
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
