/*
 * This file is part of Atlas-DB.
 *
 * Atlas-DB is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of
 * the License, or (at your option) any later version.
 *
 * Atlas-DB is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with Atlas-DB. If not, see <https://www.gnu.org/licenses/>.
 *
 */

package kv

import (
	"bytes"
)

// KeyBuilder helps construct hierarchical keys for the catalog and table rows
type KeyBuilder struct {
	isMeta bool
	table  string
	row    []byte
	hasRow bool
	extra  [][]byte
}

// NewKeyBuilder creates a new key builder
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{
		extra: [][]byte{},
	}
}

const (
	keyMeta      = "m"
	keySeparator = ":"
	keyTable     = "t"
	keyRow       = "r"
)

// Separator is the byte sequence joining key parts. Table names must not contain it.
const Separator = keySeparator

// NewKeyBuilderFromBytes parses a key produced by Build. Row identifiers are
// opaque and may contain the separator, so everything after the row marker
// is taken as the row.
func NewKeyBuilderFromBytes(data []byte) *KeyBuilder {
	builder := NewKeyBuilder()
	rest := data
	next := func() ([]byte, bool) {
		if rest == nil {
			return nil, false
		}
		part, after, found := bytes.Cut(rest, []byte(keySeparator))
		if found {
			rest = after
		} else {
			rest = nil
		}
		return part, true
	}

	first := true
	for {
		part, ok := next()
		if !ok {
			break
		}
		switch {
		case first && string(part) == keyMeta:
			builder.isMeta = true
		case builder.table == "" && !builder.isMeta && string(part) == keyTable:
			name, _ := next()
			builder.table = string(name)
		case builder.table != "" && !builder.hasRow && string(part) == keyRow:
			builder.hasRow = true
			builder.row = rest
			if builder.row == nil {
				builder.row = []byte{}
			}
			return builder
		default:
			builder.extra = append(builder.extra, part)
		}
		first = false
	}

	return builder
}

func (kb *KeyBuilder) GetTable() string {
	return kb.table
}

func (kb *KeyBuilder) GetRow() []byte {
	return kb.row
}

// Table adds a table namespace to the key
func (kb *KeyBuilder) Table(tableName string) *KeyBuilder {
	kb.table = tableName
	return kb
}

// Row adds a row identifier to the key. An empty row builds the prefix shared
// by every row of the table.
func (kb *KeyBuilder) Row(rowID []byte) *KeyBuilder {
	kb.row = rowID
	kb.hasRow = true
	return kb
}

// Meta adds metadata namespace to the key
func (kb *KeyBuilder) Meta() *KeyBuilder {
	kb.isMeta = true
	return kb
}

// Append adds a custom part to the key
func (kb *KeyBuilder) Append(part string) *KeyBuilder {
	kb.extra = append(kb.extra, []byte(part))
	return kb
}

// Build constructs the final key as bytes
func (kb *KeyBuilder) Build() []byte {
	parts := make([][]byte, 0, 4+len(kb.extra))
	if kb.isMeta {
		parts = append(parts, []byte(keyMeta))
	}
	if kb.table != "" {
		parts = append(parts, []byte(keyTable), []byte(kb.table))
	}
	parts = append(parts, kb.extra...)
	if kb.hasRow {
		// the row goes last so that an empty row yields a scan prefix
		parts = append(parts, []byte(keyRow), kb.row)
	}
	return bytes.Join(parts, []byte(keySeparator))
}

// String returns the key as a string (for debugging)
func (kb *KeyBuilder) String() string {
	return string(kb.Build())
}

// RetargetTable rewrites the table portion of a row key, leaving the row
// identifier untouched.
func RetargetTable(key []byte, table string) []byte {
	kb := NewKeyBuilderFromBytes(key)
	return kb.Table(table).Build()
}
