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

package tablestore

import (
	"fmt"

	"github.com/bottledcode/atlas-db/atlas/kv"
	"github.com/fxamacker/cbor/v2"
)

// Record is one row. Table is the row's table identity; Fields are laid out
// in the order of the table's attributes, with Fields[0] being the key.
type Record struct {
	Table  string
	Fields []any
}

// Key returns the key field, or nil for an empty record
func (r Record) Key() any {
	if len(r.Fields) == 0 {
		return nil
	}
	return r.Fields[0]
}

// RawRecord is a row as stored: its full storage key and encoded fields
type RawRecord struct {
	Table string
	Key   []byte
	Value []byte
}

var (
	// canonical encoding keeps the key bytes of equal keys identical
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		IntDec: cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func encodeKey(key any) ([]byte, error) {
	data, err := encMode.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key: %w", err)
	}
	return data, nil
}

func rowKey(table string, key any) ([]byte, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil, err
	}
	return kv.NewKeyBuilder().Table(table).Row(encoded).Build(), nil
}

func rowPrefix(table string) []byte {
	return kv.NewKeyBuilder().Table(table).Row(nil).Build()
}

// encodeFields encodes a record's fields. Values that would not decode
// again, such as unsigned integers above math.MaxInt64, are refused.
func encodeFields(fields []any) ([]byte, error) {
	data, err := encMode.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var decoded []any
	if err := decMode.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	return data, nil
}

func decodeRecord(table string, value []byte) (Record, error) {
	var fields []any
	if err := decMode.Unmarshal(value, &fields); err != nil {
		return Record{}, fmt.Errorf("failed to decode record in %s: %w", table, err)
	}
	return Record{Table: table, Fields: fields}, nil
}
