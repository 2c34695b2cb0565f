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
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/bottledcode/atlas-db/atlas/kv"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// Write stores one record in its own transaction
func (r *Runtime) Write(ctx context.Context, rec Record) error {
	tx, err := r.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Discard()

	if err := tx.Write(ctx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// Read fetches one record in its own transaction
func (r *Runtime) Read(ctx context.Context, table string, key any) (Record, error) {
	tx, err := r.Begin(false)
	if err != nil {
		return Record{}, err
	}
	defer tx.Discard()

	return tx.Read(ctx, table, key)
}

// scanRows calls fn with the row identifier and encoded value of every row
// of table, in key order.
func (r *Runtime) scanRows(ctx context.Context, table string, fn func(row, value []byte) error) error {
	pool, err := r.currentPool()
	if err != nil {
		return err
	}

	iter := pool.DataStore().NewIterator(kv.IteratorOptions{
		Prefix:         rowPrefix(table),
		PrefetchValues: true,
	})
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := iter.Item()
		value, err := item.ValueCopy()
		if err != nil {
			return err
		}
		row := kv.NewKeyBuilderFromBytes(item.KeyCopy()).GetRow()
		if err := fn(row, value); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of rows in table
func (r *Runtime) Count(ctx context.Context, table string) (int, error) {
	if _, err := r.table(table); err != nil {
		return 0, err
	}

	n := 0
	err := r.scanRows(ctx, table, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// Clear deletes every row of table. The table and its definition remain.
// Rows are removed in chunks, so a failure may leave some rows behind.
func (r *Runtime) Clear(ctx context.Context, table string) error {
	if _, err := r.table(table); err != nil {
		return err
	}
	pool, err := r.currentPool()
	if err != nil {
		return err
	}

	batch := pool.DataStore().NewBatch()
	n := 0
	err = r.scanRows(ctx, table, func(row, _ []byte) error {
		n++
		return batch.Delete(kv.NewKeyBuilder().Table(table).Row(row).Build())
	})
	if err != nil {
		batch.Reset()
		return err
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	r.log.Debug("table cleared", zap.String("table", table), zap.Int("rows", n))
	return nil
}

// Digest hashes a table's attribute list and contents with BLAKE3. The table
// name is not part of the digest, so a faithful copy hashes the same.
func (r *Runtime) Digest(ctx context.Context, table string) (string, error) {
	def, err := r.table(table)
	if err != nil {
		return "", err
	}

	hasher := blake3.New()
	writePart := func(part []byte) {
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		_, _ = hasher.Write(size[:])
		_, _ = hasher.Write(part)
	}

	var arity [8]byte
	binary.BigEndian.PutUint64(arity[:], uint64(def.Arity()))
	_, _ = hasher.Write(arity[:])
	for _, attr := range def.Attributes {
		writePart([]byte(attr))
	}
	err = r.scanRows(ctx, table, func(row, value []byte) error {
		writePart(row)
		writePart(value)
		return nil
	})
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
