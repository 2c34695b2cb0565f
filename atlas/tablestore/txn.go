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
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/bottledcode/atlas-db/atlas/kv"
)

// Continuation resumes a paginated scan. A nil continuation starts a scan
// from the beginning, EndOfTable ends it, and anything else points just past
// the last row returned.
type Continuation struct {
	table string
	after []byte
}

// EndOfTable is the terminal continuation returned when a scan has no more rows
var EndOfTable = &Continuation{}

// Tx is a transaction over table rows. Catalog changes are not part of it.
type Tx struct {
	rt       *Runtime
	txn      kv.Transaction
	writable bool
}

// Begin starts a transaction on the row store
func (r *Runtime) Begin(writable bool) (*Tx, error) {
	pool, err := r.currentPool()
	if err != nil {
		return nil, err
	}
	store := pool.DataStore()
	if store == nil {
		return nil, ErrNotRunning
	}

	txn, err := store.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{rt: r, txn: txn, writable: writable}, nil
}

// Write inserts or replaces the record in its table
func (tx *Tx) Write(ctx context.Context, rec Record) error {
	def, err := tx.rt.table(rec.Table)
	if err != nil {
		return err
	}
	if len(rec.Fields) != def.Arity() {
		return fmt.Errorf("%w: %s expects %d fields, got %d", ErrArity, rec.Table, def.Arity(), len(rec.Fields))
	}

	key, err := rowKey(rec.Table, rec.Key())
	if err != nil {
		return err
	}
	value, err := encodeFields(rec.Fields)
	if err != nil {
		return err
	}
	return tx.txn.Put(ctx, key, value)
}

// Read returns the record stored under key
func (tx *Tx) Read(ctx context.Context, table string, key any) (Record, error) {
	if _, err := tx.rt.table(table); err != nil {
		return Record{}, err
	}
	k, err := rowKey(table, key)
	if err != nil {
		return Record{}, err
	}

	value, err := tx.txn.Get(ctx, k)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return decodeRecord(table, value)
}

// Delete removes the record stored under key, if any
func (tx *Tx) Delete(ctx context.Context, table string, key any) error {
	if _, err := tx.rt.table(table); err != nil {
		return err
	}
	k, err := rowKey(table, key)
	if err != nil {
		return err
	}
	return tx.txn.Delete(ctx, k)
}

// Select returns up to limit records of table following cont, along with
// the continuation for the next call.
func (tx *Tx) Select(ctx context.Context, table string, cont *Continuation, limit int) ([]Record, *Continuation, error) {
	return scan(ctx, tx, table, cont, limit, func(_, value []byte) (Record, error) {
		return decodeRecord(table, value)
	})
}

// SelectRaw is Select without decoding: rows come back as stored
func (tx *Tx) SelectRaw(ctx context.Context, table string, cont *Continuation, limit int) ([]RawRecord, *Continuation, error) {
	return scan(ctx, tx, table, cont, limit, func(key, value []byte) (RawRecord, error) {
		return RawRecord{Table: table, Key: key, Value: value}, nil
	})
}

func scan[T any](ctx context.Context, tx *Tx, table string, cont *Continuation, limit int, decode func(key, value []byte) (T, error)) ([]T, *Continuation, error) {
	if _, err := tx.rt.table(table); err != nil {
		return nil, nil, err
	}
	if cont == EndOfTable {
		return nil, EndOfTable, nil
	}
	if cont != nil && cont.table != table {
		return nil, nil, fmt.Errorf("%w: %s", ErrBadContinuation, table)
	}
	if limit <= 0 {
		limit = 1
	}

	iter := tx.txn.NewIterator(kv.IteratorOptions{
		Prefix:         rowPrefix(table),
		PrefetchValues: true,
		PrefetchSize:   limit,
	})
	defer iter.Close()

	if cont == nil {
		iter.Rewind()
	} else {
		iter.Seek(cont.after)
		if iter.Valid() && bytes.Equal(iter.Item().Key(), cont.after) {
			iter.Next()
		}
	}

	rows := make([]T, 0, limit)
	var last []byte
	for ; iter.Valid() && len(rows) < limit; iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		item := iter.Item()
		value, err := item.ValueCopy()
		if err != nil {
			return nil, nil, err
		}
		last = item.KeyCopy()
		row, err := decode(last, value)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}

	if !iter.Valid() {
		return rows, EndOfTable, nil
	}
	return rows, &Continuation{table: table, after: last}, nil
}

// WriteRaw stores a row read by SelectRaw into table, which must have the
// arity of the row's own table. The row keeps its key and encoded value.
func (tx *Tx) WriteRaw(ctx context.Context, table string, raw RawRecord) error {
	def, err := tx.rt.table(table)
	if err != nil {
		return err
	}
	from, err := tx.rt.table(raw.Table)
	if err != nil {
		return err
	}
	if from.Arity() != def.Arity() {
		return fmt.Errorf("%w: %s expects %d fields, %s rows have %d", ErrArity, table, def.Arity(), raw.Table, from.Arity())
	}
	kb := kv.NewKeyBuilderFromBytes(raw.Key)
	if kb.GetTable() != raw.Table || len(kb.GetRow()) == 0 {
		return fmt.Errorf("row key %s does not belong to %s", kb, raw.Table)
	}

	return tx.txn.Put(ctx, kv.RetargetTable(raw.Key, table), raw.Value)
}

// Pages iterates over table in pages of at most size records
func (tx *Tx) Pages(table string, size int) *PageIterator[Record] {
	return &PageIterator[Record]{table: table, size: size, selectFn: tx.Select}
}

// RawPages iterates over table in pages of at most size undecoded rows
func (tx *Tx) RawPages(table string, size int) *PageIterator[RawRecord] {
	return &PageIterator[RawRecord]{table: table, size: size, selectFn: tx.SelectRaw}
}

// Commit makes every write of the transaction visible at once
func (tx *Tx) Commit() error {
	return tx.txn.Commit()
}

// Discard drops the transaction. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.txn.Discard()
}

// PageIterator walks a table page by page using continuations
type PageIterator[T any] struct {
	selectFn func(ctx context.Context, table string, cont *Continuation, limit int) ([]T, *Continuation, error)
	table    string
	size     int
	cont     *Continuation
	page     []T
	done     bool
	err      error
}

// Next loads the next page and reports whether there is one
func (p *PageIterator[T]) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}

	rows, next, err := p.selectFn(ctx, p.table, p.cont, p.size)
	if err != nil {
		p.err = err
		return false
	}
	p.cont = next
	if next == EndOfTable {
		p.done = true
	}
	if len(rows) == 0 {
		p.page = nil
		return false
	}
	p.page = rows
	return true
}

// Page returns the page loaded by the last successful Next
func (p *PageIterator[T]) Page() []T {
	return p.page
}

// Err returns the error that stopped iteration, if any
func (p *PageIterator[T]) Err() error {
	return p.err
}
