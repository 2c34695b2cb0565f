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
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v2"
)

// Conservative limit to avoid ErrTxnTooBig when flushing batches
const maxOpsPerBatch = 1000

// BadgerStore implements Store interface using BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a new BadgerDB-backed store persisted under path
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true // table writes must survive a crash once committed
	opts.CompactL0OnClose = true

	return openBadger(opts)
}

// NewMemoryStore creates a BadgerDB-backed store that never touches the disk
func NewMemoryStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	opts.Logger = nil // Disable BadgerDB logging to avoid conflicts with zap

	// many small tables share one process
	opts.ValueThreshold = 1024
	opts.NumMemtables = 2
	opts.NumLevelZeroTables = 2
	opts.NumLevelZeroTablesStall = 4

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// BadgerEngine keeps table rows in a separate on-disk badger store in a
// subdirectory of the data directory.
type BadgerEngine struct {
	Subdir string
}

// BadgerSubdir is the default subdirectory of BadgerEngine
const BadgerSubdir = "tables"

func (e BadgerEngine) Name() string {
	return "badger"
}

func (e BadgerEngine) Open(dir string) (Store, error) {
	sub := e.Subdir
	if sub == "" {
		sub = BadgerSubdir
	}
	return NewBadgerStore(filepath.Join(dir, sub))
}

func translateBadgerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrKeyNotFound
	case errors.Is(err, badger.ErrReadOnlyTxn):
		return ErrReadOnly
	case errors.Is(err, badger.ErrTxnTooBig):
		return fmt.Errorf("%w: %v", ErrTooBig, err)
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	}
	return err
}

func badgerIteratorOptions(opts IteratorOptions) badger.IteratorOptions {
	o := badger.DefaultIteratorOptions
	o.Reverse = opts.Reverse
	o.PrefetchValues = opts.PrefetchValues
	if opts.PrefetchSize > 0 {
		o.PrefetchSize = opts.PrefetchSize
	}
	o.Prefix = opts.Prefix
	return o
}

func (s *BadgerStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) (err error) {
		value, err = badgerGet(txn, key)
		return
	})
	return value, err
}

func (s *BadgerStore) Put(ctx context.Context, key, value []byte) error {
	return translateBadgerError(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

func (s *BadgerStore) Delete(ctx context.Context, key []byte) error {
	return translateBadgerError(s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

func (s *BadgerStore) NewBatch() Batch {
	return &BadgerBatch{db: s.db}
}

// NewIterator iterates over a snapshot taken when it is created
func (s *BadgerStore) NewIterator(opts IteratorOptions) Iterator {
	txn := s.db.NewTransaction(false)
	return &BadgerIterator{
		iter: txn.NewIterator(badgerIteratorOptions(opts)),
		txn:  txn,
	}
}

func (s *BadgerStore) Begin(writable bool) (Transaction, error) {
	return &BadgerTransaction{txn: s.db.NewTransaction(writable), writable: writable}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Size() (int64, error) {
	lsm, vlog := s.db.Size()
	return lsm + vlog, nil
}

func (s *BadgerStore) Sync() error {
	return s.db.Sync()
}

func badgerGet(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, translateBadgerError(err)
	}
	return item.ValueCopy(nil)
}

// BadgerTransaction wraps a badger transaction
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

func (t *BadgerTransaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	return badgerGet(t.txn, key)
}

func (t *BadgerTransaction) Put(ctx context.Context, key, value []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	return translateBadgerError(t.txn.Set(key, value))
}

func (t *BadgerTransaction) Delete(ctx context.Context, key []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	return translateBadgerError(t.txn.Delete(key))
}

// NewIterator sees the transaction's own pending writes. Only one iterator
// may be open at a time on a writable transaction.
func (t *BadgerTransaction) NewIterator(opts IteratorOptions) Iterator {
	return &BadgerIterator{iter: t.txn.NewIterator(badgerIteratorOptions(opts))}
}

func (t *BadgerTransaction) Commit() error {
	return translateBadgerError(t.txn.Commit())
}

func (t *BadgerTransaction) Discard() {
	t.txn.Discard()
}

// batchOperation is a queued write; a nil value marks a delete
type batchOperation struct {
	key   []byte
	value []byte
}

func (op batchOperation) isDelete() bool {
	return op.value == nil
}

// BadgerBatch queues writes and applies them through badger write batches
type BadgerBatch struct {
	db         *badger.DB
	operations []batchOperation
}

func (b *BadgerBatch) Set(key, value []byte) error {
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	b.operations = append(b.operations, batchOperation{key: bytes.Clone(key), value: v})
	return nil
}

func (b *BadgerBatch) Delete(key []byte) error {
	b.operations = append(b.operations, batchOperation{key: bytes.Clone(key)})
	return nil
}

// Flush applies the queued operations in chunks of maxOpsPerBatch. Chunks
// that were flushed before a failure stay applied.
func (b *BadgerBatch) Flush() error {
	for chunk := range chunks(b.operations, maxOpsPerBatch) {
		if err := b.flushChunk(chunk); err != nil {
			return translateBadgerError(err)
		}
	}
	b.Reset()
	return nil
}

func (b *BadgerBatch) flushChunk(ops []batchOperation) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, op := range ops {
		var err error
		if op.isDelete() {
			err = wb.Delete(op.key)
		} else {
			err = wb.Set(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerBatch) Reset() {
	b.operations = b.operations[:0]
}

// chunks yields consecutive sub-slices of ops holding at most size elements
func chunks(ops []batchOperation, size int) func(yield func([]batchOperation) bool) {
	return func(yield func([]batchOperation) bool) {
		for len(ops) > 0 {
			n := min(size, len(ops))
			if !yield(ops[:n]) {
				return
			}
			ops = ops[n:]
		}
	}
}

// BadgerIterator wraps a badger iterator. Standalone iterators own their
// read transaction and discard it on Close.
type BadgerIterator struct {
	iter *badger.Iterator
	txn  *badger.Txn
}

func (i *BadgerIterator) Close() error {
	i.iter.Close()
	if i.txn != nil {
		i.txn.Discard()
	}
	return nil
}

func (i *BadgerIterator) Rewind()         { i.iter.Rewind() }
func (i *BadgerIterator) Seek(key []byte) { i.iter.Seek(key) }
func (i *BadgerIterator) Next()           { i.iter.Next() }
func (i *BadgerIterator) Valid() bool     { return i.iter.Valid() }

func (i *BadgerIterator) Item() Item {
	return badgerItem{item: i.iter.Item()}
}

type badgerItem struct {
	item *badger.Item
}

func (i badgerItem) Key() []byte {
	return i.item.Key()
}

func (i badgerItem) KeyCopy() []byte {
	return i.item.KeyCopy(nil)
}

func (i badgerItem) Value() ([]byte, error) {
	var value []byte
	err := i.item.Value(func(v []byte) error {
		value = v
		return nil
	})
	return value, err
}

func (i badgerItem) ValueCopy() ([]byte, error) {
	return i.item.ValueCopy(nil)
}

var _ Store = (*BadgerStore)(nil)
var _ Transaction = (*BadgerTransaction)(nil)
