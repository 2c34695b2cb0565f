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
	"context"
	"errors"
	"io"
)

// Store defines the key-value storage interface that table data and the
// table catalog are kept in.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// Batch operations for bulk, non-atomic writes
	NewBatch() Batch

	// Iteration support for prefix scans
	NewIterator(opts IteratorOptions) Iterator

	// Transaction support
	Begin(writable bool) (Transaction, error)

	Close() error

	Size() (int64, error)
	Sync() error
}

// Transaction is a consistent view of a store. Writes become visible to
// others on Commit and are dropped on Discard.
type Transaction interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	NewIterator(opts IteratorOptions) Iterator

	Commit() error
	Discard()
}

// Batch collects writes and applies them on Flush. A batch may be split
// into several commits, so it is not atomic.
type Batch interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	Flush() error
	Reset()
}

// Iterator provides ordered key-value iteration
type Iterator interface {
	io.Closer

	Rewind()
	Seek(key []byte)
	Next()
	Valid() bool

	Item() Item
}

// Item represents a key-value pair during iteration
type Item interface {
	Key() []byte
	KeyCopy() []byte
	Value() ([]byte, error)
	ValueCopy() ([]byte, error)
}

// IteratorOptions configures iteration behavior
type IteratorOptions struct {
	Prefix         []byte
	Reverse        bool
	PrefetchValues bool
	PrefetchSize   int
}

// Engine opens a Store rooted in a directory. Engines are how the
// runtime delegates table storage to a persistent backend.
type Engine interface {
	Name() string
	Open(dir string) (Store, error)
}

var (
	// ErrKeyNotFound is returned when a key doesn't exist
	ErrKeyNotFound = &KeyNotFoundError{}

	// ErrReadOnly is returned when writing through a read-only transaction
	ErrReadOnly = errors.New("transaction is read-only")

	// ErrTooBig is returned when a transaction grows past what the store can commit at once
	ErrTooBig = errors.New("transaction too big")

	// ErrClosed is returned when operating on a closed store or pool
	ErrClosed = errors.New("store is closed")
)

type KeyNotFoundError struct{}

func (e *KeyNotFoundError) Error() string {
	return "key not found"
}
