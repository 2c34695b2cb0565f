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
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteFilename is the file the SQLite engine keeps table data in, relative to the data directory
const SQLiteFilename = "tables.sqlite"

// rows fetched per round trip by iterators
const sqliteWindow = 64

var sqliteSchema = sqlitemigration.Schema{
	Migrations: []string{
		`create table if not exists kv (k blob primary key, v blob not null) without rowid;`,
	},
}

// SQLiteEngine delegates table storage to a SQLite database in the data directory
type SQLiteEngine struct {
	Filename string
	PoolSize int
}

func (e SQLiteEngine) Name() string {
	return "sqlite"
}

func (e SQLiteEngine) Open(dir string) (Store, error) {
	name := e.Filename
	if name == "" {
		name = SQLiteFilename
	}
	return NewSQLiteStore(filepath.Join(dir, name), e.PoolSize)
}

// SQLiteStore implements Store on a single key/value table in SQLite
type SQLiteStore struct {
	pool   *sqlitemigration.Pool
	path   string
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed store at path.
// The schema is migrated before returning so that a broken file is reported here.
func NewSQLiteStore(path string, poolSize int) (*SQLiteStore, error) {
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() * 2
	}

	pool := sqlitemigration.NewPool(path, sqliteSchema, sqlitemigration.Options{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize: poolSize,
	})

	conn, err := pool.Take(context.Background())
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", path, err)
	}
	pool.Put(conn)

	return &SQLiteStore{pool: pool, path: path}, nil
}

func (s *SQLiteStore) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return fn(conn)
}

func (s *SQLiteStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := s.withConn(ctx, func(conn *sqlite.Conn) (err error) {
		value, err = sqliteGet(conn, key)
		return
	})
	return value, err
}

func (s *SQLiteStore) Put(ctx context.Context, key, value []byte) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitePut(conn, key, value)
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, key []byte) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqliteDelete(conn, key)
	})
}

func (s *SQLiteStore) NewBatch() Batch {
	return &SQLiteBatch{store: s}
}

func (s *SQLiteStore) NewIterator(opts IteratorOptions) Iterator {
	return newSQLiteIterator(opts, s.withConn)
}

func (s *SQLiteStore) Begin(writable bool) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return nil, err
	}

	begin := "BEGIN DEFERRED;"
	if writable {
		begin = "BEGIN IMMEDIATE;"
	}
	if err := sqlitex.ExecuteTransient(conn, begin, nil); err != nil {
		s.pool.Put(conn)
		return nil, fmt.Errorf("failed to begin sqlite transaction: %w", err)
	}

	return &SQLiteTransaction{store: s, conn: conn, writable: writable}, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.pool.Close()
}

func (s *SQLiteStore) Size() (int64, error) {
	var size int64
	err := s.withConn(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, "select page_count * page_size from pragma_page_count(), pragma_page_size();", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				size = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	return size, err
}

func (s *SQLiteStore) Sync() error {
	return s.withConn(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, "PRAGMA wal_checkpoint(FULL);", nil)
	})
}

// SQLiteTransaction pins one pooled connection for the duration of a transaction
type SQLiteTransaction struct {
	store    *SQLiteStore
	conn     *sqlite.Conn
	writable bool
	done     bool
}

func (t *SQLiteTransaction) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	if t.done {
		return ErrClosed
	}
	return fn(t.conn)
}

func (t *SQLiteTransaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	if t.done {
		return nil, ErrClosed
	}
	return sqliteGet(t.conn, key)
}

func (t *SQLiteTransaction) Put(ctx context.Context, key, value []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	return t.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitePut(conn, key, value)
	})
}

func (t *SQLiteTransaction) Delete(ctx context.Context, key []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	return t.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqliteDelete(conn, key)
	})
}

func (t *SQLiteTransaction) NewIterator(opts IteratorOptions) Iterator {
	return newSQLiteIterator(opts, t.withConn)
}

func (t *SQLiteTransaction) Commit() error {
	if t.done {
		return ErrClosed
	}
	t.done = true
	defer t.store.pool.Put(t.conn)

	if err := sqlitex.ExecuteTransient(t.conn, "COMMIT;", nil); err != nil {
		_ = sqlitex.ExecuteTransient(t.conn, "ROLLBACK;", nil)
		return fmt.Errorf("failed to commit sqlite transaction: %w", err)
	}
	return nil
}

func (t *SQLiteTransaction) Discard() {
	if t.done {
		return
	}
	t.done = true
	_ = sqlitex.ExecuteTransient(t.conn, "ROLLBACK;", nil)
	t.store.pool.Put(t.conn)
}

// SQLiteBatch applies its operations in chunked transactions on Flush
type SQLiteBatch struct {
	store      *SQLiteStore
	operations []batchOperation
}

func (b *SQLiteBatch) Set(key, value []byte) error {
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	b.operations = append(b.operations, batchOperation{key: bytes.Clone(key), value: v})
	return nil
}

func (b *SQLiteBatch) Delete(key []byte) error {
	b.operations = append(b.operations, batchOperation{key: bytes.Clone(key)})
	return nil
}

// Flush applies the queued operations, one transaction per chunk
func (b *SQLiteBatch) Flush() error {
	for chunk := range chunks(b.operations, maxOpsPerBatch) {
		if err := b.flushChunk(chunk); err != nil {
			return err
		}
	}

	b.Reset()
	return nil
}

func (b *SQLiteBatch) flushChunk(ops []batchOperation) error {
	txn, err := b.store.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Discard()

	ctx := context.Background()
	for _, op := range ops {
		if op.isDelete() {
			err = txn.Delete(ctx, op.key)
		} else {
			err = txn.Put(ctx, op.key, op.value)
		}
		if err != nil {
			return err
		}
	}

	return txn.Commit()
}

func (b *SQLiteBatch) Reset() {
	b.operations = b.operations[:0]
}

func sqliteGet(conn *sqlite.Conn, key []byte) ([]byte, error) {
	var value []byte
	found := false
	err := sqlitex.Execute(conn, "select v from kv where k = ?;", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnBytes(stmt, 0)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func sqlitePut(conn *sqlite.Conn, key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return sqlitex.Execute(conn, "insert into kv (k, v) values (?, ?) on conflict (k) do update set v = excluded.v;", &sqlitex.ExecOptions{
		Args: []any{key, value},
	})
}

func sqliteDelete(conn *sqlite.Conn, key []byte) error {
	return sqlitex.Execute(conn, "delete from kv where k = ?;", &sqlitex.ExecOptions{
		Args: []any{key},
	})
}

func columnBytes(stmt *sqlite.Stmt, col int) []byte {
	buf := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, buf)
	return buf
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

type sqliteItem struct {
	key   []byte
	value []byte
}

func (i *sqliteItem) Key() []byte {
	return i.key
}

func (i *sqliteItem) KeyCopy() []byte {
	return append([]byte{}, i.key...)
}

func (i *sqliteItem) Value() ([]byte, error) {
	return i.value, nil
}

func (i *sqliteItem) ValueCopy() ([]byte, error) {
	return append([]byte{}, i.value...), nil
}

// sqliteIterator reads windows of rows on demand; no statement stays open
// between calls, so writes may be interleaved with iteration.
type sqliteIterator struct {
	opts     IteratorOptions
	withConn func(ctx context.Context, fn func(conn *sqlite.Conn) error) error
	window   []*sqliteItem
	pos      int
	// bound is the last key returned, used to fetch the next window
	bound     []byte
	exhausted bool
	err       error
}

func newSQLiteIterator(opts IteratorOptions, withConn func(ctx context.Context, fn func(conn *sqlite.Conn) error) error) *sqliteIterator {
	return &sqliteIterator{opts: opts, withConn: withConn}
}

func (i *sqliteIterator) Close() error {
	i.window = nil
	return i.err
}

func (i *sqliteIterator) Rewind() {
	i.seek(nil, true)
}

func (i *sqliteIterator) Seek(key []byte) {
	i.seek(key, true)
}

func (i *sqliteIterator) Next() {
	i.pos++
	if i.pos < len(i.window) || i.exhausted {
		return
	}
	if len(i.window) > 0 {
		i.seek(i.window[len(i.window)-1].key, false)
	}
}

func (i *sqliteIterator) Valid() bool {
	return i.err == nil && i.pos < len(i.window)
}

func (i *sqliteIterator) Item() Item {
	return i.window[i.pos]
}

// seek loads the window starting at from. When inclusive is false the key
// itself is skipped.
func (i *sqliteIterator) seek(from []byte, inclusive bool) {
	i.window = i.window[:0]
	i.pos = 0
	i.exhausted = false

	query, args := i.windowQuery(from, inclusive)
	i.err = i.withConn(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				i.window = append(i.window, &sqliteItem{
					key:   columnBytes(stmt, 0),
					value: columnBytes(stmt, 1),
				})
				return nil
			},
		})
	})
	if i.err != nil || len(i.window) < sqliteWindow {
		i.exhausted = true
	}
}

func (i *sqliteIterator) windowQuery(from []byte, inclusive bool) (string, []any) {
	var where []string
	var args []any

	if len(i.opts.Prefix) > 0 {
		where = append(where, "k >= ?")
		args = append(args, i.opts.Prefix)
		if upper := prefixEnd(i.opts.Prefix); upper != nil {
			where = append(where, "k < ?")
			args = append(args, upper)
		}
	}

	if from != nil {
		op := ">"
		if i.opts.Reverse {
			op = "<"
		}
		if inclusive {
			op += "="
		}
		where = append(where, "k "+op+" ?")
		args = append(args, from)
	}

	query := "select k, v from kv"
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	if i.opts.Reverse {
		query += " order by k desc"
	} else {
		query += " order by k asc"
	}
	query += fmt.Sprintf(" limit %d;", sqliteWindow)

	return query, args
}

var _ Store = (*SQLiteStore)(nil)
var _ Transaction = (*SQLiteTransaction)(nil)
