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
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillTable(t *testing.T, rt *Runtime, table string, n int) {
	t.Helper()
	ctx := context.Background()
	if !rt.Exists(table) {
		require.NoError(t, rt.CreateTable(ctx, table, []string{"id", "value"}))
	}

	tx, err := rt.Begin(true)
	require.NoError(t, err)
	defer tx.Discard()
	for i := 0; i < n; i++ {
		require.NoError(t, tx.Write(ctx, Record{Table: table, Fields: []any{fmt.Sprintf("k%04d", i), i}}))
	}
	require.NoError(t, tx.Commit())
}

func TestWriteAndRead(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.CreateTable(ctx, "accounts", []string{"id", "owner", "balance"}))

	require.NoError(t, rt.Write(ctx, Record{Table: "accounts", Fields: []any{1, "alice", 100}}))

	rec, err := rt.Read(ctx, "accounts", 1)
	require.NoError(t, err)
	assert.Equal(t, "accounts", rec.Table)
	assert.Equal(t, int64(1), rec.Key())
	assert.Equal(t, []any{int64(1), "alice", int64(100)}, rec.Fields)

	// the same key encoded from a different integer type addresses the same row
	rec, err = rt.Read(ctx, "accounts", int64(1))
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Fields[1])

	require.NoError(t, rt.Write(ctx, Record{Table: "accounts", Fields: []any{1, "alice", 50}}))
	n, err := rt.Count(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = rt.Read(ctx, "accounts", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteChecksArityAndTable(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.CreateTable(ctx, "a", []string{"id", "v"}))

	assert.ErrorIs(t, rt.Write(ctx, Record{Table: "a", Fields: []any{1}}), ErrArity)
	assert.ErrorIs(t, rt.Write(ctx, Record{Table: "a", Fields: []any{1, 2, 3}}), ErrArity)
	assert.ErrorIs(t, rt.Write(ctx, Record{Table: "b", Fields: []any{1, 2}}), ErrNoSuchTable)
}

func TestDiscardedTransactionLeavesNoTrace(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.CreateTable(ctx, "a", []string{"id", "v"}))

	tx, err := rt.Begin(true)
	require.NoError(t, err)
	require.NoError(t, tx.Write(ctx, Record{Table: "a", Fields: []any{"k", "v"}}))

	rec, err := tx.Read(ctx, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []any{"k", "v"}, rec.Fields)
	tx.Discard()

	n, err := rt.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTxDelete(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 3)

	tx, err := rt.Begin(true)
	require.NoError(t, err)
	defer tx.Discard()
	require.NoError(t, tx.Delete(ctx, "a", "k0001"))
	require.NoError(t, tx.Commit())

	_, err = rt.Read(ctx, "a", "k0001")
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := rt.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.CreateTable(ctx, "a", []string{"id"}))

	tx, err := rt.Begin(false)
	require.NoError(t, err)
	defer tx.Discard()

	assert.Error(t, tx.Write(ctx, Record{Table: "a", Fields: []any{"k"}}))
}

func TestSelectContinuation(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 25)

	tx, err := rt.Begin(false)
	require.NoError(t, err)
	defer tx.Discard()

	var seen []any
	var cont *Continuation
	var sizes []int
	for {
		records, next, err := tx.Select(ctx, "a", cont, 10)
		require.NoError(t, err)
		require.NotNil(t, next)
		sizes = append(sizes, len(records))
		for _, rec := range records {
			seen = append(seen, rec.Key())
		}
		if next == EndOfTable {
			break
		}
		cont = next
	}

	assert.Equal(t, []int{10, 10, 5}, sizes)
	require.Len(t, seen, 25)
	for i, key := range seen {
		assert.Equal(t, fmt.Sprintf("k%04d", i), key)
	}

	records, next, err := tx.Select(ctx, "a", EndOfTable, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, EndOfTable, next)
}

func TestSelectExactMultipleEndsOnLastPage(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 20)

	tx, err := rt.Begin(false)
	require.NoError(t, err)
	defer tx.Discard()

	records, next, err := tx.Select(ctx, "a", nil, 10)
	require.NoError(t, err)
	assert.Len(t, records, 10)
	assert.NotEqual(t, EndOfTable, next)

	records, next, err = tx.Select(ctx, "a", next, 10)
	require.NoError(t, err)
	assert.Len(t, records, 10)
	assert.Equal(t, EndOfTable, next)
}

func TestSelectEmptyTable(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.CreateTable(ctx, "a", []string{"id"}))

	tx, err := rt.Begin(false)
	require.NoError(t, err)
	defer tx.Discard()

	records, next, err := tx.Select(ctx, "a", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, EndOfTable, next)
}

func TestSelectRejectsForeignContinuation(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 5)
	fillTable(t, rt, "b", 5)

	tx, err := rt.Begin(false)
	require.NoError(t, err)
	defer tx.Discard()

	_, next, err := tx.Select(ctx, "a", nil, 2)
	require.NoError(t, err)

	_, _, err = tx.Select(ctx, "b", next, 2)
	assert.ErrorIs(t, err, ErrBadContinuation)

	_, _, err = tx.Select(ctx, "missing", nil, 2)
	assert.ErrorIs(t, err, ErrNoSuchTable)
}

func TestSelectDoesNotLeakIntoOtherTables(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 3)
	fillTable(t, rt, "ab", 4)

	n, err := rt.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWriteRejectsValuesThatDoNotReadBack(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.CreateTable(ctx, "a", []string{"id", "v"}))

	err := rt.Write(ctx, Record{Table: "a", Fields: []any{"k", uint64(1) << 63}})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	err = rt.Write(ctx, Record{Table: "a", Fields: []any{uint64(math.MaxUint64), 1}})
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	n, err := rt.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, rt.Write(ctx, Record{Table: "a", Fields: []any{"k", uint64(math.MaxInt64)}}))
	rec, err := rt.Read(ctx, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []any{"k", int64(math.MaxInt64)}, rec.Fields)
}

func TestSelectRawAndWriteRaw(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 5)
	require.NoError(t, rt.CreateTable(ctx, "b", []string{"id", "other"}))

	tx, err := rt.Begin(true)
	require.NoError(t, err)
	defer tx.Discard()

	rows, cont, err := tx.SelectRaw(ctx, "a", nil, 10)
	require.NoError(t, err)
	assert.Same(t, EndOfTable, cont)
	require.Len(t, rows, 5)
	for _, row := range rows {
		assert.Equal(t, "a", row.Table)
		require.NoError(t, tx.WriteRaw(ctx, "b", row))
	}
	require.NoError(t, tx.Commit())

	rec, err := rt.Read(ctx, "b", "k0003")
	require.NoError(t, err)
	assert.Equal(t, Record{Table: "b", Fields: []any{"k0003", int64(3)}}, rec)

	want, err := rt.Digest(ctx, "a")
	require.NoError(t, err)
	got, err := rt.Digest(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteRawChecksRows(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 1)
	require.NoError(t, rt.CreateTable(ctx, "narrow", []string{"id"}))
	require.NoError(t, rt.CreateTable(ctx, "b", []string{"id", "v"}))

	tx, err := rt.Begin(true)
	require.NoError(t, err)
	defer tx.Discard()

	rows, _, err := tx.SelectRaw(ctx, "a", nil, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.ErrorIs(t, tx.WriteRaw(ctx, "narrow", rows[0]), ErrArity)
	assert.ErrorIs(t, tx.WriteRaw(ctx, "missing", rows[0]), ErrNoSuchTable)

	foreign := rows[0]
	foreign.Table = "b"
	assert.ErrorContains(t, tx.WriteRaw(ctx, "b", foreign), "does not belong to b")
}

func TestRawPages(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 12)

	tx, err := rt.Begin(false)
	require.NoError(t, err)
	defer tx.Discard()

	var keys int
	pages := tx.RawPages("a", 5)
	for pages.Next(ctx) {
		keys += len(pages.Page())
	}
	require.NoError(t, pages.Err())
	assert.Equal(t, 12, keys)
}

func TestPages(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 23)

	tx, err := rt.Begin(false)
	require.NoError(t, err)
	defer tx.Discard()

	var sizes []int
	pages := tx.Pages("a", 10)
	for pages.Next(ctx) {
		sizes = append(sizes, len(pages.Page()))
	}
	require.NoError(t, pages.Err())
	assert.Equal(t, []int{10, 10, 3}, sizes)
	assert.False(t, pages.Next(ctx))
}

func TestPagesReportErrors(t *testing.T) {
	rt := newMemoryRuntime(t)

	tx, err := rt.Begin(false)
	require.NoError(t, err)
	defer tx.Discard()

	pages := tx.Pages("missing", 10)
	assert.False(t, pages.Next(context.Background()))
	assert.ErrorIs(t, pages.Err(), ErrNoSuchTable)
}

func TestBeginRequiresRunningRuntime(t *testing.T) {
	rt := newMemoryRuntime(t)
	require.NoError(t, rt.Stop())

	_, err := rt.Begin(false)
	assert.ErrorIs(t, err, ErrNotRunning)
}
