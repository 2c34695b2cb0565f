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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClear(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 1500)
	fillTable(t, rt, "b", 3)

	require.NoError(t, rt.Clear(ctx, "a"))

	n, err := rt.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, rt.Exists("a"))

	n, err = rt.Count(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// clearing an empty table succeeds
	require.NoError(t, rt.Clear(ctx, "a"))
}

func TestClearUnknownTable(t *testing.T) {
	rt := newMemoryRuntime(t)
	assert.ErrorIs(t, rt.Clear(context.Background(), "nope"), ErrNoSuchTable)
}

func TestClearWithBackend(t *testing.T) {
	rt := newDiskRuntime(t, t.TempDir())
	require.NoError(t, rt.UseBackend(sqliteEngine()))
	fillTable(t, rt, "a", 70)

	require.NoError(t, rt.Clear(context.Background(), "a"))
	n, err := rt.Count(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDigest(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	fillTable(t, rt, "a", 12)
	fillTable(t, rt, "b", 12)

	da, err := rt.Digest(ctx, "a")
	require.NoError(t, err)
	db, err := rt.Digest(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, da, 64)
	assert.Equal(t, da, db, "identical contents hash the same regardless of table name")

	require.NoError(t, rt.Write(ctx, Record{Table: "b", Fields: []any{"extra", 1}}))
	db, err = rt.Digest(ctx, "b")
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestDigestCoversAttributes(t *testing.T) {
	rt := newMemoryRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.CreateTable(ctx, "a", []string{"id", "value"}))
	require.NoError(t, rt.CreateTable(ctx, "b", []string{"id", "other"}))

	da, err := rt.Digest(ctx, "a")
	require.NoError(t, err)
	db, err := rt.Digest(ctx, "b")
	require.NoError(t, err)
	assert.NotEqual(t, da, db)

	_, err = rt.Digest(ctx, "nope")
	assert.ErrorIs(t, err, ErrNoSuchTable)
}

func TestCountRespectsContext(t *testing.T) {
	rt := newMemoryRuntime(t)
	fillTable(t, rt, "a", 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rt.Count(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
