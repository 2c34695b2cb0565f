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

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bottledcode/atlas-db/atlas/kv"
	"github.com/bottledcode/atlas-db/atlas/tablestore"
	"github.com/bottledcode/atlas-db/atlas/test"
	"github.com/bottledcode/atlas-db/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func diskConfig(dir string, backend bool) config.StorageConfig {
	return config.StorageConfig{
		DataDir:          dir,
		PersistToDisk:    true,
		UseBackendEngine: backend,
	}
}

type failingEngine struct{}

func (failingEngine) Name() string {
	return "failing"
}

func (failingEngine) Open(string) (kv.Store, error) {
	return nil, errors.New("engine unavailable")
}

type panickingEngine struct{}

func (panickingEngine) Name() string {
	return "panicking"
}

func (panickingEngine) Open(string) (kv.Store, error) {
	panic("boom")
}

func TestInitializeMemoryOnly(t *testing.T) {
	cfg := test.MemoryConfig(t)
	dir := cfg.DataDir
	rt := tablestore.New(zaptest.NewLogger(t))

	// the backend flag is ignored without persistence
	cfg.UseBackendEngine = true
	h, err := Initialize(context.Background(), rt, cfg, WithLogger(zaptest.NewLogger(t)), WithBackend(failingEngine{}))
	require.NoError(t, err)
	defer h.Close()

	assert.True(t, rt.Running())
	assert.Equal(t, tablestore.MemoryOnly, rt.Location())
	assert.Empty(t, rt.Backend())
	assert.NoDirExists(t, dir)
	assert.Same(t, rt, h.Runtime())
	assert.Equal(t, cfg, h.Config())
	assert.NotNil(t, h.Logger())
}

func TestInitializeDiskWithBackend(t *testing.T) {
	cfg := test.DiskConfig(t, true)
	dir := cfg.DataDir

	h, err := Open(context.Background(), cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer h.Close()

	rt := h.Runtime()
	assert.Equal(t, tablestore.Disk, rt.Location())
	assert.Equal(t, "sqlite", rt.Backend())
	assert.DirExists(t, filepath.Join(dir, tablestore.SchemaDir))
	assert.FileExists(t, filepath.Join(dir, kv.SQLiteFilename))
}

func TestInitializeDiskWithoutBackend(t *testing.T) {
	cfg := test.DiskConfig(t, false)
	dir := cfg.DataDir

	h, err := Open(context.Background(), cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer h.Close()

	assert.Empty(t, h.Runtime().Backend())
	assert.DirExists(t, filepath.Join(dir, tablestore.SchemaDir))
	assert.NoFileExists(t, filepath.Join(dir, kv.SQLiteFilename))
}

func TestInitializeTwiceSucceeds(t *testing.T) {
	dir := t.TempDir()
	rt := tablestore.New(zaptest.NewLogger(t))
	cfg := diskConfig(dir, true)

	h, err := Initialize(context.Background(), rt, cfg)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, rt.CreateTable(context.Background(), "a", []string{"id"}))

	h2, err := Initialize(context.Background(), rt, cfg)
	require.NoError(t, err)
	assert.Same(t, rt, h2.Runtime())
	assert.Equal(t, []string{"a"}, rt.Tables())
	assert.Equal(t, "sqlite", rt.Backend())
}

func TestInitializeRefusesToMoveRunningRuntime(t *testing.T) {
	ctx := context.Background()
	rt := tablestore.New(zaptest.NewLogger(t))

	h, err := Initialize(ctx, rt, test.MemoryConfig(t))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, rt.CreateTable(ctx, "a@n", []string{"id", "v"}))
	require.NoError(t, rt.Write(ctx, tablestore.Record{Table: "a@n", Fields: []any{"k", "v"}}))

	diskCfg := test.DiskConfig(t, true)
	h2, err := Initialize(ctx, rt, diskCfg)
	assert.Nil(t, h2)
	require.ErrorIs(t, err, ErrStorageInitFailed)
	assert.Contains(t, err.Error(), "memory-only")

	// nothing about the running runtime changed
	assert.Equal(t, tablestore.MemoryOnly, rt.Location())
	assert.False(t, rt.Pending())
	assert.Empty(t, rt.Backend())
	assert.NoDirExists(t, filepath.Join(diskCfg.DataDir, tablestore.SchemaDir))
	rec, err := rt.Read(ctx, "a@n", "k")
	require.NoError(t, err)
	assert.Equal(t, []any{"k", "v"}, rec.Fields)
}

func TestInitializeRefusesBackendChangeWhileRunning(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rt := tablestore.New(zaptest.NewLogger(t))

	h, err := Initialize(ctx, rt, diskConfig(dir, false))
	require.NoError(t, err)
	defer h.Close()

	cases := map[string]config.StorageConfig{
		"enable backend": diskConfig(dir, true),
		"other dir":      diskConfig(t.TempDir(), false),
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Initialize(ctx, rt, cfg)
			assert.ErrorIs(t, err, ErrStorageInitFailed)
			assert.Empty(t, rt.Backend())
			assert.Equal(t, dir, rt.Dir())
		})
	}
	require.NoError(t, h.Close())

	h, err = Initialize(ctx, rt, diskConfig(dir, true))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", rt.Backend())

	_, err = Initialize(ctx, rt, diskConfig(dir, true), WithBackend(kv.BadgerEngine{}))
	assert.ErrorIs(t, err, ErrStorageInitFailed)
	_, err = Initialize(ctx, rt, diskConfig(dir, false))
	assert.ErrorIs(t, err, ErrStorageInitFailed)
	assert.Equal(t, "sqlite", rt.Backend())
}

func TestInitializeWarnsAboutTablesInAnotherStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	h, err := Open(ctx, diskConfig(dir, true))
	require.NoError(t, err)
	require.NoError(t, h.Runtime().CreateTable(ctx, "a@n", []string{"id"}))
	require.NoError(t, h.Close())

	core, logs := observer.New(zapcore.WarnLevel)
	h, err = Open(ctx, diskConfig(dir, false), WithLogger(zap.New(core)))
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, []string{"a@n"}, h.Runtime().MismatchedTables())
	warnings := logs.FilterMessageSnippet("another row store").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, []any{"a@n"}, warnings[0].ContextMap()["tables"])
}

func TestBackendByName(t *testing.T) {
	engine, err := BackendByName("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBackend.Name(), engine.Name())

	for _, name := range []string{"sqlite", "badger"} {
		engine, err := BackendByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, engine.Name())
	}

	_, err = BackendByName("postgres")
	assert.ErrorContains(t, err, "sqlite, badger")
}

func TestInitializeWithBadgerBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	h, err := Open(ctx, diskConfig(dir, true), WithBackend(kv.BadgerEngine{}))
	require.NoError(t, err)
	defer h.Close()

	rt := h.Runtime()
	assert.Equal(t, "badger", rt.Backend())
	assert.DirExists(t, filepath.Join(dir, kv.BadgerSubdir))
	require.NoError(t, rt.CreateTable(ctx, "a@n", []string{"id"}))
	def, err := rt.TableInfo("a@n")
	require.NoError(t, err)
	assert.Equal(t, "badger", def.Storage)
}

func TestReopenKeepsTables(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	h, err := Open(ctx, diskConfig(dir, true))
	require.NoError(t, err)
	rt := h.Runtime()
	require.NoError(t, rt.CreateTable(ctx, "a", []string{"id", "v"}))
	require.NoError(t, rt.Write(ctx, tablestore.Record{Table: "a", Fields: []any{"k", "v"}}))
	require.NoError(t, h.Close())

	h, err = Open(ctx, diskConfig(dir, true))
	require.NoError(t, err)
	defer h.Close()

	rec, err := h.Runtime().Read(ctx, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []any{"k", "v"}, rec.Fields)
}

func TestInitializeBackendFailure(t *testing.T) {
	rt := tablestore.New(zaptest.NewLogger(t))

	h, err := Initialize(context.Background(), rt, diskConfig(t.TempDir(), true), WithBackend(failingEngine{}))
	assert.Nil(t, h)
	require.ErrorIs(t, err, ErrBackendInitFailed)
	assert.Contains(t, err.Error(), "engine unavailable")
	assert.False(t, rt.Running())
}

func TestInitializeSchemaFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	h, err := Open(context.Background(), diskConfig(file, true))
	assert.Nil(t, h)
	require.ErrorIs(t, err, ErrSchemaCreationFailed)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "schema bootstrap", initErr.Stage)
}

func TestInitializeRecoversPanics(t *testing.T) {
	rt := tablestore.New(zaptest.NewLogger(t))
	defer rt.Stop()

	h, err := Initialize(context.Background(), rt, diskConfig(t.TempDir(), true), WithBackend(panickingEngine{}))
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrStorageInitFailed)
}

func TestInitializeRejectsMissingRuntimeAndDoneContext(t *testing.T) {
	_, err := Initialize(context.Background(), nil, diskConfig(t.TempDir(), false))
	assert.ErrorIs(t, err, ErrStorageInitFailed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := tablestore.New(zaptest.NewLogger(t))
	_, err = Initialize(ctx, rt, diskConfig(t.TempDir(), false))
	assert.ErrorIs(t, err, ErrStorageInitFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, rt.Running())
}

func TestInitErrorMatchesOnlyItsKind(t *testing.T) {
	cause := errors.New("disk on fire")
	err := stageError(ErrRuntimeStartFailed, "runtime start", cause)

	assert.ErrorIs(t, err, ErrRuntimeStartFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrSchemaCreationFailed)
	assert.NotErrorIs(t, err, ErrBackendInitFailed)
	assert.Equal(t, "runtime start failed during runtime start: disk on fire", err.Error())
}

func TestNormalizeKeepsInitErrors(t *testing.T) {
	original := stageError(ErrBackendInitFailed, "backend registration", errors.New("x"))
	assert.Same(t, original, normalize(original))

	wrapped := normalize(errors.New("unexpected"))
	assert.ErrorIs(t, wrapped, ErrStorageInitFailed)
}

func TestBootstrapSchemaSkipsMemoryOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	rt := tablestore.New(zaptest.NewLogger(t))
	rt.Configure(tablestore.MemoryOnly, dir)

	require.NoError(t, BootstrapSchema(rt, zaptest.NewLogger(t)))
	assert.NoDirExists(t, dir)
}

func TestRegisterBackendSkippedWhenDisabled(t *testing.T) {
	rt := tablestore.New(zaptest.NewLogger(t))

	// not running: any call into the runtime would fail
	for _, cfg := range []config.StorageConfig{
		{PersistToDisk: true, UseBackendEngine: false},
		{PersistToDisk: false, UseBackendEngine: true},
		{PersistToDisk: false, UseBackendEngine: false},
	} {
		assert.NoError(t, RegisterBackend(rt, cfg, failingEngine{}, zaptest.NewLogger(t)))
	}

	err := RegisterBackend(rt, config.StorageConfig{PersistToDisk: true, UseBackendEngine: true}, failingEngine{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrBackendInitFailed)
}
