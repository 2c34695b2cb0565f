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

// Package tablestore is the table engine shared by every node in the process.
// It keeps a catalog of named tables with fixed attribute lists on top of
// the kv substrate, and offers transactions, paginated scans and readiness
// waits. Rows may be delegated to a persistent backend engine.
package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bottledcode/atlas-db/atlas/kv"
	"github.com/bottledcode/atlas-db/atlas/options"
	"go.uber.org/zap"
)

// SchemaLocation decides where the catalog lives
type SchemaLocation int

const (
	Disk SchemaLocation = iota
	MemoryOnly
)

func (l SchemaLocation) String() string {
	switch l {
	case Disk:
		return "disk"
	case MemoryOnly:
		return "memory-only"
	}
	return fmt.Sprintf("SchemaLocation(%d)", int(l))
}

// SchemaDir is the subdirectory of the data directory holding the schema store
const SchemaDir = "schema"

const schemaVersion = 1

type schemaMarker struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Host      string    `json:"host"`
}

func schemaKey() []byte {
	return kv.NewKeyBuilder().Meta().Append("schema").Build()
}

// placement is where a runtime keeps its catalog and on-disk artifacts
type placement struct {
	location SchemaLocation
	dir      string
}

// Runtime is a table engine instance. The zero value is not usable; call New.
type Runtime struct {
	mu         sync.RWMutex
	configured placement
	// active is the placement the running runtime was started with
	active  placement
	pool    *kv.Pool
	running bool
	backend string
	tables  map[string]*TableDef
	ready   *readiness
	log     *zap.Logger
}

// New creates a stopped runtime configured for disk storage with no directory
func New(log *zap.Logger) *Runtime {
	return &Runtime{
		configured: placement{location: Disk},
		tables:     make(map[string]*TableDef),
		ready:      newReadiness(),
		log:        options.LoggerOr(log).Named("runtime"),
	}
}

// Configure sets where the schema lives and which directory holds on-disk
// artifacts. Settings are read by CreateSchema and Start; a running runtime
// keeps the settings it was started with until it is stopped.
func (r *Runtime) Configure(location SchemaLocation, dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := placement{location: location, dir: dir}
	if r.running && next != r.active {
		r.log.Warn("runtime settings changed while running; they apply on next start",
			zap.Stringer("location", location),
			zap.String("dir", dir))
	}
	r.configured = next
}

// current is the placement in effect: the active one while running,
// otherwise the configured one. Callers hold r.mu.
func (r *Runtime) current() placement {
	if r.running {
		return r.active
	}
	return r.configured
}

// Location returns the schema location in effect
func (r *Runtime) Location() SchemaLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current().location
}

// Dir returns the data directory in effect
func (r *Runtime) Dir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current().dir
}

// Pending reports whether settings given to Configure wait for the next start
func (r *Runtime) Pending() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running && r.configured != r.active
}

// Running reports whether Start has completed and Stop has not been called
func (r *Runtime) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Backend returns the name of the engine rows are delegated to, or "" when
// rows live next to the catalog.
func (r *Runtime) Backend() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backend
}

// CreateSchema creates the on-disk schema in the configured directory.
// It fails with ErrSchemaExists when one is already there, which includes
// the case of a runtime running in disk mode.
func (r *Runtime) CreateSchema() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.current()
	if p.location == MemoryOnly {
		return ErrMemoryOnly
	}
	if r.running {
		return ErrSchemaExists
	}
	if p.dir == "" {
		return ErrNoDataDir
	}

	if err := os.MkdirAll(p.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := kv.NewBadgerStore(filepath.Join(p.dir, SchemaDir))
	if err != nil {
		return fmt.Errorf("failed to open schema store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.log.Error("failed to close schema store", zap.Error(err))
		}
	}()

	ctx := context.Background()
	_, err = store.Get(ctx, schemaKey())
	if err == nil {
		return ErrSchemaExists
	}
	if !errors.Is(err, kv.ErrKeyNotFound) {
		return fmt.Errorf("failed to read schema marker: %w", err)
	}

	host, _ := os.Hostname()
	marker, err := json.Marshal(schemaMarker{
		Version:   schemaVersion,
		CreatedAt: time.Now().UTC(),
		Host:      host,
	})
	if err != nil {
		return err
	}
	if err := store.Put(ctx, schemaKey(), marker); err != nil {
		return fmt.Errorf("failed to write schema marker: %w", err)
	}

	r.log.Info("schema created", zap.String("dir", p.dir))
	return nil
}

// Start opens the catalog and loads every known table. Starting a running
// runtime does nothing.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	store, err := openMetaStore(r.configured)
	if err != nil {
		return err
	}

	defs, err := loadCatalog(store)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to load table catalog: %w", err)
	}

	r.pool = kv.NewPool(store)
	r.tables = make(map[string]*TableDef, len(defs))
	r.ready = newReadiness()
	for _, def := range defs {
		r.tables[def.Name] = def
		r.ready.mark(def.Name)
	}
	r.active = r.configured
	r.running = true

	r.log.Info("runtime started",
		zap.Stringer("location", r.active.location),
		zap.String("dir", r.active.dir),
		zap.Int("tables", len(defs)))
	return nil
}

func openMetaStore(p placement) (kv.Store, error) {
	if p.location == MemoryOnly {
		return kv.NewMemoryStore()
	}
	if p.dir == "" {
		return nil, ErrNoDataDir
	}

	path := filepath.Join(p.dir, SchemaDir)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSchema
		}
		return nil, err
	}

	store, err := kv.NewBadgerStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema store: %w", err)
	}
	if _, err := store.Get(context.Background(), schemaKey()); err != nil {
		_ = store.Close()
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, ErrNoSchema
		}
		return nil, err
	}
	return store, nil
}

// UseBackend delegates row storage of every table to the engine, opened in
// the data directory. Using the engine that is already in use does nothing;
// switching to another one requires a restart.
func (r *Runtime) UseBackend(engine kv.Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ErrNotRunning
	}
	if r.active.location == MemoryOnly {
		return ErrMemoryOnly
	}
	if r.backend == engine.Name() {
		return nil
	}
	if r.backend != "" {
		return fmt.Errorf("%w: %s", ErrBackendActive, r.backend)
	}

	store, err := engine.Open(r.active.dir)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", engine.Name(), err)
	}
	if err := r.pool.ReplaceDataStore(store); err != nil {
		_ = store.Close()
		return err
	}
	r.backend = engine.Name()

	r.log.Info("row storage delegated to backend", zap.String("backend", engine.Name()))
	return nil
}

// Stop closes every store. Tables are no longer ready afterwards.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	err := r.pool.Close()
	r.pool = nil
	r.running = false
	r.active = placement{}
	r.backend = ""
	r.tables = make(map[string]*TableDef)
	r.ready = newReadiness()

	r.log.Info("runtime stopped")
	return err
}

// Sync flushes every store to disk
func (r *Runtime) Sync() error {
	pool, err := r.currentPool()
	if err != nil {
		return err
	}
	return pool.Sync()
}

// Size returns the on-disk size in bytes of the row store and of the
// catalog store. Both are the same store unless a backend is in use.
func (r *Runtime) Size() (rows, catalog int64, err error) {
	pool, err := r.currentPool()
	if err != nil {
		return 0, 0, err
	}
	return pool.Size()
}

func (r *Runtime) currentPool() (*kv.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return nil, ErrNotRunning
	}
	return r.pool, nil
}
