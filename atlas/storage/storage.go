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

// Package storage brings the table runtime up for a process: it applies the
// resolved configuration, bootstraps the schema, starts the runtime and
// activates the backend engine. The resulting Handle is what table
// operations are performed through.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bottledcode/atlas-db/atlas/kv"
	"github.com/bottledcode/atlas-db/atlas/options"
	"github.com/bottledcode/atlas-db/atlas/tablestore"
	"github.com/bottledcode/atlas-db/pkg/config"
	"go.uber.org/zap"
)

type settings struct {
	backend kv.Engine
	log     *zap.Logger
}

// Option customises Initialize
type Option func(*settings)

// WithBackend replaces the default backend engine
func WithBackend(engine kv.Engine) Option {
	return func(s *settings) {
		s.backend = engine
	}
}

// WithLogger sets the logger handed to every stage and kept on the Handle
func WithLogger(log *zap.Logger) Option {
	return func(s *settings) {
		s.log = log
	}
}

// Handle is proof that storage was initialized. It is safe for concurrent use.
type Handle struct {
	runtime *tablestore.Runtime
	config  config.StorageConfig
	log     *zap.Logger
}

func (h *Handle) Runtime() *tablestore.Runtime {
	return h.runtime
}

func (h *Handle) Config() config.StorageConfig {
	return h.config
}

func (h *Handle) Logger() *zap.Logger {
	return h.log
}

// Close stops the runtime
func (h *Handle) Close() error {
	return h.runtime.Stop()
}

// Initialize runs Configure, BootstrapSchema, runtime start and
// RegisterBackend in that order, stopping at the first failure. It must
// complete before any table operation. Running it again on the same runtime
// with the same configuration succeeds because every stage is idempotent; a
// running runtime is never moved to another location, directory or backend.
func Initialize(ctx context.Context, rt *tablestore.Runtime, cfg config.StorageConfig, opts ...Option) (handle *Handle, err error) {
	s := &settings{backend: DefaultBackend}
	for _, opt := range opts {
		opt(s)
	}
	log := options.LoggerOr(s.log).Named("storage")

	defer func() {
		if r := recover(); r != nil {
			handle = nil
			err = stageError(ErrStorageInitFailed, "initialize", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			log.Error("storage initialization failed", zap.Error(err))
		}
	}()

	if rt == nil {
		return nil, stageError(ErrStorageInitFailed, "initialize", errors.New("no runtime"))
	}
	if err := ctx.Err(); err != nil {
		return nil, stageError(ErrStorageInitFailed, "initialize", err)
	}

	if rt.Running() {
		if err := checkRunning(rt, cfg, s.backend); err != nil {
			return nil, stageError(ErrStorageInitFailed, "initialize", err)
		}
	}

	Configure(rt, cfg, log)

	if err := BootstrapSchema(rt, log); err != nil {
		return nil, normalize(err)
	}

	if err := rt.Start(); err != nil {
		return nil, stageError(ErrRuntimeStartFailed, "runtime start", err)
	}

	if err := RegisterBackend(rt, cfg, s.backend, log); err != nil {
		if stopErr := rt.Stop(); stopErr != nil {
			log.Warn("failed to stop runtime after backend failure", zap.Error(stopErr))
		}
		return nil, normalize(err)
	}

	if stale := rt.MismatchedTables(); len(stale) > 0 {
		log.Warn("tables were created with another row store; their rows are not visible",
			zap.Strings("tables", stale),
			zap.String("backend", rt.Backend()))
	}

		log.Info("storage initialized",
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("persist_to_disk", cfg.PersistToDisk),
		zap.String("backend", rt.Backend()))

	return &Handle{runtime: rt, config: cfg, log: options.LoggerOr(s.log)}, nil
}

// Open creates a runtime and initializes it
func Open(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*Handle, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	return Initialize(ctx, tablestore.New(s.log), cfg, opts...)
}

// checkRunning rejects a configuration that would move the data of a
// running runtime somewhere else.
func checkRunning(rt *tablestore.Runtime, cfg config.StorageConfig, engine kv.Engine) error {
	location := schemaLocation(cfg)
	if location != rt.Location() {
		return fmt.Errorf("runtime is running %s, configuration asks for %s", rt.Location(), location)
	}
	if location == tablestore.Disk && cfg.DataDir != rt.Dir() {
		return fmt.Errorf("runtime is running in %s, configuration asks for %s", rt.Dir(), cfg.DataDir)
	}

	active := rt.Backend()
	switch {
	case cfg.BackendEnabled() && active == "":
		return fmt.Errorf("runtime is running without a backend, configuration enables %s", engine.Name())
	case cfg.BackendEnabled() && active != engine.Name():
		return fmt.Errorf("runtime is running with backend %s, configuration asks for %s", active, engine.Name())
	case !cfg.BackendEnabled() && active != "":
		return fmt.Errorf("runtime is running with backend %s, configuration disables it", active)
	}
	return nil
}

// normalize maps anything that is not already an *InitError to ErrStorageInitFailed
func normalize(err error) error {
	var initErr *InitError
	if errors.As(err, &initErr) {
		return err
	}
	return stageError(ErrStorageInitFailed, "initialize", err)
}
