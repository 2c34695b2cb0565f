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
	"fmt"
	"strings"

	"github.com/bottledcode/atlas-db/atlas/kv"
	"github.com/bottledcode/atlas-db/atlas/tablestore"
	"github.com/bottledcode/atlas-db/pkg/config"
	"go.uber.org/zap"
)

// DefaultBackend is the engine activated when the backend flag is on
var DefaultBackend kv.Engine = kv.SQLiteEngine{}

// Backends lists the engines that can be chosen by name
var Backends = []kv.Engine{kv.SQLiteEngine{}, kv.BadgerEngine{}}

// BackendByName returns the engine called name. An empty name selects
// DefaultBackend.
func BackendByName(name string) (kv.Engine, error) {
	if name == "" {
		return DefaultBackend, nil
	}
	names := make([]string, 0, len(Backends))
	for _, engine := range Backends {
		if engine.Name() == name {
			return engine, nil
		}
		names = append(names, engine.Name())
	}
	return nil, fmt.Errorf("unknown backend %q, choose one of %s", name, strings.Join(names, ", "))
}

// RegisterBackend activates the backend engine when both persistence and
// the backend flag are on. Otherwise it does nothing.
func RegisterBackend(rt *tablestore.Runtime, cfg config.StorageConfig, engine kv.Engine, log *zap.Logger) error {
	if !cfg.BackendEnabled() {
		return nil
	}

	if err := rt.UseBackend(engine); err != nil {
		return stageError(ErrBackendInitFailed, "backend registration", err)
	}

	log.Info("backend engine registered", zap.String("backend", engine.Name()))
	return nil
}
