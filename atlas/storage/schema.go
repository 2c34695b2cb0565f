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
	"errors"

	"github.com/bottledcode/atlas-db/atlas/tablestore"
	"go.uber.org/zap"
)

// BootstrapSchema makes sure the runtime has exactly one local schema.
// Memory-only runtimes have none, so there is nothing to do; an existing
// schema counts as success.
func BootstrapSchema(rt *tablestore.Runtime, log *zap.Logger) error {
	if rt.Location() == tablestore.MemoryOnly {
		log.Debug("memory-only runtime, skipping schema creation")
		return nil
	}

	err := rt.CreateSchema()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tablestore.ErrSchemaExists):
		log.Debug("schema already exists", zap.String("dir", rt.Dir()))
		return nil
	default:
		return stageError(ErrSchemaCreationFailed, "schema bootstrap", err)
	}
}
