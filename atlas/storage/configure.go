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
	"github.com/bottledcode/atlas-db/atlas/tablestore"
	"github.com/bottledcode/atlas-db/pkg/config"
	"go.uber.org/zap"
)

// Configure applies the schema location and data directory to the runtime.
// It cannot fail; settings the runtime cannot honour surface when the schema
// is created or the runtime starts.
func Configure(rt *tablestore.Runtime, cfg config.StorageConfig, log *zap.Logger) {
	location := schemaLocation(cfg)
	rt.Configure(location, cfg.DataDir)
	log.Debug("runtime configured",
		zap.Stringer("schema_location", location),
		zap.String("data_dir", cfg.DataDir))
}

func schemaLocation(cfg config.StorageConfig) tablestore.SchemaLocation {
	if cfg.MemoryOnly() {
		return tablestore.MemoryOnly
	}
	return tablestore.Disk
}
