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

package test

import (
	"path/filepath"
	"testing"

	"github.com/bottledcode/atlas-db/pkg/config"
)

// MemoryConfig returns a memory-only storage configuration. The data
// directory is a temporary one that must stay empty.
func MemoryConfig(t *testing.T) config.StorageConfig {
	t.Helper()
	return config.StorageConfig{
		DataDir:          filepath.Join(t.TempDir(), "data"),
		PersistToDisk:    false,
		UseBackendEngine: false,
	}
}

// DiskConfig returns a configuration persisting to a fresh temporary directory
func DiskConfig(t *testing.T, backend bool) config.StorageConfig {
	t.Helper()
	return config.StorageConfig{
		DataDir:          t.TempDir(),
		PersistToDisk:    true,
		UseBackendEngine: backend,
	}
}
