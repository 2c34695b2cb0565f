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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotRunning is returned by table operations before Start or after Stop
	ErrNotRunning = errors.New("runtime is not running")

	// ErrNoSchema is returned by Start in disk mode when no schema was created in the data directory
	ErrNoSchema = errors.New("no schema in data directory")

	// ErrSchemaExists is returned by CreateSchema when the data directory already holds a schema
	ErrSchemaExists = errors.New("schema already exists")

	// ErrMemoryOnly is returned by disk-only operations when the schema lives in memory
	ErrMemoryOnly = errors.New("runtime is configured memory-only")

	// ErrBackendActive is returned by UseBackend when another engine already holds the rows
	ErrBackendActive = errors.New("another backend engine is active")

	// ErrNoDataDir is returned when disk mode is used without a data directory
	ErrNoDataDir = errors.New("no data directory configured")

	ErrTableExists       = errors.New("table already exists")
	ErrNoSuchTable       = errors.New("no such table")
	ErrInvalidTableName  = errors.New("invalid table name")
	ErrInvalidAttributes = errors.New("invalid attribute list")

	// ErrArity is returned when a record's field count differs from its table's attribute count
	ErrArity = errors.New("record does not match table arity")

	// ErrUnsupportedValue is returned when a field value cannot be read back once stored
	ErrUnsupportedValue = errors.New("unsupported field value")

	// ErrNotFound is returned when reading a key that has no row
	ErrNotFound = errors.New("record not found")

	// ErrBadContinuation is returned when a continuation is used against another table
	ErrBadContinuation = errors.New("continuation does not belong to table")

	// ErrTimeout is matched by every *TimeoutError
	ErrTimeout = errors.New("timed out waiting for tables")
)

// TimeoutError reports the tables that were still not ready when a wait gave up
type TimeoutError struct {
	Missing []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTimeout, strings.Join(e.Missing, ", "))
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
