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
	"fmt"
)

var (
	ErrSchemaCreationFailed = errors.New("schema creation failed")
	ErrRuntimeStartFailed   = errors.New("runtime start failed")
	ErrBackendInitFailed    = errors.New("backend initialization failed")

	// ErrStorageInitFailed covers initialization failures no stage anticipated
	ErrStorageInitFailed = errors.New("storage initialization failed")
)

// InitError is returned by every stage of Initialize. Kind is one of the
// sentinel errors above and is matched by errors.Is; Cause is the error the
// stage ran into.
type InitError struct {
	Kind  error
	Stage string
	Cause error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Stage, e.Cause)
}

func (e *InitError) Is(target error) bool {
	return target == e.Kind
}

func (e *InitError) Unwrap() error {
	return e.Cause
}

func stageError(kind error, stage string, cause error) error {
	return &InitError{Kind: kind, Stage: stage, Cause: cause}
}
