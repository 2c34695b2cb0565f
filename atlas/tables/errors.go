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

package tables

import (
	"errors"
	"fmt"

	"github.com/bottledcode/atlas-db/atlas/tablestore"
)

var (
	// ErrInvalidName is returned for node identifiers or logical names that cannot be formatted safely
	ErrInvalidName = errors.New("invalid table name")

	ErrCreateFailed = errors.New("create table failed")
	ErrClearFailed  = errors.New("clear table failed")
	ErrCopyFailed   = errors.New("copy table failed")

	// ErrTimeout is matched by errors from WaitReady when tables did not become ready in time
	ErrTimeout = tablestore.ErrTimeout
)

// CreateError reports which table could not be created. Spec is set when
// the table came from a list of specs.
type CreateError struct {
	Table string
	Spec  *TableSpec
	Err   error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCreateFailed, e.Table, e.Err)
}

func (e *CreateError) Is(target error) bool {
	return target == ErrCreateFailed
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

type ClearError struct {
	Table string
	Err   error
}

func (e *ClearError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrClearFailed, e.Table, e.Err)
}

func (e *ClearError) Is(target error) bool {
	return target == ErrClearFailed
}

func (e *ClearError) Unwrap() error {
	return e.Err
}

type CopyError struct {
	Source string
	Target string
	Err    error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("%s: %s -> %s: %v", ErrCopyFailed, e.Source, e.Target, e.Err)
}

func (e *CopyError) Is(target error) bool {
	return target == ErrCopyFailed
}

func (e *CopyError) Unwrap() error {
	return e.Err
}
