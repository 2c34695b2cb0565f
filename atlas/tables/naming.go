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
	"fmt"
	"strings"

	"github.com/bottledcode/atlas-db/atlas/kv"
)

// Separator joins a logical table name and a node identifier into a concrete name
const Separator = "@"

// TableKey identifies one node's copy of a logical table
type TableKey struct {
	Node    string
	Logical string
}

// String formats the key as the concrete table name used by the runtime
func (k TableKey) String() string {
	return k.Logical + Separator + k.Node
}

// ConcreteName returns the storage table name of a node's logical table.
// Distinct keys map to distinct names as long as neither part contains
// Separator; see ValidateKey.
func ConcreteName(node, logical string) string {
	return TableKey{Node: node, Logical: logical}.String()
}

// ValidateKey rejects keys whose concrete name could alias another key's or
// that the runtime would refuse.
func ValidateKey(k TableKey) error {
	if err := validatePart("node identifier", k.Node); err != nil {
		return err
	}
	return validatePart("logical table name", k.Logical)
}

func validatePart(what, value string) error {
	if value == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidName, what)
	}
	for _, sep := range []string{Separator, kv.Separator} {
		if strings.Contains(value, sep) {
			return fmt.Errorf("%w: %s %q contains %q", ErrInvalidName, what, value, sep)
		}
	}
	return nil
}

// ParseConcreteName splits a concrete name produced by ConcreteName back
// into its key. It reports false for names that were not.
func ParseConcreteName(name string) (TableKey, bool) {
	i := strings.LastIndex(name, Separator)
	if i <= 0 || i == len(name)-len(Separator) {
		return TableKey{}, false
	}
	key := TableKey{Logical: name[:i], Node: name[i+len(Separator):]}
	if ValidateKey(key) != nil {
		return TableKey{}, false
	}
	return key, true
}
