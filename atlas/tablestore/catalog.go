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
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bottledcode/atlas-db/atlas/kv"
	"go.uber.org/zap"
)

// TableDef is the catalog entry of a table
type TableDef struct {
	Name       string    `json:"name"`
	Attributes []string  `json:"attributes"`
	Storage    string    `json:"storage"`
	CreatedAt  time.Time `json:"created_at"`
}

// Arity is the number of fields every record of the table carries
func (d *TableDef) Arity() int {
	return len(d.Attributes)
}

func (d *TableDef) clone() *TableDef {
	c := *d
	c.Attributes = slices.Clone(d.Attributes)
	return &c
}

// DefaultStorage is the Storage of tables whose rows live next to the catalog
const DefaultStorage = "default"

// rowStorage names the store rows currently go to. Callers hold r.mu.
func (r *Runtime) rowStorage() string {
	if r.backend == "" {
		return DefaultStorage
	}
	return r.backend
}

func catalogPrefix() []byte {
	return kv.NewKeyBuilder().Meta().Append("table").Append("").Build()
}

func catalogKey(name string) []byte {
	return kv.NewKeyBuilder().Meta().Append("table").Append(name).Build()
}

// ValidateTableName checks that name can be used as a storage table name
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTableName)
	}
	if strings.Contains(name, kv.Separator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidTableName, name, kv.Separator)
	}
	return nil
}

func validateAttributes(attributes []string) error {
	if len(attributes) == 0 {
		return fmt.Errorf("%w: a table needs at least a key attribute", ErrInvalidAttributes)
	}
	seen := make(map[string]bool, len(attributes))
	for _, attr := range attributes {
		if attr == "" {
			return fmt.Errorf("%w: empty attribute name", ErrInvalidAttributes)
		}
		if seen[attr] {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalidAttributes, attr)
		}
		seen[attr] = true
	}
	return nil
}

// CreateTable adds a table to the catalog. The first attribute is the key.
// It fails with ErrTableExists if the name is taken, whatever its definition.
func (r *Runtime) CreateTable(ctx context.Context, name string, attributes []string) error {
	if err := ValidateTableName(name); err != nil {
		return err
	}
	if err := validateAttributes(attributes); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return ErrNotRunning
	}
	if _, ok := r.tables[name]; ok {
		return ErrTableExists
	}

	def := &TableDef{
		Name:       name,
		Attributes: slices.Clone(attributes),
		Storage:    r.rowStorage(),
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal table definition: %w", err)
	}
	if err := r.pool.MetaStore().Put(ctx, catalogKey(name), data); err != nil {
		return fmt.Errorf("failed to store table definition for %s: %w", name, err)
	}

	r.tables[name] = def
	r.ready.mark(name)

	r.log.Debug("table created", zap.String("table", name), zap.Strings("attributes", attributes))
	return nil
}

// TableInfo returns a copy of the table's definition
func (r *Runtime) TableInfo(name string) (*TableDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return nil, ErrNotRunning
	}
	def, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return def.clone(), nil
}

// Attributes returns the table's ordered attribute list
func (r *Runtime) Attributes(name string) ([]string, error) {
	def, err := r.TableInfo(name)
	if err != nil {
		return nil, err
	}
	return def.Attributes, nil
}

// Exists reports whether the catalog holds the table
func (r *Runtime) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tables[name]
	return r.running && ok
}

// Tables lists every table name in sorted order
func (r *Runtime) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MismatchedTables lists the tables created while rows went to another
// store than the one in use now. Their rows are not visible until the
// runtime is brought up with that store again.
func (r *Runtime) MismatchedTables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return nil
	}
	current := r.rowStorage()
	var names []string
	for name, def := range r.tables {
		if def.Storage != current {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Runtime) table(name string) (*TableDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return nil, ErrNotRunning
	}
	def, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return def, nil
}

func loadCatalog(store kv.Store) ([]*TableDef, error) {
	iter := store.NewIterator(kv.IteratorOptions{
		Prefix:         catalogPrefix(),
		PrefetchValues: true,
	})
	defer iter.Close()

	var defs []*TableDef
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		data, err := item.ValueCopy()
		if err != nil {
			return nil, err
		}
		var def TableDef
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal table definition %s: %w", item.Key(), err)
		}
		defs = append(defs, &def)
	}
	return defs, nil
}
