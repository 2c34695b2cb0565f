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

// Package tables manages each node's set of tables inside the shared
// runtime: naming, creation, readiness, truncation and duplication.
package tables

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/bottledcode/atlas-db/atlas/storage"
	"github.com/bottledcode/atlas-db/atlas/tablestore"
	"go.uber.org/zap"
)

// TableSpec describes a logical table. Attribute order is the positional
// layout of the table's records; the first attribute is the key.
type TableSpec struct {
	Name       string
	Attributes []string
}

// Manager creates, waits for and clears tables
type Manager struct {
	rt  *tablestore.Runtime
	log *zap.Logger
}

// NewManager returns a manager operating on an initialized storage handle
func NewManager(h *storage.Handle) *Manager {
	return &Manager{
		rt:  h.Runtime(),
		log: h.Logger().Named("tables"),
	}
}

// CreateTable creates the table unless it already exists. An existing table
// is left as it is, even if its attributes differ.
func (m *Manager) CreateTable(ctx context.Context, name string, attributes []string) error {
	err := m.rt.CreateTable(ctx, name, attributes)
	if err == nil || errors.Is(err, tablestore.ErrTableExists) {
		return nil
	}
	return &CreateError{Table: name, Err: err}
}

// CreateTables creates the node's tables in order and returns their concrete
// names. It stops at the first failure without removing the tables already
// created; those names are returned with the error so a caller can retry
// only the remainder.
func (m *Manager) CreateTables(ctx context.Context, node string, specs []TableSpec) ([]string, error) {
	names := make([]string, 0, len(specs))
	for i := range specs {
		spec := specs[i]
		key := TableKey{Node: node, Logical: spec.Name}

		err := ValidateKey(key)
		if err == nil {
			err = m.CreateTable(ctx, key.String(), spec.Attributes)
		}
		if err != nil {
			var createErr *CreateError
			if errors.As(err, &createErr) {
				err = createErr.Err
			}
			m.log.Warn("table creation stopped",
				zap.String("node", node),
				zap.String("table", spec.Name),
				zap.Int("created", len(names)),
				zap.Error(err))
			return names, &CreateError{Table: key.String(), Spec: &spec, Err: err}
		}
		names = append(names, key.String())
	}
	return names, nil
}

// WaitReady blocks until every named table is ready or the timeout elapses
func (m *Manager) WaitReady(ctx context.Context, names []string, timeout time.Duration) error {
	return m.rt.WaitForTables(ctx, names, timeout)
}

// EnsureNodeTables creates a node's tables and waits for them to be ready
func (m *Manager) EnsureNodeTables(ctx context.Context, node string, specs []TableSpec, timeout time.Duration) ([]string, error) {
	names, err := m.CreateTables(ctx, node, specs)
	if err != nil {
		return names, err
	}
	if err := m.WaitReady(ctx, names, timeout); err != nil {
		return names, err
	}
	return names, nil
}

// ClearTable removes every row of the node's table; the table itself stays
func (m *Manager) ClearTable(ctx context.Context, node, logical string) error {
	key := TableKey{Node: node, Logical: logical}
	if err := ValidateKey(key); err != nil {
		return &ClearError{Table: key.String(), Err: err}
	}
	if err := m.rt.Clear(ctx, key.String()); err != nil {
		return &ClearError{Table: key.String(), Err: err}
	}
	return nil
}

// NodeTables lists the keys of every table that belongs to node
func (m *Manager) NodeTables(node string) []TableKey {
	return nodeTables(m.rt, node)
}

func nodeTables(rt *tablestore.Runtime, node string) []TableKey {
	var keys []TableKey
	for _, name := range rt.Tables() {
		key, ok := ParseConcreteName(name)
		if ok && key.Node == node {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b TableKey) int {
		switch {
		case a.Logical < b.Logical:
			return -1
		case a.Logical > b.Logical:
			return 1
		}
		return 0
	})
	return keys
}
