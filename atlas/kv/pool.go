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

package kv

import (
	"errors"
	"fmt"
	"sync"
)

// Pool holds the two stores a table runtime works with: the meta store keeps
// the schema and table catalog, the data store keeps table rows. Until a
// backend is attached both roles are served by the same store.
type Pool struct {
	dataStore Store
	metaStore Store
	mutex     sync.RWMutex
	closed    bool
}

// NewPool creates a pool whose data and metadata share one store
func NewPool(store Store) *Pool {
	return &Pool{
		dataStore: store,
		metaStore: store,
	}
}

// DataStore returns the store that holds table rows
func (p *Pool) DataStore() Store {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.closed {
		return nil
	}
	return p.dataStore
}

// MetaStore returns the store that holds the schema and catalog
func (p *Pool) MetaStore() Store {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.closed {
		return nil
	}
	return p.metaStore
}

// ReplaceDataStore moves row storage to store. A previously delegated data
// store is closed; the meta store is never closed here.
func (p *Pool) ReplaceDataStore(store Store) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return ErrClosed
	}

	previous := p.dataStore
	p.dataStore = store
	if previous != p.metaStore && previous != store {
		if err := previous.Close(); err != nil {
			return fmt.Errorf("failed to close previous data store: %w", err)
		}
	}
	return nil
}

// Close closes all stores in the pool
func (p *Pool) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil
	}

	var errs []error

	if p.dataStore != p.metaStore {
		if err := p.dataStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("data store close error: %w", err))
		}
	}

	if err := p.metaStore.Close(); err != nil {
		errs = append(errs, fmt.Errorf("meta store close error: %w", err))
	}

	p.closed = true

	return errors.Join(errs...)
}

// Sync synchronizes both stores to disk
func (p *Pool) Sync() error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.closed {
		return ErrClosed
	}

	if err := p.dataStore.Sync(); err != nil {
		return fmt.Errorf("data store sync error: %w", err)
	}

	if p.dataStore != p.metaStore {
		if err := p.metaStore.Sync(); err != nil {
			return fmt.Errorf("meta store sync error: %w", err)
		}
	}

	return nil
}

// Size returns the total size of all stores
func (p *Pool) Size() (dataSize, metaSize int64, err error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.closed {
		return 0, 0, ErrClosed
	}

	metaSize, err = p.metaStore.Size()
	if err != nil {
		return 0, 0, fmt.Errorf("meta store size error: %w", err)
	}
	if p.dataStore == p.metaStore {
		return metaSize, metaSize, nil
	}

	dataSize, err = p.dataStore.Size()
	if err != nil {
		return 0, 0, fmt.Errorf("data store size error: %w", err)
	}

	return dataSize, metaSize, nil
}
