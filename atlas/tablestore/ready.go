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
	"sync"
	"time"
)

// readiness tracks loaded tables. Waiters block on changed, which is closed
// and replaced every time a table becomes ready.
type readiness struct {
	mu      sync.Mutex
	loaded  map[string]struct{}
	changed chan struct{}
}

func newReadiness() *readiness {
	return &readiness{
		loaded:  make(map[string]struct{}),
		changed: make(chan struct{}),
	}
}

func (r *readiness) mark(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaded[name] = struct{}{}
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *readiness) missing(names []string) ([]string, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var missing []string
	for _, name := range names {
		if _, ok := r.loaded[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, r.changed
}

// WaitForTables blocks until every named table is ready or timeout elapses.
// A timeout yields a *TimeoutError listing the tables still missing.
func (r *Runtime) WaitForTables(ctx context.Context, names []string, timeout time.Duration) error {
	r.mu.RLock()
	running, ready := r.running, r.ready
	r.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		missing, changed := ready.missing(names)
		if len(missing) == 0 {
			return nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return &TimeoutError{Missing: missing}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
