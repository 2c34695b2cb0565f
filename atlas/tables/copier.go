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
	"context"
	"errors"
	"fmt"

	"github.com/bottledcode/atlas-db/atlas/storage"
	"github.com/bottledcode/atlas-db/atlas/tablestore"
	"go.uber.org/zap"
)

// PageSize is the number of rows read per page while copying
const PageSize = 10

// Copier duplicates tables
type Copier struct {
	rt       *tablestore.Runtime
	log      *zap.Logger
	pageSize int
}

// NewCopier returns a copier operating on an initialized storage handle
func NewCopier(h *storage.Handle) *Copier {
	return &Copier{
		rt:       h.Runtime(),
		log:      h.Logger().Named("copier"),
		pageSize: PageSize,
	}
}

// Duplicate copies every row of source into target, creating target with
// source's attributes if it does not exist. Rows are copied as stored, read
// page by page but written in a single transaction: either all of them land in target or
// none do. Writes made to source while the copy runs may or may not be seen.
func (c *Copier) Duplicate(ctx context.Context, source, target string) error {
	fail := func(err error) error {
		return &CopyError{Source: source, Target: target, Err: err}
	}

	if source == target {
		return fail(errors.New("source and target are the same table"))
	}

	attributes, err := c.rt.Attributes(source)
	if err != nil {
		return fail(err)
	}
	if err := c.rt.CreateTable(ctx, target, attributes); err != nil && !errors.Is(err, tablestore.ErrTableExists) {
		return fail(fmt.Errorf("failed to create target: %w", err))
	}

	tx, err := c.rt.Begin(true)
	if err != nil {
		return fail(err)
	}
	defer tx.Discard()

	rows := 0
	pages := tx.RawPages(source, c.pageSize)
	for pages.Next(ctx) {
		for _, row := range pages.Page() {
			if err := tx.WriteRaw(ctx, target, row); err != nil {
				return fail(err)
			}
		}
		rows += len(pages.Page())
	}
	if err := pages.Err(); err != nil {
		return fail(err)
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("failed to commit copy: %w", err))
	}

	c.log.Info("table duplicated",
		zap.String("source", source),
		zap.String("target", target),
		zap.Int("rows", rows))
	return nil
}

// CloneNode duplicates every table of one node into another node's tables.
// It stops at the first failing table; tables already cloned are kept and
// their concrete names returned.
func (c *Copier) CloneNode(ctx context.Context, from, to string) ([]string, error) {
	if err := validatePart("node identifier", to); err != nil {
		return nil, &CopyError{Source: from, Target: to, Err: err}
	}

	var cloned []string
	for _, key := range nodeTables(c.rt, from) {
		target := TableKey{Node: to, Logical: key.Logical}.String()
		if err := c.Duplicate(ctx, key.String(), target); err != nil {
			return cloned, err
		}
		cloned = append(cloned, target)
	}
	return cloned, nil
}
