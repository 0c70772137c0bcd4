// Package grid is the reconciliation core of the sync client: one table's
// snapshot, display order, entity metadata and per-cell sync state.
//
// A Table does no I/O and no locking. Callers serialise access and perform
// network calls between the steps (Mark before a fetch, ApplyRefresh after;
// Edit before a save, Confirm or Fail after).
package grid

import (
	"fmt"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/order"
	"github.com/okian/salesgrid/internal/domain/sheet"
)

// SyncState tracks whether a locally edited cell reached the server.
type SyncState int

// Cell sync states.
const (
	Synced SyncState = iota
	Pending
	Failed
)

func (s SyncState) String() string {
	switch s {
	case Synced:
		return "synced"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("SyncState(%d)", int(s))
}

// CellRef names a cell of the table.
type CellRef struct {
	Entity string
	Field  sheet.Field
}

type cellState struct {
	state  SyncState
	seq    uint64  // sequence number of the latest local edit
	synced uint64  // sequence number when the cell last became synced
	base   float64 // last value known to be on the server
	err    error
}

// Edit describes a local change that has to be sent to the server.
type Edit struct {
	Table  sheet.TableID
	Entity string
	Field  sheet.Field
	Value  float64
	Seq    uint64
}

// Mark is the sequence observed when a refresh was issued. The sequence
// advances on every edit and on every settle.
type Mark uint64

// RefreshResult summarises what ApplyRefresh changed.
type RefreshResult struct {
	Added     []string
	Preserved []CellRef
}

// Table is the client-side state of one sheet.
type Table struct {
	id       sheet.TableID
	snapshot sheet.Snapshot
	entities map[string]model.Entity
	order    *order.Order
	cells    map[CellRef]*cellState
	seq      uint64
	loaded   bool
}

// New returns an empty, not yet loaded table.
func New(id sheet.TableID) *Table {
	return &Table{
		id:       id,
		snapshot: sheet.Snapshot{},
		entities: make(map[string]model.Entity),
		order:    order.New(),
		cells:    make(map[CellRef]*cellState),
	}
}

// ID returns the table identifier.
func (t *Table) ID() sheet.TableID { return t.id }

// Loaded reports whether a refresh has been applied at least once.
func (t *Table) Loaded() bool { return t.loaded }

// Mark captures the current sequence. Pass it to ApplyRefresh with the
// data fetched after the call.
func (t *Table) Mark() Mark { return Mark(t.seq) }

// ApplyRefresh merges server state fetched after mark was taken.
//
// Membership follows the display order rules: unseen entities are appended,
// missing ones stay, removed ones are ignored. A fetched value replaces the
// local one only if the cell was edited and settled before mark.
func (t *Table) ApplyRefresh(mark Mark, entities []model.Entity, cells sheet.Snapshot) RefreshResult {
	var res RefreshResult
	keys := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.Username == "" || t.order.Removed(e.Username) {
			continue
		}
		t.entities[e.Username] = e
		keys = append(keys, e.Username)
	}
	res.Added = t.order.Reconcile(keys)

	for _, key := range keys {
		for _, f := range sheet.Fields() {
			v := cells.Get(key, f)
			ref := CellRef{Entity: key, Field: f}
			cs := t.cells[ref]
			if cs == nil {
				t.snapshot.Set(key, f, v)
				continue
			}
			cs.base = v
			if cs.state != Synced || cs.seq > uint64(mark) || cs.synced > uint64(mark) {
				res.Preserved = append(res.Preserved, ref)
				continue
			}
			t.snapshot.Set(key, f, v)
		}
	}
	t.loaded = true
	return res
}

// Edit applies v to a displayed cell and marks it pending.
func (t *Table) Edit(entity string, f sheet.Field, v float64) (Edit, error) {
	if !t.order.Contains(entity) {
		return Edit{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	ref := CellRef{Entity: entity, Field: f}
	cs := t.cells[ref]
	if cs == nil {
		cs = &cellState{base: t.snapshot.Get(entity, f)}
		t.cells[ref] = cs
	}
	t.seq++
	cs.seq = t.seq
	cs.state = Pending
	cs.err = nil
	t.snapshot.Set(entity, f, v)
	return Edit{Table: t.id, Entity: entity, Field: f, Value: v, Seq: cs.seq}, nil
}

// Confirm records that the server accepted e. Outcomes of edits superseded
// by a newer edit of the same cell are ignored; it reports whether e applied.
func (t *Table) Confirm(e Edit) bool {
	cs := t.current(e)
	if cs == nil {
		return false
	}
	t.seq++
	cs.state = Synced
	cs.synced = t.seq
	cs.base = e.Value
	cs.err = nil
	return true
}

// Fail records that e could not be saved. The local value is kept and the
// cell is marked failed until Retry or Discard.
func (t *Table) Fail(e Edit, err error) bool {
	cs := t.current(e)
	if cs == nil {
		return false
	}
	cs.state = Failed
	cs.err = err
	return true
}

func (t *Table) current(e Edit) *cellState {
	cs := t.cells[CellRef{Entity: e.Entity, Field: e.Field}]
	if cs == nil || cs.seq != e.Seq || !t.order.Contains(e.Entity) {
		return nil
	}
	return cs
}

// Retry turns a failed cell back into a pending edit of its current value.
func (t *Table) Retry(entity string, f sheet.Field) (Edit, error) {
	cs := t.cells[CellRef{Entity: entity, Field: f}]
	if cs == nil || cs.state != Failed {
		return Edit{}, fmt.Errorf("%w: %s.%s", ErrNotFailed, entity, f)
	}
	return t.Edit(entity, f, t.snapshot.Get(entity, f))
}

// Discard rolls a failed cell back to the last value known on the server.
func (t *Table) Discard(entity string, f sheet.Field) error {
	ref := CellRef{Entity: entity, Field: f}
	cs := t.cells[ref]
	if cs == nil || cs.state != Failed {
		return fmt.Errorf("%w: %s.%s", ErrNotFailed, entity, f)
	}
	t.snapshot.Set(entity, f, cs.base)
	t.seq++
	cs.state = Synced
	cs.synced = t.seq
	cs.err = nil
	return nil
}

// AddEntity explicitly introduces an entity, clearing any earlier removal,
// and gives it an all-zero row until the server says otherwise.
func (t *Table) AddEntity(e model.Entity) {
	t.order.Add(e.Username)
	t.entities[e.Username] = e
	t.snapshot.EnsureRow(e.Username)
}

// RemoveEntity drops an entity, its cells and sync state. The removal is
// final against later refreshes until AddEntity.
func (t *Table) RemoveEntity(key string) bool {
	present := t.order.Remove(key)
	delete(t.entities, key)
	delete(t.snapshot, key)
	for ref := range t.cells {
		if ref.Entity == key {
			delete(t.cells, ref)
		}
	}
	return present
}

// Keys returns the display order.
func (t *Table) Keys() []string { return t.order.Keys() }

// Entity returns the metadata of a displayed entity.
func (t *Table) Entity(key string) (model.Entity, bool) {
	if !t.order.Contains(key) {
		return model.Entity{}, false
	}
	e, ok := t.entities[key]
	return e, ok
}

// Value returns the local value of a cell.
func (t *Table) Value(entity string, f sheet.Field) float64 {
	return t.snapshot.Get(entity, f)
}

// State returns the sync state of a cell and the error of a failed save.
func (t *Table) State(entity string, f sheet.Field) (SyncState, error) {
	cs := t.cells[CellRef{Entity: entity, Field: f}]
	if cs == nil {
		return Synced, nil
	}
	return cs.state, cs.err
}

// Snapshot returns a copy of the local cells.
func (t *Table) Snapshot() sheet.Snapshot { return t.snapshot.Clone() }

// Totals derives the aggregates from the current snapshot.
func (t *Table) Totals() sheet.Totals { return sheet.ComputeTotals(t.snapshot) }

// Count returns the number of cells in state s.
func (t *Table) Count(s SyncState) int {
	n := 0
	for _, cs := range t.cells {
		if cs.state == s {
			n++
		}
	}
	return n
}

// FailedCells lists cells whose save failed, in display order.
func (t *Table) FailedCells() []CellRef {
	var out []CellRef
	for _, key := range t.order.Keys() {
		for _, f := range sheet.Fields() {
			if cs := t.cells[CellRef{Entity: key, Field: f}]; cs != nil && cs.state == Failed {
				out = append(out, CellRef{Entity: key, Field: f})
			}
		}
	}
	return out
}
