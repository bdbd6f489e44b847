package model

import (
	"maps"

	qcore "github.com/CrimsonAS/qcore/core"
	"github.com/rs/zerolog"
)

// AbstractItemModel is embedded in a type to make it an item model. The
// embedding type implements the rest of ItemModel.
//
// Structural changes must be bracketed by the matching Begin and End calls,
// with the model's data changed in between. The brackets emit the change
// signals and keep every PersistentModelIndex of the model pointing at the
// same item. Item models are not safe for concurrent use; they belong to the
// thread they live in.
type AbstractItemModel struct {
	qcore.Object

	DataChanged            func(topLeft, bottomRight ModelIndex, roles []Role) `qcore:"topLeft,bottomRight,roles"`
	LayoutAboutToBeChanged func()
	LayoutChanged          func()
	ModelAboutToBeReset    func()
	ModelReset             func()

	RowsAboutToBeInserted func(parent ModelIndex, first, last int)                                                      `qcore:"parent,first,last"`
	RowsInserted          func(parent ModelIndex, first, last int)                                                      `qcore:"parent,first,last"`
	RowsAboutToBeRemoved  func(parent ModelIndex, first, last int)                                                      `qcore:"parent,first,last"`
	RowsRemoved           func(parent ModelIndex, first, last int)                                                      `qcore:"parent,first,last"`
	RowsAboutToBeMoved    func(sourceParent ModelIndex, sourceStart, sourceEnd int, destParent ModelIndex, destRow int) `qcore:"sourceParent,sourceStart,sourceEnd,destinationParent,destinationRow"`
	RowsMoved             func(sourceParent ModelIndex, sourceStart, sourceEnd int, destParent ModelIndex, destRow int) `qcore:"sourceParent,sourceStart,sourceEnd,destinationParent,destinationRow"`

	ColumnsAboutToBeInserted func(parent ModelIndex, first, last int)                                                      `qcore:"parent,first,last"`
	ColumnsInserted          func(parent ModelIndex, first, last int)                                                      `qcore:"parent,first,last"`
	ColumnsAboutToBeRemoved  func(parent ModelIndex, first, last int)                                                      `qcore:"parent,first,last"`
	ColumnsRemoved           func(parent ModelIndex, first, last int)                                                      `qcore:"parent,first,last"`
	ColumnsAboutToBeMoved    func(sourceParent ModelIndex, sourceStart, sourceEnd int, destParent ModelIndex, destCol int) `qcore:"sourceParent,sourceStart,sourceEnd,destinationParent,destinationColumn"`
	ColumnsMoved             func(sourceParent ModelIndex, sourceStart, sourceEnd int, destParent ModelIndex, destCol int) `qcore:"sourceParent,sourceStart,sourceEnd,destinationParent,destinationColumn"`

	d *modelPrivate
}

func (m *AbstractItemModel) abstractItemModel() *AbstractItemModel { return m }

// impl returns the outer model, or nil before the model is initialized.
func (m *AbstractItemModel) impl() ItemModel {
	im, _ := m.Self().(ItemModel)
	return im
}

func (m *AbstractItemModel) priv() *modelPrivate {
	if m.d == nil {
		m.d = &modelPrivate{indexes: make(map[ModelIndex][]*persistentData)}
	}
	return m.d
}

func (m *AbstractItemModel) warn() *zerolog.Event {
	if app := m.Application(); app != nil {
		l := app.Logger()
		return l.Warn().Str("component", "model")
	}
	return nil
}

// CreateIndex returns an index of the model for the item at row and column
// identified by id. Models call it from their Index method.
func (m *AbstractItemModel) CreateIndex(row, column int, id uint64) ModelIndex {
	im := m.impl()
	if im == nil || row < 0 || column < 0 {
		return ModelIndex{}
	}
	return ModelIndex{row: row, column: column, id: id, model: im}
}

// HasIndex reports whether row and column are within the bounds of parent.
func (m *AbstractItemModel) HasIndex(row, column int, parent ModelIndex) bool {
	im := m.impl()
	if im == nil || row < 0 || column < 0 {
		return false
	}
	return row < im.RowCount(parent) && column < im.ColumnCount(parent)
}

func (m *AbstractItemModel) HasChildren(parent ModelIndex) bool {
	im := m.impl()
	return im != nil && im.RowCount(parent) > 0 && im.ColumnCount(parent) > 0
}

// RoleNames returns the names of the roles the model provides. Models with
// their own roles shadow it.
func (m *AbstractItemModel) RoleNames() map[Role]string {
	return maps.Clone(defaultRoleNames)
}

func (m *AbstractItemModel) emit(f func()) {
	if m.Initialized() {
		f()
	}
}

func (m *AbstractItemModel) pushChange(c change) {
	p := m.priv()
	p.changes = append(p.changes, c)
}

func (m *AbstractItemModel) popChange() (change, bool) {
	p := m.priv()
	if len(p.changes) == 0 {
		m.warn().Msg("End called without a matching Begin")
		return change{}, false
	}
	c := p.changes[len(p.changes)-1]
	p.changes = p.changes[:len(p.changes)-1]
	return c, true
}

// BeginInsertRows starts the insertion of rows first to last under parent.
// first is the row the new rows take; inserting at RowCount appends.
func (m *AbstractItemModel) BeginInsertRows(parent ModelIndex, first, last int) {
	im := m.impl()
	if im == nil {
		return
	}
	if first < 0 || first > im.RowCount(parent) || last < first {
		m.warn().Int("first", first).Int("last", last).Msg("invalid row range for insertion")
	}
	m.pushChange(change{parent: parent, first: first, last: last})
	m.emit(func() { m.RowsAboutToBeInserted(parent, first, last) })
	m.itemsAboutToBeInserted(im, parent, first, last, vertical)
}

// EndInsertRows completes a BeginInsertRows, once the rows exist in the
// model's data.
func (m *AbstractItemModel) EndInsertRows() {
	im := m.impl()
	if im == nil {
		return
	}
	c, ok := m.popChange()
	if !ok {
		return
	}
	m.itemsInserted(im, c.parent, c.first, c.last, vertical)
	m.emit(func() { m.RowsInserted(c.parent, c.first, c.last) })
}

// BeginRemoveRows starts the removal of rows first to last under parent.
func (m *AbstractItemModel) BeginRemoveRows(parent ModelIndex, first, last int) {
	im := m.impl()
	if im == nil {
		return
	}
	if first < 0 || last < first || last >= im.RowCount(parent) {
		m.warn().Int("first", first).Int("last", last).Msg("invalid row range for removal")
	}
	m.pushChange(change{parent: parent, first: first, last: last})
	m.emit(func() { m.RowsAboutToBeRemoved(parent, first, last) })
	m.itemsAboutToBeRemoved(parent, first, last, vertical)
}

func (m *AbstractItemModel) EndRemoveRows() {
	im := m.impl()
	if im == nil {
		return
	}
	c, ok := m.popChange()
	if !ok {
		return
	}
	m.itemsRemoved(im, c.parent, c.first, c.last, vertical)
	m.emit(func() { m.RowsRemoved(c.parent, c.first, c.last) })
}

// BeginMoveRows starts moving rows sourceFirst to sourceLast of
// sourceParent so that they are placed before destChild of destParent. It
// returns false, and nothing may be moved, if the move is impossible: rows
// cannot be moved into themselves or their own descendants, and a move within
// the same parent to a position inside or right after the range is a no-op.
func (m *AbstractItemModel) BeginMoveRows(sourceParent ModelIndex, sourceFirst, sourceLast int, destParent ModelIndex, destChild int) bool {
	return m.beginMove(sourceParent, sourceFirst, sourceLast, destParent, destChild, vertical)
}

func (m *AbstractItemModel) EndMoveRows() {
	m.endMove(vertical)
}

func (m *AbstractItemModel) BeginInsertColumns(parent ModelIndex, first, last int) {
	im := m.impl()
	if im == nil {
		return
	}
	if first < 0 || first > im.ColumnCount(parent) || last < first {
		m.warn().Int("first", first).Int("last", last).Msg("invalid column range for insertion")
	}
	m.pushChange(change{parent: parent, first: first, last: last})
	m.emit(func() { m.ColumnsAboutToBeInserted(parent, first, last) })
	m.itemsAboutToBeInserted(im, parent, first, last, horizontal)
}

func (m *AbstractItemModel) EndInsertColumns() {
	im := m.impl()
	if im == nil {
		return
	}
	c, ok := m.popChange()
	if !ok {
		return
	}
	m.itemsInserted(im, c.parent, c.first, c.last, horizontal)
	m.emit(func() { m.ColumnsInserted(c.parent, c.first, c.last) })
}

func (m *AbstractItemModel) BeginRemoveColumns(parent ModelIndex, first, last int) {
	im := m.impl()
	if im == nil {
		return
	}
	if first < 0 || last < first || last >= im.ColumnCount(parent) {
		m.warn().Int("first", first).Int("last", last).Msg("invalid column range for removal")
	}
	m.pushChange(change{parent: parent, first: first, last: last})
	m.emit(func() { m.ColumnsAboutToBeRemoved(parent, first, last) })
	m.itemsAboutToBeRemoved(parent, first, last, horizontal)
}

func (m *AbstractItemModel) EndRemoveColumns() {
	im := m.impl()
	if im == nil {
		return
	}
	c, ok := m.popChange()
	if !ok {
		return
	}
	m.itemsRemoved(im, c.parent, c.first, c.last, horizontal)
	m.emit(func() { m.ColumnsRemoved(c.parent, c.first, c.last) })
}

// BeginMoveColumns is BeginMoveRows for columns.
func (m *AbstractItemModel) BeginMoveColumns(sourceParent ModelIndex, sourceFirst, sourceLast int, destParent ModelIndex, destChild int) bool {
	return m.beginMove(sourceParent, sourceFirst, sourceLast, destParent, destChild, horizontal)
}

func (m *AbstractItemModel) EndMoveColumns() {
	m.endMove(horizontal)
}

func (m *AbstractItemModel) beginMove(sourceParent ModelIndex, sourceFirst, sourceLast int, destParent ModelIndex, destChild int, o orientation) bool {
	if m.impl() == nil || sourceFirst < 0 || sourceLast < sourceFirst || destChild < 0 {
		return false
	}
	if !allowMove(sourceParent, sourceFirst, sourceLast, destParent, destChild, o) {
		return false
	}

	// A parent that is a sibling of the moved items changes position when
	// the move completes.
	source := change{parent: sourceParent, first: sourceFirst, last: sourceLast}
	source.needsAdjust = sourceParent.IsValid() && o.pos(sourceParent) >= destChild && sourceParent.Parent() == destParent
	m.pushChange(source)

	destLast := destChild + sourceLast - sourceFirst
	dest := change{parent: destParent, first: destChild, last: destLast}
	dest.needsAdjust = destParent.IsValid() && o.pos(destParent) >= sourceFirst && destParent.Parent() == sourceParent
	m.pushChange(dest)

	if o == vertical {
		m.emit(func() { m.RowsAboutToBeMoved(sourceParent, sourceFirst, sourceLast, destParent, destChild) })
	} else {
		m.emit(func() { m.ColumnsAboutToBeMoved(sourceParent, sourceFirst, sourceLast, destParent, destChild) })
	}
	m.itemsAboutToBeMoved(sourceParent, sourceFirst, sourceLast, destParent, destChild, o)
	return true
}

func (m *AbstractItemModel) endMove(o orientation) {
	im := m.impl()
	if im == nil {
		return
	}
	insert, ok := m.popChange()
	if !ok {
		return
	}
	remove, ok := m.popChange()
	if !ok {
		return
	}

	source, dest := remove.parent, insert.parent
	n := remove.last - remove.first + 1
	if insert.needsAdjust {
		dest = o.shift(dest, -n)
	}
	if remove.needsAdjust {
		source = o.shift(source, n)
	}

	m.itemsMoved(im, source, remove.first, remove.last, dest, insert.first, o)
	if o == vertical {
		m.emit(func() { m.RowsMoved(source, remove.first, remove.last, dest, insert.first) })
	} else {
		m.emit(func() { m.ColumnsMoved(source, remove.first, remove.last, dest, insert.first) })
	}
}

// allowMove reports whether the items can be moved to destChild of
// destParent: not into themselves, and not into their own descendants.
func allowMove(sourceParent ModelIndex, first, last int, destParent ModelIndex, destChild int, o orientation) bool {
	if destParent == sourceParent {
		return !(destChild >= first && destChild <= last+1)
	}
	ancestor := destParent
	pos := o.pos(ancestor)
	for {
		if ancestor == sourceParent {
			if pos >= first && pos <= last {
				return false
			}
			break
		}
		if !ancestor.IsValid() {
			break
		}
		pos = o.pos(ancestor)
		ancestor = ancestor.Parent()
	}
	return true
}

// BeginResetModel starts a change that replaces the model's data entirely.
// All persistent indexes are invalidated by EndResetModel.
func (m *AbstractItemModel) BeginResetModel() {
	m.emit(func() { m.ModelAboutToBeReset() })
}

func (m *AbstractItemModel) EndResetModel() {
	m.invalidatePersistentIndexes()
	m.emit(func() { m.ModelReset() })
}

// ChangePersistentIndex makes the persistent indexes at from point to to.
// Models call it between LayoutAboutToBeChanged and LayoutChanged when items
// change position without a structural change.
func (m *AbstractItemModel) ChangePersistentIndex(from, to ModelIndex) {
	p := m.priv()
	list := p.indexes[from]
	if len(list) == 0 {
		return
	}
	data := list[0]
	p.remove(from, data)
	data.index = to
	if to.IsValid() {
		p.insert(data)
	}
}

// ChangePersistentIndexList changes each index in from to the index at the
// same position in to. The lists must have the same length.
func (m *AbstractItemModel) ChangePersistentIndexList(from, to []ModelIndex) {
	if len(from) != len(to) {
		m.warn().Int("from", len(from)).Int("to", len(to)).Msg("persistent index lists differ in length")
		return
	}
	p := m.priv()
	if len(p.indexes) == 0 {
		return
	}
	var reinsert []*persistentData
	for i := range from {
		if from[i] == to[i] {
			continue
		}
		list := p.indexes[from[i]]
		if len(list) == 0 {
			continue
		}
		data := list[0]
		p.remove(from[i], data)
		data.index = to[i]
		if data.index.IsValid() {
			reinsert = append(reinsert, data)
		}
	}
	for _, data := range reinsert {
		p.insert(data)
	}
}

// PersistentIndexList returns the indexes currently held by persistent
// indexes of the model.
func (m *AbstractItemModel) PersistentIndexList() []ModelIndex {
	p := m.priv()
	var out []ModelIndex
	for idx, list := range p.indexes {
		for range list {
			if idx.IsValid() {
				out = append(out, idx)
			}
		}
	}
	return out
}
