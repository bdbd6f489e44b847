package model

import (
	"slices"

	qcore "github.com/CrimsonAS/qcore/core"
)

type orientation int

const (
	vertical orientation = iota
	horizontal
)

// pos is the position of idx along the orientation.
func (o orientation) pos(idx ModelIndex) int {
	if o == vertical {
		return idx.Row()
	}
	return idx.Column()
}

// shift returns the index of the item delta positions away from idx under
// the same parent.
func (o orientation) shift(idx ModelIndex, delta int) ModelIndex {
	if !idx.IsValid() {
		return idx
	}
	if o == vertical {
		return idx.model.Index(idx.row+delta, idx.column, idx.Parent())
	}
	return idx.model.Index(idx.row, idx.column+delta, idx.Parent())
}

// change is an operation between its Begin and End call.
type change struct {
	parent      ModelIndex
	first       int
	last        int
	needsAdjust bool
}

type modelPrivate struct {
	changes []change

	// indexes maps each index held by persistent indexes to their shared
	// data. Distinct data can hold the same index after ChangePersistentIndex.
	indexes     map[ModelIndex][]*persistentData
	moved       [][]*persistentData
	invalidated [][]*persistentData
	watching    bool
}

func (p *modelPrivate) insert(data *persistentData) {
	p.indexes[data.index] = append(p.indexes[data.index], data)
}

func (p *modelPrivate) remove(idx ModelIndex, data *persistentData) {
	list := p.indexes[idx]
	if i := slices.Index(list, data); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	if len(list) == 0 {
		delete(p.indexes, idx)
	} else {
		p.indexes[idx] = list
	}
}

func (p *modelPrivate) each(f func(*persistentData)) {
	for _, list := range p.indexes {
		for _, data := range list {
			f(data)
		}
	}
}

func (p *modelPrivate) pushMoved(list []*persistentData) {
	p.moved = append(p.moved, list)
}

func (p *modelPrivate) popMoved() []*persistentData {
	if len(p.moved) == 0 {
		return nil
	}
	list := p.moved[len(p.moved)-1]
	p.moved = p.moved[:len(p.moved)-1]
	return list
}

// persistentIndex returns the shared data tracking idx, creating it if
// needed.
func (m *AbstractItemModel) persistentIndex(idx ModelIndex) *persistentData {
	p := m.priv()
	if list := p.indexes[idx]; len(list) > 0 {
		return list[0]
	}
	data := &persistentData{index: idx}
	p.insert(data)
	if !p.watching && m.Initialized() {
		_, err := qcore.ConnectFunc(m.Self(), "destroyed", m.invalidatePersistentIndexes)
		p.watching = err == nil
	}
	return data
}

func (m *AbstractItemModel) releasePersistent(data *persistentData) {
	if m.d == nil || !data.index.IsValid() {
		return
	}
	m.d.remove(data.index, data)
}

func (m *AbstractItemModel) invalidatePersistentIndexes() {
	if m.d == nil {
		return
	}
	m.d.each(func(data *persistentData) {
		data.index = ModelIndex{}
	})
	clear(m.d.indexes)
}

// movePersistentIndexes shifts each index in list by change along the
// orientation, reparenting it to parent.
func (m *AbstractItemModel) movePersistentIndexes(im ItemModel, list []*persistentData, change int, parent ModelIndex, o orientation) {
	p := m.priv()
	for _, data := range list {
		row, column := data.index.row, data.index.column
		if o == vertical {
			row += change
		} else {
			column += change
		}
		p.remove(data.index, data)
		data.index = im.Index(row, column, parent)
		if data.index.IsValid() {
			p.insert(data)
		} else {
			m.warn().Int("row", row).Int("column", column).Msg("persistent index moved to an invalid position")
		}
	}
}

func (m *AbstractItemModel) itemsAboutToBeInserted(im ItemModel, parent ModelIndex, first, last int, o orientation) {
	p := m.priv()
	var persistentMoved []*persistentData
	count := im.RowCount(parent)
	if o == horizontal {
		count = im.ColumnCount(parent)
	}
	if first < count {
		p.each(func(data *persistentData) {
			idx := data.index
			if o.pos(idx) >= first && idx.IsValid() && idx.Parent() == parent {
				persistentMoved = append(persistentMoved, data)
			}
		})
	}
	p.pushMoved(persistentMoved)
}

func (m *AbstractItemModel) itemsInserted(im ItemModel, parent ModelIndex, first, last int, o orientation) {
	moved := m.priv().popMoved()
	m.movePersistentIndexes(im, moved, last-first+1, parent, o)
}

func (m *AbstractItemModel) itemsAboutToBeRemoved(parent ModelIndex, first, last int, o orientation) {
	p := m.priv()
	var persistentMoved, persistentInvalidated []*persistentData

	// Indexes below the removed items move up. Indexes in the removed items,
	// or in their descendants, become invalid.
	p.each(func(data *persistentData) {
		current := data.index
		levelChanged := false
		for current.IsValid() {
			currentParent := current.Parent()
			if currentParent == parent {
				pos := o.pos(current)
				if !levelChanged && pos > last {
					persistentMoved = append(persistentMoved, data)
				} else if pos >= first && pos <= last {
					persistentInvalidated = append(persistentInvalidated, data)
				}
				break
			}
			current = currentParent
			levelChanged = true
		}
	})
	p.pushMoved(persistentMoved)
	p.invalidated = append(p.invalidated, persistentInvalidated)
}

func (m *AbstractItemModel) itemsRemoved(im ItemModel, parent ModelIndex, first, last int, o orientation) {
	p := m.priv()
	moved := p.popMoved()
	m.movePersistentIndexes(im, moved, -(last - first + 1), parent, o)

	if len(p.invalidated) == 0 {
		return
	}
	invalidated := p.invalidated[len(p.invalidated)-1]
	p.invalidated = p.invalidated[:len(p.invalidated)-1]
	for _, data := range invalidated {
		p.remove(data.index, data)
		data.index = ModelIndex{}
	}
}

// itemsAboutToBeMoved collects the persistent indexes affected by a move.
// Three lists are pushed: the moved items themselves, the source siblings
// that shift to fill the gap, and the destination siblings that make room.
func (m *AbstractItemModel) itemsAboutToBeMoved(srcParent ModelIndex, srcFirst, srcLast int, destParent ModelIndex, destChild int, o orientation) {
	p := m.priv()
	var explicitMoved, movedInSource, movedInDest []*persistentData
	sameParent := srcParent == destParent
	movingUp := srcFirst > destChild

	p.each(func(data *persistentData) {
		idx := data.index
		if !idx.IsValid() {
			return
		}
		parent := idx.Parent()
		inSource, inDest := parent == srcParent, parent == destParent
		pos := o.pos(idx)

		switch {
		case !inSource && !inDest:
		case !sameParent && inDest:
			if pos >= destChild {
				movedInDest = append(movedInDest, data)
			}
		case sameParent && movingUp && pos < destChild:
		case sameParent && !movingUp && pos < srcFirst:
		case !sameParent && pos < srcFirst:
		case sameParent && pos > srcLast && pos >= destChild:
		case pos >= srcFirst && pos <= srcLast:
			explicitMoved = append(explicitMoved, data)
		default:
			// Siblings between the range and the destination shift to fill
			// the gap
			movedInSource = append(movedInSource, data)
		}
	})

	p.pushMoved(explicitMoved)
	p.pushMoved(movedInSource)
	p.pushMoved(movedInDest)
}

func (m *AbstractItemModel) itemsMoved(im ItemModel, srcParent ModelIndex, srcFirst, srcLast int, destParent ModelIndex, destChild int, o orientation) {
	p := m.priv()
	movedInDest := p.popMoved()
	movedInSource := p.popMoved()
	explicitMoved := p.popMoved()

	sameParent := srcParent == destParent
	movingUp := srcFirst > destChild
	n := srcLast - srcFirst + 1

	explicitChange := destChild - srcLast - 1
	if !sameParent || movingUp {
		explicitChange = destChild - srcFirst
	}
	sourceChange := n
	if !sameParent || !movingUp {
		sourceChange = -n
	}
	destChange := n

	m.movePersistentIndexes(im, explicitMoved, explicitChange, destParent, o)
	m.movePersistentIndexes(im, movedInSource, sourceChange, srcParent, o)
	m.movePersistentIndexes(im, movedInDest, destChange, destParent, o)
}
