package model

import (
	"slices"
	"sort"
	"strings"
)

// StringListModel is an editable list of strings.
type StringListModel struct {
	ListModel

	list []string
}

// NewStringListModel returns a model holding a copy of list. It must be
// initialized before use.
func NewStringListModel(list []string) *StringListModel {
	return &StringListModel{list: slices.Clone(list)}
}

func (m *StringListModel) RowCount(parent ModelIndex) int {
	if parent.IsValid() {
		return 0
	}
	return len(m.list)
}

func (m *StringListModel) Data(index ModelIndex, role Role) any {
	if !index.IsValid() || index.Row() >= len(m.list) {
		return nil
	}
	if role == DisplayRole || role == EditRole {
		return m.list[index.Row()]
	}
	return nil
}

// SetData replaces the string at index. Only the display and edit roles can
// be set, and value must be a string.
func (m *StringListModel) SetData(index ModelIndex, value any, role Role) bool {
	if !index.IsValid() || index.Row() >= len(m.list) || (role != DisplayRole && role != EditRole) {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	if m.list[index.Row()] == s {
		return true
	}
	m.list[index.Row()] = s
	m.emit(func() { m.DataChanged(index, index, []Role{DisplayRole, EditRole}) })
	return true
}

// StringList returns a copy of the model's strings.
func (m *StringListModel) StringList() []string {
	return slices.Clone(m.list)
}

// SetStringList replaces the model's strings, resetting the model.
func (m *StringListModel) SetStringList(list []string) {
	m.BeginResetModel()
	m.list = slices.Clone(list)
	m.EndResetModel()
}

// InsertRows inserts count empty strings before row.
func (m *StringListModel) InsertRows(row, count int, parent ModelIndex) bool {
	if count < 1 || row < 0 || row > len(m.list) || parent.IsValid() {
		return false
	}
	m.BeginInsertRows(parent, row, row+count-1)
	m.list = slices.Insert(m.list, row, make([]string, count)...)
	m.EndInsertRows()
	return true
}

func (m *StringListModel) RemoveRows(row, count int, parent ModelIndex) bool {
	if count <= 0 || row < 0 || row+count > len(m.list) || parent.IsValid() {
		return false
	}
	m.BeginRemoveRows(parent, row, row+count-1)
	m.list = slices.Delete(m.list, row, row+count)
	m.EndRemoveRows()
	return true
}

// MoveRows moves count rows starting at sourceRow so that they are placed
// before destChild, which is a row number from before the move.
func (m *StringListModel) MoveRows(sourceParent ModelIndex, sourceRow, count int, destParent ModelIndex, destChild int) bool {
	if count <= 0 || sourceRow < 0 || sourceRow+count > len(m.list) ||
		destChild < 0 || destChild > len(m.list) ||
		sourceRow == destChild || sourceRow == destChild-1 ||
		sourceParent.IsValid() || destParent.IsValid() {
		return false
	}
	if !m.BeginMoveRows(sourceParent, sourceRow, sourceRow+count-1, destParent, destChild) {
		return false
	}
	moved := slices.Clone(m.list[sourceRow : sourceRow+count])
	m.list = slices.Delete(m.list, sourceRow, sourceRow+count)
	if destChild > sourceRow {
		destChild -= count
	}
	m.list = slices.Insert(m.list, destChild, moved...)
	m.EndMoveRows()
	return true
}

// Sort reorders the strings, keeping persistent indexes on the same strings.
func (m *StringListModel) Sort(descending bool) {
	m.emit(func() { m.LayoutAboutToBeChanged() })

	order := make([]int, len(m.list))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if descending {
			return m.list[order[a]] > m.list[order[b]]
		}
		return m.list[order[a]] < m.list[order[b]]
	})

	sorted := make([]string, len(m.list))
	newRow := make([]int, len(m.list))
	for to, from := range order {
		sorted[to] = m.list[from]
		newRow[from] = to
	}
	m.list = sorted

	from := m.PersistentIndexList()
	to := make([]ModelIndex, len(from))
	for i, idx := range from {
		to[i] = m.CreateIndex(newRow[idx.Row()], idx.Column(), 0)
	}
	m.ChangePersistentIndexList(from, to)

	m.emit(func() { m.LayoutChanged() })
}

// InsertSorted inserts s at its position in a list sorted in ascending
// order, and returns its row.
func (m *StringListModel) InsertSorted(s string) int {
	row := sort.Search(len(m.list), func(i int) bool { return strings.Compare(m.list[i], s) > 0 })
	m.BeginInsertRows(ModelIndex{}, row, row)
	m.list = slices.Insert(m.list, row, s)
	m.EndInsertRows()
	return row
}
