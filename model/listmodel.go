package model

// ListModel is embedded by models of a single column of items without
// children. The embedding type implements RowCount and Data.
type ListModel struct {
	AbstractItemModel
}

func (m *ListModel) Index(row, column int, parent ModelIndex) ModelIndex {
	if parent.IsValid() || !m.HasIndex(row, column, parent) {
		return ModelIndex{}
	}
	return m.CreateIndex(row, column, 0)
}

func (m *ListModel) Parent(child ModelIndex) ModelIndex {
	return ModelIndex{}
}

func (m *ListModel) ColumnCount(parent ModelIndex) int {
	if parent.IsValid() {
		return 0
	}
	return 1
}

func (m *ListModel) HasChildren(parent ModelIndex) bool {
	if parent.IsValid() {
		return false
	}
	return m.AbstractItemModel.HasChildren(parent)
}
