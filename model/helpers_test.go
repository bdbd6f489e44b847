package model

import (
	"context"
	"fmt"
	"io"
	"slices"
	"testing"
	"time"

	qcore "github.com/CrimsonAS/qcore/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *qcore.Application {
	t.Helper()
	cfg := qcore.DefaultConfig()
	cfg.WarnRate = 0
	app, err := qcore.NewApplication(cfg, qcore.WithLogger(zerolog.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, app.Close(ctx))
	})
	return app
}

func newStringModel(t *testing.T, list ...string) *StringListModel {
	t.Helper()
	m := NewStringListModel(list)
	require.NoError(t, newTestApp(t).Init(m, nil))
	return m
}

// persist returns persistent indexes for the given rows of a list model,
// released when the test ends.
func persist(t *testing.T, m ItemModel, rows ...int) []*PersistentModelIndex {
	t.Helper()
	var out []*PersistentModelIndex
	for _, row := range rows {
		idx := m.Index(row, 0, ModelIndex{})
		require.True(t, idx.IsValid(), "row %d", row)
		p := NewPersistentModelIndex(idx)
		t.Cleanup(p.Release)
		out = append(out, p)
	}
	return out
}

func rowsOf(ps []*PersistentModelIndex) []int {
	rows := make([]int, len(ps))
	for i, p := range ps {
		rows[i] = p.Row()
	}
	return rows
}

// rangeEvent is one emission of a rows or columns signal.
type rangeEvent struct {
	Signal string
	Parent ModelIndex
	First  int
	Last   int
}

func (e rangeEvent) String() string {
	return fmt.Sprintf("%s(%v,%d,%d)", e.Signal, e.Parent, e.First, e.Last)
}

func recordRanges(t *testing.T, m ItemModel, signals ...string) *[]rangeEvent {
	t.Helper()
	var got []rangeEvent
	for _, s := range signals {
		_, err := qcore.ConnectFunc(m, s, func(parent ModelIndex, first, last int) {
			got = append(got, rangeEvent{s, parent, first, last})
		})
		require.NoError(t, err)
	}
	return &got
}

type node struct {
	name     string
	id       uint64
	parent   *node
	children []*node
}

// treeModel is a single column tree of named nodes.
type treeModel struct {
	AbstractItemModel

	root  *node
	nodes map[uint64]*node
}

func newTreeModel(t *testing.T) *treeModel {
	t.Helper()
	m := &treeModel{root: &node{}, nodes: make(map[uint64]*node)}
	require.NoError(t, newTestApp(t).Init(m, nil))
	return m
}

// add appends nodes under parent without notifying.
func (m *treeModel) add(parent *node, names ...string) {
	for _, name := range names {
		n := &node{name: name, id: uint64(len(m.nodes) + 1), parent: parent}
		m.nodes[n.id] = n
		parent.children = append(parent.children, n)
	}
}

func (m *treeModel) nodeOf(idx ModelIndex) *node {
	if !idx.IsValid() {
		return m.root
	}
	return m.nodes[idx.InternalID()]
}

func (m *treeModel) find(name string) ModelIndex {
	var walk func(parent ModelIndex) ModelIndex
	walk = func(parent ModelIndex) ModelIndex {
		for row := range m.RowCount(parent) {
			idx := m.Index(row, 0, parent)
			if m.nodeOf(idx).name == name {
				return idx
			}
			if found := walk(idx); found.IsValid() {
				return found
			}
		}
		return ModelIndex{}
	}
	return walk(ModelIndex{})
}

func (m *treeModel) Index(row, column int, parent ModelIndex) ModelIndex {
	if !m.HasIndex(row, column, parent) {
		return ModelIndex{}
	}
	return m.CreateIndex(row, column, m.nodeOf(parent).children[row].id)
}

func (m *treeModel) Parent(child ModelIndex) ModelIndex {
	if !child.IsValid() {
		return ModelIndex{}
	}
	p := m.nodes[child.InternalID()].parent
	if p == nil || p == m.root {
		return ModelIndex{}
	}
	return m.CreateIndex(slices.Index(p.parent.children, p), 0, p.id)
}

func (m *treeModel) RowCount(parent ModelIndex) int { return len(m.nodeOf(parent).children) }
func (m *treeModel) ColumnCount(ModelIndex) int     { return 1 }

func (m *treeModel) Data(idx ModelIndex, role Role) any {
	if !idx.IsValid() || role != DisplayRole {
		return nil
	}
	return m.nodeOf(idx).name
}

func (m *treeModel) move(srcParent ModelIndex, first, last int, destParent ModelIndex, dest int) bool {
	if !m.BeginMoveRows(srcParent, first, last, destParent, dest) {
		return false
	}
	src, dst := m.nodeOf(srcParent), m.nodeOf(destParent)
	moved := slices.Clone(src.children[first : last+1])
	src.children = slices.Delete(src.children, first, last+1)
	if src == dst && dest > first {
		dest -= len(moved)
	}
	for _, n := range moved {
		n.parent = dst
	}
	dst.children = slices.Insert(dst.children, dest, moved...)
	m.EndMoveRows()
	return true
}

func (m *treeModel) remove(parent ModelIndex, first, last int) {
	m.BeginRemoveRows(parent, first, last)
	p := m.nodeOf(parent)
	p.children = slices.Delete(p.children, first, last+1)
	m.EndRemoveRows()
}

// tableModel is a flat table whose cells are named by their position at
// creation.
type tableModel struct {
	AbstractItemModel

	cells [][]string
}

func newTableModel(t *testing.T, rows, columns int) *tableModel {
	t.Helper()
	m := &tableModel{}
	for r := range rows {
		var row []string
		for c := range columns {
			row = append(row, fmt.Sprintf("%d:%d", r, c))
		}
		m.cells = append(m.cells, row)
	}
	require.NoError(t, newTestApp(t).Init(m, nil))
	return m
}

func (m *tableModel) Index(row, column int, parent ModelIndex) ModelIndex {
	if parent.IsValid() || !m.HasIndex(row, column, parent) {
		return ModelIndex{}
	}
	return m.CreateIndex(row, column, 0)
}

func (m *tableModel) Parent(ModelIndex) ModelIndex { return ModelIndex{} }

func (m *tableModel) RowCount(parent ModelIndex) int {
	if parent.IsValid() {
		return 0
	}
	return len(m.cells)
}

func (m *tableModel) ColumnCount(parent ModelIndex) int {
	if parent.IsValid() || len(m.cells) == 0 {
		return 0
	}
	return len(m.cells[0])
}

func (m *tableModel) Data(idx ModelIndex, role Role) any {
	if !idx.IsValid() {
		return nil
	}
	return m.cells[idx.Row()][idx.Column()]
}

func (m *tableModel) insertColumn(column int) {
	m.BeginInsertColumns(ModelIndex{}, column, column)
	for r := range m.cells {
		m.cells[r] = slices.Insert(m.cells[r], column, "new")
	}
	m.EndInsertColumns()
}

func (m *tableModel) removeColumn(column int) {
	m.BeginRemoveColumns(ModelIndex{}, column, column)
	for r := range m.cells {
		m.cells[r] = slices.Delete(m.cells[r], column, column+1)
	}
	m.EndRemoveColumns()
}

func (m *tableModel) moveColumn(from, to int) bool {
	if !m.BeginMoveColumns(ModelIndex{}, from, from, ModelIndex{}, to) {
		return false
	}
	for r := range m.cells {
		cell := m.cells[r][from]
		m.cells[r] = slices.Delete(m.cells[r], from, from+1)
		dest := to
		if to > from {
			dest--
		}
		m.cells[r] = slices.Insert(m.cells[r], dest, cell)
	}
	m.EndMoveColumns()
	return true
}
