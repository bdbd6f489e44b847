package model

import (
	"fmt"

	qcore "github.com/CrimsonAS/qcore/core"
)

// Role identifies one kind of data of an item.
type Role int

const (
	DisplayRole    Role = 0
	DecorationRole Role = 1
	EditRole       Role = 2
	ToolTipRole    Role = 3
	StatusTipRole  Role = 4
	WhatsThisRole  Role = 5
	// UserRole is the first role available for application data.
	UserRole Role = 0x0100
)

var defaultRoleNames = map[Role]string{
	DisplayRole:    "display",
	DecorationRole: "decoration",
	EditRole:       "edit",
	ToolTipRole:    "toolTip",
	StatusTipRole:  "statusTip",
	WhatsThisRole:  "whatsThis",
}

// ItemModel is implemented by every model. A model type embeds
// AbstractItemModel, or one of the types built on it, and implements the
// remaining methods.
type ItemModel interface {
	qcore.AnyObject

	Index(row, column int, parent ModelIndex) ModelIndex
	Parent(child ModelIndex) ModelIndex
	RowCount(parent ModelIndex) int
	ColumnCount(parent ModelIndex) int
	Data(index ModelIndex, role Role) any

	abstractItemModel() *AbstractItemModel
}

// EditableModel is implemented by models whose items can be changed through
// the model.
type EditableModel interface {
	ItemModel
	SetData(index ModelIndex, value any, role Role) bool
}

// ModelIndex locates an item in a model. An index is only valid until the
// model's structure changes; use PersistentModelIndex to keep one across
// changes.
//
// The zero ModelIndex is invalid, and is used as the parent of top level
// items.
type ModelIndex struct {
	row    int
	column int
	id     uint64
	model  ItemModel
}

// Row is the row of the index, or -1 if it is invalid.
func (i ModelIndex) Row() int {
	if i.model == nil {
		return -1
	}
	return i.row
}

// Column is the column of the index, or -1 if it is invalid.
func (i ModelIndex) Column() int {
	if i.model == nil {
		return -1
	}
	return i.column
}

// InternalID is the identifier the model assigned to the item when
// creating the index.
func (i ModelIndex) InternalID() uint64 { return i.id }

func (i ModelIndex) Model() ItemModel { return i.model }

func (i ModelIndex) IsValid() bool {
	return i.model != nil && i.row >= 0 && i.column >= 0
}

// Parent returns the parent of the item, which is invalid for top level
// items.
func (i ModelIndex) Parent() ModelIndex {
	if i.model == nil {
		return ModelIndex{}
	}
	return i.model.Parent(i)
}

// Sibling returns the item at row and column under the same parent.
func (i ModelIndex) Sibling(row, column int) ModelIndex {
	if i.model == nil {
		return ModelIndex{}
	}
	if i.row == row && i.column == column {
		return i
	}
	return i.model.Index(row, column, i.Parent())
}

func (i ModelIndex) Data(role Role) any {
	if i.model == nil {
		return nil
	}
	return i.model.Data(i, role)
}

func (i ModelIndex) String() string {
	if !i.IsValid() {
		return "ModelIndex(invalid)"
	}
	return fmt.Sprintf("ModelIndex(%d,%d,%d)", i.row, i.column, i.id)
}

// Less orders indexes by row, then column, then internal id.
func (i ModelIndex) Less(o ModelIndex) bool {
	if i.row != o.row {
		return i.row < o.row
	}
	if i.column != o.column {
		return i.column < o.column
	}
	return i.id < o.id
}
