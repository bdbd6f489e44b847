// Package model provides item models on top of the qcore object system.
//
// A model presents items arranged in rows and columns, where each item may
// have a table of children of its own. Items are addressed with a ModelIndex,
// which is only meaningful until the model changes. A PersistentModelIndex
// follows its item as rows and columns are inserted, removed and moved:
//
//	m := model.NewStringListModel([]string{"a", "b", "c"})
//	app.Init(m, nil)
//	p := model.NewPersistentModelIndex(m.Index(1, 0, model.ModelIndex{}))
//	m.InsertRows(0, 2, model.ModelIndex{})
//	p.Row() // 3
//	p.Release()
//
// Models implement ItemModel by embedding AbstractItemModel, or ListModel
// for flat lists, and bracket every structural change of their data with the
// Begin and End calls of AbstractItemModel.
package model
