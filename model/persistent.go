package model

// persistentData is shared by every PersistentModelIndex created for the
// same item, and updated by the model as its structure changes.
type persistentData struct {
	index ModelIndex
	ref   int
}

// PersistentModelIndex is a reference to an item that stays valid while the
// model inserts, removes and moves items around it. It becomes invalid when
// the item is removed, the model is reset or the model is deleted.
//
// A PersistentModelIndex is tracked by its model until Release is called.
// A nil *PersistentModelIndex is invalid.
type PersistentModelIndex struct {
	data *persistentData
}

// NewPersistentModelIndex returns a persistent index for idx. Persistent
// indexes of the same item share their state.
func NewPersistentModelIndex(idx ModelIndex) *PersistentModelIndex {
	if !idx.IsValid() {
		return &PersistentModelIndex{}
	}
	data := idx.model.abstractItemModel().persistentIndex(idx)
	data.ref++
	return &PersistentModelIndex{data: data}
}

// Index returns the current index of the item, which is invalid once the
// item is gone.
func (p *PersistentModelIndex) Index() ModelIndex {
	if p == nil || p.data == nil {
		return ModelIndex{}
	}
	return p.data.index
}

func (p *PersistentModelIndex) Row() int           { return p.Index().Row() }
func (p *PersistentModelIndex) Column() int        { return p.Index().Column() }
func (p *PersistentModelIndex) IsValid() bool      { return p.Index().IsValid() }
func (p *PersistentModelIndex) Parent() ModelIndex { return p.Index().Parent() }
func (p *PersistentModelIndex) Model() ItemModel   { return p.Index().Model() }

func (p *PersistentModelIndex) Data(role Role) any {
	return p.Index().Data(role)
}

// Equal reports whether p refers to the same item as o.
func (p *PersistentModelIndex) Equal(o *PersistentModelIndex) bool {
	return p.Index() == o.Index()
}

// Copy returns another persistent index sharing the state of p. Both must
// be released.
func (p *PersistentModelIndex) Copy() *PersistentModelIndex {
	if p == nil || p.data == nil {
		return &PersistentModelIndex{}
	}
	p.data.ref++
	return &PersistentModelIndex{data: p.data}
}

// Release stops tracking the item. The index is invalid afterwards.
func (p *PersistentModelIndex) Release() {
	if p == nil || p.data == nil {
		return
	}
	data := p.data
	p.data = nil
	data.ref--
	if data.ref == 0 && data.index.IsValid() {
		data.index.model.abstractItemModel().releasePersistent(data)
	}
}
