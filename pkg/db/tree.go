package db

import (
	"go-treedb/pkg/block"
)

// NewTree creates an empty tree. A zero fan-out uses the configured one.
func (db *DB) NewTree(kind block.TreeType, nodeCount uint16) (block.Ref[block.TreeHeader], error) {
	if nodeCount == 0 {
		nodeCount = db.opts.NodeCount
	}
	return db.forest.NewTree(kind, nodeCount)
}

// DeleteTree frees a tree with everything reachable from its items.
func (db *DB) DeleteTree(ref block.Ref[block.TreeHeader]) error {
	if err := nullTree(ref); err != nil {
		return err
	}
	return db.forest.DeleteTree(ref)
}

// EmptyTree removes every item of a tree, keeping the tree itself.
func (db *DB) EmptyTree(ref block.Ref[block.TreeHeader]) error {
	if err := nullTree(ref); err != nil {
		return err
	}
	return db.forest.EmptyTree(ref)
}

func (db *DB) header(ref block.Ref[block.TreeHeader]) (*block.TreeHeader, error) {
	if err := nullTree(ref); err != nil {
		return nil, err
	}
	return db.forest.Header(ref)
}

func (db *DB) SetTreeType(ref block.Ref[block.TreeHeader], kind block.TreeType) error {
	if err := nullTree(ref); err != nil {
		return err
	}
	return db.forest.SetType(ref, kind)
}

func (db *DB) GetTreeType(ref block.Ref[block.TreeHeader]) (block.TreeType, error) {
	h, err := db.header(ref)
	if err != nil {
		return 0, err
	}
	return h.Kind, nil
}

// SetTreeIndex links an index tree to a tree. The index is deleted with it.
func (db *DB) SetTreeIndex(ref, index block.Ref[block.TreeHeader]) error {
	if err := nullTree(ref); err != nil {
		return err
	}
	return db.forest.SetIndex(ref, index)
}

func (db *DB) GetTreeIndex(ref block.Ref[block.TreeHeader]) (block.Ref[block.TreeHeader], error) {
	h, err := db.header(ref)
	if err != nil {
		return 0, err
	}
	return h.Index, nil
}

// SetTreeStore attaches a value of type vt to a tree. The value is released
// with the tree.
func (db *DB) SetTreeStore(ref block.Ref[block.TreeHeader], vt block.ValueType, store uint64) error {
	if err := nullTree(ref); err != nil {
		return err
	}
	return db.forest.SetStore(ref, vt, store)
}

func (db *DB) GetTreeStore(ref block.Ref[block.TreeHeader]) (block.ValueType, uint64, error) {
	h, err := db.header(ref)
	if err != nil {
		return 0, 0, err
	}
	return h.StoreType, h.Store, nil
}

// GetTreeSize returns the number of items of a tree.
func (db *DB) GetTreeSize(ref block.Ref[block.TreeHeader]) (uint64, error) {
	h, err := db.header(ref)
	if err != nil {
		return 0, err
	}
	return h.Count, nil
}

func (db *DB) SetTreeDirty(ref block.Ref[block.TreeHeader], dirty bool) error {
	if err := nullTree(ref); err != nil {
		return err
	}
	return db.forest.SetDirty(ref, dirty)
}

func (db *DB) GetTreeDirty(ref block.Ref[block.TreeHeader]) (bool, error) {
	h, err := db.header(ref)
	if err != nil {
		return false, err
	}
	return h.Dirty, nil
}

// Search positions c on the item matching c.Key, or c.KeyData on data
// trees. On rank trees c.Rank is the position looked up.
func (db *DB) Search(c *Cursor) error {
	if err := nullTree(c.Tree); err != nil {
		return err
	}
	return db.forest.Search(c)
}

// SearchRank positions c on the item at position c.Rank.
func (db *DB) SearchRank(c *Cursor) error {
	if err := nullTree(c.Tree); err != nil {
		return err
	}
	return db.forest.SearchRank(c)
}

func (db *DB) Insert(c *Cursor) error {
	if err := nullTree(c.Tree); err != nil {
		return err
	}
	return db.forest.Insert(c)
}

// Update replaces the value of the item matching c, releasing the old one.
func (db *DB) Update(c *Cursor) error {
	if err := nullTree(c.Tree); err != nil {
		return err
	}
	return db.forest.Update(c)
}

// Delete removes the item matching c with what its key and value reference.
func (db *DB) Delete(c *Cursor) error {
	if err := nullTree(c.Tree); err != nil {
		return err
	}
	return db.forest.Delete(c)
}

func (db *DB) First(c *Cursor) error {
	if err := nullTree(c.Tree); err != nil {
		return err
	}
	return db.forest.First(c)
}

func (db *DB) Last(c *Cursor) error {
	if err := nullTree(c.Tree); err != nil {
		return err
	}
	return db.forest.Last(c)
}

func (db *DB) Next(c *Cursor) error {
	return db.forest.Next(c)
}

func (db *DB) Prev(c *Cursor) error {
	return db.forest.Prev(c)
}
