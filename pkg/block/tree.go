package block

const treeHeaderSize = 40

// TreeType selects how a tree compares keys and what its values are.
type TreeType uint8

const (
	TreeKey   TreeType = iota // uint64 keys
	TreeTrees                 // uint64 keys, values are nested trees
	TreeData                  // variable length keys stored in page runs
	TreeRank                  // key is an item length, searched by position
)

func (t TreeType) String() string {
	switch t {
	case TreeKey:
		return "key"
	case TreeTrees:
		return "trees"
	case TreeData:
		return "data"
	case TreeRank:
		return "rank"
	}
	return "unknown"
}

// ValueType tells what a slot value refers to.
type ValueType uint8

const (
	ValueLiteral ValueType = iota
	ValueTree              // Ref[TreeHeader]
	ValueData              // Ref[DataHeader]
	ValuePage              // page run
)

var valueNames = [...]string{"literal", "tree", "data", "page"}

func (v ValueType) String() string {
	if int(v) < len(valueNames) {
		return valueNames[v]
	}
	return "unknown"
}

// TreeHeader describes one logical ordered collection.
type TreeHeader struct {
	Kind      TreeType
	NodeCount uint16 // maximum slots per node
	Dirty     bool
	StoreType ValueType
	Root      Ref[NodeHeader]
	Count     uint64
	Index     Ref[TreeHeader]
	Store     uint64
}

func (h *TreeHeader) Type() Type { return TypeTree }
func (h *TreeHeader) Size() int  { return treeHeaderSize }

func (h *TreeHeader) MarshalBinary() ([]byte, error) {
	buf := header(TypeTree, treeHeaderSize)
	buf[1] = byte(h.Kind)
	bin.PutUint16(buf[2:4], h.NodeCount)
	buf[4] = boolByte(h.Dirty)
	buf[5] = byte(h.StoreType)
	bin.PutUint64(buf[8:16], uint64(h.Root))
	bin.PutUint64(buf[16:24], h.Count)
	bin.PutUint64(buf[24:32], uint64(h.Index))
	bin.PutUint64(buf[32:40], h.Store)
	return buf, nil
}

func (h *TreeHeader) UnmarshalBinary(d []byte) error {
	if err := check(TypeTree, treeHeaderSize, d); err != nil {
		return err
	}

	h.Kind = TreeType(d[1])
	h.NodeCount = bin.Uint16(d[2:4])
	h.Dirty = d[4] == 1
	h.StoreType = ValueType(d[5])
	h.Root = Ref[NodeHeader](bin.Uint64(d[8:16]))
	h.Count = bin.Uint64(d[16:24])
	h.Index = Ref[TreeHeader](bin.Uint64(d[24:32]))
	h.Store = bin.Uint64(d[32:40])
	return nil
}
