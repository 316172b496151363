package block

const (
	nodeHeaderSize = 32
	leafSize       = 32
)

// NodeHeader heads a node run. The run holds the header block followed by
// NodeCount+1 leaf blocks.
type NodeHeader struct {
	Parent Ref[NodeHeader]
	// ParentIndex is the slot of Parent whose Child is this node, or -1 when
	// this node is the parent's FirstChild.
	ParentIndex int16
	LeafCount   uint16
	FirstChild  Ref[NodeHeader]
	// Weight is the total item weight of the subtree rooted here.
	Weight uint64
}

func (n *NodeHeader) Type() Type { return TypeNode }
func (n *NodeHeader) Size() int  { return nodeHeaderSize }

func (n *NodeHeader) MarshalBinary() ([]byte, error) {
	buf := header(TypeNode, nodeHeaderSize)
	bin.PutUint16(buf[2:4], uint16(n.ParentIndex))
	bin.PutUint16(buf[4:6], n.LeafCount)
	bin.PutUint64(buf[8:16], uint64(n.Parent))
	bin.PutUint64(buf[16:24], uint64(n.FirstChild))
	bin.PutUint64(buf[24:32], n.Weight)
	return buf, nil
}

func (n *NodeHeader) UnmarshalBinary(d []byte) error {
	if err := check(TypeNode, nodeHeaderSize, d); err != nil {
		return err
	}

	n.ParentIndex = int16(bin.Uint16(d[2:4]))
	n.LeafCount = bin.Uint16(d[4:6])
	n.Parent = Ref[NodeHeader](bin.Uint64(d[8:16]))
	n.FirstChild = Ref[NodeHeader](bin.Uint64(d[16:24]))
	n.Weight = bin.Uint64(d[24:32])
	return nil
}

// Leaf is one slot of a node. Child holds the keys between this slot and
// the next one.
type Leaf struct {
	ValueType ValueType
	Flags     uint8
	Key       uint64
	Value     uint64
	Child     Ref[NodeHeader]
}

func (l *Leaf) Type() Type { return TypeLeaf }
func (l *Leaf) Size() int  { return leafSize }

func (l *Leaf) MarshalBinary() ([]byte, error) {
	buf := header(TypeLeaf, leafSize)
	buf[1] = byte(l.ValueType)
	buf[2] = l.Flags
	bin.PutUint64(buf[8:16], l.Key)
	bin.PutUint64(buf[16:24], l.Value)
	bin.PutUint64(buf[24:32], uint64(l.Child))
	return buf, nil
}

func (l *Leaf) UnmarshalBinary(d []byte) error {
	if err := check(TypeLeaf, leafSize, d); err != nil {
		return err
	}

	l.ValueType = ValueType(d[1])
	l.Flags = d[2]
	l.Key = bin.Uint64(d[8:16])
	l.Value = bin.Uint64(d[16:24])
	l.Child = Ref[NodeHeader](bin.Uint64(d[24:32]))
	return nil
}

// NodeBytes is the size of a node run for the given fan-out.
func NodeBytes(nodeCount uint16) uint64 {
	return (uint64(nodeCount) + 2) * BlockSize
}

// LeafRef returns the location of slot i of node n.
func LeafRef(n Ref[NodeHeader], i int) Ref[Leaf] {
	return Ref[Leaf](n.Offset(uint64(i+1) * BlockSize))
}
