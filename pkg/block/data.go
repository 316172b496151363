package block

const (
	dataHeaderSize = 40

	// PageHeaderSize precedes the payload of every page run.
	PageHeaderSize = 8
)

// DataKind selects the blob storage strategy.
type DataKind uint8

const (
	DataByte DataKind = iota // one contiguous page run
	DataFrag                 // rank tree of fragments
)

func (k DataKind) String() string {
	if k == DataFrag {
		return "frag"
	}
	return "byte"
}

// DataHeader describes a blob value.
type DataHeader struct {
	Kind      DataKind
	Encode    uint8 // opaque encode type, persisted for the caller
	Increment uint32
	Owner     Ref[TreeHeader]
	Length    uint64
	Allocated uint64 // bytes reserved for the payload
	// Ptr is the page run of a DataByte blob, or the fragment tree header
	// of a DataFrag blob.
	Ptr uint64
}

func (h *DataHeader) Type() Type { return TypeData }
func (h *DataHeader) Size() int  { return dataHeaderSize }

func (h *DataHeader) MarshalBinary() ([]byte, error) {
	buf := header(TypeData, dataHeaderSize)
	buf[1] = byte(h.Kind)
	buf[2] = h.Encode
	bin.PutUint32(buf[4:8], h.Increment)
	bin.PutUint64(buf[8:16], uint64(h.Owner))
	bin.PutUint64(buf[16:24], h.Length)
	bin.PutUint64(buf[24:32], h.Allocated)
	bin.PutUint64(buf[32:40], h.Ptr)
	return buf, nil
}

func (h *DataHeader) UnmarshalBinary(d []byte) error {
	if err := check(TypeData, dataHeaderSize, d); err != nil {
		return err
	}

	h.Kind = DataKind(d[1])
	h.Encode = d[2]
	h.Increment = bin.Uint32(d[4:8])
	h.Owner = Ref[TreeHeader](bin.Uint64(d[8:16]))
	h.Length = bin.Uint64(d[16:24])
	h.Allocated = bin.Uint64(d[24:32])
	h.Ptr = bin.Uint64(d[32:40])
	return nil
}

// PageHeader heads a run of raw payload blocks.
type PageHeader struct {
	Blocks uint32
}

func (h *PageHeader) Type() Type { return TypePage }
func (h *PageHeader) Size() int  { return PageHeaderSize }

// Capacity is the payload size of the run.
func (h *PageHeader) Capacity() uint64 {
	return uint64(h.Blocks)*BlockSize - PageHeaderSize
}

func (h *PageHeader) MarshalBinary() ([]byte, error) {
	buf := header(TypePage, PageHeaderSize)
	bin.PutUint32(buf[4:8], h.Blocks)
	return buf, nil
}

func (h *PageHeader) UnmarshalBinary(d []byte) error {
	if err := check(TypePage, PageHeaderSize, d); err != nil {
		return err
	}

	h.Blocks = bin.Uint32(d[4:8])
	return nil
}

// PagePayload returns the offset of the payload of the page run at ref.
func PagePayload(ref uint64) uint64 {
	return ref + PageHeaderSize
}
