package block

const freeRunSize = 24

// FreeRun heads a run of unused blocks. Runs form a singly linked list
// ordered by offset.
type FreeRun struct {
	Length uint64 // in blocks
	Next   Ref[FreeRun]
}

func (r *FreeRun) Type() Type { return TypeFree }
func (r *FreeRun) Size() int  { return freeRunSize }

func (r *FreeRun) MarshalBinary() ([]byte, error) {
	buf := header(TypeFree, freeRunSize)
	bin.PutUint64(buf[8:16], r.Length)
	bin.PutUint64(buf[16:24], uint64(r.Next))
	return buf, nil
}

func (r *FreeRun) UnmarshalBinary(d []byte) error {
	if err := check(TypeFree, freeRunSize, d); err != nil {
		return err
	}

	r.Length = bin.Uint64(d[8:16])
	r.Next = Ref[FreeRun](bin.Uint64(d[16:24]))
	return nil
}
