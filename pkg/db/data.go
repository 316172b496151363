package db

import (
	"go-treedb/pkg/blob"
	"go-treedb/pkg/block"
)

// NewData creates an empty data value owned by a tree. A zero increment
// uses the configured one.
func (db *DB) NewData(
	owner block.Ref[block.TreeHeader],
	kind block.DataKind,
	increment uint32,
	encode uint8,
) (block.Ref[block.DataHeader], error) {
	if increment == 0 {
		increment = db.opts.Increment
	}
	return db.blobs.Create(kind, owner, increment, encode)
}

func (db *DB) DeleteData(ref block.Ref[block.DataHeader]) error {
	if err := nullData(ref); err != nil {
		return err
	}
	return db.blobs.Release(ref)
}

func (db *DB) open(ref block.Ref[block.DataHeader]) (blob.Storage, error) {
	if err := nullData(ref); err != nil {
		return nil, err
	}
	return db.blobs.Open(ref)
}

// SetDataSize truncates or zero extends a data value.
func (db *DB) SetDataSize(ref block.Ref[block.DataHeader], length uint64) error {
	st, err := db.open(ref)
	if err != nil {
		return err
	}
	return st.Resize(length)
}

func (db *DB) GetDataSize(ref block.Ref[block.DataHeader]) (uint64, error) {
	st, err := db.open(ref)
	if err != nil {
		return 0, err
	}
	return st.Length(), nil
}

// SetDataValue overwrites bytes from off, extending the value as needed.
func (db *DB) SetDataValue(ref block.Ref[block.DataHeader], off uint64, p []byte) (int, error) {
	st, err := db.open(ref)
	if err != nil {
		return 0, err
	}
	return st.WriteAt(p, off)
}

// GetDataValue reads into p from off. Bytes past the length read as zero.
func (db *DB) GetDataValue(ref block.Ref[block.DataHeader], off uint64, p []byte) (int, error) {
	st, err := db.open(ref)
	if err != nil {
		return 0, err
	}
	return st.ReadAt(p, off)
}

func (db *DB) InsertDataValue(ref block.Ref[block.DataHeader], off uint64, p []byte) error {
	st, err := db.open(ref)
	if err != nil {
		return err
	}
	return st.InsertAt(p, off)
}

// DeleteDataValue removes up to n bytes from off and returns how many were
// removed.
func (db *DB) DeleteDataValue(ref block.Ref[block.DataHeader], off, n uint64) (uint64, error) {
	st, err := db.open(ref)
	if err != nil {
		return 0, err
	}
	return st.DeleteAt(off, n)
}

func (db *DB) CopyDataValue(
	dst block.Ref[block.DataHeader], dstOff uint64,
	src block.Ref[block.DataHeader], srcOff uint64,
	n uint64,
) (uint64, error) {
	if err := nullData(dst); err != nil {
		return 0, err
	}
	if err := nullData(src); err != nil {
		return 0, err
	}
	return db.blobs.Copy(dst, dstOff, src, srcOff, n)
}

func (db *DB) MoveDataValue(
	dst block.Ref[block.DataHeader], dstOff uint64,
	src block.Ref[block.DataHeader], srcOff uint64,
	n uint64,
) (uint64, error) {
	if err := nullData(dst); err != nil {
		return 0, err
	}
	if err := nullData(src); err != nil {
		return 0, err
	}
	return db.blobs.Move(dst, dstOff, src, srcOff, n)
}

// SetFieldType records the encode type of a data value.
func (db *DB) SetFieldType(ref block.Ref[block.DataHeader], encode uint8) error {
	if err := nullData(ref); err != nil {
		return err
	}
	return db.blobs.SetEncode(ref, encode)
}

func (db *DB) GetFieldType(ref block.Ref[block.DataHeader]) (uint8, error) {
	if err := nullData(ref); err != nil {
		return 0, err
	}
	h, err := db.blobs.Header(ref)
	if err != nil {
		return 0, err
	}
	return h.Encode, nil
}

// GetDataKind returns the storage strategy of a data value.
func (db *DB) GetDataKind(ref block.Ref[block.DataHeader]) (block.DataKind, error) {
	if err := nullData(ref); err != nil {
		return 0, err
	}
	h, err := db.blobs.Header(ref)
	if err != nil {
		return 0, err
	}
	return h.Kind, nil
}
