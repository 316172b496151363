// Package db is the entry point of a treedb file: it manages the file
// lifecycle and exposes the trees and data values stored in it. Every file
// has a first tree, created with the file, whose slots usually hold nested
// trees.
package db

import (
	"go-treedb/pkg/allocator"
	"go-treedb/pkg/blob"
	"go-treedb/pkg/block"
	"go-treedb/pkg/bptree"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/pager"
	"go-treedb/util/logger"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Cursor addresses trees and their items, see bptree.Cursor.
type Cursor = bptree.Cursor

type DB struct {
	name   string
	opts   Options
	file   pager.File
	head   *block.FileHeader
	alloc  *allocator.Allocator
	forest *bptree.Forest
	blobs  *blob.Store
	log    *logrus.Entry
}

// Create creates a new file, overwriting any existing one.
func Create(name string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &DefaultOptions
	}

	f, err := pager.Create(name, &opts.Pager)
	if err != nil {
		return nil, err
	}

	db := newDB(name, opts, f)
	if err := db.format(opts.Compression); err != nil {
		f.Close()
		return nil, err
	}

	db.log.Infof("created %s", name)
	return db, nil
}

// Open opens an existing file and checks it was written on a host of the
// same byte order.
func Open(name string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &DefaultOptions
	}

	f, err := pager.Open(name, &opts.Pager)
	if err != nil {
		return nil, err
	}

	db := newDB(name, opts, f)
	if err := db.load(); err != nil {
		f.Close()
		return nil, err
	}

	db.log.Infof("opened %s", name)
	return db, nil
}

// Delete removes a closed file.
func Delete(name string, opts *Options) error {
	if opts == nil {
		opts = &DefaultOptions
	}
	return pager.Delete(name, &opts.Pager)
}

func newDB(name string, opts *Options, f pager.File) *DB {
	return &DB{
		name: name,
		opts: *opts,
		file: f,
		log:  logger.For("db").WithField("file", name),
	}
}

// format writes the headers of an empty file with its first tree.
func (db *DB) format(compression uint8) error {
	a, err := allocator.Create(db.file)
	if err != nil {
		return err
	}
	db.attach(a)

	first, err := db.forest.NewTree(block.TreeTrees, db.opts.NodeCount)
	if err != nil {
		return errors.Wrap(err, "failed to create first tree")
	}

	db.head = &block.FileHeader{
		LittleEndian: block.HostLittleEndian(),
		Compression:  compression,
		Version:      block.Version,
		FirstTree:    first,
	}
	return errors.Wrap(block.Store(db.file, block.FileHeaderOffset, db.head), "failed to write file header")
}

func (db *DB) load() error {
	db.head = &block.FileHeader{}
	if err := block.Load(db.file, block.FileHeaderOffset, db.head); err != nil {
		return errors.Wrap(err, "failed to read file header")
	}
	if err := db.head.Verify(); err != nil {
		return err
	}

	a, err := allocator.Open(db.file)
	if err != nil {
		return err
	}
	db.attach(a)
	return nil
}

func (db *DB) attach(a *allocator.Allocator) {
	db.alloc = a
	db.forest = bptree.New(a)
	db.blobs = blob.New(a, db.forest, &db.opts.Blob)
	db.forest.OnReleaseData(db.blobs.Release)
}

// Close flushes and closes the file. The DB can't be used afterwards.
func (db *DB) Close() error {
	if db.file == nil {
		return customerrors.ErrClosed
	}

	err := db.file.Flush()
	if cerr := db.file.Close(); err == nil {
		err = cerr
	}
	db.file = nil

	db.log.Info("closed")
	return errors.Wrapf(err, "failed to close %s", db.name)
}

func (db *DB) Flush() error {
	return errors.Wrap(db.file.Flush(), "failed to flush")
}

// Clear drops every tree and value, leaving an empty first tree. The
// compression byte of the file is kept.
func (db *DB) Clear() error {
	compression := db.head.Compression
	if err := db.file.SetSize(0); err != nil {
		return errors.Wrap(err, "failed to truncate file")
	}
	if err := db.format(compression); err != nil {
		return err
	}

	db.log.Info("cleared")
	return nil
}

// Purge gives the unused tail of the file back to the file system.
func (db *DB) Purge() error {
	if err := db.alloc.Purge(); err != nil {
		return err
	}

	db.log.Info("purged")
	return nil
}

// FirstTree returns the tree created with the file.
func (db *DB) FirstTree() block.Ref[block.TreeHeader] {
	return db.head.FirstTree
}

// Compression returns the compression byte recorded at creation.
func (db *DB) Compression() uint8 {
	return db.head.Compression
}

func nullTree(ref block.Ref[block.TreeHeader]) error {
	if ref.IsNil() {
		return errors.Wrap(customerrors.ErrNullRef, "tree reference")
	}
	return nil
}

func nullData(ref block.Ref[block.DataHeader]) error {
	if ref.IsNil() {
		return errors.Wrap(customerrors.ErrNullRef, "data reference")
	}
	return nil
}
