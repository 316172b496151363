package main

import (
	"fmt"

	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/db"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// kvSlot is the first tree key holding the tree used by put and get.
const kvSlot = 1

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <file>",
		Short: "Create an empty file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := options()
			if err != nil {
				return err
			}
			d, err := db.Create(args[0], opts)
			if err != nil {
				return err
			}
			return d.Close()
		},
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <file>",
		Short: "Print block and content counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], func(d *db.DB) error {
				st, err := d.Stats()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "blocks:      %d (%d bytes)\n", st.BlockCount, st.BlockCount*block.BlockSize)
				fmt.Fprintf(out, "free blocks: %d in %d runs\n", st.FreeBlocks, st.FreeRuns)
				fmt.Fprintf(out, "trees:       %d (%d nodes, depth %d)\n", st.Trees, st.Nodes, st.Depth)
				fmt.Fprintf(out, "items:       %d\n", st.Items)
				fmt.Fprintf(out, "data values: %d (%d bytes)\n", st.Data, st.DataBytes)
				fmt.Fprintf(out, "page runs:   %d\n", st.Pages)
				return nil
			})
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Verify the allocator and every reachable tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], func(d *db.DB) error {
				if err := d.Check(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file> <key> <value>",
		Short: "Store a value under a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], func(d *db.DB) error {
				kv, err := kvTree(d, true)
				if err != nil {
					return err
				}

				data, err := d.NewData(kv, block.DataByte, 0, 0)
				if err != nil {
					return err
				}
				if _, err := d.SetDataValue(data, 0, []byte(args[2])); err != nil {
					return err
				}

				c := &db.Cursor{Tree: kv, KeyData: []byte(args[1]), Value: uint64(data), ValueType: block.ValueData}
				err = d.Insert(c)
				if errors.Is(err, customerrors.ErrKeyExists) {
					err = d.Update(c)
				}
				return err
			})
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file> <key>",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], func(d *db.DB) error {
				kv, err := kvTree(d, false)
				if err != nil {
					return err
				}

				c := &db.Cursor{Tree: kv, KeyData: []byte(args[1])}
				if err := d.Search(c); err != nil {
					return err
				}
				value, err := readValue(d, c)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(value))
				return nil
			})
		},
	}
}

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the first tree and the stored key/value pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(args[0], func(d *db.DB) error {
				out := cmd.OutOrStdout()
				err := each(d, d.FirstTree(), func(c *db.Cursor) error {
					_, err := fmt.Fprintf(out, "%d\t%s %d\n", c.Key, c.ValueType, c.Value)
					return err
				})
				if err != nil {
					return err
				}

				kv, err := kvTree(d, false)
				if errors.Is(err, customerrors.ErrKeyNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				return each(d, kv, func(c *db.Cursor) error {
					value, err := readValue(d, c)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out, "%q\t%q\n", c.KeyData, value)
					return err
				})
			})
		},
	}
}

// kvTree finds the key/value tree in the first tree, creating it when asked.
func kvTree(d *db.DB, create bool) (block.Ref[block.TreeHeader], error) {
	c := &db.Cursor{Tree: d.FirstTree(), Key: kvSlot}
	err := d.Search(c)
	if err == nil {
		return block.Ref[block.TreeHeader](c.Value), nil
	}
	missing := errors.Is(err, customerrors.ErrKeyNotFound) || errors.Is(err, customerrors.ErrEmptyTree)
	if !missing {
		return 0, err
	}
	if !create {
		return 0, errors.Wrap(customerrors.ErrKeyNotFound, "no key/value tree")
	}

	kv, err := d.NewTree(block.TreeData, 0)
	if err != nil {
		return 0, err
	}
	c = &db.Cursor{Tree: d.FirstTree(), Key: kvSlot, Value: uint64(kv), ValueType: block.ValueTree}
	return kv, d.Insert(c)
}

func readValue(d *db.DB, c *db.Cursor) ([]byte, error) {
	if c.ValueType != block.ValueData {
		return nil, errors.Wrapf(customerrors.ErrWrongKind, "value is a %s", c.ValueType)
	}

	ref := block.Ref[block.DataHeader](c.Value)
	size, err := d.GetDataSize(ref)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	_, err = d.GetDataValue(ref, 0, buf)
	return buf, err
}

// each calls fn for every item of a tree in order.
func each(d *db.DB, tree block.Ref[block.TreeHeader], fn func(c *db.Cursor) error) error {
	c := &db.Cursor{Tree: tree}
	err := d.First(c)
	for err == nil {
		if err = fn(c); err != nil {
			return err
		}
		err = d.Next(c)
	}
	if errors.Is(err, customerrors.ErrEndOfTree) || errors.Is(err, customerrors.ErrEmptyTree) {
		return nil
	}
	return err
}
