package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestCommands(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cli.treedb")

	run(t, createCmd(), file)
	run(t, putCmd(), file, "alpha", "first")
	run(t, putCmd(), file, "beta", "second")
	run(t, putCmd(), file, "alpha", "replaced")

	require.Equal(t, "replaced\n", run(t, getCmd(), file, "alpha"))
	require.Equal(t, "ok\n", run(t, checkCmd(), file))

	dump := run(t, dumpCmd(), file)
	require.Contains(t, dump, "\"alpha\"\t\"replaced\"\n")
	require.Contains(t, dump, "\"beta\"\t\"second\"\n")

	stat := run(t, statCmd(), file)
	require.Contains(t, stat, "trees:       2 (2 nodes, depth 1)\n")
	require.Contains(t, stat, "data values: 2 (14 bytes)\n")
}

func TestGetMissingKey(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cli.treedb")
	run(t, createCmd(), file)

	cmd := getCmd()
	cmd.SetArgs([]string{file, "nope"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SilenceUsage = true
	require.Error(t, cmd.Execute())
}
