package main

import (
	"fmt"
	"os"

	"go-treedb/config"
	"go-treedb/pkg/db"
	"go-treedb/util/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	backend    string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "treedb",
		Short:         "Inspect and edit treedb files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "JSON config file")
	root.PersistentFlags().StringVar(&backend, "backend", "", "file backend: file, mmap or memory")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level")

	root.AddCommand(
		createCmd(),
		statCmd(),
		checkCmd(),
		putCmd(),
		getCmd(),
		dumpCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// options loads the config file and applies the command line overrides.
func options() (*db.Options, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backend != "" {
		cfg.Store.Backend = backend
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}

	if err := logger.Configure(cfg.Logger); err != nil {
		return nil, err
	}
	return db.OptionsFromConfig(cfg.Store), nil
}

// withDB opens the named file, runs fn and closes the file.
func withDB(name string, fn func(d *db.DB) error) error {
	opts, err := options()
	if err != nil {
		return err
	}

	d, err := db.Open(name, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.L.WithError(err).Error("failed to close file")
		}
	}()
	return fn(d)
}
