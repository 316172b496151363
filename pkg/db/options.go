package db

import (
	"go-treedb/config"
	"go-treedb/pkg/blob"
	"go-treedb/pkg/pager"
)

type Options struct {
	Pager pager.Options `json:"pager"`
	Blob  blob.Options  `json:"blob"`

	// NodeCount is the fan-out of trees created with a zero fan-out.
	NodeCount uint16 `json:"node_count"`

	// Increment is the growth step of data values created with a zero
	// increment.
	Increment uint32 `json:"increment"`

	// Compression is recorded in the file header at creation.
	Compression uint8 `json:"compression"`
}

var DefaultOptions = Options{
	Pager:     pager.DefaultOptions,
	Blob:      blob.DefaultOptions,
	NodeCount: 32,
	Increment: 256,
}

// OptionsFromConfig builds the options of a store from its configuration.
func OptionsFromConfig(cfg *config.StoreConfig) *Options {
	opts := DefaultOptions
	if cfg == nil {
		return &opts
	}

	if cfg.Backend != "" {
		opts.Pager.Backend = cfg.Backend
	}
	if cfg.NodeCount > 0 {
		opts.NodeCount = uint16(cfg.NodeCount)
	}
	if cfg.Increment > 0 {
		opts.Increment = uint32(cfg.Increment)
	}
	opts.Blob.FragThreshold = uint32(cfg.FragThreshold)
	opts.Compression = cfg.Compression
	return &opts
}
