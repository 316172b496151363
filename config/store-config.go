package config

type StoreConfig struct {
	// Backend selects the file implementation: "file", "mmap" or "memory".
	Backend string `json:"backend"`

	// NodeCount is the fan-out used for trees created without an explicit one.
	NodeCount int `json:"node_count"`

	// Increment is the growth step of blobs, and the fragment capacity of
	// fragmented blobs.
	Increment int `json:"increment"`

	// FragThreshold is the fragment length under which fragments are merged
	// with a neighbour. Zero means a quarter of the increment.
	FragThreshold int `json:"frag_threshold"`

	// Compression is stored in the file header and never interpreted.
	Compression uint8 `json:"compression"`
}

func NewStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:   "file",
		NodeCount: 32,
		Increment: 256,
	}
}
