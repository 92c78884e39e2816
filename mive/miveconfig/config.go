package miveconfig

// Defaults contains the default settings for the Mive service: follow a
// local full node over websocket (plain HTTP cannot serve the new-head
// subscription the handler relies on) and a database cache sized for a
// follower that replays one chain rather than syncing many peers.
var Defaults = Config{
	EthRpcUrl:     "ws://127.0.0.1:8546",
	StateScheme:   "hash",
	DatabaseCache: 512,
}

// Config contains configuration options for the Mive protocol.
type Config struct {
	EthRpcUrl string

	// State scheme represents the scheme used to store ethereum states and trie
	// nodes on top. It can be 'hash', 'path', or none which means use the scheme
	// consistent with persistent state.
	StateScheme string `toml:",omitempty"`

	// Database options
	DatabaseHandles int `toml:"-"`
	DatabaseCache   int
	DatabaseFreezer string

	// Enables tracking of SHA3 preimages in the VM
	EnablePreimageRecording bool
}
