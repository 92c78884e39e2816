package rawdb

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"

	domaintypes "github.com/corechain/corechain/core/types"
	"github.com/corechain/corechain/params"
)

// WriteTrace stores the flat trace blob for a block under the trace-index
// column. The blob format is owned by core/tracedb; this package only knows
// about placement.
func WriteTrace(db ethdb.KeyValueWriter, number uint64, hash common.Hash, blob []byte) {
	if err := db.Put(traceIndexKey(number, hash), blob); err != nil {
		log.Crit("Failed to store trace blob", "err", err)
	}
}

// ReadTrace retrieves the flat trace blob for a block, or nil if absent.
func ReadTrace(db ethdb.KeyValueReader, number uint64, hash common.Hash) []byte {
	data, _ := db.Get(traceIndexKey(number, hash))
	return data
}

// DeleteTrace removes the trace blob for a block, used when the trace
// window is pruned.
func DeleteTrace(db ethdb.KeyValueWriter, number uint64, hash common.Hash) {
	if err := db.Delete(traceIndexKey(number, hash)); err != nil {
		log.Crit("Failed to delete trace blob", "err", err)
	}
}

// WriteQueuedBlock persists a block the queue has accepted but not yet
// imported, so a restart can resume verification instead of waiting for
// re-propagation.
func WriteQueuedBlock(db ethdb.KeyValueWriter, hash common.Hash, encoded []byte) {
	if err := db.Put(queueReplayKey(hash), encoded); err != nil {
		log.Crit("Failed to persist queued block", "err", err)
	}
}

// ReadQueuedBlock retrieves a previously persisted queued block.
func ReadQueuedBlock(db ethdb.KeyValueReader, hash common.Hash) []byte {
	data, _ := db.Get(queueReplayKey(hash))
	return data
}

// DeleteQueuedBlock removes a queued block once it has been imported or
// discarded.
func DeleteQueuedBlock(db ethdb.KeyValueWriter, hash common.Hash) {
	if err := db.Delete(queueReplayKey(hash)); err != nil {
		log.Crit("Failed to delete queued block", "err", err)
	}
}

// IterateQueuedBlocks returns the encoded bytes of every block persisted by
// WriteQueuedBlock and not yet removed by DeleteQueuedBlock, for replaying
// into the block queue on restart instead of waiting for re-propagation.
func IterateQueuedBlocks(db ethdb.Iteratee) [][]byte {
	it := db.NewIterator(queueReplayPrefix, nil)
	defer it.Release()

	var out [][]byte
	for it.Next() {
		out = append(out, append([]byte(nil), it.Value()...))
	}
	return out
}

// WriteMode persists the current liveness mode so a restart resumes in the
// same mode instead of defaulting to active.
func WriteMode(db ethdb.KeyValueWriter, mode domaintypes.Mode) {
	data, err := json.Marshal(mode)
	if err != nil {
		log.Crit("Failed to marshal mode", "err", err)
	}
	if err := db.Put(modeKey(), data); err != nil {
		log.Crit("Failed to persist mode", "err", err)
	}
}

// ReadMode retrieves the persisted liveness mode, and false if none was
// ever written.
func ReadMode(db ethdb.KeyValueReader) (domaintypes.Mode, bool) {
	data, _ := db.Get(modeKey())
	if len(data) == 0 {
		return domaintypes.Mode{}, false
	}
	var mode domaintypes.Mode
	if err := json.Unmarshal(data, &mode); err != nil {
		log.Error("Invalid persisted mode JSON", "err", err)
		return domaintypes.Mode{}, false
	}
	return mode, true
}

// WriteChainConfig persists the chain configuration associated with the
// given genesis/block hash.
func WriteChainConfig(db ethdb.KeyValueWriter, hash common.Hash, cfg *params.ChainConfig) {
	if cfg == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		log.Crit("Failed to marshal chain config", "err", err)
	}
	if err := db.Put(chainConfigKey(hash), data); err != nil {
		log.Crit("Failed to store chain config", "err", err)
	}
}

// ReadChainConfig retrieves the chain configuration for a hash, or nil if
// none was ever written.
func ReadChainConfig(db ethdb.KeyValueReader, hash common.Hash) *params.ChainConfig {
	data, _ := db.Get(chainConfigKey(hash))
	if len(data) == 0 {
		return nil
	}
	var cfg params.ChainConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Error("Invalid chain config JSON", "hash", hash, "err", err)
		return nil
	}
	return &cfg
}
