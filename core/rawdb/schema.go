package rawdb

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Column prefixes for the data this module owns on top of go-ethereum's own
// schema. Mirrors the single-byte-prefix + big-endian-number convention
// go-ethereum's core/rawdb uses for its own keys.
var (
	traceIndexPrefix  = []byte("t")                 // traceIndexPrefix + num (big endian 8) + hash -> flat trace blob
	queueReplayPrefix = []byte("q")                 // queueReplayPrefix + hash -> RLP(types.Block) of queued-but-unimported blocks
	modePrefix        = []byte("m")                 // modePrefix -> JSON(types.Mode), the persisted liveness mode
	chainConfigPrefix = []byte("corechain-config-") // chainConfigPrefix + hash -> JSON(params.ChainConfig)
)

func encodeBlockNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

// traceIndexKey = traceIndexPrefix + num + hash
func traceIndexKey(number uint64, hash common.Hash) []byte {
	return append(append(traceIndexPrefix, encodeBlockNumber(number)...), hash.Bytes()...)
}

// queueReplayKey = queueReplayPrefix + hash
func queueReplayKey(hash common.Hash) []byte {
	return append(queueReplayPrefix, hash.Bytes()...)
}

// modeKey is a singleton key holding the last persisted liveness mode.
func modeKey() []byte {
	return modePrefix
}

// chainConfigKey = chainConfigPrefix + hash
func chainConfigKey(hash common.Hash) []byte {
	return append(chainConfigPrefix, hash.Bytes()...)
}
