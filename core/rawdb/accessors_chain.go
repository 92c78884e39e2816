// Package rawdb is the column-prefixed key/value surface this module reads
// and writes chain data through. It is a thin layer over go-ethereum's own
// core/rawdb for everything upstream already defines (headers, bodies,
// receipts, head pointers) and adds the extra columns this module owns:
// the trace index and the block queue's persisted replay set.
package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
)

// ReadHeader retrieves the block header corresponding to the hash and
// number. Delegates straight to go-ethereum; kept as a named entry point so
// callers in this module go through one place, matching the column-schema
// convention the rest of this package follows for its own columns.
func ReadHeader(db ethdb.Reader, hash common.Hash, number uint64) *types.Header {
	return rawdb.ReadHeader(db, hash, number)
}

// WriteHeader stores a block header and its hash-to-number mapping.
func WriteHeader(db ethdb.KeyValueWriter, header *types.Header) {
	rawdb.WriteHeader(db, header)
}

// ReadHeadHeader returns the current canonical head header.
func ReadHeadHeader(db ethdb.Reader) *types.Header {
	headHash := rawdb.ReadHeadHeaderHash(db)
	if headHash == (common.Hash{}) {
		return nil
	}
	number := rawdb.ReadHeaderNumber(db, headHash)
	if number == nil {
		return nil
	}
	return ReadHeader(db, headHash, *number)
}

// ReadBody retrieves the block body (transactions, uncles/withdrawals)
// corresponding to the hash.
func ReadBody(db ethdb.Reader, hash common.Hash, number uint64) *types.Body {
	return rawdb.ReadBody(db, hash, number)
}

// WriteBody stores a block body into the database.
func WriteBody(db ethdb.KeyValueWriter, hash common.Hash, number uint64, body *types.Body) {
	rawdb.WriteBody(db, hash, number, body)
}
