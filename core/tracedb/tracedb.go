// Package tracedb is the flat, append-only per-block index of execution
// traces, stored through core/rawdb's trace column. It follows
// go-ethereum's append-only freezer-table convention (write once, read by
// key, prune the oldest entries) rather than forcing traces through the
// state trie.
package tracedb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/hashicorp/go-bexpr"

	"github.com/corechain/corechain/core/rawdb"
)

// Trace is one call frame's worth of flat trace output: the minimal
// normalized record this module stores, regardless of which execution
// tracer produced it.
type Trace struct {
	TxHash   common.Hash
	Type     string // CALL, CREATE, STATICCALL, ...
	From     common.Address
	To       common.Address
	Value    []byte // big-endian wei amount
	GasUsed  uint64
	Depth    uint64
	Reverted bool
	Error    string
}

// BlockTrace is the full set of call frames produced by executing one
// block, in transaction order.
type BlockTrace struct {
	BlockHash common.Hash
	Number    uint64
	Traces    []Trace
}

// TraceDB stores and retrieves block traces and supports evaluating a
// boolean filter predicate over individual Trace records.
type TraceDB struct {
	db     ethdb.KeyValueStore
	window uint64 // eras of trace data to retain; 0 = unbounded
}

// New opens a TraceDB with the given retention window (in eras/blocks).
func New(db ethdb.KeyValueStore, window uint64) *TraceDB {
	return &TraceDB{db: db, window: window}
}

// WriteBatch stages a block's trace set into w — typically the importer's
// shared per-block commit batch, so trace writes land in the same atomic
// write as the chain-store and journal updates for that block.
func (t *TraceDB) WriteBatch(w ethdb.KeyValueWriter, bt *BlockTrace) error {
	enc, err := rlp.EncodeToBytes(bt)
	if err != nil {
		return err
	}
	rawdb.WriteTrace(w, bt.Number, bt.BlockHash, enc)
	return nil
}

// Write persists a block's trace set directly, for callers (tests, ad hoc
// backfill) not threading a shared commit batch.
func (t *TraceDB) Write(bt *BlockTrace) error {
	return t.WriteBatch(t.db, bt)
}

// Read retrieves a block's trace set, or nil if none is stored (pruned or
// never traced).
func (t *TraceDB) Read(number uint64, hash common.Hash) (*BlockTrace, error) {
	data := rawdb.ReadTrace(t.db, number, hash)
	if data == nil {
		return nil, nil
	}
	bt := new(BlockTrace)
	if err := rlp.DecodeBytes(data, bt); err != nil {
		return nil, err
	}
	return bt, nil
}

// InvalidateBatch stages the removal of a retracted block's trace set into
// w — the importer's shared commit batch — so a reorg drops the losing
// fork's traces in the same atomic write that enacts the winning one.
func (t *TraceDB) InvalidateBatch(w ethdb.KeyValueWriter, number uint64, hash common.Hash) {
	rawdb.DeleteTrace(w, number, hash)
}

// TransactionTraces returns the call frames belonging to one transaction
// within a block's stored trace set, in frame order.
func (t *TraceDB) TransactionTraces(number uint64, hash, txHash common.Hash) ([]Trace, error) {
	bt, err := t.Read(number, hash)
	if err != nil || bt == nil {
		return nil, err
	}
	var out []Trace
	for _, tr := range bt.Traces {
		if tr.TxHash == txHash {
			out = append(out, tr)
		}
	}
	return out, nil
}

// Trace returns the index'th call frame of the txIndex'th transaction in a
// block's stored trace set, or nil if the block was never traced or the
// coordinates fall outside it.
func (t *TraceDB) Trace(number uint64, hash common.Hash, txIndex, index int) (*Trace, error) {
	bt, err := t.Read(number, hash)
	if err != nil || bt == nil {
		return nil, err
	}
	seen := -1
	var lastTx common.Hash
	for i := range bt.Traces {
		if bt.Traces[i].TxHash != lastTx {
			lastTx = bt.Traces[i].TxHash
			seen++
		}
		if seen == txIndex {
			if index == 0 {
				return &bt.Traces[i], nil
			}
			index--
		}
	}
	return nil, nil
}

// FilterRange evaluates expr against every trace of every canonical block
// in [from, to], resolving each number to its canonical hash through
// hashOf. Blocks with no stored trace set are skipped rather than treated
// as errors, since the retention window legitimately prunes old entries.
func (t *TraceDB) FilterRange(from, to uint64, hashOf func(uint64) common.Hash, expr string) ([]Trace, error) {
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, err
	}
	var out []Trace
	for n := from; n <= to; n++ {
		hash := hashOf(n)
		if hash == (common.Hash{}) {
			continue
		}
		bt, err := t.Read(n, hash)
		if err != nil {
			return nil, err
		}
		if bt == nil {
			continue
		}
		for _, tr := range bt.Traces {
			match, err := evaluator.Evaluate(traceFilterable(tr))
			if err != nil {
				return nil, err
			}
			if match {
				out = append(out, tr)
			}
		}
	}
	return out, nil
}

// Prune discards trace data for eras older than `keepAbove`, matching the
// journal's own era-retention bookkeeping (core/journaldb.MarkCanonical).
func (t *TraceDB) Prune(hash common.Hash, number, keepAbove uint64) {
	if t.window == 0 || number >= keepAbove {
		return
	}
	rawdb.DeleteTrace(t.db, number, hash)
}

// Filter evaluates a boolean expression (hashicorp/go-bexpr syntax, e.g.
// `From == "0xabc..." and Reverted == true`) against each trace in a
// block's set and returns the matches.
func (t *TraceDB) Filter(bt *BlockTrace, expr string) ([]Trace, error) {
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, err
	}
	var out []Trace
	for _, tr := range bt.Traces {
		match, err := evaluator.Evaluate(traceFilterable(tr))
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, tr)
		}
	}
	return out, nil
}

// traceFilterable is the type go-bexpr's reflection-based evaluator reads
// field values from.
type traceFilterable Trace
