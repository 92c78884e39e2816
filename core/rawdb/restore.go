package rawdb

import (
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
)

// restoreBatchSize bounds how many key/value pairs Restore buffers before
// flushing, mirroring the batch-then-flush convention the rest of this
// package's writers follow for bulk work.
const restoreBatchSize = 4096

// Restore copies every key/value pair from src into dst, in the
// iterator's natural order, batching writes for durability: pointing the
// store at a freshly populated backing — e.g. one reconstructed from a
// downloaded snapshot or a different disk — without requiring every caller
// to already agree on a key ordering or column layout; it simply replays
// whatever src already holds.
func Restore(src ethdb.Iteratee, dst ethdb.KeyValueWriter) (int, error) {
	it := src.NewIterator(nil, nil)
	defer it.Release()

	batch, flush := dst, (func() error)(nil)
	if b, ok := dst.(ethdb.Batcher); ok {
		nb := b.NewBatch()
		batch = nb
		flush = nb.Write
	}

	var n int
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		val := append([]byte(nil), it.Value()...)
		if err := batch.Put(key, val); err != nil {
			return n, err
		}
		n++
		if flush != nil && n%restoreBatchSize == 0 {
			if err := flush(); err != nil {
				return n, err
			}
			if b, ok := dst.(ethdb.Batcher); ok {
				nb := b.NewBatch()
				batch, flush = nb, nb.Write
			}
		}
	}
	if err := it.Error(); err != nil {
		return n, err
	}
	if flush != nil {
		if err := flush(); err != nil {
			return n, err
		}
	}
	log.Info("Restored key/value store", "entries", n)
	return n, nil
}
