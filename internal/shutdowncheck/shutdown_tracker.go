// Package shutdowncheck contains the shutdown-marker tracker used to warn
// operators when the database was last closed uncleanly, matching
// go-ethereum's internal/shutdowncheck package in spirit: a marker key is
// written on startup and removed on a clean Stop, so a marker still present
// at the next startup means the previous run crashed or was killed.
package shutdowncheck

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
)

var shutdownMarkerKey = []byte("corechain-unclean-shutdown")

// ShutdownTracker pushes a marker to the database on start-up and removes
// it on a clean Stop; a marker observed at MarkStartup time means the
// process exited without calling Stop last time.
type ShutdownTracker struct {
	db   ethdb.Database
	stop chan struct{}
}

func NewShutdownTracker(db ethdb.Database) *ShutdownTracker {
	return &ShutdownTracker{db: db}
}

// MarkStartup logs a warning if the previous run's marker is still present,
// then writes a fresh marker for this run.
func (t *ShutdownTracker) MarkStartup() {
	if val, err := t.db.Get(shutdownMarkerKey); err == nil && len(val) == 8 {
		last := time.Unix(int64(binary.BigEndian.Uint64(val)), 0)
		log.Warn("Node was shut down ungracefully", "last-active", last)
	}
	t.writeMarker()
}

// Start launches a goroutine that periodically refreshes the marker's
// timestamp so a stale marker can be told apart from a recent crash.
func (t *ShutdownTracker) Start() {
	t.stop = make(chan struct{})
	go t.loop(t.stop)
}

// Stop ends the periodic refresh and removes the marker, since this is an
// orderly shutdown.
func (t *ShutdownTracker) Stop() {
	if t.stop != nil {
		close(t.stop)
	}
	t.db.Delete(shutdownMarkerKey)
}

func (t *ShutdownTracker) loop(stop chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.writeMarker()
		case <-stop:
			return
		}
	}
}

func (t *ShutdownTracker) writeMarker() {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(time.Now().Unix()))
	t.db.Put(shutdownMarkerKey, buf[:])
}
