// Package mode is the liveness/power mode controller: it decides, based
// on the configured mode, queue depth and idle time, when the importer
// sleeps and when it wakes, and notifies subscribers of each change. It
// does not change what the block queue accepts.
package mode

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"

	"github.com/corechain/corechain/core/rawdb"
	"github.com/corechain/corechain/core/types"
)

// MaxQueueSizeToSleepOn is the queue depth above which the controller
// refuses to sleep, even on an explicit Off transition: we do not sleep
// mid-sync.
const MaxQueueSizeToSleepOn = 2

// QueueLenFunc reports the current combined (unverified+verified) block
// queue depth.
type QueueLenFunc func() int

// Subscriber is notified when the controller sleeps or wakes. Start fires
// on wake, Stop fires on sleep — named for the work a subscriber starts or
// stops doing, not the controller's own state name.
type Subscriber interface {
	Start()
	Stop()
}

// Controller runs the mode state machine described by the table below. It
// is safe for concurrent use.
//
//	Active              never sleeps
//	Passive(idle, wake)  sleeps after idle past last activity; wakes itself
//	                     again after wake past last sleep
//	Dark(idle)           sleeps after idle past last activity; only wakes on
//	                     external activity (KeepAlive)
//	Off                  sleeps immediately; only wakes on an explicit
//	                     transition back to Active
type Controller struct {
	mu   sync.Mutex
	mode types.Mode

	queueLen  QueueLenFunc
	lastSeen  time.Time // last observed activity (KeepAlive or non-idle tick)
	lastSleep time.Time
	sleeping  bool

	db ethdb.Database // optional; persists the mode across restarts

	onChange    func(types.Mode)
	subscribers []Subscriber
}

// New builds a Controller starting in Active. Attach a database with
// WithPersistence to resume in the last persisted mode instead.
func New(queueLen QueueLenFunc, onChange func(types.Mode)) *Controller {
	return &Controller{
		mode:     types.ModeActive(),
		queueLen: queueLen,
		lastSeen: time.Now(),
		onChange: onChange,
	}
}

// WithPersistence attaches db so future mode transitions survive a
// restart, and restores whatever mode was last persisted, if any, instead
// of always resuming in Active.
func (c *Controller) WithPersistence(db ethdb.Database) *Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
	if m, ok := rawdb.ReadMode(db); ok {
		c.mode = m
	}
	return c
}

// Subscribe registers s to be notified of future sleep/wake transitions.
func (c *Controller) Subscribe(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, s)
}

// Mode returns the current mode.
func (c *Controller) Mode() types.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode explicitly forces a mode, e.g. from configuration or an RPC
// admin call. Transitioning to Off sleeps immediately (subject to the
// backlog guard); transitioning to Active always wakes, even out of Off.
func (c *Controller) SetMode(m types.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(m)
}

// Tick is called periodically by the importer's idle loop and applies the
// per-mode sleep/wake rule above.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	switch c.mode.Kind {
	case types.ModeKindActive:
		// never sleeps
	case types.ModeKindOff:
		// sleep is handled immediately at the SetMode transition; Tick has
		// nothing to enforce here since only an explicit Active transition
		// wakes Off.
	case types.ModeKindPassive:
		if c.sleeping {
			if now.Sub(c.lastSleep) >= c.mode.WakePeriod {
				c.wakeLocked()
			}
			return
		}
		if now.Sub(c.lastSeen) >= c.mode.IdleTimeout {
			c.trySleepLocked(now)
		}
	case types.ModeKindDark:
		if c.sleeping {
			return // only KeepAlive wakes Dark
		}
		if now.Sub(c.lastSeen) >= c.mode.IdleTimeout {
			c.trySleepLocked(now)
		}
	}
}

// KeepAlive records external activity (e.g. an inbound RPC read, a peer
// announcement) and wakes the controller if it is sleeping — except out of
// Off, which only an explicit SetMode(Active) call wakes.
func (c *Controller) KeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = time.Now()
	if c.sleeping && c.mode.Kind != types.ModeKindOff {
		c.wakeLocked()
	}
}

// trySleepLocked enforces the backlog guard before sleeping: we never sleep
// while the queue is carrying more than MaxQueueSizeToSleepOn blocks, even
// on Off's otherwise-immediate trigger.
func (c *Controller) trySleepLocked(now time.Time) {
	if c.queueLen() > MaxQueueSizeToSleepOn {
		return
	}
	c.sleeping = true
	c.lastSleep = now
	log.Info("Importer entering sleep", "mode", c.mode)
	c.notify(false)
}

func (c *Controller) wakeLocked() {
	c.sleeping = false
	log.Info("Importer waking up", "mode", c.mode)
	c.notify(true)
}

func (c *Controller) setLocked(m types.Mode) {
	if m == c.mode {
		return
	}
	log.Info("Importer mode change", "from", c.mode, "to", m)
	c.mode = m
	if c.db != nil {
		rawdb.WriteMode(c.db, m)
	}
	switch {
	case m.Kind == types.ModeKindOff:
		c.trySleepLocked(time.Now())
	case m.Kind == types.ModeKindActive && c.sleeping:
		c.wakeLocked()
	}
	if c.onChange != nil {
		c.onChange(m)
	}
}

func (c *Controller) notify(started bool) {
	for _, s := range c.subscribers {
		if s == nil {
			continue
		}
		if started {
			s.Start()
		} else {
			s.Stop()
		}
	}
}

// Sleeping reports whether the controller is currently in the sleep state.
func (c *Controller) Sleeping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeping
}
