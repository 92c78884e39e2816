// Package types holds the domain types this module layers on top of
// go-ethereum's core/types. Block, Header and Receipts are used directly
// from go-ethereum; everything here is new vocabulary the import pipeline
// needs that upstream doesn't already provide.
package types

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PreverifiedBlock is a block that passed cheap, stateless checks (RLP
// decode, header self-consistency) but has not yet been through family
// verification or execution. It is the unit the block queue operates on.
type PreverifiedBlock struct {
	Block    *types.Block
	Bytes    []byte // original wire encoding, kept for re-broadcast/disk write
	Received int64  // unix nanos, used for queue ordering/metrics
}

func (b *PreverifiedBlock) Hash() common.Hash { return b.Block.Hash() }
func (b *PreverifiedBlock) NumberU64() uint64 { return b.Block.NumberU64() }
func (b *PreverifiedBlock) ParentHash() common.Hash {
	return b.Block.ParentHash()
}

// LockedBlock is a PreverifiedBlock that passed family verification: its
// parent is known and canonical ancestry is established, but it has not
// been executed yet. Execution against state happens between LockedBlock
// and SealedBlock.
type LockedBlock struct {
	PreverifiedBlock
	Parent *types.Header
}

// SealedBlock is a block that has been executed: state root checked against
// the header, receipts computed, ready to commit to the chain store.
type SealedBlock struct {
	LockedBlock
	Receipts types.Receipts
	Root     common.Hash // post-state root produced by execution
}

// ImportRoute describes the effect an import had on the canonical chain:
// which blocks were newly enacted (became canonical) and which were
// retracted (were canonical, now are not) as a result of a reorg.
type ImportRoute struct {
	Enacted   []common.Hash
	Retracted []common.Hash
	Omitted   []common.Hash // blocks stored but left non-canonical because they did not outweigh the head
}

func (r *ImportRoute) IsEmpty() bool {
	return len(r.Enacted) == 0 && len(r.Retracted) == 0
}

// TreeRoute describes the path between two blocks in the header tree: walk
// up `From` to the common ancestor, then down to `To`.
type TreeRoute struct {
	Ancestor  common.Hash
	Enacted   []common.Hash // ancestor -> To, exclusive of ancestor
	Retracted []common.Hash // From -> ancestor, exclusive of ancestor
}

func (r *TreeRoute) IsRetracting() bool { return len(r.Retracted) > 0 }

// ClientReport accumulates running totals across imports. Counters only
// ever increase; a restart starts them over from zero.
type ClientReport struct {
	ImportedCount       uint64
	BlocksImported      uint64
	TransactionsApplied uint64
	GasProcessed        uint64 // cumulative gas used across imported blocks
	StateDBMem          uint64 // bytes, filled in from memsize accounting
}

// Accrue folds the effect of importing one block into the running report.
func (r *ClientReport) Accrue(b *SealedBlock) {
	r.ImportedCount++
	r.BlocksImported++
	r.TransactionsApplied += uint64(len(b.Block.Transactions()))
	r.GasProcessed += b.Block.GasUsed()
}

// ModeKind names one of the four states of the mode state machine core/mode
// drives. See core/mode for the sleep/wake transition table; this package
// only carries the value type.
type ModeKind int

const (
	// ModeKindActive processes blocks and transactions as they arrive and
	// never sleeps.
	ModeKindActive ModeKind = iota
	// ModeKindPassive processes blocks but sleeps after IdleTimeout and
	// wakes itself again after WakePeriod.
	ModeKindPassive
	// ModeKindDark sleeps after IdleTimeout but only wakes on external
	// activity (KeepAlive).
	ModeKindDark
	// ModeKindOff sleeps immediately and only wakes on a transition back to
	// Active. No mode changes what the block queue accepts.
	ModeKindOff
)

func (k ModeKind) String() string {
	switch k {
	case ModeKindActive:
		return "active"
	case ModeKindPassive:
		return "passive"
	case ModeKindDark:
		return "dark"
	case ModeKindOff:
		return "off"
	default:
		return fmt.Sprintf("mode(%d)", int(k))
	}
}

func parseModeKind(s string) (ModeKind, error) {
	switch s {
	case "active":
		return ModeKindActive, nil
	case "passive":
		return ModeKindPassive, nil
	case "dark":
		return ModeKindDark, nil
	case "off":
		return ModeKindOff, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Mode is the value type the mode controller transitions between. Passive
// and Dark carry the idle/wake timing that drives their own sleep/wake
// behavior; Active and Off ignore both fields.
type Mode struct {
	Kind        ModeKind
	IdleTimeout time.Duration
	WakePeriod  time.Duration
}

func (m Mode) String() string { return m.Kind.String() }

// ModeActive builds the always-on mode: never sleeps.
func ModeActive() Mode { return Mode{Kind: ModeKindActive} }

// ModePassive builds a mode that sleeps after idle and wakes itself again
// after wake, without needing external activity.
func ModePassive(idle, wake time.Duration) Mode {
	return Mode{Kind: ModeKindPassive, IdleTimeout: idle, WakePeriod: wake}
}

// ModeDark builds a mode that sleeps after idle but only wakes on explicit
// KeepAlive activity.
func ModeDark(idle time.Duration) Mode {
	return Mode{Kind: ModeKindDark, IdleTimeout: idle}
}

// ModeOff builds the mode that sleeps immediately and only wakes on an
// explicit transition back to Active.
func ModeOff() Mode { return Mode{Kind: ModeKindOff} }

// ParseMode builds a Mode from its kind name plus the idle/wake durations
// Passive and Dark need; Active and Off ignore them.
func ParseMode(kind string, idleTimeout, wakePeriod time.Duration) (Mode, error) {
	k, err := parseModeKind(kind)
	if err != nil {
		return Mode{}, err
	}
	switch k {
	case ModeKindActive:
		return ModeActive(), nil
	case ModeKindOff:
		return ModeOff(), nil
	case ModeKindPassive:
		return ModePassive(idleTimeout, wakePeriod), nil
	case ModeKindDark:
		return ModeDark(idleTimeout), nil
	default:
		return Mode{}, fmt.Errorf("unknown mode %q", kind)
	}
}
