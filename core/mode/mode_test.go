package mode_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corechain/corechain/core/mode"
	"github.com/corechain/corechain/core/types"
)

type countingSubscriber struct {
	starts, stops int
}

func (s *countingSubscriber) Start() { s.starts++ }
func (s *countingSubscriber) Stop()  { s.stops++ }

func TestActiveNeverSleeps(t *testing.T) {
	c := mode.New(func() int { return 0 }, nil)
	require.Equal(t, types.ModeKindActive, c.Mode().Kind)

	time.Sleep(5 * time.Millisecond)
	c.Tick()
	require.False(t, c.Sleeping())
}

func TestPassiveSleepsIdleAndWakesAfterPeriod(t *testing.T) {
	c := mode.New(func() int { return 0 }, nil)
	c.SetMode(types.ModePassive(10*time.Millisecond, 20*time.Millisecond))

	require.False(t, c.Sleeping())
	time.Sleep(15 * time.Millisecond)
	c.Tick()
	require.True(t, c.Sleeping())

	// still within wake period: stays asleep
	c.Tick()
	require.True(t, c.Sleeping())

	time.Sleep(25 * time.Millisecond)
	c.Tick()
	require.False(t, c.Sleeping())
}

func TestDarkOnlyWakesOnKeepAlive(t *testing.T) {
	c := mode.New(func() int { return 0 }, nil)
	c.SetMode(types.ModeDark(10 * time.Millisecond))

	time.Sleep(15 * time.Millisecond)
	c.Tick()
	require.True(t, c.Sleeping())

	// ticking alone never wakes Dark, however long we wait
	time.Sleep(50 * time.Millisecond)
	c.Tick()
	require.True(t, c.Sleeping())

	c.KeepAlive()
	require.False(t, c.Sleeping())
}

func TestSetModeOffSleepsImmediately(t *testing.T) {
	c := mode.New(func() int { return 0 }, nil)
	c.SetMode(types.ModeOff())
	require.True(t, c.Sleeping())

	// KeepAlive must not wake Off; only an explicit Active transition does.
	c.KeepAlive()
	require.True(t, c.Sleeping())

	c.SetMode(types.ModeActive())
	require.False(t, c.Sleeping())
}

func TestBacklogGuardBlocksSleep(t *testing.T) {
	depth := mode.MaxQueueSizeToSleepOn + 1
	c := mode.New(func() int { return depth }, nil)

	c.SetMode(types.ModeOff())
	require.False(t, c.Sleeping(), "must not sleep while the queue is backlogged, even for Off")

	c.SetMode(types.ModeDark(0))
	c.Tick()
	require.False(t, c.Sleeping())
}

func TestSubscribersNotifiedOnceAcrossTransition(t *testing.T) {
	c := mode.New(func() int { return 0 }, nil)
	sub := &countingSubscriber{}
	c.Subscribe(sub)

	c.SetMode(types.ModeDark(5 * time.Millisecond))
	time.Sleep(10 * time.Millisecond)
	c.Tick()
	require.Equal(t, 1, sub.stops)
	require.Equal(t, 0, sub.starts)

	c.KeepAlive()
	require.Equal(t, 1, sub.starts)
	require.Equal(t, 1, sub.stops)
}
