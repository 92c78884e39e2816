package importer

// closableMutex is a mutex that can be permanently closed, so that lockers
// arriving or still waiting once it is closed get ok=false instead of
// deadlocking.
// Used for chainmu, the lock guarding canonical-chain mutation, so a
// shutdown in progress doesn't wait forever for an import in flight.
//
// Modeled on go-ethereum's own internal/syncx.ClosableMutex: a single
// buffered slot acts as both the lock token and the close signal, so there
// is never a window where a lock attempt can succeed after Close has
// returned. The earlier goroutine-per-Lock-call version raced Close
// against an in-flight locker: if Close won, the spawned goroutine could
// still go on to acquire the underlying mutex with nobody left able to
// unlock it, wedging every future Lock permanently. A channel receive has
// no such orphaned continuation — it either takes the token or observes
// the close, atomically, with no third outcome.
type closableMutex struct {
	sem chan struct{}
}

func newClosableMutex() *closableMutex {
	c := &closableMutex{sem: make(chan struct{}, 1)}
	c.sem <- struct{}{}
	return c
}

// Lock blocks until the mutex is acquired or the mutex is closed. ok is
// false if the mutex was closed instead of acquired; in that case the
// caller must not call Unlock.
func (c *closableMutex) Lock() (ok bool) {
	_, ok = <-c.sem
	return ok
}

// Unlock releases a lock acquired by a successful Lock call.
func (c *closableMutex) Unlock() {
	select {
	case c.sem <- struct{}{}:
	default:
		panic("Unlock of unlocked closableMutex")
	}
}

// Close takes the lock itself, waiting for the current holder to Unlock
// (a Lock call already blocked before Close may acquire it first, and Close
// then waits for that holder too), then permanently closes the mutex so
// every Lock call still blocked or made afterwards returns ok=false.
func (c *closableMutex) Close() {
	<-c.sem
	close(c.sem)
}
