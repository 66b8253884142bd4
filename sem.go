package rwsem

/* One-slot channel semaphore used to hand a grant to exactly one waiter */

type empty struct{}
type semaphore chan empty

func newSemaphore() semaphore {
	return make(semaphore, 1)
}

// Acquire blocks until the slot has been released.
func (s semaphore) Acquire() {
	<-s
}

// Release fills the slot. It never blocks as long as each semaphore is
// released at most once.
func (s semaphore) Release() {
	s <- empty{}
}
