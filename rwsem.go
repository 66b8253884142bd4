package rwsem

import (
	"context"
	"sync"
)

// writerHeld is the occupancy of a write-locked RWSem.
const writerHeld = -1

type waitKind uint8

const (
	waitRead waitKind = iota
	waitWrite
)

type waiter struct {
	kind    waitKind
	ready   semaphore
	granted bool // guarded by RWSem.l
}

// A RWSem is a reader/writer semaphore. It is held by any number of readers
// or by a single writer, and a writer may downgrade its hold to a read hold
// without releasing the lock. The zero value is an unlocked RWSem.
//
// Admission is first-come first-served. A reader arriving while anyone is
// queued queues too, so a stream of readers cannot starve a waiting writer.
// When the lock is handed on, either the writer at the head of the queue is
// admitted alone or every reader ahead of the next queued writer is admitted
// together.
//
// A RWSem is not tied to a goroutine and must not be copied after first use.
type RWSem struct {
	l         stateMutex
	occupancy int // 0 free, >0 readers, writerHeld
	waiters   []*waiter
}

// New returns an unlocked RWSem.
func New() *RWSem {
	return &RWSem{}
}

// RLock locks rw for reading.
func (rw *RWSem) RLock() {
	rw.l.Lock()
	if rw.admitLocked(waitRead) {
		rw.l.Unlock()
		return
	}
	w := rw.enqueueLocked(waitRead)
	rw.l.Unlock()
	w.ready.Acquire()
}

// RUnlock undoes a single RLock or Downgrade. It panics with a *MisuseError
// if rw is not locked for reading.
func (rw *RWSem) RUnlock() {
	rw.l.Lock()
	if rw.occupancy <= 0 {
		occ := rw.occupancy
		rw.l.Unlock()
		panic(&MisuseError{Op: "RUnlock", Occupancy: occ})
	}
	rw.occupancy--
	if rw.occupancy == 0 {
		rw.wakeLocked()
	}
	rw.l.Unlock()
}

// Lock locks rw for writing, waiting for current holders and for everyone
// queued ahead of the caller.
func (rw *RWSem) Lock() {
	rw.l.Lock()
	if rw.admitLocked(waitWrite) {
		rw.l.Unlock()
		return
	}
	w := rw.enqueueLocked(waitWrite)
	rw.l.Unlock()
	w.ready.Acquire()
}

// Unlock unlocks rw for writing. It panics with a *MisuseError if rw is not
// locked for writing.
func (rw *RWSem) Unlock() {
	rw.l.Lock()
	if rw.occupancy != writerHeld {
		occ := rw.occupancy
		rw.l.Unlock()
		panic(&MisuseError{Op: "Unlock", Occupancy: occ})
	}
	rw.occupancy = 0
	rw.wakeLocked()
	rw.l.Unlock()
}

// Downgrade atomically converts the caller's write lock into a read lock.
// Readers queued ahead of the next queued writer are let in alongside the
// caller; writers stay out until every reader, the caller included, has
// called RUnlock.
func (rw *RWSem) Downgrade() {
	rw.l.Lock()
	if rw.occupancy != writerHeld {
		occ := rw.occupancy
		rw.l.Unlock()
		panic(&MisuseError{Op: "Downgrade", Occupancy: occ})
	}
	// Straight from writerHeld to one reader; the lock never reads as free.
	rw.occupancy = 1
	rw.wakeLocked()
	rw.l.Unlock()
}

// RLockContext is like RLock but gives up when ctx is done, returning
// ctx.Err(). A grant that races with cancellation wins and nil is returned.
func (rw *RWSem) RLockContext(ctx context.Context) error {
	return rw.lockContext(ctx, waitRead)
}

// LockContext is like Lock but gives up when ctx is done, returning
// ctx.Err(). A grant that races with cancellation wins and nil is returned.
func (rw *RWSem) LockContext(ctx context.Context) error {
	return rw.lockContext(ctx, waitWrite)
}

func (rw *RWSem) lockContext(ctx context.Context, kind waitKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rw.l.Lock()
	if rw.admitLocked(kind) {
		rw.l.Unlock()
		return nil
	}
	w := rw.enqueueLocked(kind)
	rw.l.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	rw.l.Lock()
	defer rw.l.Unlock()
	if w.granted {
		return nil
	}
	rw.removeLocked(w)
	// A cancelled writer at the head may have been holding back readers.
	rw.wakeLocked()
	return ctx.Err()
}

// TryRLock locks rw for reading if that can be done without waiting.
func (rw *RWSem) TryRLock() bool {
	rw.l.Lock()
	defer rw.l.Unlock()
	return rw.admitLocked(waitRead)
}

// TryLock locks rw for writing if that can be done without waiting.
func (rw *RWSem) TryLock() bool {
	rw.l.Lock()
	defer rw.l.Unlock()
	return rw.admitLocked(waitWrite)
}

// Occupancy returns the number of readers holding rw, or -1 if a writer holds
// it.
func (rw *RWSem) Occupancy() int {
	rw.l.Lock()
	defer rw.l.Unlock()
	return rw.occupancy
}

// Waiters returns the number of blocked acquisitions.
func (rw *RWSem) Waiters() int {
	rw.l.Lock()
	defer rw.l.Unlock()
	return len(rw.waiters)
}

// admitLocked takes the lock for kind if nobody is queued and the current
// holders are compatible.
func (rw *RWSem) admitLocked(kind waitKind) bool {
	if len(rw.waiters) != 0 {
		return false
	}
	switch kind {
	case waitRead:
		if rw.occupancy >= 0 {
			rw.occupancy++
			return true
		}
	case waitWrite:
		if rw.occupancy == 0 {
			rw.occupancy = writerHeld
			return true
		}
	}
	return false
}

func (rw *RWSem) enqueueLocked(kind waitKind) *waiter {
	w := &waiter{kind: kind, ready: newSemaphore()}
	rw.waiters = append(rw.waiters, w)
	return w
}

// wakeLocked admits waiters from the head of the queue for as long as they
// are compatible with the current holders.
func (rw *RWSem) wakeLocked() {
	for len(rw.waiters) > 0 {
		w := rw.waiters[0]
		if w.kind == waitWrite {
			if rw.occupancy == 0 {
				rw.occupancy = writerHeld
				rw.grantHeadLocked()
			}
			return
		}
		if rw.occupancy < 0 {
			return
		}
		rw.occupancy++
		rw.grantHeadLocked()
	}
}

func (rw *RWSem) grantHeadLocked() {
	w := rw.waiters[0]
	rw.waiters[0] = nil
	rw.waiters = rw.waiters[1:]
	if len(rw.waiters) == 0 {
		rw.waiters = nil
	}
	w.granted = true
	w.ready.Release()
}

func (rw *RWSem) removeLocked(w *waiter) {
	for i, q := range rw.waiters {
		if q == w {
			copy(rw.waiters[i:], rw.waiters[i+1:])
			rw.waiters[len(rw.waiters)-1] = nil
			rw.waiters = rw.waiters[:len(rw.waiters)-1]
			return
		}
	}
}

// RLocker returns a Locker interface that implements
// the Lock and Unlock methods by calling rw.RLock and rw.RUnlock.
func (rw *RWSem) RLocker() sync.Locker {
	return (*rlocker)(rw)
}

type rlocker RWSem

func (r *rlocker) Lock()   { (*RWSem)(r).RLock() }
func (r *rlocker) Unlock() { (*RWSem)(r).RUnlock() }
