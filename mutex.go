//go:build !deadlock

package rwsem

import "sync"

// stateMutex guards occupancy and the wait queue.
type stateMutex struct {
	sync.Mutex
}
