//go:build deadlock

package rwsem

import "github.com/linkdata/deadlock"

// stateMutex guards occupancy and the wait queue. Building with the deadlock
// tag reports the internal lock being held for too long.
type stateMutex struct {
	deadlock.Mutex
}
