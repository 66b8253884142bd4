package rwsem

// Locker is a reader/writer lock whose write hold can be downgraded to a read
// hold without ever releasing the lock in between.
type Locker interface {
	RLock()
	RUnlock()

	Lock()
	Unlock()

	// Downgrade turns the caller's write hold into a read hold. The caller
	// must later release it with RUnlock.
	Downgrade()
}
