package harness

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Stats is shared by every worker of a run. The taken counters only grow.
type Stats struct {
	readsTaken      *xsync.Counter
	writesTaken     *xsync.Counter
	downgradesTaken *xsync.Counter
	violations      *xsync.Counter

	// Goroutines currently inside the lock, sampled by the checks.
	readers atomic.Int32
	writers atomic.Int32
}

func newStats() *Stats {
	return &Stats{
		readsTaken:      xsync.NewCounter(),
		writesTaken:     xsync.NewCounter(),
		downgradesTaken: xsync.NewCounter(),
		violations:      xsync.NewCounter(),
	}
}

func (s *Stats) ReadsTaken() int64      { return s.readsTaken.Value() }
func (s *Stats) WritesTaken() int64     { return s.writesTaken.Value() }
func (s *Stats) DowngradesTaken() int64 { return s.downgradesTaken.Value() }
func (s *Stats) Violations() int64      { return s.violations.Value() }
