// Package metrics exports the counters of a harness run and the state of the
// lock under test as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rwsem"

// Counters is read on every scrape.
type Counters interface {
	ReadsTaken() int64
	WritesTaken() int64
	DowngradesTaken() int64
	Violations() int64
}

// LockState is read on every scrape.
type LockState interface {
	Occupancy() int
	Waiters() int
}

type Collectors struct {
	ReadsTaken      prometheus.CounterFunc
	WritesTaken     prometheus.CounterFunc
	DowngradesTaken prometheus.CounterFunc
	Violations      prometheus.CounterFunc
	Occupancy       prometheus.GaugeFunc
	Waiters         prometheus.GaugeFunc
}

func New(counters Counters, lock LockState) *Collectors {
	counter := func(name, help string, value func() int64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value()) })
	}
	gauge := func(name, help string, value func() int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value()) })
	}
	return &Collectors{
		ReadsTaken:      counter("reads_taken_total", "Read acquisitions made by reader goroutines.", counters.ReadsTaken),
		WritesTaken:     counter("writes_taken_total", "Write acquisitions made by writer and downgrader goroutines.", counters.WritesTaken),
		DowngradesTaken: counter("downgrades_taken_total", "Write locks downgraded to read locks.", counters.DowngradesTaken),
		Violations:      counter("invariant_violations_total", "Checks that failed inside a critical section.", counters.Violations),
		Occupancy:       gauge("occupancy", "Readers holding the lock, or -1 while a writer holds it.", lock.Occupancy),
		Waiters:         gauge("waiters", "Acquisitions blocked on the lock.", lock.Waiters),
	}
}

func (c *Collectors) all() []prometheus.Collector {
	return []prometheus.Collector{c.ReadsTaken, c.WritesTaken, c.DowngradesTaken, c.Violations, c.Occupancy, c.Waiters}
}

// Register adds every collector to reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, col := range c.all() {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	return nil
}
