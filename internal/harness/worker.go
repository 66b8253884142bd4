package harness

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

type worker struct {
	name  string
	cycle func()
	done  chan struct{}
}

// workers interleaves the kinds the same way they are numbered: Read0,
// Write0, Down0, Read1, ...
func (h *Harness) workers() []*worker {
	n := max(h.cfg.Readers, h.cfg.Writers, h.cfg.Downgraders)
	ws := make([]*worker, 0, h.cfg.Readers+h.cfg.Writers+h.cfg.Downgraders)
	add := func(name string, cycle func()) {
		ws = append(ws, &worker{name: name, cycle: cycle, done: make(chan struct{})})
	}
	for i := 0; i < n; i++ {
		if i < h.cfg.Readers {
			add(fmt.Sprintf("Read%d", i), h.readCycle)
		}
		if i < h.cfg.Writers {
			add(fmt.Sprintf("Write%d", i), h.writeCycle)
		}
		if i < h.cfg.Downgraders {
			add(fmt.Sprintf("Down%d", i), h.downgradeCycle)
		}
	}
	return ws
}

// runWorker cycles until the running flag is cleared, then closes w.done.
// A panic, such as a *rwsem.MisuseError, is returned as the worker's error.
func (h *Harness) runWorker(w *worker) (err error) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok {
				perr = fmt.Errorf("%v", r)
			}
			h.log.Error("worker panicked", zap.String("worker", w.name), zap.Error(perr))
			err = fmt.Errorf("%s: %w", w.name, perr)
		}
	}()

	for h.running.Load() {
		w.cycle()
		if h.cfg.Yield {
			runtime.Gosched()
		}
	}
	h.log.Info("done", zap.String("worker", w.name))
	return nil
}

func (h *Harness) readCycle() {
	h.downRead()
	h.upRead()
}

func (h *Harness) writeCycle() {
	h.downWrite()
	h.upWrite()
}

func (h *Harness) downgradeCycle() {
	h.downWrite()
	h.downgrade()
	h.upRead()
}

func (h *Harness) downRead() {
	h.lock.RLock()
	h.stats.readers.Add(1)
	h.stats.readsTaken.Inc()
	h.checkA("downRead", "writers", h.stats.writers.Load(), 0)
	if occ := h.lock.Occupancy(); occ < 1 {
		h.fail("downRead", fmt.Sprintf("occupancy < 1, == %d", occ))
	}
}

func (h *Harness) upRead() {
	h.checkA("upRead", "writers", h.stats.writers.Load(), 0)
	h.stats.readers.Add(-1)
	h.lock.RUnlock()
}

func (h *Harness) downWrite() {
	h.lock.Lock()
	h.stats.writers.Add(1)
	h.stats.writesTaken.Inc()
	h.checkA("downWrite", "writers", h.stats.writers.Load(), 1)
	h.checkA("downWrite", "readers", h.stats.readers.Load(), 0)
	if occ := h.lock.Occupancy(); occ != -1 {
		h.fail("downWrite", fmt.Sprintf("occupancy != -1, == %d", occ))
	}
}

func (h *Harness) upWrite() {
	h.checkA("upWrite", "writers", h.stats.writers.Load(), 1)
	h.checkA("upWrite", "readers", h.stats.readers.Load(), 0)
	h.stats.writers.Add(-1)
	h.lock.Unlock()
}

func (h *Harness) downgrade() {
	h.checkA("downgrade", "writers", h.stats.writers.Load(), 1)
	h.checkA("downgrade", "readers", h.stats.readers.Load(), 0)
	h.stats.writers.Add(-1)
	h.stats.readers.Add(1)
	h.lock.Downgrade()
	h.stats.downgradesTaken.Inc()
}

func (h *Harness) checkA(fn, name string, got, want int32) {
	if got != want {
		h.fail(fn, fmt.Sprintf("%s != %d, == %d", name, want, got))
	}
}
