package rwsem

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
)

// activity counts active readers plus 10000 per active writer.

func reader(rws Locker, numIterations int, activity *int32, cdone chan bool) {
	for i := 0; i < numIterations; i++ {
		rws.RLock()
		n := atomic.AddInt32(activity, 1)
		if n < 1 || n >= 10000 {
			rws.RUnlock()
			panic(fmt.Sprintf("rlock(%d)\n", n))
		}
		for i := 0; i < 100; i++ {
		}
		atomic.AddInt32(activity, -1)
		rws.RUnlock()
	}
	cdone <- true
}

func writer(rws Locker, numIterations int, activity *int32, incr *int32, cdone chan bool) {
	for i := 0; i < numIterations; i++ {
		rws.Lock()
		n := atomic.AddInt32(activity, 10000)
		if n != 10000 {
			rws.Unlock()
			panic(fmt.Sprintf("wlock(%d)\n", n))
		}
		atomic.AddInt32(incr, 1)
		for i := 0; i < 100; i++ {
		}
		atomic.AddInt32(activity, -10000)
		rws.Unlock()
	}
	cdone <- true
}

func downgrader(rws Locker, numIterations int, activity *int32, incr *int32, cdone chan bool) {
	for i := 0; i < numIterations; i++ {
		rws.Lock()
		n := atomic.AddInt32(activity, 10000)
		if n != 10000 {
			rws.Unlock()
			panic(fmt.Sprintf("wlock(%d)\n", n))
		}
		written := atomic.AddInt32(incr, 1)
		// Trade the writer's share for a reader's before letting go.
		atomic.AddInt32(activity, 1-10000)
		rws.Downgrade()
		n = atomic.LoadInt32(activity)
		if n < 1 || n >= 10000 {
			panic(fmt.Sprintf("downgrade(%d)\n", n))
		}
		for i := 0; i < 100; i++ {
		}
		if atomic.LoadInt32(incr) != written {
			panic("write slipped in after downgrade")
		}
		atomic.AddInt32(activity, -1)
		rws.RUnlock()
	}
	cdone <- true
}

func HammerRWSem(gomaxprocs, numReaders, numIterations int) {
	runtime.GOMAXPROCS(gomaxprocs)
	// Number of active readers + 10000 * number of active writers.
	var activity, incr int32
	rws := New()
	cdone := make(chan bool)
	go downgrader(rws, numIterations, &activity, &incr, cdone)
	var i int
	for i = 0; i < numReaders/2; i++ {
		go reader(rws, numIterations, &activity, cdone)
	}
	go writer(rws, numIterations, &activity, &incr, cdone)
	for ; i < numReaders; i++ {
		go reader(rws, numIterations, &activity, cdone)
	}
	// Wait for the writer, the downgrader and all readers to finish.
	for i := 0; i < 2+numReaders; i++ {
		<-cdone
	}
	if occ := rws.Occupancy(); occ != 0 {
		panic(fmt.Sprintf("occupancy %d after hammer", occ))
	}
}

func TestRWSemHammer(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(-1))
	n := 1000
	if testing.Short() {
		n = 5
	}
	HammerRWSem(1, 1, n)
	HammerRWSem(1, 3, n)
	HammerRWSem(1, 10, n)
	HammerRWSem(4, 1, n)
	HammerRWSem(4, 3, n)
	HammerRWSem(4, 10, n)
	HammerRWSem(10, 1, n)
	HammerRWSem(10, 3, n)
	HammerRWSem(10, 10, n)
	HammerRWSem(10, 5, n)
	HammerRWSem(100, 5, n)
	HammerRWSem(100, 50, n)
}

func TestRWSemStress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress in short mode")
	}
	for i := 0; i < 10; i++ {
		TestRWSemHammer(t)
	}
}

func TestRLocker(t *testing.T) {
	rws := New()
	rl := rws.RLocker()
	n := 10
	wlocked := make(chan bool, 1)
	rlocked := make(chan bool, 1)
	wl := rws
	go func() {
		for i := 0; i < n; i++ {
			rl.Lock()
			rl.Lock()
			rlocked <- true
			wl.Lock()
			wlocked <- true
		}
	}()
	for i := 0; i < n; i++ {
		<-rlocked
		rl.Unlock()
		select {
		case <-wlocked:
			t.Fatal("RLocker() didn't read-lock it")
		default:
		}
		rl.Unlock()
		<-wlocked
		select {
		case <-rlocked:
			t.Fatal("RLocker() didn't respect the write lock")
		default:
		}
		wl.Unlock()
	}
}

func BenchmarkRWSemUncontended(b *testing.B) {
	type PaddedRWSem struct {
		RWSem
		pad [32]uint32
	}
	b.RunParallel(func(pb *testing.PB) {
		var rws PaddedRWSem
		for pb.Next() {
			rws.RLock()
			rws.RLock()
			rws.RUnlock()
			rws.RUnlock()
			rws.Lock()
			rws.Unlock()
		}
	})
}

func BenchmarkRWSemDowngrade(b *testing.B) {
	rws := New()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			rws.Lock()
			rws.Downgrade()
			rws.RUnlock()
		}
	})
}
