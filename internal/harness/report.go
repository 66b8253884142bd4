package harness

import "fmt"

// Report is what a run leaves behind once every worker has exited.
type Report struct {
	Occupancy       int   `yaml:"occupancy"`
	ReadsTaken      int64 `yaml:"reads_taken"`
	WritesTaken     int64 `yaml:"writes_taken"`
	DowngradesTaken int64 `yaml:"downgrades_taken"`
	Violations      int64 `yaml:"violations"`
}

func (r Report) String() string {
	return fmt.Sprintf("rwsem counter = %d\nreads taken: %d\nwrites taken: %d\ndowngrades taken: %d\nchecks failed: %d\n",
		r.Occupancy, r.ReadsTaken, r.WritesTaken, r.DowngradesTaken, r.Violations)
}

// InvariantError is a check that failed while a worker held the lock.
type InvariantError struct {
	Func  string
	Check string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("check [%s] failed in %s", e.Check, e.Func)
}
