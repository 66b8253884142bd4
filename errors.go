package rwsem

import (
	"errors"
	"fmt"
)

// ErrMisuse is matched by every *MisuseError.
var ErrMisuse = errors.New("rwsem: misuse")

// MisuseError is the panic value of an operation called in a state that its
// caller could not legally be in, such as RUnlock without a read hold.
type MisuseError struct {
	Op        string
	Occupancy int
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("rwsem: %s of %s RWSem (occupancy %d)", e.Op, describe(e.Occupancy), e.Occupancy)
}

func (e *MisuseError) Is(target error) bool {
	return target == ErrMisuse
}

func describe(occupancy int) string {
	switch {
	case occupancy == writerHeld:
		return "write-locked"
	case occupancy > 0:
		return "read-locked"
	case occupancy == 0:
		return "unlocked"
	}
	return "corrupt"
}
