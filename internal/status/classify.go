package status

import (
	"errors"

	"github.com/icarus-itcs/lazyedge/internal/edge"
)

// Class is how a query failure is treated.
type Class int

const (
	// ClassNone means no error.
	ClassNone Class = iota
	// ClassUnreachable folds into an offline row.
	ClassUnreachable
	// ClassNotPaired folds into an online, unpaired row.
	ClassNotPaired
	// ClassTransient is reported to the user and drops the row for the cycle.
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassUnreachable:
		return "unreachable"
	case ClassNotPaired:
		return "not_paired"
	}
	return "transient"
}

// Classify sorts a connect or role-query error into a Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, edge.ErrNoChannels):
		return ClassUnreachable
	case errors.Is(err, edge.ErrUserDoesNotExist):
		return ClassNotPaired
	}
	return ClassTransient
}
