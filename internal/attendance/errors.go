package attendance

import (
	"errors"
	"fmt"
)

// Business-rule rejections. Each precondition failure is distinguishable so
// callers can drive their own messaging; none of them is a server fault.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrNotRegistered = errors.New("student not registered for event")
	ErrAlreadyMarked = errors.New("attendance already marked for this event")
)

// TooFarError rejects a marking attempt outside the event geofence. It
// carries the computed distance and required radius so the caller can
// render "move N meters closer".
type TooFarError struct {
	DistanceM int
	RadiusM   int
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("you are %dm away from the event location, move within %dm", e.DistanceM, e.RadiusM)
}
