package orders

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validNext[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

// Transition moves o to the target status, stamping shipped/delivered dates
// at most once. Re-issuing SHIPPED or DELIVERED against an order already in
// that state is an accepted no-op that keeps the original timestamp; every
// other non-edge is rejected.
func Transition(o *Order, to Status, now time.Time) error {
	if o.Status == to && (to == StatusShipped || to == StatusDelivered) {
		o.UpdatedAt = now
		return nil
	}
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case StatusShipped:
		if o.ShippedDate == nil {
			t := now
			o.ShippedDate = &t
		}
	case StatusDelivered:
		if o.DeliveredDate == nil {
			t := now
			o.DeliveredDate = &t
		}
	}
	return nil
}
