package moderation

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a report cannot move along the
// requested edge from its current status.
var ErrIllegalTransition = errors.New("illegal report transition")

type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewing Status = "reviewing"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusResolved  Status = "resolved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewing, StatusAccepted, StatusDeclined, StatusResolved:
		return true
	}
	return false
}

// Terminal reports whether no reviewer transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined || s == StatusResolved
}

type Transition string

const (
	TransitionReview      Transition = "review"
	TransitionAccept      Transition = "accept"
	TransitionDecline     Transition = "decline"
	TransitionBulkResolve Transition = "bulk_resolve"
)

// reviewing is optional: accept and decline are legal straight from pending.
var transitions = map[Status]map[Transition]Status{
	StatusPending: {
		TransitionReview:      StatusReviewing,
		TransitionAccept:      StatusAccepted,
		TransitionDecline:     StatusDeclined,
		TransitionBulkResolve: StatusResolved,
	},
	StatusReviewing: {
		TransitionAccept:  StatusAccepted,
		TransitionDecline: StatusDeclined,
	},
}

// Next returns the status reached by applying t to from.
func Next(from Status, t Transition) (Status, error) {
	if to, ok := transitions[from][t]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s from %s", ErrIllegalTransition, t, from)
}

// Sources lists the statuses t may be applied to. Stores use it to make
// the status change conditional on the row still being in one of them.
func Sources(t Transition) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusReviewing} {
		if _, ok := transitions[from][t]; ok {
			out = append(out, from)
		}
	}
	return out
}
