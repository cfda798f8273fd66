package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusPaid},
}

// ParseStatus accepts a status in any letter case.
func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusSubmitted, StatusApproved, StatusRejected, StatusPaid:
		return status, true
	default:
		return "", false
	}
}

// CanTransition reports whether the table allows from -> to, ignoring who
// asks.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Actor is the caller of a transition with the capabilities resolved by
// the authorization layer.
type Actor struct {
	ID        snowflake.ID
	CanReview bool
	CanPay    bool
}

// Transition evaluates the guards for moving r to target on behalf of actor.
// It never mutates r. The capability check precedes the state check so
// callers without the capability learn nothing about document state.
func Transition(r Reimbursement, actor Actor, target Status) error {
	if actor.ID == 0 {
		return ErrInvalidActor
	}
	switch target {
	case StatusSubmitted:
		if actor.ID != r.SubmitterID {
			return ErrForbidden
		}
	case StatusApproved, StatusRejected:
		if !actor.CanReview {
			return ErrForbidden
		}
	case StatusPaid:
		if !actor.CanPay {
			return ErrForbidden
		}
	default:
		return ErrInvalidStatus
	}

	if !CanTransition(r.Status, target) {
		return ErrInvalidTransition
	}
	return nil
}

// Submit hands a pending document to review.
func (r *Reimbursement) Submit(now time.Time) {
	r.Status = StatusSubmitted
	r.ReviewerID = nil
	r.ReviewedAt = nil
	r.UpdatedAt = now
}

// Review records an approve or reject decision.
func (r *Reimbursement) Review(target Status, reviewer snowflake.ID, comment string, now time.Time) {
	r.Status = target
	r.ReviewerID = &reviewer
	r.ReviewedAt = &now
	r.ReviewComment = comment
	r.UpdatedAt = now
}

// MarkPaid records the payment details.
func (r *Reimbursement) MarkPaid(bankInfo string, accountID snowflake.ID, comment string, now time.Time) {
	r.Status = StatusPaid
	r.BankInfo = bankInfo
	r.AccountID = &accountID
	r.PaymentDate = &now
	if comment != "" {
		r.ReviewComment = comment
	}
	r.UpdatedAt = now
}

// Editable reports whether items and header fields may change.
func (r Reimbursement) Editable() bool {
	return r.Status == StatusPending
}

// CanDelete reports whether a caller may delete r in its current state.
// deleteAny is the capability to delete other submitters' documents.
func (r Reimbursement) CanDelete(actorID snowflake.ID, deleteAny bool) error {
	if actorID == 0 {
		return ErrInvalidActor
	}
	if actorID != r.SubmitterID && !deleteAny {
		return ErrForbidden
	}
	if !r.Editable() {
		return ErrNotPending
	}
	return nil
}
