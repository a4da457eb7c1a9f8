package scheduler

import (
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
)

// Decision is the outcome of evaluating one invoice against the ladder.
type Decision struct {
	// StepIndex is the next unreached step, -1 when the ladder is exhausted.
	StepIndex int
	// DueOn is the day the step becomes due.
	DueOn time.Time
	// Due reports whether the step must be generated for the run day.
	Due bool
}

// Decide picks the step following the one recorded on the invoice and checks
// it against the run day with one day of lookahead. The reference day is the
// due date for the first step and the previous step's scheduled day after
// that, offset by the delay difference between the two steps. Because the
// comparison is >=, a missed run catches up on the next one, one step at a time.
func Decide(steps []models.ReminderStep, inv *models.Invoice, asOf time.Time) Decision {
	reached := models.StepIndex(inv.ReminderStatus)
	next := reached + 1
	if inv.DueDate == nil || next >= len(steps) {
		return Decision{StepIndex: -1}
	}

	due := dateutil.Day(*inv.DueDate)
	ref, offset := due, steps[next].DelayDays
	if reached >= 0 {
		prev := steps[reached].DelayDays
		offset = steps[next].DelayDays - prev
		if inv.LastReminderDate != nil {
			ref = dateutil.Day(*inv.LastReminderDate)
		} else {
			ref = dateutil.AddDays(due, prev)
		}
	}

	dueOn := dateutil.AddDays(ref, offset)
	tomorrow := dateutil.AddDays(dateutil.Day(asOf), 1)
	return Decision{
		StepIndex: next,
		DueOn:     dueOn,
		Due:       !tomorrow.Before(dueOn),
	}
}
