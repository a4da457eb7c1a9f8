package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

// BatchReport summarizes a send-pending run.
type BatchReport struct {
	Success   bool      `json:"success"`
	AsOf      time.Time `json:"as_of"`
	Processed int       `json:"processed"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Retried   int       `json:"retried"`
	Skipped   int       `json:"skipped"`
	Outcomes  []Outcome `json:"outcomes"`
}

func (b *BatchReport) add(out Outcome, err error) {
	b.Processed++
	b.Outcomes = append(b.Outcomes, out)
	switch {
	case err == nil:
		b.Sent++
	case errors.Is(err, apperrors.ErrPermanent):
		b.Failed++
	case apperrors.IsRetryable(err):
		b.Retried++
	default:
		b.Skipped++
	}
}

// SendPending delivers every due email reminder of auto-send organizations.
// A single given organization must have auto-send enabled. One failing
// reminder never stops the batch.
func (d *Dispatcher) SendPending(ctx context.Context, actor access.Actor, asOf time.Time, orgID *uint) (*BatchReport, error) {
	if err := access.CanTriggerBatch(actor, orgID); err != nil {
		return nil, err
	}

	var orgIDs []uint
	if orgID != nil {
		org, err := d.repos.Organization.GetByID(ctx, *orgID)
		if err != nil {
			return nil, err
		}
		if !org.AutoSendEnabled {
			return nil, apperrors.Precondition("organization %d has auto-send disabled, send its reminders one by one", org.ID)
		}
		orgIDs = []uint{org.ID}
	} else {
		ids, err := d.repos.Organization.ListAutoSendIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list auto-send organizations: %w", err)
		}
		orgIDs = ids
	}

	report := &BatchReport{Success: true, AsOf: asOf.UTC(), Outcomes: []Outcome{}}
	for _, id := range orgIDs {
		due, err := d.repos.Reminder.ListDueEmail(ctx, id, asOf)
		if err != nil {
			report.Success = false
			log.Errorf("[Dispatch] Failed to list due reminders of organization %d: %v", id, err)
			continue
		}
		for _, r := range due {
			if err := ctx.Err(); err != nil {
				report.Success = false
				return report, err
			}
			report.add(d.Dispatch(ctx, actor, r.ID))
		}
	}

	log.Infof("[Dispatch] Send-pending as of %s: %d processed, %d sent, %d failed, %d retried, %d skipped",
		report.AsOf.Format(time.RFC3339), report.Processed, report.Sent, report.Failed, report.Retried, report.Skipped)
	return report, nil
}

// DispatchMany sends the given reminders now, in order, and reports each one.
func (d *Dispatcher) DispatchMany(ctx context.Context, actor access.Actor, ids []uint) ([]Outcome, error) {
	if actor.Role != access.RoleAdmin && !actor.IsSuperAdmin() {
		return nil, apperrors.Forbidden("bulk send requires an admin")
	}
	if len(ids) == 0 {
		return nil, apperrors.Validation("no reminder ids given")
	}

	outcomes := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		out, _ := d.Dispatch(ctx, actor, id)
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
