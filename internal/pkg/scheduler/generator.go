// Package scheduler generates the reminders that are due for a run day.
// A run re-derives everything from persisted state, so repeating it for the
// same day creates nothing new.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/mailtemplate"
)

// Report summarizes one generation run.
type Report struct {
	Success            bool                 `json:"success"`
	Date               string               `json:"date"`
	InvoicesProcessed  int                  `json:"invoices_processed"`
	RemindersGenerated int                  `json:"reminders_generated"`
	Skipped            int                  `json:"skipped"`
	Organizations      []OrganizationReport `json:"organizations"`
}

type OrganizationReport struct {
	OrganizationID     uint   `json:"organization_id"`
	InvoicesProcessed  int    `json:"invoices_processed"`
	RemindersGenerated int    `json:"reminders_generated"`
	Skipped            int    `json:"skipped"`
	Error              string `json:"error,omitempty"`
}

type outcome int

const (
	notDue outcome = iota
	generated
	advanced
	skipped
)

type Generator struct {
	repos *repository.Repositories
}

func NewGenerator(repos *repository.Repositories) *Generator {
	return &Generator{repos: repos}
}

// Generate creates the reminders due on asOf+1 for one organization or, with
// a nil orgID, for all of them.
func (g *Generator) Generate(ctx context.Context, actor access.Actor, asOf time.Time, orgID *uint) (*Report, error) {
	if err := access.CanTriggerBatch(actor, orgID); err != nil {
		return nil, err
	}
	day := dateutil.Day(asOf)

	var orgIDs []uint
	if orgID != nil {
		orgIDs = []uint{*orgID}
	} else {
		ids, err := g.repos.Organization.ListIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list organizations: %w", err)
		}
		orgIDs = ids
	}

	report := &Report{Success: true, Date: dateutil.Format(day), Organizations: make([]OrganizationReport, 0, len(orgIDs))}
	for _, id := range orgIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		orgReport := g.generateForOrganization(ctx, actor, id, day)
		if orgReport.Error != "" {
			report.Success = false
		}
		report.InvoicesProcessed += orgReport.InvoicesProcessed
		report.RemindersGenerated += orgReport.RemindersGenerated
		report.Skipped += orgReport.Skipped
		report.Organizations = append(report.Organizations, orgReport)
	}

	log.Infof("[Scheduler] Generation for %s: %d invoices, %d reminders generated, %d skipped",
		report.Date, report.InvoicesProcessed, report.RemindersGenerated, report.Skipped)
	return report, nil
}

func (g *Generator) generateForOrganization(ctx context.Context, actor access.Actor, orgID uint, day time.Time) OrganizationReport {
	report := OrganizationReport{OrganizationID: orgID}

	org, err := g.repos.Organization.GetByID(ctx, orgID)
	if err != nil {
		report.Error = err.Error()
		log.Errorf("[Scheduler] Failed to load organization %d: %v", orgID, err)
		return report
	}
	if len(org.Steps) == 0 {
		return report
	}

	invoices, err := g.repos.Invoice.ListEligibleForReminders(ctx, orgID)
	if err != nil {
		report.Error = err.Error()
		log.Errorf("[Scheduler] Failed to list invoices for organization %d: %v", orgID, err)
		return report
	}

	for i := range invoices {
		report.InvoicesProcessed++
		res, err := g.processInvoice(ctx, actor, org, &invoices[i], day)
		if err != nil {
			report.Skipped++
			log.Errorf("[Scheduler] Invoice %d of organization %d: %v", invoices[i].ID, orgID, err)
			continue
		}
		switch res {
		case generated:
			report.RemindersGenerated++
		case skipped:
			report.Skipped++
		}
	}
	return report
}

func (g *Generator) processInvoice(ctx context.Context, actor access.Actor, org *models.Organization, inv *models.Invoice, day time.Time) (outcome, error) {
	if inv.DueDate == nil {
		log.Warnf("[Scheduler] Skipping invoice %d without due date", inv.ID)
		return skipped, nil
	}
	decision := Decide(org.Steps, inv, day)
	if decision.StepIndex < 0 || !decision.Due {
		return notDue, nil
	}

	var res outcome
	err := g.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		locked, err := tx.Invoice.GetByIDForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		// another run moved the invoice on since it was listed
		if !locked.EligibleForReminders() || locked.ReminderStatus != inv.ReminderStatus {
			res = notDue
			return nil
		}

		step := org.Steps[decision.StepIndex]
		identifier := models.StepIdentifier(decision.StepIndex)

		existing, err := tx.Reminder.FindForStep(ctx, inv.ID, identifier)
		if err != nil {
			return err
		}
		if existing != nil {
			res = advanced
			return tx.Invoice.UpdateReminderProgress(ctx, inv.ID, identifier, existing.ScheduledAt.In(org.Location()))
		}

		tomorrow := dateutil.AddDays(day, 1)
		r := &models.Reminder{
			OrganizationID:   org.ID,
			InvoiceID:        inv.ID,
			ReminderStatus:   identifier,
			CreatorID:        actor.UserRef(),
			Channel:          step.Channel,
			ScheduledAt:      org.SendTimeOn(tomorrow),
			CompletionStatus: models.CompletionPending,
		}
		data := models.ReminderData{}
		if step.Channel == models.ChannelEmail {
			data.Subject, data.Body = mailtemplate.RenderOrDefault(step.SubjectTemplate, step.BodyTemplate,
				mailtemplate.KindStepReminder, mailtemplate.ContextFor(org, locked, tomorrow))
		}
		r.SetPayload(data)

		if err := tx.Reminder.Create(ctx, r); err != nil {
			return fmt.Errorf("create %s: %w", identifier, err)
		}
		if err := tx.Invoice.UpdateReminderProgress(ctx, inv.ID, identifier, tomorrow); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}

		invoiceID, reminderID := inv.ID, r.ID
		if err := tx.Event.Append(ctx, &models.Event{
			OrganizationID: org.ID,
			InvoiceID:      &invoiceID,
			ReminderID:     &reminderID,
			UserID:         actor.UserRef(),
			Type:           models.EventReminderCreated,
			Metadata: map[string]any{
				"step":         identifier,
				"step_name":    step.Name,
				"channel":      string(step.Channel),
				"scheduled_at": r.ScheduledAt.Format(time.RFC3339),
			},
		}); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		res = generated
		return nil
	})
	if err != nil {
		return notDue, err
	}
	return res, nil
}
