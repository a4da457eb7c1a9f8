// Package reminder implements the lifecycle of a single reminder.
//
// Apply is a pure function from (state, command) to (state, effects). The
// Service loads the record, runs the ownership check, applies the command
// and persists the new state together with its effects in one transaction.
package reminder

import (
	"strings"
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

// State is the mutable part of a reminder.
type State struct {
	Channel     models.Channel
	Status      models.CompletionStatus
	IsPaused    bool
	ScheduledAt time.Time
	CompletedAt *time.Time
	Data        models.ReminderData
}

// StateOf extracts the state of a stored reminder.
func StateOf(r *models.Reminder) State {
	return State{
		Channel:     r.Channel,
		Status:      r.CompletionStatus,
		IsPaused:    r.IsPaused,
		ScheduledAt: r.ScheduledAt,
		CompletedAt: r.CompletedAt,
		Data:        r.Payload(),
	}
}

// ApplyTo writes the state back onto a stored reminder.
func (s State) ApplyTo(r *models.Reminder) {
	r.CompletionStatus = s.Status
	r.IsPaused = s.IsPaused
	r.ScheduledAt = s.ScheduledAt
	r.CompletedAt = s.CompletedAt
	r.SetPayload(s.Data)
}

// Command is one of the closed set of reminder transitions.
type Command interface {
	command()
}

type Pause struct{}

type Resume struct{}

type Reschedule struct {
	At time.Time
}

type EditContent struct {
	Subject string
	Body    string
}

type CompletePhoneCall struct {
	Outcome models.PhoneOutcome
	Notes   string
}

// DeliveryResult classifies one email delivery attempt.
type DeliveryResult int

const (
	DeliverySucceeded DeliveryResult = iota
	DeliveryTransient
	DeliveryPermanent
)

func (d DeliveryResult) String() string {
	switch d {
	case DeliverySucceeded:
		return "succeeded"
	case DeliveryTransient:
		return "transient"
	case DeliveryPermanent:
		return "permanent"
	}
	return "unknown"
}

type RecordDelivery struct {
	Result    DeliveryResult
	MessageID string
	Error     string
}

func (Pause) command()             {}
func (Resume) command()            {}
func (Reschedule) command()        {}
func (EditContent) command()       {}
func (CompletePhoneCall) command() {}
func (RecordDelivery) command()    {}

// Effect is a side effect the caller must apply after persisting the new state.
type Effect interface {
	effect()
}

// AppendEvent asks for an audit event on the reminder's invoice.
type AppendEvent struct {
	Type     string
	Metadata map[string]any
}

// MarkInvoiceSent asks for the invoice send status to become sent.
type MarkInvoiceSent struct{}

func (AppendEvent) effect()     {}
func (MarkInvoiceSent) effect() {}

// Apply runs cmd against s. On error s is returned unchanged and no effects are produced.
func Apply(s State, cmd Command, now time.Time) (State, []Effect, error) {
	if s.Status != models.CompletionPending {
		return s, nil, apperrors.Precondition("reminder is %s, only pending reminders can change", s.Status)
	}

	next := s
	switch c := cmd.(type) {
	case Pause:
		if s.Channel != models.ChannelEmail {
			return s, nil, apperrors.Precondition("only email reminders can be paused")
		}
		if s.IsPaused {
			return s, nil, apperrors.Precondition("reminder is already paused")
		}
		next.IsPaused = true
		return next, []Effect{AppendEvent{Type: models.EventReminderPaused}}, nil

	case Resume:
		if s.Channel != models.ChannelEmail {
			return s, nil, apperrors.Precondition("only email reminders can be resumed")
		}
		if !s.IsPaused {
			return s, nil, apperrors.Precondition("reminder is not paused")
		}
		next.IsPaused = false
		return next, []Effect{AppendEvent{Type: models.EventReminderResumed}}, nil

	case Reschedule:
		if c.At.IsZero() {
			return s, nil, apperrors.Validation("scheduled_at is required")
		}
		next.ScheduledAt = c.At.UTC().Truncate(time.Minute)
		return next, []Effect{AppendEvent{Type: models.EventReminderRescheduled, Metadata: map[string]any{
			"from": s.ScheduledAt.UTC().Format(time.RFC3339),
			"to":   next.ScheduledAt.Format(time.RFC3339),
		}}}, nil

	case EditContent:
		if s.Channel != models.ChannelEmail {
			return s, nil, apperrors.Precondition("only email reminders carry editable content")
		}
		subject, body := strings.TrimSpace(c.Subject), strings.TrimSpace(c.Body)
		if subject == "" || body == "" {
			return s, nil, apperrors.Validation("subject and body are required")
		}
		next.Data.Subject = subject
		next.Data.Body = body
		return next, []Effect{AppendEvent{Type: models.EventReminderContentEdited}}, nil

	case CompletePhoneCall:
		return completePhoneCall(s, c, now)

	case RecordDelivery:
		return recordDelivery(s, c, now)
	}

	return s, nil, apperrors.Precondition("unsupported command %T", cmd)
}

func completePhoneCall(s State, c CompletePhoneCall, now time.Time) (State, []Effect, error) {
	if s.Channel != models.ChannelPhone {
		return s, nil, apperrors.Precondition("only phone reminders take call outcomes")
	}
	if !c.Outcome.Valid() {
		return s, nil, apperrors.Validation("unknown call outcome %q", c.Outcome)
	}

	next := s
	next.Data.PhoneOutcome = c.Outcome
	next.Data.PhoneNotes = strings.TrimSpace(c.Notes)
	next.Data.Attempts++
	meta := map[string]any{"outcome": string(c.Outcome), "attempt": next.Data.Attempts}
	if next.Data.PhoneNotes != "" {
		meta["notes"] = next.Data.PhoneNotes
	}

	if !c.Outcome.Terminal() {
		next.ScheduledAt = s.ScheduledAt.Add(24 * time.Hour)
		meta["next_attempt_at"] = next.ScheduledAt.UTC().Format(time.RFC3339)
		return next, []Effect{AppendEvent{Type: models.EventPhoneCallAttempt, Metadata: meta}}, nil
	}

	completedAt := now.UTC()
	next.Status = models.CompletionCompleted
	next.CompletedAt = &completedAt
	return next, []Effect{AppendEvent{Type: models.EventPhoneCallOutcome, Metadata: meta}}, nil
}

func recordDelivery(s State, c RecordDelivery, now time.Time) (State, []Effect, error) {
	if s.Channel != models.ChannelEmail {
		return s, nil, apperrors.Precondition("only email reminders are delivered")
	}

	next := s
	next.Data.Attempts++
	meta := map[string]any{"attempt": next.Data.Attempts}

	switch c.Result {
	case DeliverySucceeded:
		completedAt := now.UTC()
		next.Status = models.CompletionCompleted
		next.CompletedAt = &completedAt
		next.Data.MessageID = c.MessageID
		next.Data.LastError = ""
		if c.MessageID != "" {
			meta["message_id"] = c.MessageID
		}
		// the mail is out even if a pause landed while it was in flight
		if s.IsPaused {
			next.IsPaused = false
			meta["paused_during_delivery"] = true
		}
		return next, []Effect{
			AppendEvent{Type: models.EventReminderSent, Metadata: meta},
			MarkInvoiceSent{},
		}, nil

	case DeliveryTransient:
		next.Data.LastError = c.Error
		meta["error"] = c.Error
		return next, []Effect{AppendEvent{Type: models.EventReminderSendRetry, Metadata: meta}}, nil

	case DeliveryPermanent:
		next.Status = models.CompletionFailed
		next.Data.LastError = c.Error
		meta["error"] = c.Error
		return next, []Effect{AppendEvent{Type: models.EventReminderSendFailed, Metadata: meta}}, nil
	}

	return s, nil, apperrors.Validation("unknown delivery result %d", c.Result)
}
