package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

// ReminderStep is one rung of an organization's reminder ladder.
type ReminderStep struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	OrganizationID  uint      `gorm:"index" json:"organization_id"`
	Position        int       `gorm:"not null" json:"position"`
	DelayDays       int       `gorm:"not null" json:"delay_days" validate:"gt=0,lte=365"`
	Channel         Channel   `gorm:"type:varchar(10);not null" json:"channel" validate:"oneof=email phone"`
	Name            string    `gorm:"type:varchar(100)" json:"name" validate:"required,max=100"`
	SubjectTemplate string    `gorm:"type:varchar(255)" json:"subject_template,omitempty" validate:"required_if=Channel email,max=255"`
	BodyTemplate    string    `gorm:"type:text" json:"body_template,omitempty" validate:"required_if=Channel email,max=10000"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

var stepValidator = validator.New()

// Validate checks a single step. Uniqueness across a ladder is checked by NormalizeSteps.
func (s *ReminderStep) Validate() error {
	s.SubjectTemplate = strings.TrimSpace(s.SubjectTemplate)
	s.BodyTemplate = strings.TrimSpace(s.BodyTemplate)
	s.Name = strings.TrimSpace(s.Name)
	if err := stepValidator.Struct(s); err != nil {
		return apperrors.Validation("step %q: %v", s.Name, err)
	}
	return nil
}

// StepIdentifier is the reminder status written for the step at index i of a sorted ladder.
func StepIdentifier(index int) string {
	return fmt.Sprintf("reminder_%d", index+1)
}

// StepIndex resolves a step identifier back to its index, or -1.
func StepIndex(identifier string) int {
	var n int
	if _, err := fmt.Sscanf(identifier, "reminder_%d", &n); err != nil || n < 1 {
		return -1
	}
	if StepIdentifier(n-1) != identifier {
		return -1
	}
	return n - 1
}

// NormalizeSteps validates a ladder and returns a copy sorted ascending by delay
// with positions renumbered from zero.
func NormalizeSteps(steps []ReminderStep) ([]ReminderStep, error) {
	out := make([]ReminderStep, len(steps))
	copy(out, steps)

	seen := make(map[int]struct{}, len(out))
	for i := range out {
		if err := out[i].Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[out[i].DelayDays]; dup {
			return nil, apperrors.Validation("duplicate delay of %d days", out[i].DelayDays)
		}
		seen[out[i].DelayDays] = struct{}{}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DelayDays < out[j].DelayDays })
	for i := range out {
		out[i].Position = i
	}
	return out, nil
}
