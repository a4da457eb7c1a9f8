package models

import (
	"time"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
)

const (
	MailCredentialNone           = "none"
	MailCredentialConnected      = "connected"
	MailCredentialReauthRequired = "reauth_required"

	MailProviderGoogle = "google"

	DefaultReminderSendTime = "09:00"
	earliestSendHour        = 6
	latestSendHour          = 21
)

type Organization struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(200);not null" json:"name"`
	Locale           string         `gorm:"type:varchar(10);default:'en'" json:"locale"`
	Timezone         string         `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`
	AutoSendEnabled  bool           `gorm:"default:false" json:"auto_send_enabled"`
	ReminderSendTime string         `gorm:"type:varchar(5);default:'09:00'" json:"reminder_send_time"`
	Steps            []ReminderStep `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"steps"`

	MailProvider         string     `gorm:"type:varchar(50)" json:"mail_provider,omitempty"`
	MailSenderAddress    string     `gorm:"type:varchar(200)" json:"mail_sender_address,omitempty"`
	MailAccessToken      string     `gorm:"type:text" json:"-"`
	MailRefreshToken     string     `gorm:"type:text" json:"-"`
	MailTokenExpiresAt   *time.Time `gorm:"type:timestamp;default:null" json:"mail_token_expires_at,omitempty"`
	MailCredentialStatus string     `gorm:"type:varchar(20);default:'none'" json:"mail_credential_status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasMailCredential reports whether the organization connected a mailbox that can be refreshed.
func (o *Organization) HasMailCredential() bool {
	return o.MailCredentialStatus == MailCredentialConnected && o.MailRefreshToken != ""
}

// Location returns the organization's time zone.
func (o *Organization) Location() *time.Location {
	return dateutil.Location(o.Timezone)
}

// SendTimeOn returns when a reminder for the given day goes out, in UTC.
func (o *Organization) SendTimeOn(day time.Time) time.Time {
	hour, minute, err := ParseSendTime(o.ReminderSendTime)
	if err != nil {
		hour, minute, _ = ParseSendTime(DefaultReminderSendTime)
	}
	return dateutil.At(day, hour, minute, o.Location()).UTC()
}

// ParseSendTime parses "HH:MM" and enforces the 06:00-21:59 window.
func ParseSendTime(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if len(s) != 5 || err != nil {
		return 0, 0, apperrors.Validation("send time %q must be HH:MM", s)
	}
	hour, minute := t.Hour(), t.Minute()
	if hour < earliestSendHour || hour > latestSendHour {
		return 0, 0, apperrors.Validation("send time %q must be between 06:00 and 21:59", s)
	}
	return hour, minute, nil
}

// ReminderSettings are the organization level knobs of the reminder engine.
type ReminderSettings struct {
	ReminderSendTime string `json:"reminder_send_time" validate:"required,len=5"`
	Timezone         string `json:"timezone" validate:"required,max=64"`
	AutoSendEnabled  bool   `json:"auto_send_enabled"`
}

// Validate checks send time and time zone.
func (s *ReminderSettings) Validate() error {
	if err := stepValidator.Struct(s); err != nil {
		return apperrors.Validation("reminder settings: %v", err)
	}
	if _, _, err := ParseSendTime(s.ReminderSendTime); err != nil {
		return err
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return apperrors.Validation("unknown time zone %q", s.Timezone)
	}
	return nil
}
