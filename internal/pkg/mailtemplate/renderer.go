// Package mailtemplate fills {{placeholder}} templates with invoice and
// organization values. Rendering is pure: no I/O, no clock.
package mailtemplate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Context carries every value a template may reference.
type Context struct {
	InvoiceNumber    string
	ClientName       string
	Amount           decimal.Decimal
	Currency         string
	InvoiceDate      *time.Time
	DueDate          *time.Time
	ReferenceDate    time.Time
	OrganizationName string
	Locale           string
	InviteeName      string
	InviteURL        string
}

// ContextFor builds a rendering context for an invoice as seen on referenceDate.
func ContextFor(org *models.Organization, inv *models.Invoice, referenceDate time.Time) Context {
	return Context{
		InvoiceNumber:    inv.Number,
		ClientName:       inv.ClientName,
		Amount:           inv.Amount,
		Currency:         inv.Currency,
		InvoiceDate:      inv.InvoiceDate,
		DueDate:          inv.DueDate,
		ReferenceDate:    referenceDate,
		OrganizationName: org.Name,
		Locale:           org.Locale,
	}
}

// Render substitutes known placeholders. Unknown placeholders stay verbatim.
func Render(tmpl string, ctx Context) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	values := ctx.values()
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return match
	})
}

func (c Context) values() map[string]string {
	v := map[string]string{
		"invoice_number":    c.InvoiceNumber,
		"client_name":       c.ClientName,
		"amount":            FormatAmount(c.Amount, c.Locale),
		"currency":          c.Currency,
		"organization_name": c.OrganizationName,
		"invoice_date":      FormatDate(c.InvoiceDate, c.Locale),
		"due_date":          FormatDate(c.DueDate, c.Locale),
		"days_past_due":     "0",
		"invitee_name":      c.InviteeName,
		"invite_url":        c.InviteURL,
	}
	if c.DueDate != nil {
		v["days_past_due"] = strconv.Itoa(DaysPastDue(*c.DueDate, c.ReferenceDate))
	}
	return v
}

// DaysPastDue is max(0, whole days from due to ref) on midnight aligned dates.
func DaysPastDue(due, ref time.Time) int {
	if ref.IsZero() {
		return 0
	}
	days := dateutil.DaysBetween(due, ref)
	if days < 0 {
		return 0
	}
	return days
}

// FormatAmount renders two decimals with the locale's separators, e.g. 1,234.50 or 1.234,50.
func FormatAmount(amount decimal.Decimal, locale string) string {
	f, _ := amount.Round(2).Float64()
	return message.NewPrinter(tag(locale)).Sprint(number.Decimal(f, number.Scale(2)))
}

// FormatDate renders a date the way invoices show it in the locale.
func FormatDate(t *time.Time, locale string) string {
	if t == nil {
		return ""
	}
	base, _ := tag(locale).Base()
	switch base.String() {
	case "de", "pl":
		return t.Format("02.01.2006")
	case "fr", "es", "it", "pt":
		return t.Format("02/01/2006")
	}
	return t.Format(dateutil.Layout)
}

func tag(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	t, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return t
}
