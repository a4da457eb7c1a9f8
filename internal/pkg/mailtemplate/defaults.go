package mailtemplate

// Kind selects a built-in template.
type Kind string

const (
	KindInvoiceSend  Kind = "invoice_send"
	KindInvitation   Kind = "invitation"
	KindStepReminder Kind = "step_reminder"
)

// Template is a subject/body pair.
type Template struct {
	Subject string
	Body    string
}

var defaults = map[Kind]Template{
	KindInvoiceSend: {
		Subject: "Invoice {{invoice_number}} from {{organization_name}}",
		Body: "Hello {{client_name}},\n\n" +
			"please find attached invoice {{invoice_number}} dated {{invoice_date}} " +
			"over {{amount}} {{currency}}, payable by {{due_date}}.\n\n" +
			"Kind regards\n{{organization_name}}",
	},
	KindInvitation: {
		Subject: "{{organization_name}} invited you to InvoiceFox",
		Body: "Hello {{invitee_name}},\n\n" +
			"{{organization_name}} invited you to collaborate on their invoices.\n" +
			"Accept the invitation here: {{invite_url}}\n",
	},
	KindStepReminder: {
		Subject: "Reminder: invoice {{invoice_number}} is {{days_past_due}} days overdue",
		Body: "Hello {{client_name}},\n\n" +
			"our records show that invoice {{invoice_number}} over {{amount}} {{currency}} " +
			"was due on {{due_date}} and is now {{days_past_due}} days overdue.\n" +
			"If you have already paid, please disregard this message.\n\n" +
			"Kind regards\n{{organization_name}}",
	},
}

// Default returns the built-in template for kind, falling back to the step reminder.
func Default(kind Kind) Template {
	if t, ok := defaults[kind]; ok {
		return t
	}
	return defaults[KindStepReminder]
}

// RenderOrDefault renders subject and body, substituting the built-in template
// of kind for whichever part is empty.
func RenderOrDefault(subject, body string, kind Kind, ctx Context) (string, string) {
	def := Default(kind)
	if subject == "" {
		subject = def.Subject
	}
	if body == "" {
		body = def.Body
	}
	return Render(subject, ctx), Render(body, ctx)
}
