package notification

import (
	"bytes"
	"fmt"
	"text/template"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[Type]emailTemplate{
	TypeCourseEnrollment: mustTemplate(
		`You're enrolled in {{.courseName}}`,
		`Hi {{.name}},

Your payment of {{.amount}} was received and you are now enrolled in {{.courseName}}, taught by {{.instructor}}.

Start learning: {{.dashboardUrl}}

Transaction ID: {{.transactionId}}

BnOverseas`),
	TypeAppointmentConfirmation: mustTemplate(
		`Your consultation on {{.scheduledAt}} is confirmed`,
		`Hi {{.name}},

Your consultation with {{.consultant}} on {{.scheduledAt}} is confirmed. We received your payment of {{.amount}}.

Manage your appointments: {{.dashboardUrl}}

Transaction ID: {{.transactionId}}

BnOverseas`),
	TypePaymentSuccess: mustTemplate(
		`Payment received`,
		`Hi {{.name}},

We received your payment of {{.amount}}.

Transaction ID: {{.transactionId}}
View your payments: {{.dashboardUrl}}

BnOverseas`),
	TypePaymentFailed: mustTemplate(
		`Your payment could not be completed`,
		`Hi {{.name}},

Your payment of {{.amount}} could not be completed{{with .reason}}: {{.}}{{end}}.

You can try again here: {{.dashboardUrl}}

Transaction ID: {{.transactionId}}

BnOverseas`),
	TypeRefundProcessed: mustTemplate(
		`Your refund has been processed`,
		`Hi {{.name}},

A refund of {{.amount}} has been processed{{with .reason}} ({{.}}){{end}}. It can take 5-7 business days to reach your account.

Transaction ID: {{.transactionId}}

BnOverseas`),
}

func mustTemplate(subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// Render produces the subject and plain-text body for an email.
func Render(e Email) (subject, body string, err error) {
	tmpl, ok := templates[e.Type]
	if !ok {
		return "", "", fmt.Errorf("unknown notification type %q", e.Type)
	}

	var buf bytes.Buffer
	if err := tmpl.subject.Execute(&buf, e.Data); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	subject = buf.String()

	buf.Reset()
	if err := tmpl.body.Execute(&buf, e.Data); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return subject, buf.String(), nil
}
