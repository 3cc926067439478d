package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Kind is the booking event a notification describes.
type Kind string

const (
	KindConfirmed   Kind = "confirmed"
	KindCancelled   Kind = "cancelled"
	KindRescheduled Kind = "rescheduled"
)

// Template is the subject and body for one (kind, role). Message channels only
// use Body.
type Template struct {
	Subject string
	Body    string
}

// Templates maps event kind and recipient role to a template.
type Templates map[Kind]map[Role]Template

// DefaultTemplates returns the built-in wording. Fields available to templates:
// BookingID, ClientName, ProviderName, ServiceName, When, PreviousWhen,
// PaymentLabel.
func DefaultTemplates() Templates {
	return Templates{
		KindConfirmed: {
			RoleClient: {
				Subject: "Booking confirmed: {{.ServiceName}} on {{.When}}",
				Body:    "Hi {{.ClientName}}, your {{.ServiceName}} with {{.ProviderName}} is confirmed for {{.When}}. Payment: {{.PaymentLabel}}.",
			},
			RoleProvider: {
				Subject: "New booking: {{.ClientName}} on {{.When}}",
				Body:    "{{.ClientName}} booked {{.ServiceName}} for {{.When}}. Payment: {{.PaymentLabel}}.",
			},
		},
		KindCancelled: {
			RoleClient: {
				Subject: "Booking cancelled: {{.ServiceName}} on {{.When}}",
				Body:    "Hi {{.ClientName}}, your {{.ServiceName}} with {{.ProviderName}} on {{.When}} was cancelled.",
			},
			RoleProvider: {
				Subject: "Booking cancelled: {{.ClientName}} on {{.When}}",
				Body:    "{{.ClientName}} cancelled {{.ServiceName}} on {{.When}}.",
			},
		},
		KindRescheduled: {
			RoleClient: {
				Subject: "Booking moved to {{.When}}",
				Body:    "Hi {{.ClientName}}, your {{.ServiceName}} with {{.ProviderName}} moved from {{.PreviousWhen}} to {{.When}}.",
			},
			RoleProvider: {
				Subject: "Booking moved: {{.ClientName}} to {{.When}}",
				Body:    "{{.ClientName}} moved {{.ServiceName}} from {{.PreviousWhen}} to {{.When}}.",
			},
		},
	}
}

// Renderer renders small text templates with strict missing-key semantics.
type Renderer struct{}

func (Renderer) Render(name, tmpl string, data map[string]string) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("notify: template %s is empty", name)
	}
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("notify: parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: execute %s: %w", name, err)
	}
	return buf.String(), nil
}

// Message is rendered content for a recipient.
type Message struct {
	Subject string
	Body    string
	// Tags label the message at providers that support it.
	Tags map[string]string
}

func (r Renderer) renderMessage(kind Kind, role Role, tpl Template, data map[string]string) (Message, error) {
	name := string(kind) + "." + string(role)
	subject := ""
	if tpl.Subject != "" {
		var err error
		if subject, err = r.Render(name+".subject", tpl.Subject, data); err != nil {
			return Message{}, err
		}
	}
	body, err := r.Render(name+".body", tpl.Body, data)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Body: body}, nil
}
