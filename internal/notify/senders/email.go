package senders

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/notify"
	"github.com/akmatori/responder/internal/notify/email"
)

// EmailSender mails the incident to the channel's "recipients"
type EmailSender struct {
	mailer notify.Mailer
}

// NewEmailSender creates the sender
func NewEmailSender(mailer notify.Mailer) *EmailSender {
	return &EmailSender{mailer: mailer}
}

// Type returns the channel type this sender handles
func (s *EmailSender) Type() database.ChannelType { return database.ChannelEmail }

// Send delivers the message
func (s *EmailSender) Send(ctx context.Context, msg *notify.Message, cfg database.JSONB) error {
	recipients := configStrings(cfg, "recipients")
	if len(recipients) == 0 {
		return fmt.Errorf("email channel config needs recipients")
	}
	if s.mailer == nil {
		return fmt.Errorf("no email provider configured")
	}

	text, htmlBody := BuildEmailBody(msg)
	return s.mailer.Send(ctx, &email.Request{
		From:    configString(cfg, "from"),
		To:      recipients,
		Subject: fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(msg.Incident.Severity)), msg.Label(), msg.Incident.Title),
		Body:    text,
		HTML:    htmlBody,
	})
}

// BuildEmailBody renders the plain text and HTML bodies
func BuildEmailBody(msg *notify.Message) (string, string) {
	inc := msg.Incident
	rows := [][2]string{
		{"Severity", strings.ToUpper(string(inc.Severity))},
		{"Status", string(inc.Status)},
		{"Services", msg.ServiceText()},
		{"Alerts", fmt.Sprint(msg.AlertCount())},
		{"Started", inc.StartedAt.UTC().Format("2006-01-02 15:04:05 MST")},
	}

	var text, h strings.Builder
	fmt.Fprintf(&text, "%s\n\n%s\n\n", msg.Label(), inc.Title)
	fmt.Fprintf(&h, `<h2 style="color:%s">%s</h2><p><strong>%s</strong></p><table>`,
		notify.SeverityColor(inc.Severity), html.EscapeString(msg.Label()), html.EscapeString(inc.Title))
	for _, row := range rows {
		fmt.Fprintf(&text, "%s: %s\n", row[0], row[1])
		fmt.Fprintf(&h, "<tr><td><strong>%s</strong></td><td>%s</td></tr>", row[0], html.EscapeString(row[1]))
	}
	h.WriteString("</table>")

	if url := msg.IncidentURL(); url != "" {
		fmt.Fprintf(&text, "\nView incident: %s\n", url)
		fmt.Fprintf(&h, `<p><a href="%s">View incident</a></p>`, html.EscapeString(url))
	}
	return text.String(), h.String()
}
