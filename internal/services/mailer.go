package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/platform/sendgrid"
)

type InviteMail struct {
	To          string
	ProjectName string
	InviterName string
	Role        string
	AcceptURL   string
}

type Mailer interface {
	SendInvite(ctx context.Context, m InviteMail) error
}

var inviteHTML = template.Must(template.New("invite").Parse(`<p>{{.InviterName}} invited you to join <strong>{{.ProjectName}}</strong> on Inkwell as {{.Role}}.</p>
<p><a href="{{.AcceptURL}}">Accept the invitation</a></p>
<p>If you were not expecting this, you can ignore this email.</p>`))

type mailer struct {
	log    *logger.Logger
	client sendgrid.Client
}

// NewMailer sends through SendGrid. A nil client logs and drops mail, which
// keeps local development free of credentials.
func NewMailer(log *logger.Logger, client sendgrid.Client) Mailer {
	return &mailer{log: log.With("service", "Mailer"), client: client}
}

func (m *mailer) SendInvite(ctx context.Context, in InviteMail) error {
	metrics := observability.Current()
	if m.client == nil {
		m.log.Info("Mail disabled; invite not sent", "project", in.ProjectName)
		metrics.ObserveMail("invite", "disabled")
		return nil
	}
	var html bytes.Buffer
	if err := inviteHTML.Execute(&html, in); err != nil {
		return fmt.Errorf("render invite email: %w", err)
	}
	text := fmt.Sprintf("%s invited you to join %s on Inkwell as %s.\n\nAccept: %s\n", in.InviterName, in.ProjectName, in.Role, in.AcceptURL)
	_, err := m.client.Send(ctx, sendgrid.SendEmailRequest{
		To:         []sendgrid.EmailAddress{{Email: in.To}},
		Subject:    fmt.Sprintf("You're invited to %s", in.ProjectName),
		Text:       text,
		HTML:       html.String(),
		Categories: []string{"project_invite"},
	})
	if err != nil {
		metrics.ObserveMail("invite", "error")
		return fmt.Errorf("send invite email: %w", err)
	}
	metrics.ObserveMail("invite", "sent")
	return nil
}
