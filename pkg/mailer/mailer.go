// Package mailer delivers rendered reports over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
)

// ErrDisabled is returned by Send when no SMTP host is configured.
var ErrDisabled = errors.New("email delivery is not configured")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// Mailer sends one message per call; each send dials its own connection.
type Mailer struct {
	cfg Config
}

func New(cfg Config) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Mailer{cfg: cfg}
}

// Enabled reports whether a host is configured.
func (m *Mailer) Enabled() bool { return m.cfg.Host != "" }

var bodyTemplate = template.Must(template.New("body").Parse(`Dear {{.Name}},

Please find attached your personalized job fit analysis report{{if .JobTitle}} for the position "{{.JobTitle}}"{{end}}.

The report covers how your profile matches the role, your key strengths, areas to develop, and recommended resources.

Roll Number: {{.RollNumber}}

Best regards,
{{.Sender}}
`))

// Delivery describes one report email.
type Delivery struct {
	To         string
	Name       string
	RollNumber string
	JobTitle   string
	Attachment string
}

// Send delivers d with the PDF attached.
func (m *Mailer) Send(ctx context.Context, d Delivery) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	msg, err := m.buildMessage(d)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send report email to %s: %w", d.To, err)
	}
	return nil
}

func (m *Mailer) buildMessage(d Delivery) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.AddToFormat(d.Name, d.To); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject("Your Job Fit Analysis Report")

	var body bytes.Buffer
	err := bodyTemplate.Execute(&body, struct {
		Delivery
		Sender string
	}{d, m.cfg.FromName})
	if err != nil {
		return nil, fmt.Errorf("render email body: %w", err)
	}
	msg.SetBodyString(mail.TypeTextPlain, body.String())
	msg.AttachFile(d.Attachment, mail.WithFileName(fmt.Sprintf("%s_%s", d.RollNumber, filepath.Base(d.Attachment))))
	return msg, nil
}
