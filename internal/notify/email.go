package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/jonathan/pain-assessment/internal/summary"
	"github.com/jonathan/pain-assessment/internal/types"
)

// EmailConfig holds SMTP settings and the clinic addresses.
type EmailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	ClinicTo  string
	ClinicBCC string
}

// Sender delivers built messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailOption configures an EmailNotifier
type EmailOption func(*EmailNotifier)

// WithSender replaces the SMTP client.
func WithSender(s Sender) EmailOption {
	return func(n *EmailNotifier) { n.sender = s }
}

// WithEmailLogger sets the logger
func WithEmailLogger(l *slog.Logger) EmailOption {
	return func(n *EmailNotifier) { n.logger = l }
}

// EmailNotifier mails the clinic a full summary and the patient a copy.
type EmailNotifier struct {
	cfg    EmailConfig
	sender Sender
	logger *slog.Logger
}

// NewEmailNotifier creates an SMTP notifier.
func NewEmailNotifier(cfg EmailConfig, opts ...EmailOption) (*EmailNotifier, error) {
	if cfg.Host == "" || cfg.From == "" || cfg.ClinicTo == "" {
		return nil, fmt.Errorf("SMTP host, from and clinic addresses must be provided")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	n := &EmailNotifier{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	if n.sender == nil {
		client, err := newSMTPClient(cfg)
		if err != nil {
			return nil, err
		}
		n.sender = client
	}
	return n, nil
}

func newSMTPClient(cfg EmailConfig) (*mail.Client, error) {
	clientOpts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return client, nil
}

// Name identifies the notifier in logs
func (n *EmailNotifier) Name() string { return "email" }

// Notify sends the clinic email, then the patient copy when the patient address differs
// from the clinic's.
func (n *EmailNotifier) Notify(ctx context.Context, rec Record) error {
	body, err := renderEmail(rec)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("New Pain Assessment: %s [%s]", headerText(rec.Payload.FullName), rec.Urgency.Tier())
	if err := n.deliver(ctx, n.cfg.ClinicTo, n.cfg.ClinicBCC, subject, body); err != nil {
		return fmt.Errorf("failed to send clinic email: %w", err)
	}

	patient := strings.TrimSpace(rec.Payload.Email)
	if patient == "" || strings.EqualFold(patient, n.cfg.ClinicTo) {
		return nil
	}
	if err := n.deliver(ctx, patient, "", "Your Pain Assessment Summary", body); err != nil {
		return fmt.Errorf("failed to send patient email: %w", err)
	}
	return nil
}

// headerText folds patient text onto one line so it cannot start a new header.
func headerText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// deliver builds and sends one message. bcc is optional and never appears in the headers.
func (n *EmailNotifier) deliver(ctx context.Context, to, bcc, subject string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))
	if err := msg.From(n.cfg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if bcc != "" {
		if err := msg.Bcc(bcc); err != nil {
			return fmt.Errorf("invalid bcc recipient: %w", err)
		}
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, string(body))

	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return err
	}
	n.logger.Info("EmailNotifier.deliver: email sent", "to", to, "subject", subject)
	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family: sans-serif;">
<h2>Pain Assessment Summary</h2>
<p><strong>Patient:</strong> {{.Payload.FullName}} ({{.Payload.Email}})</p>
{{if .AssessmentID}}<p><strong>Assessment ID:</strong> {{.AssessmentID}}</p>{{end}}
<p><span style="padding: 4px 8px; border-radius: 4px; color: #fff; background: {{.BadgeColor}};">{{.Urgency}}</span></p>
<h3>Pain Areas</h3>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Region</th><th>Intensity</th><th>Quality</th><th>Notes</th></tr>
{{range .Payload.PainAreas}}<tr><td>{{.Region}}</td><td>{{.Intensity}}/10</td><td>{{range $i, $q := .Qualities}}{{if $i}}, {{end}}{{$q}}{{end}}</td><td>{{.Notes}}</td></tr>
{{end}}</table>
<h3>Red Flags</h3>
<table border="1" cellpadding="4" cellspacing="0">
{{range .RedFlags}}<tr><td>{{.Label}}</td><td>{{if .Present}}Yes{{else}}No{{end}}</td></tr>
{{end}}</table>
<h3>Treatment Goals</h3>
<p>{{if .Payload.TreatmentGoals}}{{.Payload.TreatmentGoals}}{{else}}Not specified{{end}}</p>
<h3>AI Summary</h3>
{{.Summary}}
</body></html>
`))

type emailView struct {
	Record
	Urgency    string
	BadgeColor string
	RedFlags   []types.RedFlagLabel
	Summary    template.HTML
}

// BadgeColor returns the display color for an urgency tier.
func BadgeColor(u types.Urgency) string {
	switch u {
	case types.UrgencyHigh:
		return "#dc2626"
	case types.UrgencyModerate:
		return "#d97706"
	default:
		return "#16a34a"
	}
}

func renderEmail(rec Record) ([]byte, error) {
	view := emailView{
		Record:     rec,
		Urgency:    strings.ReplaceAll(string(rec.Urgency), "_", " "),
		BadgeColor: BadgeColor(rec.Urgency),
		RedFlags:   rec.Payload.RedFlags.Labeled(),
		Summary:    template.HTML(summary.Sanitize(rec.AISummary)),
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}
	return buf.Bytes(), nil
}
