package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/jonathan/pain-assessment/internal/prompts"
	"github.com/jonathan/pain-assessment/internal/types"
)

// messageCreator is the part of the Twilio API the notifier uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSConfig holds Twilio credentials and the alert numbers.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// SMSNotifier texts the clinic about HIGH urgency assessments. Other tiers are ignored.
type SMSNotifier struct {
	api    messageCreator
	from   string
	to     string
	logger *slog.Logger
}

// NewSMSNotifier creates a Twilio-backed notifier.
func NewSMSNotifier(cfg SMSConfig, logger *slog.Logger) (*SMSNotifier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("from and to numbers must be provided")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newSMSNotifier(client.Api, cfg.From, cfg.To, logger), nil
}

func newSMSNotifier(api messageCreator, from, to string, logger *slog.Logger) *SMSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSNotifier{api: api, from: from, to: to, logger: logger}
}

// Name identifies the notifier in logs
func (n *SMSNotifier) Name() string { return "sms" }

// Notify sends the alert when rec is HIGH urgency.
func (n *SMSNotifier) Notify(ctx context.Context, rec Record) error {
	if rec.Urgency != types.UrgencyHigh {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := AlertText(rec)
	if err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(body)

	if _, err := n.api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS to %s: %w", n.to, err)
	}
	n.logger.Info("SMSNotifier.Notify: alert sent", "assessment_id", rec.AssessmentID)
	return nil
}

// AlertText renders the one-line clinic alert.
func AlertText(rec Record) (string, error) {
	var reasons []string
	for _, l := range rec.Payload.RedFlags.Labeled() {
		if l.Present {
			reasons = append(reasons, l.Label)
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "see summary")
	}
	return prompts.SMSAlert(prompts.Alert{
		Name:         headerText(rec.Payload.FullName),
		Email:        rec.Payload.Email,
		Reasons:      strings.Join(reasons, ", "),
		AssessmentID: rec.AssessmentID,
	})
}
