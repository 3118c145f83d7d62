// Package mail sends the order confirmation mails through SendGrid
// dynamic templates.
package mail

import (
	"fmt"

	"github.com/salinamaris/crmsync"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender sends templated mails from a fixed sender address.
type Sender struct {
	client *sendgrid.Client
	from   string
}

// NewSender builds a Sender for the account behind apiKey.
func NewSender(apiKey, from string) *Sender {
	return &Sender{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
	}
}

// SendConfirmation renders the dynamic template with the confirmation
// payload and delivers it to one recipient.
func (s *Sender) SendConfirmation(to, templateID string, data crmsync.Confirmation) error {
	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail("", s.from))
	m.SetTemplateID(templateID)

	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail("", to))
	p.DynamicTemplateData = map[string]interface{}{
		"payment_info": data.PaymentInfo,
		"items":        data.Items,
		"customer":     data.Customer,
	}
	m.AddPersonalizations(p)

	res, err := s.client.Send(m)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
