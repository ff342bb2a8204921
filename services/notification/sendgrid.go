package notification

import (
	"context"
	"fmt"
	"net/http"

	"coursemarket/utils"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendgridMailer delivers e-mail through the SendGrid v3 API.
type SendgridMailer struct {
	key  string
	from *sgmail.Email
}

var _ Mailer = (*SendgridMailer)(nil)

func NewSendgridMailer(key, appName, fromEmail string) *SendgridMailer {
	return &SendgridMailer{
		key:  key,
		from: sgmail.NewEmail(appName, fromEmail),
	}
}

func (m *SendgridMailer) Send(ctx context.Context, toName, toEmail, subject, plain, htmlBody string) error {
	msg := sgmail.NewSingleEmail(m.from, subject, sgmail.NewEmail(toName, toEmail), plain, htmlBody)
	client := sendgrid.NewSendClient(m.key)
	res, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid responded %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func renderHTML(appName string, ev Event) string {
	return utils.RenderEmail(appName, ev.Title, ev.Message, ev.Link)
}
