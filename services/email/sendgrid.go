package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/masomo-live/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"

	sendgridAPI          = sendgrid.API // mockable
	retryInitialInterval = 500 * time.Millisecond
)

type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) *sendgridService {
	return &sendgridService{
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && msg.HasContent() {
				if err := svc.send(*msg); err != nil {
					svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
				}
			}
		}()
	}
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

// send posts msg, retrying a few times when sendgrid is unavailable.
func (svc sendgridService) send(msg core.EmailMessage) error {
	body := sgmail.GetRequestBody(svc.prepare(msg))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxElapsedTime = time.Minute

	return backoff.Retry(func() error {
		req := sendgrid.GetRequest(svc.key, endpoint, host)
		req.Method = http.MethodPost
		req.Body = body

		res, err := sendgridAPI(req)
		if err != nil {
			return err
		}
		return statusError(res)
	}, backoff.WithMaxRetries(b, 3))
}

func statusError(res *rest.Response) error {
	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		return errors.Errorf("status: %d - body: %s", res.StatusCode, res.Body)
	case res.StatusCode >= http.StatusBadRequest:
		return backoff.Permanent(errors.Errorf("status: %d - body: %s", res.StatusCode, res.Body))
	}
	return nil
}
