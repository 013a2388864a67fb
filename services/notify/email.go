package notifysvc

import (
	"context"
	"net/mail"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/etl"
)

const reportTemplate = "etl_report"

type reportData struct {
	Title     string
	Message   string
	Errors    []string
	Timestamp string
	Color     string
}

// Email sends notifications through an email service, rendered with the etl_report template.
type Email struct {
	svc core.EmailService
	to  []mail.Address
}

var _ etl.Channel = (*Email)(nil)

func NewEmail(svc core.EmailService, to ...string) *Email {
	return &Email{svc: svc, to: core.NewAddressList(to...)}
}

func (*Email) Name() string { return "email" }

func (e *Email) Send(_ context.Context, n etl.Notification) error {
	return e.svc.SendMessages(&core.EmailMessage{
		To:           e.to,
		Subject:      n.Title,
		TemplateName: reportTemplate,
		TemplateData: reportData{
			Title:     n.Title,
			Message:   n.Message,
			Errors:    n.Errors,
			Timestamp: timestamp(n.Timestamp),
			Color:     n.Color(),
		},
	})
}
