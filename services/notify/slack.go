package notifysvc

import (
	"context"
	"strings"

	"github.com/sendgrid/rest"

	"github.com/staffhub/backend/core/etl"
)

type (
	slackField struct {
		Title string `json:"title"`
		Value string `json:"value"`
		Short bool   `json:"short"`
	}
	slackAttachment struct {
		Color  string       `json:"color"`
		Fields []slackField `json:"fields"`
	}
	slackPayload struct {
		Text        string            `json:"text"`
		Attachments []slackAttachment `json:"attachments"`
	}
)

// Slack posts notifications to an incoming webhook.
type Slack struct {
	url    string
	client *rest.Client
}

var _ etl.Channel = (*Slack)(nil)

func NewSlack(webhookURL string) *Slack {
	return &Slack{url: webhookURL, client: newRESTClient()}
}

func (*Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n etl.Notification) error {
	return postJSON(ctx, s.client, s.url, slackMessage(n))
}

func slackMessage(n etl.Notification) slackPayload {
	att := slackAttachment{
		Color: "#" + strings.ToLower(n.Color()),
		Fields: []slackField{
			{Title: "Message", Value: n.Message},
			{Title: "Timestamp", Value: timestamp(n.Timestamp), Short: true},
		},
	}
	if n.Stats != nil {
		att.Fields = append(att.Fields, slackField{Title: "Statistics", Value: statsJSON(n.Stats)})
	}
	if len(n.Errors) > 0 {
		att.Fields = append(att.Fields, slackField{Title: "Errors", Value: strings.Join(n.Errors, "\n")})
	}
	return slackPayload{Text: n.Title, Attachments: []slackAttachment{att}}
}
