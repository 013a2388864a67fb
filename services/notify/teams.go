package notifysvc

import (
	"context"
	"strings"

	"github.com/sendgrid/rest"

	"github.com/staffhub/backend/core/etl"
)

type (
	teamsFact struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	teamsSection struct {
		Title string      `json:"title,omitempty"`
		Text  string      `json:"text,omitempty"`
		Facts []teamsFact `json:"facts,omitempty"`
	}
	// MessageCard connector format
	teamsCard struct {
		Type       string         `json:"@type"`
		Context    string         `json:"@context"`
		Summary    string         `json:"summary"`
		ThemeColor string         `json:"themeColor"`
		Title      string         `json:"title"`
		Text       string         `json:"text"`
		Sections   []teamsSection `json:"sections"`
	}
)

// Teams posts notifications to an Office 365 connector webhook.
type Teams struct {
	url    string
	client *rest.Client
}

var _ etl.Channel = (*Teams)(nil)

func NewTeams(webhookURL string) *Teams {
	return &Teams{url: webhookURL, client: newRESTClient()}
}

func (*Teams) Name() string { return "teams" }

func (tm *Teams) Send(ctx context.Context, n etl.Notification) error {
	return postJSON(ctx, tm.client, tm.url, teamsMessage(n))
}

func teamsMessage(n etl.Notification) teamsCard {
	facts := []teamsFact{{Name: "Timestamp", Value: timestamp(n.Timestamp)}}
	if n.Stats != nil {
		facts = append(facts, teamsFact{Name: "Statistics", Value: statsJSON(n.Stats)})
	}
	sections := []teamsSection{{Facts: facts}}
	if len(n.Errors) > 0 {
		sections = append(sections, teamsSection{Title: "Errors", Text: strings.Join(n.Errors, "\n")})
	}
	return teamsCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    n.Title,
		ThemeColor: n.Color(),
		Title:      n.Title,
		Text:       n.Message,
		Sections:   sections,
	}
}
