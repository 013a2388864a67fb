package notifysvc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
)

// postJSON posts payload to a chat webhook.
func postJSON(ctx context.Context, client *rest.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding payload")
	}
	res, err := client.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: url,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return errors.Wrap(err, "posting webhook")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("webhook responded %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func newRESTClient() *rest.Client {
	return &rest.Client{HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

func statsJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
