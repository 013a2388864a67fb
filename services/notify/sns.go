package notifysvc

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/pkg/errors"

	"github.com/staffhub/backend/core/etl"
)

// SNSAPI is the part of the SNS client used by SNS.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS publishes notifications as JSON to a topic, with the notification type as a message attribute.
type SNS struct {
	client   SNSAPI
	topicARN string
}

var _ etl.Channel = (*SNS)(nil)

func NewSNS(client SNSAPI, topicARN string) *SNS {
	return &SNS{client: client, topicARN: topicARN}
}

func NewSNSFromConfig(cfg aws.Config, topicARN string) *SNS {
	return NewSNS(sns.NewFromConfig(cfg), topicARN)
}

func (*SNS) Name() string { return "sns" }

func (s *SNS) Send(ctx context.Context, n etl.Notification) error {
	msg, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "encoding notification")
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(n.Title),
		Message:  aws.String(string(msg)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String("cases_etl." + string(n.Type)),
			},
		},
	})
	return errors.Wrap(err, "publishing notification")
}
