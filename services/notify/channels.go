// Package notifysvc holds the channels ETL notifications are delivered to.
package notifysvc

import (
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/etl"
)

// Channels returns the channels configured in conf. awsCfg is only used when an SNS topic is set.
func Channels(conf core.NotifyConfig, emailSvc core.EmailService, awsCfg *aws.Config) []etl.Channel {
	channels := make([]etl.Channel, 0, 4)
	if conf.SlackURL != "" {
		channels = append(channels, NewSlack(conf.SlackURL))
	}
	if conf.TeamsURL != "" {
		channels = append(channels, NewTeams(conf.TeamsURL))
	}
	if len(conf.Emails) > 0 && emailSvc != nil {
		channels = append(channels, NewEmail(emailSvc, conf.Emails...))
	}
	if conf.SNSTopicArn != "" && awsCfg != nil {
		channels = append(channels, NewSNSFromConfig(*awsCfg, conf.SNSTopicArn))
	}
	return channels
}
