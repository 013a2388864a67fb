// Package metricsvc publishes ETL run metrics to CloudWatch.
package metricsvc

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/pkg/errors"

	"github.com/staffhub/backend/core/etl"
)

// API is the part of the CloudWatch client used by the publisher.
type API interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type CloudWatch struct {
	client    API
	namespace string
	env       string
}

var _ etl.MetricsPublisher = (*CloudWatch)(nil)

func NewCloudWatch(client API, namespace, env string) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, env: env}
}

func NewCloudWatchFromConfig(cfg aws.Config, namespace, env string) *CloudWatch {
	return NewCloudWatch(cloudwatch.NewFromConfig(cfg), namespace, env)
}

func (cw *CloudWatch) Publish(ctx context.Context, m etl.RunMetrics) error {
	dims := []types.Dimension{{Name: aws.String("Environment"), Value: aws.String(cw.env)}}
	ts := aws.Time(m.EndTime)
	datum := func(name string, value float64, unit types.StandardUnit) types.MetricDatum {
		return types.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: dims,
			Timestamp:  ts,
			Unit:       unit,
			Value:      aws.Float64(value),
		}
	}

	var success float64
	if m.Success {
		success = 1
	}
	_, err := cw.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(cw.namespace),
		MetricData: []types.MetricDatum{
			datum("Duration", float64(m.DurationMs), types.StandardUnitMilliseconds),
			datum("FilesProcessed", float64(m.FilesProcessed), types.StandardUnitCount),
			datum("RecordsProcessed", float64(m.RecordsProcessed), types.StandardUnitCount),
			datum("RecordsCreated", float64(m.RecordsCreated), types.StandardUnitCount),
			datum("RecordsUpdated", float64(m.RecordsUpdated), types.StandardUnitCount),
			datum("RecordsErrored", float64(m.RecordsErrored), types.StandardUnitCount),
			datum("ErrorRate", m.ErrorRate, types.StandardUnitNone),
			datum("Success", success, types.StandardUnitCount),
		},
	})
	return errors.Wrap(err, "putting metric data")
}
