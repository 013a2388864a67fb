package metricsvc

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffhub/backend/core/etl"
)

type fakeCloudWatch struct {
	input *cloudwatch.PutMetricDataInput
	err   error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.input = in
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatch_Publish(t *testing.T) {
	client := new(fakeCloudWatch)
	pub := NewCloudWatch(client, "StaffHub/CasesETL", "PROD")

	m := etl.RunMetrics{RunID: "r1", StartTime: time.Now().Add(-time.Minute), RecordsProcessed: 10, RecordsErrored: 1}
	m.Finalize(time.Now(), true)
	require.NoError(t, pub.Publish(context.Background(), m))

	require.NotNil(t, client.input)
	assert.Equal(t, "StaffHub/CasesETL", *client.input.Namespace)

	values := make(map[string]float64)
	for _, d := range client.input.MetricData {
		values[*d.MetricName] = *d.Value
		require.Len(t, d.Dimensions, 1)
		assert.Equal(t, "PROD", *d.Dimensions[0].Value)
	}
	assert.Equal(t, 10.0, values["RecordsProcessed"])
	assert.Equal(t, 0.1, values["ErrorRate"])
	assert.Equal(t, 1.0, values["Success"])

	client.err = assert.AnError
	assert.Error(t, pub.Publish(context.Background(), m))
}
