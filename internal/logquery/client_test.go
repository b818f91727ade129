package logquery

import (
	"context"
	"errors"
	"testing"
	"time"

	"FlowSpectra/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogs struct {
	startInput *cloudwatchlogs.StartQueryInput
	startErr   error
	statuses   []types.QueryStatus
	results    [][]types.ResultField
	polls      int
}

func (f *fakeLogs) StartQuery(_ context.Context, in *cloudwatchlogs.StartQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error) {
	f.startInput = in
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &cloudwatchlogs.StartQueryOutput{QueryId: aws.String("q-1")}, nil
}

func (f *fakeLogs) GetQueryResults(_ context.Context, in *cloudwatchlogs.GetQueryResultsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	status := types.QueryStatusRunning
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	out := &cloudwatchlogs.GetQueryResultsOutput{Status: status}
	if status == types.QueryStatusComplete {
		out.Results = f.results
	}
	return out, nil
}

func field(name, value string) types.ResultField {
	return types.ResultField{Field: aws.String(name), Value: aws.String(value)}
}

func TestSubmitAndWait_Complete(t *testing.T) {
	api := &fakeLogs{
		statuses: []types.QueryStatus{types.QueryStatusScheduled, types.QueryStatusRunning, types.QueryStatusComplete},
		results: [][]types.ResultField{
			{field("@timestamp", "2024-01-01 00:00:00.000"), field("srcaddr", "10.0.0.1")},
			{field("srcaddr", "10.0.0.2")},
		},
	}
	client := NewClient(api, WithPollInterval(0))

	start := time.Unix(1700000000, 0)
	tr := TimeRange{Start: start, End: start.Add(time.Hour)}
	rows, err := client.SubmitAndWait(context.Background(), "group", "fields @message", tr)
	require.NoError(t, err)

	assert.Equal(t, 3, api.polls)
	require.Len(t, rows, 2)
	assert.Equal(t, "10.0.0.1", rows[0]["srcaddr"])
	assert.Equal(t, "2024-01-01 00:00:00.000", rows[0]["@timestamp"])
	assert.Equal(t, "10.0.0.2", rows[1]["srcaddr"])

	assert.Equal(t, "group", aws.ToString(api.startInput.LogGroupName))
	assert.Equal(t, int64(1700000000), aws.ToInt64(api.startInput.StartTime))
	assert.Equal(t, int64(1700003600), aws.ToInt64(api.startInput.EndTime))
}

func TestSubmitAndWait_TerminalFailures(t *testing.T) {
	for _, status := range []types.QueryStatus{types.QueryStatusFailed, types.QueryStatusCancelled, types.QueryStatusTimeout, types.QueryStatusUnknown} {
		t.Run(string(status), func(t *testing.T) {
			api := &fakeLogs{statuses: []types.QueryStatus{types.QueryStatusRunning, status}}
			client := NewClient(api, WithPollInterval(0))

			_, err := client.SubmitAndWait(context.Background(), "group", "q", TimeRange{})

			var qerr *model.QueryError
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, "q-1", qerr.QueryID)
			assert.Equal(t, string(status), qerr.Status)
		})
	}
}

func TestSubmitAndWait_MaxAttempts(t *testing.T) {
	api := &fakeLogs{}
	client := NewClient(api, WithPollInterval(0), WithMaxAttempts(4))

	_, err := client.SubmitAndWait(context.Background(), "group", "q", TimeRange{})

	var qerr *model.QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, StatusMaxAttempts, qerr.Status)
	assert.Equal(t, 4, api.polls)
}

func TestSubmitAndWait_StartError(t *testing.T) {
	api := &fakeLogs{startErr: errors.New("access denied")}
	client := NewClient(api)

	_, err := client.SubmitAndWait(context.Background(), "group", "q", TimeRange{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Zero(t, api.polls)
}

func TestSubmitAndWait_ContextCancelled(t *testing.T) {
	api := &fakeLogs{}
	client := NewClient(api, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.SubmitAndWait(ctx, "group", "q", TimeRange{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLastWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := LastWindow(now, 10*time.Second)
	assert.Equal(t, time.Unix(990, 0), tr.Start)
	assert.Equal(t, now, tr.End)
}
