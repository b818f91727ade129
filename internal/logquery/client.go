package logquery

import (
	"context"
	"fmt"
	"time"

	"FlowSpectra/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/charmbracelet/log"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 150
)

// StatusMaxAttempts is reported in a QueryError when polling gives up.
const StatusMaxAttempts = "MaxAttemptsExceeded"

// LogsAPI is the subset of the CloudWatch Logs client used by Client.
type LogsAPI interface {
	StartQuery(ctx context.Context, params *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, params *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
}

// Row is one query result, keyed by field name.
type Row map[string]string

// TimeRange is the window a query covers.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// LastWindow returns the range [now-d, now].
func LastWindow(now time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: now.Add(-d), End: now}
}

// Client submits Logs Insights queries and waits for them to finish.
type Client struct {
	api          LogsAPI
	pollInterval time.Duration
	maxAttempts  int
}

// Option customizes a Client.
type Option func(*Client)

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithMaxAttempts caps the number of status polls. Zero keeps the default.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewClient creates a query client on top of the given API.
func NewClient(api LogsAPI, opts ...Option) *Client {
	c := &Client{
		api:          api,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitAndWait starts query against logGroup and blocks until it reaches a
// terminal state. Failed, cancelled and timed-out queries, as well as running
// out of poll attempts, are reported as *model.QueryError.
func (c *Client) SubmitAndWait(ctx context.Context, logGroup, query string, tr TimeRange) ([]Row, error) {
	started, err := c.api.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: aws.String(logGroup),
		QueryString:  aws.String(query),
		StartTime:    aws.Int64(tr.Start.Unix()),
		EndTime:      aws.Int64(tr.End.Unix()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start query: %w", err)
	}
	queryID := aws.ToString(started.QueryId)
	log.Info("Query started", "query_id", queryID, "log_group", logGroup)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		out, err := c.api.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{
			QueryId: aws.String(queryID),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get query results: %w", err)
		}
		log.Debug("Query status", "query_id", queryID, "status", out.Status, "attempt", attempt)

		switch out.Status {
		case types.QueryStatusComplete:
			rows := toRows(out.Results)
			log.Info("Query complete", "query_id", queryID, "records", len(rows))
			return rows, nil
		case types.QueryStatusFailed, types.QueryStatusCancelled, types.QueryStatusTimeout, types.QueryStatusUnknown:
			return nil, &model.QueryError{QueryID: queryID, Status: string(out.Status)}
		}

		if attempt == c.maxAttempts {
			break
		}
		if err := wait(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}

	return nil, &model.QueryError{QueryID: queryID, Status: StatusMaxAttempts}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func toRows(results [][]types.ResultField) []Row {
	rows := make([]Row, 0, len(results))
	for _, fields := range results {
		row := make(Row, len(fields))
		for _, f := range fields {
			row[aws.ToString(f.Field)] = aws.ToString(f.Value)
		}
		rows = append(rows, row)
	}
	return rows
}
