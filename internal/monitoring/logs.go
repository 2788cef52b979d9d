// Package monitoring queries CloudWatch Logs and CloudWatch Metrics for the
// context attached to notifications.
package monitoring

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/cockroachdb/errors"

	"alarm-relay/internal/logsummary"
	"alarm-relay/internal/models"
)

// MaxPages bounds every pagination loop.
const MaxPages = 100

// ErrTooManyPages is returned when a paginated API keeps returning tokens.
var ErrTooManyPages = errors.Newf("pagination exceeded %d pages", MaxPages)

// LogsAPI is the subset of the CloudWatch Logs client used here.
type LogsAPI interface {
	DescribeMetricFilters(ctx context.Context, params *cloudwatchlogs.DescribeMetricFiltersInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeMetricFiltersOutput, error)
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// Logs looks up the log lines behind log-derived metrics.
type Logs struct {
	api LogsAPI
}

// NewLogs wraps a CloudWatch Logs client.
func NewLogs(api LogsAPI) *Logs {
	return &Logs{api: api}
}

// DescribeFilter returns the first metric filter publishing the given metric,
// or nil when there is none.
func (l *Logs) DescribeFilter(ctx context.Context, metricName, namespace string) (*models.MetricFilter, error) {
	out, err := l.api.DescribeMetricFilters(ctx, &cloudwatchlogs.DescribeMetricFiltersInput{
		MetricName:      aws.String(metricName),
		MetricNamespace: aws.String(namespace),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "describe metric filters for %s/%s", namespace, metricName)
	}
	if len(out.MetricFilters) == 0 {
		return nil, nil
	}
	f := out.MetricFilters[0]
	return &models.MetricFilter{
		Name:          aws.ToString(f.FilterName),
		LogGroupName:  aws.ToString(f.LogGroupName),
		FilterPattern: aws.ToString(f.FilterPattern),
	}, nil
}

// FetchLogs returns up to logsummary.MaxRecords events matching the filter in
// [start, end], oldest first.
func (l *Logs) FetchLogs(ctx context.Context, filter models.MetricFilter, start, end time.Time) ([]models.LogRecord, error) {
	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName:  aws.String(filter.LogGroupName),
		FilterPattern: aws.String(filter.FilterPattern),
		StartTime:     aws.Int64(start.UnixMilli()),
		EndTime:       aws.Int64(end.UnixMilli()),
		Limit:         aws.Int32(logsummary.MaxRecords),
	}

	var records []models.LogRecord
	for page := 0; ; page++ {
		if page == MaxPages {
			return nil, errors.Wrapf(ErrTooManyPages, "filter log events in %s", filter.LogGroupName)
		}
		out, err := l.api.FilterLogEvents(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "filter log events in %s", filter.LogGroupName)
		}
		for _, ev := range out.Events {
			records = append(records, models.LogRecord{Message: aws.ToString(ev.Message)})
		}
		if len(records) >= logsummary.MaxRecords || aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	if len(records) > logsummary.MaxRecords {
		records = records[:logsummary.MaxRecords]
	}
	return records, nil
}
