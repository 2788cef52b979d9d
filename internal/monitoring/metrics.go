package monitoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/cockroachdb/errors"

	"alarm-relay/internal/models"
)

const (
	lambdaNamespace   = "AWS/Lambda"
	errorsMetric      = "Errors"
	functionDimension = "FunctionName"

	// GetMetricData accepts at most 500 queries per request.
	maxQueriesPerRequest = 500
)

// MetricsAPI is the subset of the CloudWatch client used here.
type MetricsAPI interface {
	ListMetrics(ctx context.Context, params *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// Metrics reads Lambda error metrics.
type Metrics struct {
	api MetricsAPI
}

// NewMetrics wraps a CloudWatch client.
func NewMetrics(api MetricsAPI) *Metrics {
	return &Metrics{api: api}
}

// FunctionNames lists every function that publishes an Errors metric.
func (m *Metrics) FunctionNames(ctx context.Context) ([]string, error) {
	input := &cloudwatch.ListMetricsInput{
		Namespace:  aws.String(lambdaNamespace),
		MetricName: aws.String(errorsMetric),
		Dimensions: []types.DimensionFilter{{Name: aws.String(functionDimension)}},
	}

	seen := make(map[string]struct{})
	var names []string
	for page := 0; ; page++ {
		if page == MaxPages {
			return nil, errors.Wrap(ErrTooManyPages, "list lambda error metrics")
		}
		out, err := m.api.ListMetrics(ctx, input)
		if err != nil {
			return nil, errors.Wrap(err, "list lambda error metrics")
		}
		for _, metric := range out.Metrics {
			name := dimensionValue(metric.Dimensions, functionDimension)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
		if aws.ToString(out.NextToken) == "" {
			return names, nil
		}
		input.NextToken = out.NextToken
	}
}

// ErrorCounts sums the Errors metric of each function over [start, end].
func (m *Metrics) ErrorCounts(ctx context.Context, functionNames []string, start, end time.Time) ([]models.FunctionErrors, error) {
	period := int32(end.Sub(start) / time.Second)
	if period < 1 {
		period = 1
	}

	index := make(map[string]int, len(functionNames))
	var counts []models.FunctionErrors
	for offset := 0; offset < len(functionNames); offset += maxQueriesPerRequest {
		chunk := functionNames[offset:min(offset+maxQueriesPerRequest, len(functionNames))]
		queries := make([]types.MetricDataQuery, 0, len(chunk))
		for i, name := range chunk {
			queries = append(queries, types.MetricDataQuery{
				Id:    aws.String(fmt.Sprintf("errors%d", offset+i)),
				Label: aws.String(name),
				MetricStat: &types.MetricStat{
					Metric: &types.Metric{
						Namespace:  aws.String(lambdaNamespace),
						MetricName: aws.String(errorsMetric),
						Dimensions: []types.Dimension{{Name: aws.String(functionDimension), Value: aws.String(name)}},
					},
					Stat:   aws.String("Sum"),
					Period: aws.Int32(period),
				},
			})
		}

		chunkCounts, err := m.metricData(ctx, &cloudwatch.GetMetricDataInput{
			StartTime:         aws.Time(start),
			EndTime:           aws.Time(end),
			MetricDataQueries: queries,
		})
		if err != nil {
			return nil, err
		}
		// A query's datapoints may be split across pages.
		for _, c := range chunkCounts {
			if i, ok := index[c.Name]; ok {
				counts[i].Errors += c.Errors
				continue
			}
			index[c.Name] = len(counts)
			counts = append(counts, c)
		}
	}
	return counts, nil
}

func (m *Metrics) metricData(ctx context.Context, input *cloudwatch.GetMetricDataInput) ([]models.FunctionErrors, error) {
	var counts []models.FunctionErrors
	for page := 0; ; page++ {
		if page == MaxPages {
			return nil, errors.Wrap(ErrTooManyPages, "get lambda error metric data")
		}
		out, err := m.api.GetMetricData(ctx, input)
		if err != nil {
			return nil, errors.Wrap(err, "get lambda error metric data")
		}
		for _, result := range out.MetricDataResults {
			var sum float64
			for _, v := range result.Values {
				sum += v
			}
			counts = append(counts, models.FunctionErrors{
				Name:   aws.ToString(result.Label),
				Errors: int(math.Round(sum)),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			return counts, nil
		}
		input.NextToken = out.NextToken
	}
}

func dimensionValue(dims []types.Dimension, name string) string {
	for _, d := range dims {
		if aws.ToString(d.Name) == name {
			return aws.ToString(d.Value)
		}
	}
	return ""
}
