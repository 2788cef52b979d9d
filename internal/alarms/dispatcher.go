package alarms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"alarm-relay/internal/logging"
	"alarm-relay/internal/logsummary"
	"alarm-relay/internal/models"
	"alarm-relay/internal/notify"
	"alarm-relay/internal/timefmt"
)

const (
	symbolWarning  = ":warning:"
	symbolResolved = ":white_check_mark:"

	missingDescription = "(alarm-description not found)"
	missingAlarmName   = "(alarm-name not found)"
)

// LogQuerier finds the log lines behind a log-derived metric.
type LogQuerier interface {
	DescribeFilter(ctx context.Context, metricName, namespace string) (*models.MetricFilter, error)
	FetchLogs(ctx context.Context, filter models.MetricFilter, start, end time.Time) ([]models.LogRecord, error)
}

// Labels are the deployment labels prefixed to every subject.
type Labels struct {
	Project     string
	Environment string
	Region      string
}

// String renders "<project>-<env> <region>", skipping empty parts.
func (l Labels) String() string {
	var scope []string
	for _, s := range []string{l.Project, l.Environment} {
		if s != "" {
			scope = append(scope, s)
		}
	}
	return strings.TrimSpace(strings.Join(scope, "-") + " " + l.Region)
}

// Dispatcher turns EventBridge events into webhook messages.
type Dispatcher struct {
	logs   LogQuerier
	poster notify.Poster
	labels Labels
	style  notify.Style
	logger *zap.Logger
}

// NewDispatcher wires a dispatcher. The collaborators are shared by all
// invocations and must be safe for concurrent use.
func NewDispatcher(logs LogQuerier, poster notify.Poster, labels Labels, style notify.Style, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logs:   logs,
		poster: poster,
		labels: labels,
		style:  style,
		logger: logger,
	}
}

// Handle classifies raw and posts at most one message for it. Events that
// match no rule are logged and ignored. Lookup and delivery failures are
// returned so the invocation fails.
func (d *Dispatcher) Handle(ctx context.Context, raw json.RawMessage) error {
	logger := logging.ForInvocation(ctx, d.logger)
	c := Classify(raw)
	logger = logger.With(
		zap.Stringer("category", c.Category),
		zap.String("source", c.Event.Source),
		zap.String("detail_type", c.Event.DetailType),
	)

	var (
		msg notify.Message
		err error
	)
	switch c.Category {
	case CategoryBatchJobFailed:
		msg = d.batchJobFailed(c)
	case CategoryLogAlarm:
		msg, err = d.logAlarm(ctx, c)
	case CategoryLogAlarmRecovered:
		// Log alarms reset to OK right after firing; the transition says nothing.
		logger.Info("ignored log alarm returning to OK", zap.String("alarm_name", c.Alarm.AlarmName))
		return nil
	case CategoryAlarmStateChange:
		msg, err = d.alarmStateChange(ctx, c)
	default:
		logger.Info("found no relevant records")
		return nil
	}
	if err != nil {
		logger.Error("failed to look up logs", zap.Error(err))
		return err
	}

	if err := d.poster.Post(ctx, notify.Build(msg, d.options())); err != nil {
		logger.Error("failed to post notification", zap.Error(err))
		return errors.Wrapf(err, "post %s notification", c.Category)
	}
	logger.Info("posted notification", zap.String("subject", msg.Subject))
	return nil
}

func (d *Dispatcher) options() notify.Options {
	return notify.Options{
		Style:    d.style,
		Username: fmt.Sprintf("CloudWatch (%s %s)", d.labels.Environment, d.labels.Region),
	}
}

func (d *Dispatcher) batchJobFailed(c Classification) notify.Message {
	return notify.Message{
		Subject:   fmt.Sprintf("AWS Batch (%s) %s Job `%s` failed", d.labels, symbolWarning, c.Job.JobName),
		Timestamp: c.Event.Time.Format(time.RFC3339Nano),
		Context:   "JobId: " + c.Job.JobID,
		Color:     notify.ColorTriggered,
	}
}

func (d *Dispatcher) logAlarm(ctx context.Context, c Classification) (notify.Message, error) {
	lines, logGroup, err := d.alarmLogs(ctx, c.Alarm)
	if err != nil {
		return notify.Message{}, err
	}
	return notify.Message{
		Subject:   fmt.Sprintf("CloudWatch Logs (%s) %s %s", d.labels, symbolWarning, c.Alarm.Configuration.Description),
		Timestamp: c.Alarm.State.Timestamp,
		Context:   "LG: " + logGroup,
		Logs:      lines,
		Color:     notify.ColorTriggered,
	}, nil
}

func (d *Dispatcher) alarmStateChange(ctx context.Context, c Classification) (notify.Message, error) {
	lines, _, err := d.alarmLogs(ctx, c.Alarm)
	if err != nil {
		return notify.Message{}, err
	}

	symbol, color := symbolWarning, notify.ColorTriggered
	if c.Alarm.State.Value == models.AlarmStateOK {
		symbol, color = symbolResolved, notify.ColorResolved
	}
	return notify.Message{
		Subject:   fmt.Sprintf("CloudWatch Alarm (%s) %s %s", d.labels, symbol, orDefault(c.Alarm.Configuration.Description, missingDescription)),
		Timestamp: c.Alarm.State.Timestamp,
		Context:   "AlarmName: " + orDefault(c.Alarm.AlarmName, missingAlarmName),
		Logs:      lines,
		Color:     color,
	}, nil
}

// alarmLogs fetches the log lines that made the alarm's metric filter match.
// The window reaches back two periods because StateChangeTime lags behind.
func (d *Dispatcher) alarmLogs(ctx context.Context, alarm *models.AlarmDetail) ([]string, string, error) {
	stat := alarm.Configuration.FirstMetricStat()
	if stat == nil {
		return nil, "", nil
	}
	end, err := timefmt.Parse(alarm.State.Timestamp)
	if err != nil {
		return nil, "", nil
	}

	filter, err := d.logs.DescribeFilter(ctx, stat.Metric.Name, stat.Metric.Namespace)
	if err != nil {
		return nil, "", err
	}
	if filter == nil {
		return nil, "", nil
	}

	start := end.Add(-2 * time.Duration(stat.Period) * time.Second)
	records, err := d.logs.FetchLogs(ctx, *filter, start, end)
	if err != nil {
		return nil, "", err
	}
	return logsummary.Summarize(records), filter.LogGroupName, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
