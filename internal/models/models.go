package models

import (
	"encoding/json"
)

// Event sources and detail types routed by the notifier.
const (
	SourceCloudWatch = "aws.cloudwatch"
	SourceBatch      = "aws.batch"
	SourceScheduler  = "aws.events"

	DetailTypeAlarmStateChange = "CloudWatch Alarm State Change"
	DetailTypeBatchJobChange   = "Batch Job State Change"
	DetailTypeScheduled        = "Scheduled Event"
)

// Alarm and job states referenced by the routing rules.
const (
	AlarmStateOK    = "OK"
	AlarmStateAlarm = "ALARM"
	BatchJobFailed  = "FAILED"
)

// AlarmDetail is the detail payload of a CloudWatch Alarm State Change event.
type AlarmDetail struct {
	AlarmName     string             `json:"alarmName"`
	State         AlarmState         `json:"state"`
	PreviousState AlarmState         `json:"previousState"`
	Configuration AlarmConfiguration `json:"configuration"`
}

// AlarmState describes one side of the state transition.
type AlarmState struct {
	Value     string `json:"value"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// AlarmConfiguration is the alarm definition attached to the event.
type AlarmConfiguration struct {
	Description string        `json:"description"`
	Metrics     []AlarmMetric `json:"metrics"`
}

// AlarmMetric is one metric (or expression) the alarm evaluates.
type AlarmMetric struct {
	ID         string      `json:"id"`
	MetricStat *MetricStat `json:"metricStat,omitempty"`
	Expression string      `json:"expression,omitempty"`
	ReturnData bool        `json:"returnData"`
}

// MetricStat identifies a metric and its aggregation period in seconds.
type MetricStat struct {
	Metric Metric `json:"metric"`
	Period int64  `json:"period"`
	Stat   string `json:"stat"`
}

// Metric is a CloudWatch metric identity.
type Metric struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// FirstMetricStat returns the first metric carrying a metric stat, or nil
// for alarms defined purely by expressions.
func (c AlarmConfiguration) FirstMetricStat() *MetricStat {
	for _, m := range c.Metrics {
		if m.MetricStat != nil {
			return m.MetricStat
		}
	}
	return nil
}

// BatchJobDetail is the detail payload of a Batch Job State Change event.
type BatchJobDetail struct {
	JobName      string `json:"jobName"`
	JobID        string `json:"jobId"`
	JobQueue     string `json:"jobQueue"`
	Status       string `json:"status"`
	StatusReason string `json:"statusReason"`
}

// LogRecord is a single log line returned by the log query API.
type LogRecord struct {
	Message string `json:"message"`
}

// MetricFilter is the log group and pattern behind a log-derived metric.
type MetricFilter struct {
	Name          string `json:"filterName"`
	LogGroupName  string `json:"logGroupName"`
	FilterPattern string `json:"filterPattern"`
}

// FunctionErrors is the summed error count of one Lambda function.
type FunctionErrors struct {
	Name   string `json:"name"`
	Errors int    `json:"errors"`
}

// DecodeDetail unmarshals an event detail into target. An empty detail leaves
// target untouched.
func DecodeDetail(detail json.RawMessage, target any) error {
	if len(detail) == 0 {
		return nil
	}
	return json.Unmarshal(detail, target)
}
