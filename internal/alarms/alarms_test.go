package alarms

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/cockroachdb/errors"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alarm-relay/internal/models"
	"alarm-relay/internal/notify"
)

type fakeLogs struct {
	filter      *models.MetricFilter
	records     []models.LogRecord
	describeErr error
	fetchErr    error

	describedMetric    string
	describedNamespace string
	fetchCalls         int
	start, end         time.Time
}

func (f *fakeLogs) DescribeFilter(_ context.Context, metricName, namespace string) (*models.MetricFilter, error) {
	f.describedMetric, f.describedNamespace = metricName, namespace
	return f.filter, f.describeErr
}

func (f *fakeLogs) FetchLogs(_ context.Context, _ models.MetricFilter, start, end time.Time) ([]models.LogRecord, error) {
	f.fetchCalls++
	f.start, f.end = start, end
	return f.records, f.fetchErr
}

type fakePoster struct {
	messages []*slack.WebhookMessage
	err      error
}

func (f *fakePoster) Post(_ context.Context, msg *slack.WebhookMessage) error {
	f.messages = append(f.messages, msg)
	return f.err
}

var labels = Labels{Project: "proj", Environment: "stg", Region: "fake-region"}

func newDispatcher(logs LogQuerier, poster notify.Poster) *Dispatcher {
	return NewDispatcher(logs, poster, labels, notify.StyleBlocks, zap.NewNop())
}

func alarmEvent(t *testing.T, description, alarmName, state string) json.RawMessage {
	t.Helper()
	detail := map[string]any{
		"alarmName": alarmName,
		"state": map[string]any{
			"value":     state,
			"reason":    "Threshold Crossed",
			"timestamp": "2020-09-08T05:59:13.148+0000",
		},
		"previousState": map[string]any{"value": "OK"},
		"configuration": map[string]any{
			"description": description,
			"metrics": []any{map[string]any{
				"id": "m1",
				"metricStat": map[string]any{
					"metric": map[string]any{"name": "ExecutorLoggedErrors", "namespace": "Webhooks"},
					"period": 300,
					"stat":   "Sum",
				},
				"returnData": true,
			}},
		},
	}
	return event(t, models.SourceCloudWatch, models.DetailTypeAlarmStateChange, "2020-09-08T05:59:13Z", detail)
}

func batchEvent(t *testing.T, status string) json.RawMessage {
	t.Helper()
	return event(t, models.SourceBatch, models.DetailTypeBatchJobChange, "2017-10-23T17:56:03Z", map[string]any{
		"jobName": "event-test",
		"jobId":   "4c7599ae-0a82-49aa-ba5a-4727fcce14a8",
		"status":  status,
	})
}

func event(t *testing.T, source, detailType, ts string, detail any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"version":     "0",
		"id":          "c4c1c1c9-6542-e61b-6ef0-8c4d36933a92",
		"detail-type": detailType,
		"source":      source,
		"account":     "123456789012",
		"time":        ts,
		"region":      "eu-central-1",
		"resources":   []string{},
		"detail":      detail,
	})
	require.NoError(t, err)
	return raw
}

func sectionTexts(msg *slack.WebhookMessage) []string {
	var out []string
	for _, b := range msg.Blocks.BlockSet {
		switch blk := b.(type) {
		case *slack.SectionBlock:
			out = append(out, blk.Text.Text)
		case *slack.ContextBlock:
			for _, el := range blk.ContextElements.Elements {
				if txt, ok := el.(*slack.TextBlockObject); ok {
					out = append(out, txt.Text)
				}
			}
		}
	}
	return out
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		raw  json.RawMessage
		want Category
	}{
		{"batch failed", batchEvent(t, "FAILED"), CategoryBatchJobFailed},
		{"batch succeeded", batchEvent(t, "SUCCEEDED"), CategoryUnrecognized},
		{"log alarm", alarmEvent(t, "Backend - Error Logged", "a", "ALARM"), CategoryLogAlarm},
		{"log alarm upper case", alarmEvent(t, "BACKEND ERROR LOGGED", "a", "ALARM"), CategoryLogAlarm},
		{"log alarm ok", alarmEvent(t, "Backend - error logged", "a", "OK"), CategoryLogAlarmRecovered},
		{"generic alarm", alarmEvent(t, "CPU above 80%", "a", "ALARM"), CategoryAlarmStateChange},
		{"generic alarm ok", alarmEvent(t, "CPU above 80%", "a", "OK"), CategoryAlarmStateChange},
		{"suffix not at end", alarmEvent(t, "error logged by backend", "a", "ALARM"), CategoryAlarmStateChange},
		{"other source", event(t, "aws.ec2", "EC2 Instance State-change Notification", "2020-09-08T05:59:13Z", map[string]any{}), CategoryUnrecognized},
		{"not json", json.RawMessage(`not json`), CategoryUnrecognized},
		{"array", json.RawMessage(`[1,2]`), CategoryUnrecognized},
		{"bad detail", json.RawMessage(`{"source":"aws.cloudwatch","detail-type":"CloudWatch Alarm State Change","detail":"oops"}`), CategoryUnrecognized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.raw).Category)
		})
	}
}

func TestHandleBatchJobFailed(t *testing.T) {
	logs, poster := &fakeLogs{}, &fakePoster{}

	require.NoError(t, newDispatcher(logs, poster).Handle(context.Background(), batchEvent(t, "FAILED")))

	require.Len(t, poster.messages, 1)
	msg := poster.messages[0]
	subject := "AWS Batch (proj-stg fake-region) :warning: Job `event-test` failed"
	assert.Equal(t, subject, msg.Text)
	assert.Equal(t, []string{subject, "TS: 20171023 19:56:03.  JobId: 4c7599ae-0a82-49aa-ba5a-4727fcce14a8"}, sectionTexts(msg))
	assert.Zero(t, logs.fetchCalls)
}

func TestHandleBatchJobNotFailed(t *testing.T) {
	poster := &fakePoster{}
	require.NoError(t, newDispatcher(&fakeLogs{}, poster).Handle(context.Background(), batchEvent(t, "RUNNING")))
	assert.Empty(t, poster.messages)
}

func TestHandleLogAlarm(t *testing.T) {
	logs := &fakeLogs{
		filter:  &models.MetricFilter{LogGroupName: "/dev/iris/backend"},
		records: []models.LogRecord{{Message: "log-line-1"}, {Message: "log-line-2"}},
	}
	poster := &fakePoster{}

	require.NoError(t, newDispatcher(logs, poster).Handle(context.Background(), alarmEvent(t, "Backend - Error Logged", "a", "ALARM")))

	require.Len(t, poster.messages, 1)
	subject := "CloudWatch Logs (proj-stg fake-region) :warning: Backend - Error Logged"
	assert.Equal(t, []string{
		subject,
		"TS: 20200908 07:59:13.  LG: /dev/iris/backend",
		"```\nlog-line-1\n```",
		"```\nlog-line-2\n```",
	}, sectionTexts(poster.messages[0]))

	assert.Equal(t, "ExecutorLoggedErrors", logs.describedMetric)
	assert.Equal(t, "Webhooks", logs.describedNamespace)
	assert.Equal(t, int64(1599544153148), logs.start.UnixMilli())
	assert.Equal(t, int64(1599544753148), logs.end.UnixMilli())
}

func TestHandleLogAlarmOKIsSuppressed(t *testing.T) {
	logs, poster := &fakeLogs{}, &fakePoster{}
	require.NoError(t, newDispatcher(logs, poster).Handle(context.Background(), alarmEvent(t, "Backend - Error Logged", "a", "OK")))
	assert.Empty(t, poster.messages)
	assert.Zero(t, logs.fetchCalls)
}

func TestHandleAlarmStateChange(t *testing.T) {
	for _, tc := range []struct {
		state  string
		symbol string
		color  string
	}{
		{"ALARM", ":warning:", notify.ColorTriggered},
		{"OK", ":white_check_mark:", notify.ColorResolved},
		{"INSUFFICIENT_DATA", ":warning:", notify.ColorTriggered},
	} {
		t.Run(tc.state, func(t *testing.T) {
			logs := &fakeLogs{
				filter:  &models.MetricFilter{LogGroupName: "/aws/lambda/stg-sso-web-hooks-task-executor"},
				records: []models.LogRecord{{Message: "log-line-1"}},
			}
			poster := &fakePoster{}
			d := NewDispatcher(logs, poster, labels, notify.StyleAttachment, zap.NewNop())

			require.NoError(t, d.Handle(context.Background(), alarmEvent(t, "webhook errors", "web-hooks-alarm", tc.state)))

			require.Len(t, poster.messages, 1)
			msg := poster.messages[0]
			assert.Equal(t, "CloudWatch (stg fake-region)", msg.Username)
			require.Len(t, msg.Attachments, 1)
			att := msg.Attachments[0]
			assert.Equal(t, tc.color, att.Color)
			require.Len(t, att.Blocks.BlockSet, 4)
			subject := att.Blocks.BlockSet[0].(*slack.SectionBlock).Text.Text
			assert.Equal(t, fmt.Sprintf("CloudWatch Alarm (proj-stg fake-region) %s webhook errors", tc.symbol), subject)
		})
	}
}

func TestHandleAlarmStateChangeDefaults(t *testing.T) {
	poster := &fakePoster{}
	require.NoError(t, newDispatcher(&fakeLogs{}, poster).Handle(context.Background(), alarmEvent(t, "", "", "ALARM")))

	require.Len(t, poster.messages, 1)
	assert.Equal(t, []string{
		"CloudWatch Alarm (proj-stg fake-region) :warning: (alarm-description not found)",
		"TS: 20200908 07:59:13.  AlarmName: (alarm-name not found)",
	}, sectionTexts(poster.messages[0]))
}

func TestHandleAlarmWithoutMetricStat(t *testing.T) {
	raw := event(t, models.SourceCloudWatch, models.DetailTypeAlarmStateChange, "2020-09-08T05:59:13Z", map[string]any{
		"alarmName": "composite",
		"state":     map[string]any{"value": "ALARM", "timestamp": "2020-09-08T05:59:13.148+0000"},
		"configuration": map[string]any{
			"description": "math alarm",
			"metrics":     []any{map[string]any{"id": "e1", "expression": "m1+m2"}},
		},
	})
	logs, poster := &fakeLogs{}, &fakePoster{}

	require.NoError(t, newDispatcher(logs, poster).Handle(context.Background(), raw))
	assert.Len(t, poster.messages, 1)
	assert.Empty(t, logs.describedMetric)
}

func TestHandleLogLookupFailureSendsNothing(t *testing.T) {
	boom := errors.New("throttled")
	logs := &fakeLogs{filter: &models.MetricFilter{LogGroupName: "g"}, fetchErr: boom}
	poster := &fakePoster{}

	err := newDispatcher(logs, poster).Handle(context.Background(), alarmEvent(t, "Backend - Error Logged", "a", "ALARM"))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, poster.messages)
}

func TestHandleDeliveryFailure(t *testing.T) {
	poster := &fakePoster{err: &notify.DeliveryError{StatusCode: 500, Body: "invalid_payload"}}

	err := newDispatcher(&fakeLogs{}, poster).Handle(context.Background(), batchEvent(t, "FAILED"))
	require.Error(t, err)
	var delivery *notify.DeliveryError
	require.True(t, errors.As(err, &delivery))
	assert.Contains(t, err.Error(), "invalid_payload")
}

func TestHandleUnrecognizedDoesNothing(t *testing.T) {
	logs, poster := &fakeLogs{}, &fakePoster{}
	d := newDispatcher(logs, poster)

	for _, raw := range []json.RawMessage{
		event(t, "aws.s3", "Object Created", "2020-09-08T05:59:13Z", map[string]any{}),
		json.RawMessage(`{}`),
		json.RawMessage(`null`),
		json.RawMessage(`garbage`),
	} {
		assert.NoError(t, d.Handle(context.Background(), raw))
	}
	assert.Empty(t, poster.messages)
	assert.Zero(t, logs.fetchCalls)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "proj-stg fake-region", labels.String())
	assert.Equal(t, "stg fake-region", Labels{Environment: "stg", Region: "fake-region"}.String())
	assert.Equal(t, "fake-region", Labels{Region: "fake-region"}.String())
}

func TestHandleSQS(t *testing.T) {
	poster := &fakePoster{}
	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: string(batchEvent(t, "FAILED"))},
		{MessageId: "m-2", Body: `{"source":"aws.s3"}`},
		{MessageId: "m-3", Body: string(batchEvent(t, "FAILED"))},
	}}

	require.NoError(t, newDispatcher(&fakeLogs{}, poster).HandleSQS(context.Background(), ev))
	assert.Len(t, poster.messages, 2)
}

func TestHandleSQSStopsAtFirstFailure(t *testing.T) {
	poster := &fakePoster{err: errors.New("rejected")}
	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: string(batchEvent(t, "FAILED"))},
		{MessageId: "m-2", Body: string(batchEvent(t, "FAILED"))},
	}}

	err := newDispatcher(&fakeLogs{}, poster).HandleSQS(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m-1")
	assert.Len(t, poster.messages, 1)
}
