// Package alarms routes EventBridge events to Slack notifications.
package alarms

import (
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"alarm-relay/internal/models"
)

// logAlarmSuffix marks alarms that fire on a log metric filter. There is no
// other way to tell them apart from the event, so their description must end
// with it, e.g. "SAP API Proxy - Error Logged".
const logAlarmSuffix = "error logged"

// Category is the kind of notification an event maps to.
type Category int

const (
	CategoryUnrecognized Category = iota
	CategoryBatchJobFailed
	CategoryLogAlarm
	CategoryLogAlarmRecovered
	CategoryAlarmStateChange
)

func (c Category) String() string {
	switch c {
	case CategoryBatchJobFailed:
		return "batch-job-failed"
	case CategoryLogAlarm:
		return "log-alarm"
	case CategoryLogAlarmRecovered:
		return "log-alarm-recovered"
	case CategoryAlarmStateChange:
		return "alarm-state-change"
	default:
		return "unrecognized"
	}
}

// Classification is an event together with its decoded detail. Exactly one
// of Alarm and Job is set unless the category is CategoryUnrecognized.
type Classification struct {
	Category Category
	Event    events.CloudWatchEvent
	Alarm    *models.AlarmDetail
	Job      *models.BatchJobDetail
}

// Classify inspects a raw event. It never fails: anything it cannot decode
// or does not know is CategoryUnrecognized.
func Classify(raw json.RawMessage) Classification {
	var ev events.CloudWatchEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Classification{}
	}
	c := Classification{Event: ev}

	switch {
	case ev.Source == models.SourceBatch && ev.DetailType == models.DetailTypeBatchJobChange:
		var job models.BatchJobDetail
		if err := models.DecodeDetail(ev.Detail, &job); err != nil || job.Status != models.BatchJobFailed {
			return c
		}
		c.Category, c.Job = CategoryBatchJobFailed, &job

	case ev.Source == models.SourceCloudWatch && ev.DetailType == models.DetailTypeAlarmStateChange:
		var alarm models.AlarmDetail
		if err := models.DecodeDetail(ev.Detail, &alarm); err != nil {
			return c
		}
		c.Alarm = &alarm
		switch {
		case !isLogAlarm(alarm):
			c.Category = CategoryAlarmStateChange
		case alarm.State.Value == models.AlarmStateOK:
			c.Category = CategoryLogAlarmRecovered
		default:
			c.Category = CategoryLogAlarm
		}
	}
	return c
}

func isLogAlarm(alarm models.AlarmDetail) bool {
	desc := strings.ToLower(strings.TrimSpace(alarm.Configuration.Description))
	return strings.HasSuffix(desc, logAlarmSuffix)
}
