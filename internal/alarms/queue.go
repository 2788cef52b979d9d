package alarms

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/cockroachdb/errors"
)

// HandleSQS handles EventBridge events delivered through an SQS queue, one
// per record, in order. The first failure aborts the batch so the queue's
// redrive policy decides what happens to it.
func (d *Dispatcher) HandleSQS(ctx context.Context, event events.SQSEvent) error {
	for _, record := range event.Records {
		if err := d.Handle(ctx, json.RawMessage(record.Body)); err != nil {
			return errors.Wrapf(err, "sqs message %s", record.MessageId)
		}
	}
	return nil
}
