package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"alarm-relay/internal/wiring"
)

// Hooked up to EventBridge rules for CloudWatch alarm state changes and AWS
// Batch job state changes.
func main() {
	dispatcher, logger, err := wiring.Dispatcher(context.Background())
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	lambda.Start(dispatcher.Handle)
}
