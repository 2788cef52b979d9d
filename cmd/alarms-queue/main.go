package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"alarm-relay/internal/wiring"
)

// Consumes an SQS queue that EventBridge rules forward alarm and batch events to.
func main() {
	dispatcher, logger, err := wiring.Dispatcher(context.Background())
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	lambda.Start(dispatcher.HandleSQS)
}
