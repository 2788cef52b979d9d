package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"alarm-relay/internal/wiring"
)

// Triggered by a scheduled EventBridge rule every RULE_INTERVAL_IN_MINUTES.
func main() {
	scanner, logger, err := wiring.Scanner(context.Background())
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	lambda.Start(scanner.Handle)
}
