// Package wiring assembles the handlers from environment configuration. It
// runs once per cold start; the returned values are reused by every
// invocation.
package wiring

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"go.uber.org/zap"

	"alarm-relay/internal/alarms"
	"alarm-relay/internal/config"
	"alarm-relay/internal/errorscan"
	"alarm-relay/internal/logging"
	"alarm-relay/internal/monitoring"
	"alarm-relay/internal/notify"
)

type base struct {
	settings config.Settings
	logger   *zap.Logger
	poster   *notify.Client
}

func load(ctx context.Context) (base, error) {
	settings, err := config.Load(ctx)
	if err != nil {
		return base{}, err
	}
	logger, err := logging.New(settings.LogLevel)
	if err != nil {
		return base{}, err
	}
	poster, err := notify.NewClient(settings.WebhookURL, settings.WebhookTimeout, logger)
	if err != nil {
		return base{}, err
	}
	return base{settings: settings, logger: logger, poster: poster}, nil
}

// Dispatcher builds the EventBridge alarm dispatcher.
func Dispatcher(ctx context.Context) (*alarms.Dispatcher, *zap.Logger, error) {
	b, err := load(ctx)
	if err != nil {
		return nil, nil, err
	}
	s := b.settings
	logs := monitoring.NewLogs(cloudwatchlogs.NewFromConfig(s.AWSConfig))
	labels := alarms.Labels{Project: s.Project, Environment: s.Environment, Region: s.Region}
	return alarms.NewDispatcher(logs, b.poster, labels, s.MessageStyle, b.logger), b.logger, nil
}

// Scanner builds the scheduled Lambda error scanner.
func Scanner(ctx context.Context) (*errorscan.Scanner, *zap.Logger, error) {
	b, err := load(ctx)
	if err != nil {
		return nil, nil, err
	}
	interval, err := b.settings.ScanInterval()
	if err != nil {
		return nil, nil, err
	}
	metrics := monitoring.NewMetrics(cloudwatch.NewFromConfig(b.settings.AWSConfig))
	return errorscan.NewScanner(metrics, b.poster, interval, b.settings.IgnoreFunctions, b.logger), b.logger, nil
}
