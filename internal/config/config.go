package config

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"alarm-relay/internal/notify"
)

var (
	ErrMissingWebhookURL = errors.New("missing SLACK_WEBHOOK_URL")
	ErrInvalidInterval   = errors.New("invalid RULE_INTERVAL_IN_MINUTES")
	ErrInvalidStyle      = errors.New("invalid MESSAGE_STYLE")
)

// Settings holds resolved configuration and shared AWS config.
type Settings struct {
	AWSConfig       aws.Config
	WebhookURL      string
	WebhookTimeout  time.Duration
	Region          string
	Project         string
	Environment     string
	MessageStyle    notify.Style
	IgnoreFunctions []string
	IntervalMinutes int
	LogLevel        string
}

// Load reads environment variables and AWS configuration.
func Load(ctx context.Context) (Settings, error) {
	settings, err := fromEnv(newViper())
	if err != nil {
		return Settings{}, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return Settings{}, errors.Wrap(err, "load AWS config")
	}
	settings.AWSConfig = awsCfg
	if settings.Region == "" {
		settings.Region = awsCfg.Region
	}
	return settings, nil
}

// ScanInterval returns the scheduled scan window. It fails unless
// RULE_INTERVAL_IN_MINUTES is a positive number of minutes.
func (s Settings) ScanInterval() (time.Duration, error) {
	if s.IntervalMinutes <= 0 {
		return 0, errors.Wrapf(ErrInvalidInterval, "got %d", s.IntervalMinutes)
	}
	return time.Duration(s.IntervalMinutes) * time.Minute, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("MESSAGE_STYLE", string(notify.StyleBlocks))
	v.SetDefault("WEBHOOK_TIMEOUT", "10s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RULE_INTERVAL_IN_MINUTES", "0")
	return v
}

func fromEnv(v *viper.Viper) (Settings, error) {
	webhookURL := v.GetString("SLACK_WEBHOOK_URL")
	if webhookURL == "" {
		webhookURL = v.GetString("SLACK_HOOK_URL")
	}
	if webhookURL == "" {
		return Settings{}, ErrMissingWebhookURL
	}

	style := notify.Style(strings.ToLower(v.GetString("MESSAGE_STYLE")))
	if style != notify.StyleBlocks && style != notify.StyleAttachment {
		return Settings{}, errors.Wrapf(ErrInvalidStyle, "got %q", style)
	}

	interval := strings.TrimSpace(v.GetString("RULE_INTERVAL_IN_MINUTES"))
	minutes, err := parseMinutes(interval)
	if err != nil {
		return Settings{}, err
	}

	timeout, err := time.ParseDuration(v.GetString("WEBHOOK_TIMEOUT"))
	if err != nil {
		return Settings{}, errors.Wrap(err, "parse WEBHOOK_TIMEOUT")
	}

	return Settings{
		WebhookURL:      webhookURL,
		WebhookTimeout:  timeout,
		Region:          v.GetString("AWS_REGION"),
		Project:         v.GetString("PROJECT"),
		Environment:     v.GetString("ENVIRONMENT"),
		MessageStyle:    style,
		IgnoreFunctions: splitList(v.GetString("IGNORE_FUNCTIONS")),
		IntervalMinutes: minutes,
		LogLevel:        v.GetString("LOG_LEVEL"),
	}, nil
}

func parseMinutes(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	minutes, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidInterval, "got %q", s)
	}
	return minutes, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
