// Package errorscan reports Lambda functions that logged errors during the
// last schedule interval.
package errorscan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alarm-relay/internal/logging"
	"alarm-relay/internal/models"
	"alarm-relay/internal/notify"
	"alarm-relay/internal/timefmt"
)

// Events older than this are reported with an explicit time range.
const realtimeSlack = time.Minute

const maxConcurrentPosts = 8

// ErrUnsupportedEvent is returned for anything but a scheduled EventBridge event.
var ErrUnsupportedEvent = errors.New("unsupported event")

// ErrorMetrics reads per-function error counts.
type ErrorMetrics interface {
	FunctionNames(ctx context.Context) ([]string, error)
	ErrorCounts(ctx context.Context, functionNames []string, start, end time.Time) ([]models.FunctionErrors, error)
}

// Scanner posts one message per erroring function.
type Scanner struct {
	metrics  ErrorMetrics
	poster   notify.Poster
	interval time.Duration
	ignore   map[string]struct{}
	now      func() time.Time
	logger   *zap.Logger
}

// NewScanner builds a scanner looking back interval from each event.
func NewScanner(metrics ErrorMetrics, poster notify.Poster, interval time.Duration, ignore []string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		set[name] = struct{}{}
	}
	return &Scanner{
		metrics:  metrics,
		poster:   poster,
		interval: interval,
		ignore:   set,
		now:      time.Now,
		logger:   logger,
	}
}

// Handle scans the interval ending at the event time. Messages are posted
// concurrently; every delivery failure is returned.
func (s *Scanner) Handle(ctx context.Context, ev events.CloudWatchEvent) error {
	if ev.Source != models.SourceScheduler {
		return errors.Wrapf(ErrUnsupportedEvent, "source %q, only %s is supported", ev.Source, models.SourceScheduler)
	}
	if ev.DetailType != models.DetailTypeScheduled {
		return errors.Wrapf(ErrUnsupportedEvent, "detail-type %q, only %s is supported", ev.DetailType, models.DetailTypeScheduled)
	}
	logger := logging.ForInvocation(ctx, s.logger)

	end := ev.Time
	start := end.Add(-s.interval)

	names, err := s.metrics.FunctionNames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		logger.Info("no lambda error metrics found")
		return nil
	}

	counts, err := s.metrics.ErrorCounts(ctx, names, start, end)
	if err != nil {
		return err
	}
	logger.Info("fetched error counts", zap.Int("metrics", len(counts)))

	failing := s.failing(counts)
	if len(failing) == 0 {
		logger.Info("nothing to report")
		return nil
	}
	logger.Info("reporting failing functions", zap.Int("functions", len(failing)))

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(maxConcurrentPosts)
	for _, fn := range failing {
		g.Go(func() error {
			if err := s.poster.Post(ctx, notify.Section(s.text(fn, start, end))); err != nil {
				logger.Error("failed to post function errors", zap.String("function", fn.Name), zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, errors.Wrapf(err, "post errors of %s", fn.Name))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if errs != nil {
		return errs
	}
	logger.Info("posted all notifications")
	return nil
}

func (s *Scanner) failing(counts []models.FunctionErrors) []models.FunctionErrors {
	var out []models.FunctionErrors
	for _, c := range counts {
		if c.Errors <= 0 {
			continue
		}
		if _, ignored := s.ignore[c.Name]; ignored {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Scanner) text(fn models.FunctionErrors, start, end time.Time) string {
	window := fmt.Sprintf("in the last %d minutes", int(s.interval/time.Minute))
	if s.now().Sub(end) > realtimeSlack {
		window = fmt.Sprintf("between %s and %s", timefmt.Short(start), timefmt.Short(end))
	}
	return fmt.Sprintf(":warning: *Lambda Error* Function `%s` failed %d times %s", fn.Name, fn.Errors, window)
}
