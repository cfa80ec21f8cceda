package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/normoes/xmrto-wrapper/internal/domain"
	"github.com/normoes/xmrto-wrapper/internal/infra"
)

// ErrPollingFailed is returned when repeated fetches exhausted their
// retry budget without a usable snapshot.
var ErrPollingFailed = errors.New("polling failed")

// FetchFunc produces the next order snapshot. The follow loop is
// parameterized over it so tests can script server behavior.
type FetchFunc func(ctx context.Context) (domain.Order, error)

// FollowOptions tune the tracking loop.
type FollowOptions struct {
	// Interval is the wait between successful fetches.
	Interval time.Duration
	// Deadline bounds the whole follow operation. Zero means no bound.
	Deadline time.Duration
	// RetryAttempts caps fetch tries per poll step, first try included.
	RetryAttempts int
	// RetryBaseDelay is the first backoff delay; it doubles per retry.
	RetryBaseDelay time.Duration
}

func (o FollowOptions) withDefaults() FollowOptions {
	if o.Interval <= 0 {
		o.Interval = 3 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	return o
}

// FollowOptionsFromConfig maps the resolved configuration onto loop options.
func FollowOptionsFromConfig(cfg *infra.Config) FollowOptions {
	return FollowOptions{
		Interval:       time.Duration(cfg.Follow.IntervalSec) * time.Second,
		Deadline:       time.Duration(cfg.Follow.DeadlineSec) * time.Second,
		RetryAttempts:  cfg.Follow.RetryAttempts,
		RetryBaseDelay: time.Duration(cfg.Follow.RetryBaseDelaySec) * time.Second,
	}
}

// StopReason states why a follow loop ended.
type StopReason int

const (
	// StopTerminal: the order reached a final state.
	StopTerminal StopReason = iota
	// StopAwaitConfirm: the order is underpaid and waits for an
	// explicit confirm-partial-payment call.
	StopAwaitConfirm
	// StopDeadline: the follow deadline or the service-side payment
	// countdown ran out. Distinct from the TIMED_OUT order state.
	StopDeadline
	// StopCancelled: the caller interrupted the loop.
	StopCancelled
	// StopFailed: polling failed fatally, see FollowResult.Err.
	StopFailed
)

func (r StopReason) String() string {
	switch r {
	case StopTerminal:
		return "terminal"
	case StopAwaitConfirm:
		return "await_confirm"
	case StopDeadline:
		return "deadline"
	case StopCancelled:
		return "cancelled"
	case StopFailed:
		return "failed"
	}
	return "unknown"
}

// FollowResult carries the last snapshot and why tracking stopped.
// Last stays valid for every stop reason, including failures.
type FollowResult struct {
	Last   domain.Order
	Reason StopReason
	Err    error
}

// Follower runs the sequential order tracking loop. One in-flight
// request at a time; the inter-poll wait and the retry backoff are the
// only suspension points and both honor cancellation.
type Follower struct {
	logger  *slog.Logger
	metrics *infra.Metrics
}

// NewFollower creates a Follower.
func NewFollower(logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		logger:  logger.With("module", "follow"),
		metrics: infra.GlobalMetrics,
	}
}

// Follow emits the initial snapshot, then re-fetches and re-classifies
// until a terminal state, an underpaid hold, the deadline, or
// cancellation. Transient fetch failures are retried with bounded
// exponential backoff before the loop gives up with ErrPollingFailed.
func (f *Follower) Follow(ctx context.Context, initial domain.Order, fetch FetchFunc, opts FollowOptions, emit func(domain.Order)) FollowResult {
	opts = opts.withDefaults()
	if emit == nil {
		emit = func(domain.Order) {}
	}

	pollCtx := ctx
	cancel := context.CancelFunc(func() {})
	if opts.Deadline > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, opts.Deadline)
	}
	defer cancel()

	last := initial
	emit(last)

	for {
		switch last.State.Classify() {
		case domain.DecisionTerminal:
			return FollowResult{Last: last, Reason: StopTerminal}
		case domain.DecisionAwaitConfirm:
			f.logger.Info("order underpaid, waiting for explicit confirmation",
				"uuid", last.SecretKey,
				"btc_amount_partial", last.BTCAmountPartial.String(),
			)
			return FollowResult{Last: last, Reason: StopAwaitConfirm}
		}

		if last.State == domain.StateUnknown {
			f.logger.Warn("service reported an unrecognized order state, polling continues",
				"uuid", last.SecretKey, "state", last.RawState)
		}
		if last.CountdownExpired() {
			return FollowResult{Last: last, Reason: StopDeadline}
		}

		select {
		case <-pollCtx.Done():
			return FollowResult{Last: last, Reason: stopReason(ctx)}
		case <-time.After(opts.Interval):
		}

		next, err := fetchWithRetry(pollCtx, f.logger, f.metrics, fetch, opts)
		if err != nil {
			if pollCtx.Err() != nil {
				return FollowResult{Last: last, Reason: stopReason(ctx)}
			}
			f.metrics.RecordError()
			return FollowResult{Last: last, Reason: StopFailed, Err: fmt.Errorf("%w: %w", ErrPollingFailed, err)}
		}

		f.metrics.RecordPoll()
		last = next
		emit(last)
	}
}

// stopReason distinguishes the caller's cancellation from an expired
// follow deadline once the derived poll context is done.
func stopReason(parent context.Context) StopReason {
	if parent.Err() != nil {
		return StopCancelled
	}
	return StopDeadline
}

// fetchWithRetry retries retriable failures with exponential backoff
// (base, 2x, 4x, ...) up to opts.RetryAttempts tries in total. Service
// rejections and protocol errors surface immediately: they never
// resolve on retry.
func fetchWithRetry[T any](ctx context.Context, logger *slog.Logger, metrics *infra.Metrics, fetch func(context.Context) (T, error), opts FollowOptions) (T, error) {
	var zero T
	var lastErr error

	for i := 0; i < opts.RetryAttempts; i++ {
		if i > 0 {
			delay := opts.RetryBaseDelay << uint(i-1)
			logger.Info("retrying fetch", "attempt", i+1, "delay", delay.String())
			metrics.RecordRetry()
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fetch(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !domain.IsRetriable(err) {
			return zero, err
		}
		lastErr = err
		logger.Warn("fetch attempt failed", "attempt", i+1, "error", err.Error())
	}

	return zero, lastErr
}
