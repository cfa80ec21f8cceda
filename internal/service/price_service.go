package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/normoes/xmrto-wrapper/internal/domain"
	"github.com/normoes/xmrto-wrapper/internal/infra"
)

// PriceAPI is the slice of the API client the price service consumes.
type PriceAPI interface {
	CheckPrice(ctx context.Context, amount domain.Amount) (domain.PriceQuote, error)
}

// PriceFollowResult carries the last quote and why following stopped.
type PriceFollowResult struct {
	Last   domain.PriceQuote
	Reason StopReason
	Err    error
}

// PriceService fetches one-shot or continuously followed price quotes.
type PriceService struct {
	api     PriceAPI
	logger  *slog.Logger
	metrics *infra.Metrics
}

// NewPriceService creates a PriceService.
func NewPriceService(api PriceAPI, logger *slog.Logger) *PriceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceService{
		api:     api,
		logger:  logger.With("module", "prices"),
		metrics: infra.GlobalMetrics,
	}
}

// CheckPrice validates the amount input and fetches a single quote.
func (s *PriceService) CheckPrice(ctx context.Context, btcAmount, xmrAmount string) (domain.PriceQuote, error) {
	amount, err := domain.NormalizeAmount(btcAmount, xmrAmount)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return s.api.CheckPrice(ctx, amount)
}

// FollowPrice keeps re-fetching a quote for the same amount. Prices have
// no terminal state, so the loop is bounded solely by the deadline and
// cancellation; transient failures get the same bounded backoff as
// order tracking.
func (s *PriceService) FollowPrice(ctx context.Context, btcAmount, xmrAmount string, opts FollowOptions, emit func(domain.PriceQuote)) PriceFollowResult {
	opts = opts.withDefaults()
	if emit == nil {
		emit = func(domain.PriceQuote) {}
	}

	amount, err := domain.NormalizeAmount(btcAmount, xmrAmount)
	if err != nil {
		return PriceFollowResult{Reason: StopFailed, Err: err}
	}

	pollCtx := ctx
	cancel := context.CancelFunc(func() {})
	if opts.Deadline > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, opts.Deadline)
	}
	defer cancel()

	fetch := func(ctx context.Context) (domain.PriceQuote, error) {
		return s.api.CheckPrice(ctx, amount)
	}

	last, err := fetchWithRetry(pollCtx, s.logger, s.metrics, fetch, opts)
	if err != nil {
		if pollCtx.Err() != nil {
			return PriceFollowResult{Reason: stopReason(ctx)}
		}
		return PriceFollowResult{Reason: StopFailed, Err: fmt.Errorf("%w: %w", ErrPollingFailed, err)}
	}
	emit(last)

	for {
		select {
		case <-pollCtx.Done():
			return PriceFollowResult{Last: last, Reason: stopReason(ctx)}
		case <-time.After(opts.Interval):
		}

		next, err := fetchWithRetry(pollCtx, s.logger, s.metrics, fetch, opts)
		if err != nil {
			if pollCtx.Err() != nil {
				return PriceFollowResult{Last: last, Reason: stopReason(ctx)}
			}
			s.metrics.RecordError()
			return PriceFollowResult{Last: last, Reason: StopFailed, Err: fmt.Errorf("%w: %w", ErrPollingFailed, err)}
		}

		s.metrics.RecordPoll()
		last = next
		emit(last)
	}
}
