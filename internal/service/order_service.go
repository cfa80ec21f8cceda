package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/normoes/xmrto-wrapper/internal/domain"
)

// OrderAPI is the slice of the API client the order service consumes.
type OrderAPI interface {
	CreateOrder(ctx context.Context, destination string, amount domain.Amount) (domain.Order, error)
	CreateLightningOrder(ctx context.Context, invoice string) (domain.Order, error)
	OrderStatus(ctx context.Context, secretKey string) (domain.Order, error)
	ConfirmPartialPayment(ctx context.Context, secretKey string) error
}

// OrderJournal records secret keys of orders this client has touched.
type OrderJournal interface {
	RecordOrder(order domain.Order) error
}

// OrderService orchestrates the order lifecycle: create, track, confirm,
// follow. It owns no state of its own; the service is the durable store.
type OrderService struct {
	api      OrderAPI
	follower *Follower
	journal  OrderJournal // optional, may be nil
	logger   *slog.Logger
}

// NewOrderService creates an OrderService. journal may be nil.
func NewOrderService(api OrderAPI, follower *Follower, journal OrderJournal, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		api:      api,
		follower: follower,
		journal:  journal,
		logger:   logger.With("module", "orders"),
	}
}

// Create validates the amount input and mints a new order. Exactly one
// request is issued; a failed create is never replayed silently, the
// caller has to mint a fresh order instead.
func (s *OrderService) Create(ctx context.Context, destination, btcAmount, xmrAmount string) (domain.Order, error) {
	if destination == "" {
		return domain.Order{}, fmt.Errorf("destination address is required")
	}

	amount, err := domain.NormalizeAmount(btcAmount, xmrAmount)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.api.CreateOrder(ctx, destination, amount)
	if err != nil {
		return domain.Order{}, err
	}

	s.journalRecord(order)
	return order, nil
}

// CreateLightning mints an order paying a lightning invoice.
func (s *OrderService) CreateLightning(ctx context.Context, invoice string) (domain.Order, error) {
	if invoice == "" {
		return domain.Order{}, fmt.Errorf("lightning invoice is required")
	}

	order, err := s.api.CreateLightningOrder(ctx, invoice)
	if err != nil {
		return domain.Order{}, err
	}

	s.journalRecord(order)
	return order, nil
}

// Track fetches the current snapshot of an existing order.
func (s *OrderService) Track(ctx context.Context, secretKey string) (domain.Order, error) {
	if secretKey == "" {
		return domain.Order{}, fmt.Errorf("secret key is required")
	}

	order, err := s.api.OrderStatus(ctx, secretKey)
	if err != nil {
		return domain.Order{}, err
	}

	s.journalRecord(order)
	return order, nil
}

// Confirm asks the service to proceed with a partial payment. The guard
// runs client-side against the last known snapshot: outside UNDERPAID
// no request is sent at all. On success the refreshed snapshot is
// returned so tracking can resume.
func (s *OrderService) Confirm(ctx context.Context, lastKnown domain.Order) (domain.Order, error) {
	if !lastKnown.IsUnderpaid() {
		return lastKnown, fmt.Errorf("%w: order %s is %s",
			domain.ErrInvalidStateForConfirm, lastKnown.SecretKey, lastKnown.State)
	}

	if err := s.api.ConfirmPartialPayment(ctx, lastKnown.SecretKey); err != nil {
		return lastKnown, err
	}

	order, err := s.api.OrderStatus(ctx, lastKnown.SecretKey)
	if err != nil {
		// The confirm went through; surface the stale snapshot with the
		// fetch error instead of pretending nothing happened.
		return lastKnown, err
	}

	s.journalRecord(order)
	return order, nil
}

// FollowOrder tracks the order until a terminal state, an underpaid
// hold, the deadline, or cancellation, emitting every snapshot.
func (s *OrderService) FollowOrder(ctx context.Context, initial domain.Order, opts FollowOptions, emit func(domain.Order)) FollowResult {
	fetch := func(ctx context.Context) (domain.Order, error) {
		return s.api.OrderStatus(ctx, initial.SecretKey)
	}

	result := s.follower.Follow(ctx, initial, fetch, opts, emit)
	s.journalRecord(result.Last)
	return result
}

func (s *OrderService) journalRecord(order domain.Order) {
	if s.journal == nil || order.SecretKey == "" {
		return
	}
	if err := s.journal.RecordOrder(order); err != nil {
		s.logger.Warn("failed to journal order", "uuid", order.SecretKey, "error", err.Error())
	}
}
