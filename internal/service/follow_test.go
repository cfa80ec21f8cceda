package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/normoes/xmrto-wrapper/internal/domain"
)

func testFollower() *Follower {
	return NewFollower(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testOptions() FollowOptions {
	return FollowOptions{
		Interval:       time.Millisecond,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	}
}

func orderIn(state domain.OrderState) domain.Order {
	return domain.Order{SecretKey: "xmrto-test", State: state, RawState: string(state)}
}

func TestFollow_StopsOnTerminal(t *testing.T) {
	// Server converges: UNPAID, then BTC_SENT.
	states := []domain.OrderState{domain.StateUnpaid, domain.StateBTCSent}
	fetches := 0
	fetch := func(ctx context.Context) (domain.Order, error) {
		state := states[fetches]
		fetches++
		return orderIn(state), nil
	}

	var emitted []domain.Order
	result := testFollower().Follow(context.Background(), orderIn(domain.StateUnpaid), fetch, testOptions(),
		func(o domain.Order) { emitted = append(emitted, o) })

	if result.Reason != StopTerminal {
		t.Fatalf("Reason = %s, want terminal", result.Reason)
	}
	if result.Last.State != domain.StateBTCSent {
		t.Errorf("Last.State = %s, want BTC_SENT", result.Last.State)
	}
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2", fetches)
	}
	// Initial snapshot plus both fetched ones.
	if len(emitted) != 3 {
		t.Errorf("emitted = %d snapshots, want 3", len(emitted))
	}
}

func TestFollow_TerminalInitialNeedsNoFetch(t *testing.T) {
	fetches := 0
	fetch := func(ctx context.Context) (domain.Order, error) {
		fetches++
		return orderIn(domain.StateBTCSent), nil
	}

	result := testFollower().Follow(context.Background(), orderIn(domain.StateTimedOut), fetch, testOptions(), nil)

	if result.Reason != StopTerminal {
		t.Fatalf("Reason = %s, want terminal", result.Reason)
	}
	if fetches != 0 {
		t.Errorf("fetches = %d, want 0 for a terminal initial snapshot", fetches)
	}
}

func TestFollow_UnderpaidPausesLoop(t *testing.T) {
	fetch := func(ctx context.Context) (domain.Order, error) {
		return orderIn(domain.StateUnderpaid), nil
	}

	result := testFollower().Follow(context.Background(), orderIn(domain.StateUnpaid), fetch, testOptions(), nil)

	if result.Reason != StopAwaitConfirm {
		t.Fatalf("Reason = %s, want await_confirm", result.Reason)
	}
	if result.Last.State != domain.StateUnderpaid {
		t.Errorf("Last.State = %s, want UNDERPAID", result.Last.State)
	}
}

func TestFollow_UnknownStateContinues(t *testing.T) {
	// An unrecognized state must neither stop the loop nor crash it.
	states := []string{"SOME_FUTURE_STATE", "BTC_SENT"}
	fetches := 0
	fetch := func(ctx context.Context) (domain.Order, error) {
		raw := states[fetches]
		fetches++
		return domain.Order{SecretKey: "xmrto-test", State: domain.ParseOrderState(raw), RawState: raw}, nil
	}

	result := testFollower().Follow(context.Background(), orderIn(domain.StateUnpaid), fetch, testOptions(), nil)

	if result.Reason != StopTerminal {
		t.Fatalf("Reason = %s, want terminal", result.Reason)
	}
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2 (unknown state keeps polling)", fetches)
	}
}

func TestFollow_DeadlineHonored(t *testing.T) {
	fetch := func(ctx context.Context) (domain.Order, error) {
		return orderIn(domain.StateUnpaid), nil
	}

	opts := testOptions()
	opts.Deadline = 50 * time.Millisecond

	start := time.Now()
	result := testFollower().Follow(context.Background(), orderIn(domain.StateUnpaid), fetch, opts, nil)
	elapsed := time.Since(start)

	if result.Reason != StopDeadline {
		t.Fatalf("Reason = %s, want deadline", result.Reason)
	}
	if result.Last.State != domain.StateUnpaid {
		t.Errorf("Last snapshot missing on deadline stop")
	}
	if elapsed > time.Second {
		t.Errorf("loop ran %v past a 50ms deadline", elapsed)
	}
}

func TestFollow_CancelMidWait(t *testing.T) {
	fetch := func(ctx context.Context) (domain.Order, error) {
		return orderIn(domain.StateUnpaid), nil
	}

	opts := testOptions()
	opts.Interval = 10 * time.Second // Cancellation must not wait this out.

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := testFollower().Follow(ctx, orderIn(domain.StateUnpaid), fetch, opts, nil)
	elapsed := time.Since(start)

	if result.Reason != StopCancelled {
		t.Fatalf("Reason = %s, want cancelled", result.Reason)
	}
	if result.Last.State != domain.StateUnpaid {
		t.Error("last snapshot must be returned on cancellation")
	}
	if elapsed > time.Second {
		t.Errorf("cancellation took %v, should interrupt the wait", elapsed)
	}
}

func TestFollow_CountdownExpiredStops(t *testing.T) {
	expired := 0
	initial := orderIn(domain.StateUnpaid)
	initial.SecondsTillTimeout = &expired

	fetches := 0
	fetch := func(ctx context.Context) (domain.Order, error) {
		fetches++
		return orderIn(domain.StateUnpaid), nil
	}

	result := testFollower().Follow(context.Background(), initial, fetch, testOptions(), nil)

	if result.Reason != StopDeadline {
		t.Fatalf("Reason = %s, want deadline for an expired countdown", result.Reason)
	}
	if fetches != 0 {
		t.Errorf("fetches = %d, want 0", fetches)
	}
}

func TestFollow_RetriesTransientThenSucceeds(t *testing.T) {
	fetches := 0
	fetch := func(ctx context.Context) (domain.Order, error) {
		fetches++
		if fetches < 3 {
			return domain.Order{}, &domain.TransientError{Op: "order status", Err: errors.New("connection reset")}
		}
		return orderIn(domain.StateBTCSent), nil
	}

	result := testFollower().Follow(context.Background(), orderIn(domain.StateUnpaid), fetch, testOptions(), nil)

	if result.Reason != StopTerminal {
		t.Fatalf("Reason = %s, want terminal after retries, err = %v", result.Reason, result.Err)
	}
	if fetches != 3 {
		t.Errorf("fetches = %d, want 3 (two retries)", fetches)
	}
}

func TestFollow_RetryBudgetExhausted(t *testing.T) {
	fetches := 0
	fetch := func(ctx context.Context) (domain.Order, error) {
		fetches++
		return domain.Order{}, &domain.TransientError{Op: "order status", Err: errors.New("boom")}
	}

	result := testFollower().Follow(context.Background(), orderIn(domain.StateUnpaid), fetch, testOptions(), nil)

	if result.Reason != StopFailed {
		t.Fatalf("Reason = %s, want failed", result.Reason)
	}
	if !errors.Is(result.Err, ErrPollingFailed) {
		t.Errorf("Err = %v, want ErrPollingFailed", result.Err)
	}
	if fetches != 3 {
		t.Errorf("fetches = %d, want the retry cap of 3", fetches)
	}
	if result.Last.State != domain.StateUnpaid {
		t.Error("last good snapshot must survive a polling failure")
	}
}

func TestFollow_NonRetriableFailsImmediately(t *testing.T) {
	fetches := 0
	fetch := func(ctx context.Context) (domain.Order, error) {
		fetches++
		return domain.Order{}, &domain.ProtocolError{Op: "order status", Err: errors.New("bad json")}
	}

	result := testFollower().Follow(context.Background(), orderIn(domain.StateUnpaid), fetch, testOptions(), nil)

	if result.Reason != StopFailed {
		t.Fatalf("Reason = %s, want failed", result.Reason)
	}
	if fetches != 1 {
		t.Errorf("fetches = %d, want 1 (protocol errors are never retried)", fetches)
	}
}
