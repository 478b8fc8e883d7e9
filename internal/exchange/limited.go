package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"growth-core/internal/errs"
	"growth-core/pkg/ratelimit"
)

// LimitedExecutor routes every trading action through the shared rate
// limiter before hitting the venue.
type LimitedExecutor struct {
	inner   OrderExecutionProvider
	limiter *ratelimit.Limiter
}

// NewLimitedExecutor wraps an executor with the shared limiter.
func NewLimitedExecutor(inner OrderExecutionProvider, limiter *ratelimit.Limiter) *LimitedExecutor {
	return &LimitedExecutor{inner: inner, limiter: limiter}
}

func (e *LimitedExecutor) PlaceOrder(ctx context.Context, params OrderParams) (OrderRef, error) {
	if err := e.limiter.Acquire(ctx); err != nil {
		return OrderRef{}, err
	}
	return e.inner.PlaceOrder(ctx, params)
}

func (e *LimitedExecutor) CancelOrder(ctx context.Context, id string) error {
	if err := e.limiter.Acquire(ctx); err != nil {
		return err
	}
	return e.inner.CancelOrder(ctx, id)
}

func (e *LimitedExecutor) SetLeverage(ctx context.Context, market string, value float64) error {
	if err := e.limiter.Acquire(ctx); err != nil {
		return err
	}
	return e.inner.SetLeverage(ctx, market, value)
}

// LimitedAccount routes account fetches through the shared rate limiter.
type LimitedAccount struct {
	inner   AccountProvider
	limiter *ratelimit.Limiter
}

// NewLimitedAccount wraps an account provider with the shared limiter.
func NewLimitedAccount(inner AccountProvider, limiter *ratelimit.Limiter) *LimitedAccount {
	return &LimitedAccount{inner: inner, limiter: limiter}
}

func (a *LimitedAccount) GetAccount(ctx context.Context) (Account, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return Account{}, err
	}
	return a.inner.GetAccount(ctx)
}

func (a *LimitedAccount) SubscribeAccountUpdates(cb func(Account)) func() {
	return a.inner.SubscribeAccountUpdates(cb)
}

func (a *LimitedAccount) GetOpenPositions(ctx context.Context) ([]Position, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return a.inner.GetOpenPositions(ctx)
}

// GetAccountWithTimeout races an account fetch against a fixed deadline,
// surfacing a timeout error rather than hanging.
func GetAccountWithTimeout(ctx context.Context, provider AccountProvider, timeout time.Duration) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	acct, err := provider.GetAccount(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return Account{}, fmt.Errorf("account fetch: %w: %w", errs.ErrTimeout, err)
	}
	return acct, err
}
