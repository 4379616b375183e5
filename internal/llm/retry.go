package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/model"
)

// Backoff describes an exponential retry schedule.
type Backoff struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

// DefaultBackoff retries four times starting at two seconds.
var DefaultBackoff = Backoff{MaxRetries: 4, Initial: 2 * time.Second, Max: time.Minute}

// Do runs fn until it succeeds, returns an error that retryable rejects, or
// the retries run out. Exhausted retries are wrapped in
// model.ErrTransientService.
func (b Backoff) Do(ctx context.Context, what string, retryable func(error) bool, fn func() error) error {
	delay := b.Initial
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt >= b.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w: %w", what, b.MaxRetries, model.ErrTransientService, err)
		}
		logger.Debug("retrying", "call", what, "attempt", attempt+1, "delay", delay, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}

// RetryingProvider retries transient provider failures with exponential backoff.
type RetryingProvider struct {
	provider Provider
	backoff  Backoff
}

// NewRetryingProvider wraps provider with the given retry schedule.
func NewRetryingProvider(provider Provider, backoff Backoff) *RetryingProvider {
	return &RetryingProvider{provider: provider, backoff: backoff}
}

func (r *RetryingProvider) Name() string {
	return r.provider.Name()
}

func (r *RetryingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var resp *CompletionResponse
	err := r.backoff.Do(ctx, r.provider.Name()+" completion", Retryable, func() error {
		var err error
		resp, err = r.provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
