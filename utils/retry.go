package utils

import (
	"context"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/rs/zerolog"
)

// NewFlushBackOff builds the exponential policy used for caller-driven flush retries.
func NewFlushBackOff(ctx context.Context, maxRetries uint64) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
}

// Retry runs f until it succeeds, the policy gives up, or f returns a permanent error.
// Nothing in the store retries on its own; this is for callers that opt in.
func Retry(ctx context.Context, b backoff.BackOff, f func() error) error {
	logger := zerolog.Ctx(ctx)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := f()
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("retrying after error")
		return err
	}, b)
}
