package coordinator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how commitTransaction is retried on retryable errors.
type RetryPolicy struct {
	MaxAttempts     int           `yaml:"maxAttempts"     env:"MONGOTX_COMMIT_MAX_ATTEMPTS"`
	InitialInterval time.Duration `yaml:"initialInterval" env:"MONGOTX_COMMIT_INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"maxInterval"     env:"MONGOTX_COMMIT_MAX_INTERVAL"`
	Multiplier      float64       `yaml:"multiplier"      env:"MONGOTX_COMMIT_MULTIPLIER"`
	Jitter          float64       `yaml:"jitter"          env:"MONGOTX_COMMIT_JITTER"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2,
		Jitter:          0.5,
	}
}

// withDefaults fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = def.Jitter
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}
