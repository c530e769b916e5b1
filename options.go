package sigil

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/pipz"
)

// Option modifies the transport pipeline a Runner wraps around its provider.
// These harden the call boundary (timeouts, backoff, rate limits) and are
// independent of the runner's corrective retry loop, which only reacts to
// parse and validation failures.
type Option func(pipz.Chainable[*callState]) pipz.Chainable[*callState]

// WithRetry retries failed provider calls up to maxAttempts times.
func WithRetry(maxAttempts int) Option {
	return func(pipeline pipz.Chainable[*callState]) pipz.Chainable[*callState] {
		return pipz.NewRetry("retry", pipeline, maxAttempts)
	}
}

// WithBackoff retries failed provider calls with exponential backoff.
// The delay starts at baseDelay and doubles after each failure.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(pipeline pipz.Chainable[*callState]) pipz.Chainable[*callState] {
		return pipz.NewBackoff("backoff", pipeline, maxAttempts, baseDelay)
	}
}

// WithTimeout cancels provider calls exceeding the duration.
func WithTimeout(duration time.Duration) Option {
	return func(pipeline pipz.Chainable[*callState]) pipz.Chainable[*callState] {
		return pipz.NewTimeout("timeout", pipeline, duration)
	}
}

// WithCircuitBreaker opens the circuit for the recovery duration after the
// given number of consecutive provider failures.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(pipeline pipz.Chainable[*callState]) pipz.Chainable[*callState] {
		return pipz.NewCircuitBreaker("circuit-breaker", pipeline, failures, recovery)
	}
}

// WithRateLimit throttles provider calls.
// rps = requests per second, burst = burst capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(pipeline pipz.Chainable[*callState]) pipz.Chainable[*callState] {
		rateLimiter := pipz.NewRateLimiter[*callState]("rate-limit", rps, burst)
		return pipz.NewSequence("rate-limited", rateLimiter, pipeline)
	}
}

// WithErrorHandler routes transport errors through a handler pipeline for
// logging or alerting.
func WithErrorHandler(handler pipz.Chainable[*pipz.Error[*callState]]) Option {
	return func(pipeline pipz.Chainable[*callState]) pipz.Chainable[*callState] {
		return pipz.NewHandle("error-handler", pipeline, handler)
	}
}

// TransportProvider is implemented by types that expose their transport
// pipeline for composition.
type TransportProvider interface {
	GetPipeline() pipz.Chainable[*callState]
}

// WithFallback tries a secondary transport when the primary fails.
func WithFallback(fallback TransportProvider) Option {
	return func(pipeline pipz.Chainable[*callState]) pipz.Chainable[*callState] {
		return pipz.NewFallback("with-fallback", pipeline, fallback.GetPipeline())
	}
}

// WithDebug prints each request's rendered messages and the raw completion.
// Useful for understanding what the model sees and returns.
func WithDebug() Option {
	return func(pipeline pipz.Chainable[*callState]) pipz.Chainable[*callState] {
		return pipz.Apply("debug", func(ctx context.Context, st *callState) (*callState, error) {
			fmt.Println("\n=== DEBUG: Request ===")
			for _, m := range st.Request.Messages {
				fmt.Printf("[%s]\n%s\n", m.Role, m.Content)
			}
			fmt.Println("======================")

			processed, err := pipeline.Process(ctx, st)
			if err != nil {
				fmt.Printf("\n=== DEBUG: Error ===\n%v\n====================\n\n", err)
				return processed, err
			}

			fmt.Println("\n=== DEBUG: Raw Response ===")
			fmt.Println(processed.Completion.Text)
			fmt.Println("===========================")
			return processed, nil
		})
	}
}
