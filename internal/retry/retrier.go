package retry

import (
	"context"
	"math/rand"
	"time"
)

// Retrier runs an action until it succeeds, the strategy gives up or ctx is done.
type Retrier[T any] struct {
	strategy Strategy
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRetrier[T any](strategy Strategy) *Retrier[T] {
	return &Retrier[T]{strategy: strategy, sleep: sleepContext}
}

func (r *Retrier[T]) DoWithReturn(ctx context.Context, action func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for {
		result, err := action(ctx)
		if err == nil {
			r.strategy.HandleSuccess()
			return result, nil
		}
		decision := r.strategy.HandleError(err)
		if decision.ReturnError {
			return zero, err
		}
		if sleepErr := r.sleep(ctx, decision.TimeToWait); sleepErr != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Decision struct {
	TimeToWait  time.Duration
	ReturnError bool
}

type Strategy interface {
	HandleError(err error) Decision
	HandleSuccess()
}

// ExponentialBackoffStrategy is not safe for concurrent use.
type ExponentialBackoffStrategy struct {
	maximumRetries   int
	initialDelay     time.Duration
	maxDelay         time.Duration
	jitterPercentage float64

	currentRetry int
	nextDelay    time.Duration
	rnd          *rand.Rand
}

// NewExponentialBackoffStrategy gives up after maximumRetries failures; -1 retries forever.
func NewExponentialBackoffStrategy(maximumRetries int, initialDelay time.Duration, jitterPercentage float64, maxDelay time.Duration) *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		maximumRetries:   maximumRetries,
		initialDelay:     initialDelay,
		maxDelay:         maxDelay,
		jitterPercentage: jitterPercentage,
		nextDelay:        initialDelay,
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *ExponentialBackoffStrategy) HandleError(error) Decision {
	if s.maximumRetries != -1 && s.currentRetry >= s.maximumRetries {
		return Decision{ReturnError: true}
	}
	s.currentRetry++
	current := s.nextDelay
	next := s.nextDelay * 2
	if next > s.maxDelay {
		next = s.maxDelay
	}
	s.nextDelay = s.withJitter(next)
	return Decision{TimeToWait: current}
}

func (s *ExponentialBackoffStrategy) HandleSuccess() {
	s.currentRetry = 0
	s.nextDelay = s.initialDelay
}

func (s *ExponentialBackoffStrategy) withJitter(d time.Duration) time.Duration {
	maxJitter := int64(float64(d) * s.jitterPercentage)
	if maxJitter <= 0 {
		return d
	}
	return d + time.Duration(s.rnd.Int63n(maxJitter)-maxJitter/2)
}

// NopStrategy never retries.
type NopStrategy struct{}

func (NopStrategy) HandleError(error) Decision { return Decision{ReturnError: true} }
func (NopStrategy) HandleSuccess()             {}
