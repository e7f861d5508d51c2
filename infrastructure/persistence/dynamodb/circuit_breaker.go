package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CircuitBreakerConfig holds configuration for the store circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultCircuitBreakerConfig returns a default configuration for circuit breaker
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// CircuitBreakerClient stops calling the store after a sustained failure
// rate and fails fast with gobreaker.ErrOpenState until the breaker half-opens.
type CircuitBreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

var _ Client = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient decorates next with a circuit breaker.
func NewCircuitBreakerClient(next Client, config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &CircuitBreakerClient{next: next, cb: cb}
}

// State returns the breaker's current state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if typed, ok := out.(T); ok {
			return typed, err
		}
		return zero, err
	}
	return out.(T), nil
}

func (c *CircuitBreakerClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return execute(c.cb, func() (*dynamodb.ScanOutput, error) { return c.next.Scan(ctx, params, optFns...) })
}

func (c *CircuitBreakerClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return execute(c.cb, func() (*dynamodb.QueryOutput, error) { return c.next.Query(ctx, params, optFns...) })
}

func (c *CircuitBreakerClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return execute(c.cb, func() (*dynamodb.GetItemOutput, error) { return c.next.GetItem(ctx, params, optFns...) })
}

func (c *CircuitBreakerClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return execute(c.cb, func() (*dynamodb.PutItemOutput, error) { return c.next.PutItem(ctx, params, optFns...) })
}

func (c *CircuitBreakerClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return execute(c.cb, func() (*dynamodb.DeleteItemOutput, error) { return c.next.DeleteItem(ctx, params, optFns...) })
}

func (c *CircuitBreakerClient) BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	return execute(c.cb, func() (*dynamodb.BatchGetItemOutput, error) { return c.next.BatchGetItem(ctx, params, optFns...) })
}

func (c *CircuitBreakerClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return execute(c.cb, func() (*dynamodb.BatchWriteItemOutput, error) { return c.next.BatchWriteItem(ctx, params, optFns...) })
}
