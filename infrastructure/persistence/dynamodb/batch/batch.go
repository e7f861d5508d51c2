// Package batch runs oversized batch reads and writes against DynamoDB. It
// splits requests into chunks the service accepts, retries unprocessed keys
// and items with exponential backoff and fails once a wall-clock budget is
// spent.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	ddb "github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/codec"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/observability"
)

// Item is a stored item or key.
type Item = map[string]types.AttributeValue

// Config contains configuration for batch operations.
type Config struct {
	ReadChunkSize  int
	WriteChunkSize int
	InitialDelay   time.Duration
	BackoffFactor  int
	Timeout        time.Duration
	MaxConcurrency int
}

// DefaultConfig returns the DynamoDB request limits and the default retry
// budget.
func DefaultConfig() Config {
	return Config{
		ReadChunkSize:  100, // BatchGetItem limit
		WriteChunkSize: 25,  // BatchWriteItem limit
		InitialDelay:   50 * time.Millisecond,
		BackoffFactor:  2,
		Timeout:        60 * time.Second,
		MaxConcurrency: 8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadChunkSize <= 0 || c.ReadChunkSize > d.ReadChunkSize {
		c.ReadChunkSize = d.ReadChunkSize
	}
	if c.WriteChunkSize <= 0 || c.WriteChunkSize > d.WriteChunkSize {
		c.WriteChunkSize = d.WriteChunkSize
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	return c
}

// GetRequest identifies one item to read.
type GetRequest struct {
	Table string
	Key   Item
}

// WriteRequest puts Item, or deletes the item at Key when Item is nil. Key is
// always the primary key of the affected item.
type WriteRequest struct {
	Table string
	Key   Item
	Item  Item
}

// Orchestrator executes batch reads and writes.
type Orchestrator struct {
	client   ddb.Client
	config   Config
	observer observability.Observer
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates a new batch orchestrator.
func NewOrchestrator(client ddb.Client, config Config, observer observability.Observer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client:   client,
		config:   config.withDefaults(),
		observer: observability.OrNop(observer),
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryState tracks the backoff of one chunk against the operation's budget.
type retryState struct {
	o         *Orchestrator
	operation string
	started   time.Time
	delay     time.Duration
	attempt   int
}

func (o *Orchestrator) newRetryState(operation string, started time.Time) *retryState {
	return &retryState{o: o, operation: operation, started: started, delay: o.config.InitialDelay}
}

// backoff waits before the next attempt, or fails with a timeout when the
// wait would overrun the budget.
func (r *retryState) backoff(ctx context.Context, pending int, cause error) error {
	r.attempt++
	elapsed := r.o.now().Sub(r.started)
	if elapsed+r.delay > r.o.config.Timeout {
		r.o.logger.Error("Batch operation timed out",
			zap.String("operation", r.operation),
			zap.Int("pending", pending),
			zap.Int("attempts", r.attempt),
			zap.Duration("elapsed", elapsed),
		)
		return apperrors.NewTimeoutError(r.operation).
			WithDetail("pending", pending).
			WithCause(cause)
	}

	r.o.observer.Warning(ctx, "batch_retry",
		zap.String("operation", r.operation),
		zap.Int("pending", pending),
		zap.Int("attempt", r.attempt),
		zap.Duration("delay", r.delay),
	)
	r.o.logger.Debug("Retrying unprocessed batch requests",
		zap.String("operation", r.operation),
		zap.Int("pending", pending),
		zap.Int("attempt", r.attempt),
		zap.Duration("delay", r.delay),
	)

	if err := r.o.sleep(ctx, r.delay); err != nil {
		return err
	}
	r.delay *= time.Duration(r.o.config.BackoffFactor)
	return nil
}

// throttleCodes are the API errors that reject a whole batch request without
// processing any of it.
var throttleCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
}

// IsThrottle reports whether err is a throttling rejection worth retrying.
func IsThrottle(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return throttleCodes[apiErr.ErrorCode()]
	}
	return false
}

// requestKey identifies a table/key pair for deduplication.
func requestKey(table string, key Item) (string, bool) {
	if len(key) == 0 {
		return "", false
	}
	s, err := codec.KeyToCursor(key)
	if err != nil {
		return "", false
	}
	return table + "\x00" + s, true
}

func chunks[T any](items []T, size int) [][]T {
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
