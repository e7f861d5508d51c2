package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/pkg/observability"
)

// Client is the subset of the DynamoDB API the query layer uses. It mirrors
// the method signatures of *dynamodb.Client so the SDK client, decorators and
// in-memory fakes are interchangeable.
type Client interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// InstrumentedClient reports the duration and outcome of every call to an
// observer and wraps it in a tracing subsegment.
type InstrumentedClient struct {
	next     Client
	observer observability.Observer
	tracer   *observability.Tracer
	logger   *zap.Logger
}

var _ Client = (*InstrumentedClient)(nil)

// NewInstrumentedClient decorates next. A nil observer or tracer disables the
// corresponding instrumentation.
func NewInstrumentedClient(next Client, observer observability.Observer, tracer *observability.Tracer, logger *zap.Logger) *InstrumentedClient {
	return &InstrumentedClient{
		next:     next,
		observer: observability.OrNop(observer),
		tracer:   tracer,
		logger:   logger,
	}
}

func (c *InstrumentedClient) observe(ctx context.Context, operation, table string, fn func(context.Context) error) error {
	start := time.Now()
	err := c.tracer.Trace(ctx, "DynamoDB."+operation, func(ctx context.Context) error {
		c.tracer.AddAnnotation(ctx, "table", table)
		return fn(ctx)
	})
	duration := time.Since(start)
	c.observer.Timing(ctx, operation, duration, err)

	if err != nil {
		c.logger.Error("DynamoDB call failed",
			zap.String("operation", operation),
			zap.String("table", table),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	} else {
		c.logger.Debug("DynamoDB call completed",
			zap.String("operation", operation),
			zap.String("table", table),
			zap.Duration("duration", duration),
		)
	}
	return err
}

func (c *InstrumentedClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (out *dynamodb.ScanOutput, err error) {
	err = c.observe(ctx, "Scan", aws.ToString(params.TableName), func(ctx context.Context) error {
		out, err = c.next.Scan(ctx, params, optFns...)
		return err
	})
	return out, err
}

func (c *InstrumentedClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (out *dynamodb.QueryOutput, err error) {
	err = c.observe(ctx, "Query", aws.ToString(params.TableName), func(ctx context.Context) error {
		out, err = c.next.Query(ctx, params, optFns...)
		return err
	})
	return out, err
}

func (c *InstrumentedClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (out *dynamodb.GetItemOutput, err error) {
	err = c.observe(ctx, "GetItem", aws.ToString(params.TableName), func(ctx context.Context) error {
		out, err = c.next.GetItem(ctx, params, optFns...)
		return err
	})
	return out, err
}

func (c *InstrumentedClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (out *dynamodb.PutItemOutput, err error) {
	err = c.observe(ctx, "PutItem", aws.ToString(params.TableName), func(ctx context.Context) error {
		out, err = c.next.PutItem(ctx, params, optFns...)
		return err
	})
	return out, err
}

func (c *InstrumentedClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (out *dynamodb.DeleteItemOutput, err error) {
	err = c.observe(ctx, "DeleteItem", aws.ToString(params.TableName), func(ctx context.Context) error {
		out, err = c.next.DeleteItem(ctx, params, optFns...)
		return err
	})
	return out, err
}

func (c *InstrumentedClient) BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (out *dynamodb.BatchGetItemOutput, err error) {
	err = c.observe(ctx, "BatchGetItem", tableNames(params.RequestItems), func(ctx context.Context) error {
		out, err = c.next.BatchGetItem(ctx, params, optFns...)
		return err
	})
	return out, err
}

func (c *InstrumentedClient) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (out *dynamodb.BatchWriteItemOutput, err error) {
	err = c.observe(ctx, "BatchWriteItem", tableNames(params.RequestItems), func(ctx context.Context) error {
		out, err = c.next.BatchWriteItem(ctx, params, optFns...)
		return err
	})
	return out, err
}

// tableNames joins the table names of a batch request for log context.
func tableNames[V any](items map[string]V) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		for name := range items {
			return name
		}
	}
	return "multiple"
}
