package batch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/observability"
)

const operationBatchWrite = "BatchWriteItem"

// BatchWrite applies every put and delete. Chunks run one after another. A
// failure leaves an unknown prefix of the requests applied; nothing is
// rolled back.
func (o *Orchestrator) BatchWrite(ctx context.Context, requests []WriteRequest) error {
	if len(requests) == 0 {
		return nil
	}

	return observability.Time(ctx, o.observer, "BatchWrite", func(ctx context.Context) error {
		started := o.now()
		parts := chunks(dedupeWrites(requests), o.config.WriteChunkSize)

		o.logger.Debug("Starting batch write",
			zap.Int("requests", len(requests)),
			zap.Int("chunks", len(parts)),
		)

		for i, part := range parts {
			if err := o.writeChunk(ctx, part, started); err != nil {
				o.logger.Error("Batch write chunk failed",
					zap.Int("chunk", i+1),
					zap.Int("chunks", len(parts)),
					zap.Error(err),
				)
				return err
			}
		}
		return nil
	})
}

// dedupeWrites keeps only the last request for each key, at the position of
// that last request. BatchWriteItem rejects a request touching a key twice.
func dedupeWrites(requests []WriteRequest) []WriteRequest {
	seen := make(map[string]struct{}, len(requests))
	out := make([]WriteRequest, 0, len(requests))
	for i := len(requests) - 1; i >= 0; i-- {
		req := requests[i]
		if k, ok := requestKey(req.Table, req.Key); ok {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		out = append(out, req)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func toWriteRequest(req WriteRequest) types.WriteRequest {
	if req.Item != nil {
		return types.WriteRequest{PutRequest: &types.PutRequest{Item: req.Item}}
	}
	return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: req.Key}}
}

func (o *Orchestrator) writeChunk(ctx context.Context, requests []WriteRequest, started time.Time) error {
	pending := make(map[string][]types.WriteRequest)
	for _, req := range requests {
		pending[req.Table] = append(pending[req.Table], toWriteRequest(req))
	}

	retry := o.newRetryState(operationBatchWrite, started)
	for {
		out, err := o.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		var cause error
		switch {
		case err != nil && !IsThrottle(err):
			return apperrors.NewDatabaseError(operationBatchWrite, err)
		case err != nil:
			cause = err
		default:
			pending = nonEmptyWrites(out.UnprocessedItems)
			if len(pending) == 0 {
				return nil
			}
			cause = apperrors.NewUnprocessedItemsError(operationBatchWrite, countWrites(pending))
		}

		if err := retry.backoff(ctx, countWrites(pending), cause); err != nil {
			return err
		}
	}
}

func nonEmptyWrites(m map[string][]types.WriteRequest) map[string][]types.WriteRequest {
	out := make(map[string][]types.WriteRequest, len(m))
	for table, reqs := range m {
		if len(reqs) > 0 {
			out[table] = reqs
		}
	}
	return out
}

func countWrites(m map[string][]types.WriteRequest) int {
	n := 0
	for _, reqs := range m {
		n += len(reqs)
	}
	return n
}
