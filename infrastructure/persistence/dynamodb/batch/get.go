package batch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/codec"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/observability"
)

const operationBatchGet = "BatchGetItem"

// BatchGet reads every requested item. The result is aligned with requests;
// an item that does not exist is nil. Either every chunk succeeds or the call
// fails: partial results are never returned.
func (o *Orchestrator) BatchGet(ctx context.Context, requests []GetRequest) (results []Item, err error) {
	results = make([]Item, len(requests))
	if len(requests) == 0 {
		return results, nil
	}

	err = observability.Time(ctx, o.observer, "BatchGet", func(ctx context.Context) error {
		unique, positions := dedupeGets(requests)
		found, err := o.getAll(ctx, unique)
		if err != nil {
			return err
		}
		for i, item := range found {
			for _, pos := range positions[i] {
				results[pos] = item
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// dedupeGets collapses repeated keys, which BatchGetItem rejects, and records
// the request positions each unique key answers.
func dedupeGets(requests []GetRequest) ([]GetRequest, [][]int) {
	unique := make([]GetRequest, 0, len(requests))
	positions := make([][]int, 0, len(requests))
	index := make(map[string]int, len(requests))
	for pos, req := range requests {
		if k, ok := requestKey(req.Table, req.Key); ok {
			if i, dup := index[k]; dup {
				positions[i] = append(positions[i], pos)
				continue
			}
			index[k] = len(unique)
		}
		unique = append(unique, req)
		positions = append(positions, []int{pos})
	}
	return unique, positions
}

func (o *Orchestrator) getAll(ctx context.Context, requests []GetRequest) ([]Item, error) {
	started := o.now()
	parts := chunks(requests, o.config.ReadChunkSize)
	found := make([][]Item, len(parts))

	o.logger.Debug("Starting batch get",
		zap.Int("keys", len(requests)),
		zap.Int("chunks", len(parts)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxConcurrency)
	for i, part := range parts {
		i, part := i, part
		g.Go(func() error {
			items, err := o.getChunk(gctx, part, started)
			if err != nil {
				return err
			}
			found[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(requests))
	for _, items := range found {
		out = append(out, items...)
	}
	return out, nil
}

// getChunk reads one chunk until every key is processed and returns the
// items aligned with the chunk's requests.
func (o *Orchestrator) getChunk(ctx context.Context, requests []GetRequest, started time.Time) ([]Item, error) {
	pending := make(map[string]types.KeysAndAttributes)
	for _, req := range requests {
		ka := pending[req.Table]
		ka.Keys = append(ka.Keys, req.Key)
		pending[req.Table] = ka
	}

	responses := make(map[string][]Item)
	retry := o.newRetryState(operationBatchGet, started)
	for {
		out, err := o.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
		var cause error
		switch {
		case err != nil && !IsThrottle(err):
			return nil, apperrors.NewDatabaseError(operationBatchGet, err)
		case err != nil:
			cause = err
		default:
			for table, items := range out.Responses {
				responses[table] = append(responses[table], items...)
			}
			pending = nonEmptyKeys(out.UnprocessedKeys)
			if len(pending) == 0 {
				return correlate(requests, responses), nil
			}
			cause = apperrors.NewUnprocessedItemsError(operationBatchGet, countKeys(pending))
		}

		if err := retry.backoff(ctx, countKeys(pending), cause); err != nil {
			return nil, err
		}
	}
}

// correlate matches returned items to the requested keys by comparing decoded
// key values, since responses do not follow request order.
func correlate(requests []GetRequest, responses map[string][]Item) []Item {
	out := make([]Item, len(requests))
	for i, req := range requests {
		for _, item := range responses[req.Table] {
			if codec.KeyMatches(req.Key, item) {
				out[i] = item
				break
			}
		}
	}
	return out
}

func nonEmptyKeys(m map[string]types.KeysAndAttributes) map[string]types.KeysAndAttributes {
	out := make(map[string]types.KeysAndAttributes, len(m))
	for table, ka := range m {
		if len(ka.Keys) > 0 {
			out[table] = ka
		}
	}
	return out
}

func countKeys(m map[string]types.KeysAndAttributes) int {
	n := 0
	for _, ka := range m {
		n += len(ka.Keys)
	}
	return n
}
