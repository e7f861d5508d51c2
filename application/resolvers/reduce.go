package resolvers

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/channl/dynamodb-relay-graph-sub000/application/queries"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

func (e *Engine) resolveSingle(ctx context.Context, q queries.SingleReduction) (*Result, error) {
	prev, err := e.Resolve(ctx, q.Inner())
	if err != nil {
		return nil, err
	}

	if prev.IsSingle {
		if prev.Node == nil && !q.Nullable {
			return nil, apperrors.NewSingleItemNotFoundError(0)
		}
		return prev, nil
	}

	edges := prev.Connection.Edges
	switch {
	case len(edges) > 1:
		return nil, apperrors.NewSingleItemNotFoundError(len(edges))
	case len(edges) == 1 && edges[0].Node != nil:
		return singleResult(edges[0].Node), nil
	case q.Nullable:
		return singleResult(nil), nil
	default:
		return nil, apperrors.NewSingleItemNotFoundError(0)
	}
}

// resolveAggregate resolves every member concurrently and concatenates their
// edges in member order. The union itself is never paged.
func (e *Engine) resolveAggregate(ctx context.Context, q queries.AggregateUnion) (*Result, error) {
	results := make([]*Result, len(q.Items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range q.Items {
		i, item := i, item
		g.Go(func() error {
			r, err := e.Resolve(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var edges []valueobjects.Edge
	for _, r := range results {
		member, err := r.edges()
		if err != nil {
			return nil, err
		}
		edges = append(edges, member...)
	}
	return connectionResult(valueobjects.NewConnection(edges, false, false)), nil
}
