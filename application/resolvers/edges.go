package resolvers

import (
	"context"
	"fmt"

	"github.com/channl/dynamodb-relay-graph-sub000/application/queries"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/batch"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/codec"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

func (e *Engine) resolveEdges(ctx context.Context, q queries.EdgeTraversal) (*Result, error) {
	expr := q.Expression
	table, err := e.table(expr.Type())
	if err != nil {
		return nil, err
	}

	near := endpointAttribute(q.Direction, true)
	inner := q.Inner()
	// An expression naming both endpoints, or the near one, does not need the
	// predecessor.
	if inner != nil && !expr.Specifies(table.PrimaryKey().AttributeNames()...) && !expr.HasEquality(near) {
		prev, err := e.Resolve(ctx, inner)
		if err != nil {
			return nil, err
		}

		nodes := prev.nodes()
		switch len(nodes) {
		case 0:
			return connectionResult(valueobjects.EmptyConnection()), nil
		case 1:
		default:
			return nil, apperrors.NewUnsupportedTraversalError(
				fmt.Sprintf("cannot follow %s edges of type '%s' from %d nodes", q.Direction, expr.Type(), len(nodes)),
			).WithDetail("count", len(nodes))
		}

		node := nodes[0]
		if !node.IsNode() {
			return nil, apperrors.NewUnsupportedTraversalError(
				fmt.Sprintf("cannot follow edges of type '%s' from a '%s' edge", expr.Type(), node.Type()),
			)
		}
		expr = expr.With(near, node.ID())
	}

	conn, err := e.resolveExpression(ctx, expr, q.Args)
	if err != nil {
		return nil, err
	}
	return connectionResult(conn), nil
}

// endpointAttribute names the edge attribute holding the node an edge is
// followed from (near) or leads to.
func endpointAttribute(d queries.Direction, near bool) string {
	if (d == queries.Out) == near {
		return entities.AttrOutID
	}
	return entities.AttrInID
}

func (e *Engine) resolveToNodes(ctx context.Context, q queries.ToNodesTraversal) (*Result, error) {
	prev, err := e.Resolve(ctx, q.Inner())
	if err != nil {
		return nil, err
	}
	table, err := e.table(q.Expression.Type())
	if err != nil {
		return nil, err
	}

	edges, err := prev.edges()
	if err != nil {
		return nil, err
	}

	far := endpointAttribute(q.Direction, false)
	requests := make([]batch.GetRequest, 0, len(edges))
	positions := make([]int, 0, len(edges))
	for i, edge := range edges {
		if edge.Node == nil {
			continue
		}
		if !edge.Node.IsEdge() {
			return nil, apperrors.NewUnsupportedTraversalError(
				fmt.Sprintf("cannot move to '%s' nodes from a '%s' node", q.Expression.Type(), edge.Node.Type()),
			)
		}
		key, err := primaryKey(table, map[string]any{table.PrimaryKey().HashKey(): edge.Node[far]})
		if err != nil {
			return nil, err
		}
		requests = append(requests, batch.GetRequest{Table: table.Name, Key: key})
		positions = append(positions, i)
	}

	items, err := e.batch.BatchGet(ctx, requests)
	if err != nil {
		return nil, err
	}

	mapped := make([]valueobjects.Edge, len(edges))
	for i, edge := range edges {
		mapped[i] = valueobjects.Edge{Cursor: edge.Cursor}
	}
	for i, item := range items {
		if item == nil {
			continue
		}
		model, err := codec.ItemToModel(table.ModelType(), item)
		if err != nil {
			return nil, err
		}
		mapped[positions[i]].Node = model
	}

	if prev.IsSingle {
		if len(mapped) == 0 {
			return singleResult(nil), nil
		}
		return singleResult(mapped[0].Node), nil
	}
	return connectionResult(&valueobjects.Connection{Edges: mapped, PageInfo: prev.Connection.PageInfo}), nil
}
