// Package resolvers evaluates query chains against the store and shapes the
// results into cursor connections.
package resolvers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/application/queries"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
	ddb "github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/batch"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/codec"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/observability"
)

// Result is the outcome of one step: a connection, or a single node when the
// step is a single reduction (Node is nil for an empty nullable single).
type Result struct {
	Connection *valueobjects.Connection
	Node       entities.Model
	IsSingle   bool
}

func connectionResult(c *valueobjects.Connection) *Result {
	return &Result{Connection: c}
}

func singleResult(node entities.Model) *Result {
	return &Result{Node: node, IsSingle: true}
}

// nodes returns the non-nil models of the result.
func (r *Result) nodes() []entities.Model {
	if r.IsSingle {
		if r.Node == nil {
			return nil
		}
		return []entities.Model{r.Node}
	}
	out := make([]entities.Model, 0, len(r.Connection.Edges))
	for _, node := range r.Connection.Nodes() {
		if node != nil {
			out = append(out, node)
		}
	}
	return out
}

// edges returns the result as connection edges. A single node gets the
// cursor of its own key.
func (r *Result) edges() ([]valueobjects.Edge, error) {
	if !r.IsSingle {
		return r.Connection.Edges, nil
	}
	if r.Node == nil {
		return nil, nil
	}
	cursor, err := codec.ToCursor(r.Node)
	if err != nil {
		return nil, err
	}
	return []valueobjects.Edge{{Cursor: cursor, Node: r.Node}}, nil
}

// Engine resolves query chains.
type Engine struct {
	schema   *schema.Config
	client   ddb.Client
	batch    *batch.Orchestrator
	observer observability.Observer
	logger   *zap.Logger
}

// NewEngine creates a new resolver engine
func NewEngine(
	cfg *schema.Config,
	client ddb.Client,
	orchestrator *batch.Orchestrator,
	observer observability.Observer,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		schema:   cfg,
		client:   client,
		batch:    orchestrator,
		observer: observability.OrNop(observer),
		logger:   logger,
	}
}

// Resolve evaluates q and every step before it.
func (e *Engine) Resolve(ctx context.Context, q queries.Query) (*Result, error) {
	var result *Result
	err := observability.Time(ctx, e.observer, stepName(q), func(ctx context.Context) error {
		var err error
		result, err = e.resolve(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) resolve(ctx context.Context, q queries.Query) (*Result, error) {
	switch q := q.(type) {
	case queries.NodeTraversal:
		return e.resolveNodes(ctx, q)
	case queries.EdgeTraversal:
		return e.resolveEdges(ctx, q)
	case queries.ToNodesTraversal:
		return e.resolveToNodes(ctx, q)
	case queries.SingleReduction:
		return e.resolveSingle(ctx, q)
	case queries.AggregateUnion:
		return e.resolveAggregate(ctx, q)
	case nil:
		return nil, apperrors.NewUnsupportedTraversalError("query is empty")
	default:
		return nil, apperrors.NewUnsupportedTraversalError(fmt.Sprintf("unsupported query step %T", q))
	}
}

func stepName(q queries.Query) string {
	switch q.(type) {
	case queries.NodeTraversal:
		return "NodeTraversal"
	case queries.EdgeTraversal:
		return "EdgeTraversal"
	case queries.ToNodesTraversal:
		return "ToNodesTraversal"
	case queries.SingleReduction:
		return "SingleReduction"
	case queries.AggregateUnion:
		return "AggregateUnion"
	}
	return "Unknown"
}

func (e *Engine) table(typeName string) (*schema.Table, error) {
	t, ok := e.schema.TableForType(typeName)
	if !ok {
		return nil, apperrors.NewUnknownTableError(typeName)
	}
	return t, nil
}

// primaryKey builds the primary key of table from model values, converted to
// the declared attribute types.
func primaryKey(table *schema.Table, values map[string]any) (map[string]types.AttributeValue, error) {
	names := table.PrimaryKey().AttributeNames()
	key := make(map[string]types.AttributeValue, len(names))
	for _, name := range names {
		v, ok := values[name]
		if !ok || v == nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("missing key attribute '%s' for table '%s'", name, table.Name))
		}
		attrType, _ := table.AttributeType(name)
		av, err := codec.Coerce(name, v, attrType)
		if err != nil {
			return nil, err
		}
		key[name] = av
	}
	return key, nil
}

// pick copies the named attributes of a row.
func pick(row map[string]types.AttributeValue, names []string) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(names))
	for _, name := range names {
		av, ok := row[name]
		if !ok {
			return nil, apperrors.NewInternalError(fmt.Sprintf("store row is missing key attribute '%s'", name))
		}
		out[name] = av
	}
	return out, nil
}

// storeError wraps client failures that are not already classified.
func storeError(operation string, err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.NewDatabaseError(operation, err)
}
