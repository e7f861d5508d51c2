package resolvers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/application/queries"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/batch"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/codec"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/globalid"
)

// Graph is the entry point for reading and writing models.
type Graph struct {
	engine *Engine
	ids    globalid.IdentifierCodec
	logger *zap.Logger
}

// NewGraph creates a new graph
func NewGraph(engine *Engine, ids globalid.IdentifierCodec, logger *zap.Logger) *Graph {
	return &Graph{
		engine: engine,
		ids:    ids,
		logger: logger,
	}
}

// Resolve validates and evaluates a query chain.
func (g *Graph) Resolve(ctx context.Context, q queries.Query) (*Result, error) {
	if q == nil {
		return nil, apperrors.NewValidationError("query is empty")
	}
	if err := q.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error()).WithCause(err)
	}
	return g.engine.Resolve(ctx, q)
}

// ResolveConnection evaluates q as a connection. A single result becomes a
// connection of zero or one edges.
func (g *Graph) ResolveConnection(ctx context.Context, q queries.Query) (*valueobjects.Connection, error) {
	r, err := g.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	if !r.IsSingle {
		return r.Connection, nil
	}
	edges, err := r.edges()
	if err != nil {
		return nil, err
	}
	return valueobjects.NewConnection(edges, false, false), nil
}

// ResolveSingle evaluates q as at most one model. A chain that does not end
// in a single reduction is reduced with SingleOrNull.
func (g *Graph) ResolveSingle(ctx context.Context, q queries.Query) (entities.Model, error) {
	if _, ok := q.(queries.SingleReduction); !ok {
		q = queries.From(q).SingleOrNull().Query()
	}
	r, err := g.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	return r.Node, nil
}

// ID returns the global id of a model.
func (g *Graph) ID(m entities.Model) (string, error) {
	return g.ids.Encode(m)
}

// Get reads the model a global id refers to.
func (g *Graph) Get(ctx context.Context, id string) (entities.Model, error) {
	ref, err := g.ids.Decode(id)
	if err != nil {
		return nil, err
	}
	table, err := g.engine.table(ref.Type())
	if err != nil {
		return nil, err
	}
	conn, err := g.engine.fetchDirect(ctx, table, ref)
	if err != nil {
		return nil, err
	}
	if len(conn.Edges) == 0 {
		return nil, apperrors.NewNotFoundError(ref.Type()).WithDetail("id", id)
	}
	return conn.Edges[0].Node, nil
}

// Put writes models, replacing any stored model with the same key. Models
// may be of different types.
func (g *Graph) Put(ctx context.Context, models ...entities.Model) error {
	requests := make([]batch.WriteRequest, 0, len(models))
	for i, m := range models {
		if err := m.Validate(); err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("model %d: %s", i, err)).WithCause(err)
		}
		table, err := g.engine.table(m.Type())
		if err != nil {
			return err
		}

		item, err := codec.ModelToItem(m)
		if err != nil {
			return err
		}
		for name, v := range m {
			attrType, declared := table.AttributeType(name)
			if !declared || v == nil {
				continue
			}
			if item[name], err = codec.Coerce(name, v, attrType); err != nil {
				return err
			}
		}
		key, err := pick(item, table.PrimaryKey().AttributeNames())
		if err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("model %d of type '%s' does not carry the key of table '%s'", i, m.Type(), table.Name))
		}
		requests = append(requests, batch.WriteRequest{Table: table.Name, Key: key, Item: item})
	}

	g.logger.Debug("Putting models", zap.Int("count", len(requests)))
	return g.engine.batch.BatchWrite(ctx, requests)
}

// Delete removes the models global ids refer to. Ids of models that do not
// exist are ignored.
func (g *Graph) Delete(ctx context.Context, ids ...string) error {
	requests := make([]batch.WriteRequest, 0, len(ids))
	for _, id := range ids {
		ref, err := g.ids.Decode(id)
		if err != nil {
			return err
		}
		table, err := g.engine.table(ref.Type())
		if err != nil {
			return err
		}
		key, err := primaryKey(table, ref)
		if err != nil {
			return err
		}
		requests = append(requests, batch.WriteRequest{Table: table.Name, Key: key})
	}

	g.logger.Debug("Deleting models", zap.Int("count", len(requests)))
	return g.engine.batch.BatchWrite(ctx, requests)
}
