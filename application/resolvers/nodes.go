package resolvers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/application/queries"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/batch"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/codec"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/dynamodb/compiler"
	"github.com/channl/dynamodb-relay-graph-sub000/infrastructure/persistence/schema"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

func (e *Engine) resolveNodes(ctx context.Context, q queries.NodeTraversal) (*Result, error) {
	conn, err := e.resolveExpression(ctx, q.Expression, q.Args)
	if err != nil {
		return nil, err
	}
	return connectionResult(conn), nil
}

// resolveExpression finds the models matching expr. A fully specified primary
// key is fetched directly, a bare type is scanned and anything else runs as
// an indexed query. A zero page size never reaches the store.
func (e *Engine) resolveExpression(ctx context.Context, expr valueobjects.Expression, args valueobjects.ConnectionArgs) (*valueobjects.Connection, error) {
	table, err := e.table(expr.Type())
	if err != nil {
		return nil, err
	}
	if args.IsEmpty() {
		return valueobjects.EmptyConnection(), nil
	}
	if expr.Specifies(table.PrimaryKey().AttributeNames()...) {
		return e.fetchDirect(ctx, table, expr)
	}

	page, err := e.fetchRows(ctx, table, expr, args)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, table, page, args)
}

// fetchDirect reads one item by its primary key.
func (e *Engine) fetchDirect(ctx context.Context, table *schema.Table, values map[string]any) (*valueobjects.Connection, error) {
	key, err := primaryKey(table, values)
	if err != nil {
		return nil, err
	}
	items, err := e.batch.BatchGet(ctx, []batch.GetRequest{{Table: table.Name, Key: key}})
	if err != nil {
		return nil, err
	}
	if items[0] == nil {
		return valueobjects.EmptyConnection(), nil
	}

	model, err := codec.ItemToModel(table.ModelType(), items[0])
	if err != nil {
		return nil, err
	}
	cursor, err := codec.KeyToCursor(key)
	if err != nil {
		return nil, err
	}
	return valueobjects.NewConnection([]valueobjects.Edge{{Cursor: cursor, Node: model}}, false, false), nil
}

// rowPage is one page of key rows read from a table or index.
type rowPage struct {
	rows          []map[string]types.AttributeValue
	keyAttributes []string
	more          bool
}

func (e *Engine) fetchRows(ctx context.Context, table *schema.Table, expr valueobjects.Expression, args valueobjects.ConnectionArgs) (*rowPage, error) {
	if expr.IsTypeOnly() {
		return e.scan(ctx, table, args)
	}

	input, index, err := compiler.BuildQuery(table, expr, args)
	if err != nil {
		e.logger.Debug("Failed to compile query",
			zap.String("table", table.Name),
			zap.Strings("attributes", expr.Names()),
			zap.Error(err),
		)
		return nil, err
	}
	e.logger.Debug("Querying",
		zap.String("table", table.Name),
		zap.String("index", index.Name),
		zap.String("keyCondition", *input.KeyConditionExpression),
	)

	out, err := e.client.Query(ctx, input)
	if err != nil {
		return nil, storeError("Query", err)
	}
	return &rowPage{
		rows:          out.Items,
		keyAttributes: compiler.KeyAttributes(table, index),
		more:          out.LastEvaluatedKey != nil,
	}, nil
}

// scan reads a table in key order. Scans only run forward.
func (e *Engine) scan(ctx context.Context, table *schema.Table, args valueobjects.ConnectionArgs) (*rowPage, error) {
	if !args.IsForward() || args.OrderDesc || args.Order != "" {
		return nil, apperrors.NewUnsupportedTraversalError("a scan of '" + table.Name + "' can only page forward in key order").
			WithDetail("table", table.Name)
	}

	input, err := compiler.BuildScan(table, args)
	if err != nil {
		return nil, err
	}
	out, err := e.client.Scan(ctx, input)
	if err != nil {
		return nil, storeError("Scan", err)
	}
	return &rowPage{
		rows:          out.Items,
		keyAttributes: table.PrimaryKey().AttributeNames(),
		more:          out.LastEvaluatedKey != nil,
	}, nil
}

// hydrate turns key rows into a connection: every row yields a cursor from
// its key and a model read in full through the batch layer. A backward page
// is reversed so edges follow the requested order.
func (e *Engine) hydrate(ctx context.Context, table *schema.Table, page *rowPage, args valueobjects.ConnectionArgs) (*valueobjects.Connection, error) {
	rows := page.rows
	if !args.IsForward() {
		rows = make([]map[string]types.AttributeValue, len(page.rows))
		for i, row := range page.rows {
			rows[len(rows)-1-i] = row
		}
	}

	primary := table.PrimaryKey().AttributeNames()
	cursors := make([]string, len(rows))
	requests := make([]batch.GetRequest, len(rows))
	for i, row := range rows {
		cursorKey, err := pick(row, page.keyAttributes)
		if err != nil {
			return nil, err
		}
		if cursors[i], err = codec.KeyToCursor(cursorKey); err != nil {
			return nil, err
		}
		key, err := pick(row, primary)
		if err != nil {
			return nil, err
		}
		requests[i] = batch.GetRequest{Table: table.Name, Key: key}
	}

	items, err := e.batch.BatchGet(ctx, requests)
	if err != nil {
		return nil, err
	}

	edges := make([]valueobjects.Edge, 0, len(items))
	for i, item := range items {
		if item == nil {
			// Deleted between the key read and the hydration read.
			e.observer.Warning(ctx, "hydration_missing",
				zap.String("table", table.Name),
				zap.String("cursor", cursors[i]),
			)
			continue
		}
		model, err := codec.ItemToModel(table.ModelType(), item)
		if err != nil {
			return nil, err
		}
		edges = append(edges, valueobjects.Edge{Cursor: cursors[i], Node: model})
	}

	var hasPrevious, hasNext bool
	if args.IsForward() {
		hasNext = page.more
	} else {
		hasPrevious = page.more
	}
	return valueobjects.NewConnection(edges, hasPrevious, hasNext), nil
}
