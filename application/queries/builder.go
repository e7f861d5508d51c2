package queries

import (
	"errors"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
)

var errEmptyQuery = errors.New("query is empty")

// Builder constructs a query chain. Every method returns a new Builder and
// leaves the receiver unchanged, so a common prefix can be shared:
//
//	user := queries.Node(valueobjects.Expression{"type": "User", "id": "u1"}, valueobjects.First(1))
//	follows := user.OutEdges(valueobjects.Expression{"type": "Follow"}, valueobjects.First(10))
//	followed := follows.OutNodes(valueobjects.Expression{"type": "User"})
type Builder struct {
	query Query
}

// Node starts a chain with a node traversal.
func Node(expr valueobjects.Expression, args valueobjects.ConnectionArgs) Builder {
	return Builder{query: NodeTraversal{Expression: clone(expr), Args: args}}
}

// Edge starts a chain with an edge traversal that has no preceding node.
func Edge(expr valueobjects.Expression, args valueobjects.ConnectionArgs) Builder {
	return Builder{query: EdgeTraversal{Expression: clone(expr), Args: args, Direction: Out}}
}

// Aggregate unions several chains.
func Aggregate(items ...Builder) Builder {
	qs := make([]Query, 0, len(items))
	for _, item := range items {
		qs = append(qs, item.query)
	}
	return Builder{query: AggregateUnion{Items: qs}}
}

// From wraps an existing query so it can be extended.
func From(q Query) Builder {
	return Builder{query: q}
}

// OutEdges follows edges leaving the current node.
func (b Builder) OutEdges(expr valueobjects.Expression, args valueobjects.ConnectionArgs) Builder {
	return b.edges(expr, args, Out)
}

// InEdges follows edges arriving at the current node.
func (b Builder) InEdges(expr valueobjects.Expression, args valueobjects.ConnectionArgs) Builder {
	return b.edges(expr, args, In)
}

func (b Builder) edges(expr valueobjects.Expression, args valueobjects.ConnectionArgs, d Direction) Builder {
	return Builder{query: EdgeTraversal{Expression: clone(expr), Args: args, Direction: d, inner: b.query}}
}

// OutNodes moves from the current edges to their inID nodes.
func (b Builder) OutNodes(expr valueobjects.Expression) Builder {
	return Builder{query: ToNodesTraversal{Direction: Out, Expression: clone(expr), inner: b.query}}
}

// InNodes moves from the current edges to their outID nodes.
func (b Builder) InNodes(expr valueobjects.Expression) Builder {
	return Builder{query: ToNodesTraversal{Direction: In, Expression: clone(expr), inner: b.query}}
}

// Single requires exactly one result.
func (b Builder) Single() Builder {
	return Builder{query: SingleReduction{inner: b.query}}
}

// SingleOrNull requires at most one result.
func (b Builder) SingleOrNull() Builder {
	return Builder{query: SingleReduction{Nullable: true, inner: b.query}}
}

// Query returns the built chain.
func (b Builder) Query() Query {
	return b.query
}

// Validate checks the whole chain.
func (b Builder) Validate() error {
	if b.query == nil {
		return errEmptyQuery
	}
	return b.query.Validate()
}

// Steps returns the chain from its root to its last step.
func Steps(q Query) []Query {
	var steps []Query
	for ; q != nil; q = q.Inner() {
		steps = append(steps, q)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

func clone(expr valueobjects.Expression) valueobjects.Expression {
	out := make(valueobjects.Expression, len(expr))
	for k, v := range expr {
		out[k] = v
	}
	return out
}
