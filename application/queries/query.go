// Package queries defines traversal queries over the graph. A query is an
// immutable chain of steps; each step except the first holds the step it
// continues from, and the chain is resolved innermost first.
package queries

import (
	"fmt"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
)

// Direction is the side of an edge a traversal follows.
type Direction int

const (
	// Out follows edges from their outID node to their inID node.
	Out Direction = iota
	// In follows edges from their inID node to their outID node.
	In
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Query is one traversal step. The set of implementations is closed.
type Query interface {
	// Inner returns the step this one continues from, or nil for a root.
	Inner() Query
	// Validate checks this step and every step before it.
	Validate() error

	isQuery()
}

// NodeTraversal selects nodes matching an expression.
type NodeTraversal struct {
	Expression valueobjects.Expression
	Args       valueobjects.ConnectionArgs
}

func (NodeTraversal) isQuery()      {}
func (NodeTraversal) Inner() Query { return nil }

func (q NodeTraversal) Validate() error {
	if err := validateExpression(q.Expression); err != nil {
		return err
	}
	return q.Args.Validate()
}

// EdgeTraversal selects edges matching an expression. When it continues from
// a step that resolved to a single node, that node's id constrains the edge's
// outID (Out) or inID (In).
type EdgeTraversal struct {
	Expression valueobjects.Expression
	Args       valueobjects.ConnectionArgs
	Direction  Direction
	inner      Query
}

func (EdgeTraversal) isQuery()        {}
func (q EdgeTraversal) Inner() Query { return q.inner }

func (q EdgeTraversal) Validate() error {
	if err := validateInner(q.inner); err != nil {
		return err
	}
	if err := validateExpression(q.Expression); err != nil {
		return err
	}
	return q.Args.Validate()
}

// ToNodesTraversal maps every edge of the previous step to the node at its
// far end. The page window of the edges is kept as is.
type ToNodesTraversal struct {
	Direction  Direction
	Expression valueobjects.Expression
	inner      Query
}

func (ToNodesTraversal) isQuery()        {}
func (q ToNodesTraversal) Inner() Query { return q.inner }

func (q ToNodesTraversal) Validate() error {
	if q.inner == nil {
		return fmt.Errorf("node traversal along edges needs a preceding edge step")
	}
	if err := q.inner.Validate(); err != nil {
		return err
	}
	return validateExpression(q.Expression)
}

// SingleReduction collapses a one-edge connection to its node.
type SingleReduction struct {
	Nullable bool
	inner    Query
}

func (SingleReduction) isQuery()        {}
func (q SingleReduction) Inner() Query { return q.inner }

func (q SingleReduction) Validate() error {
	if q.inner == nil {
		return fmt.Errorf("single needs a preceding step")
	}
	return q.inner.Validate()
}

// AggregateUnion concatenates the results of independent queries.
type AggregateUnion struct {
	Items []Query
}

func (AggregateUnion) isQuery()      {}
func (AggregateUnion) Inner() Query { return nil }

func (q AggregateUnion) Validate() error {
	for i, item := range q.Items {
		if item == nil {
			return fmt.Errorf("aggregate item %d is empty", i)
		}
		if err := item.Validate(); err != nil {
			return fmt.Errorf("aggregate item %d: %w", i, err)
		}
	}
	return nil
}

func validateInner(inner Query) error {
	if inner == nil {
		return nil
	}
	return inner.Validate()
}

func validateExpression(expr valueobjects.Expression) error {
	if expr.Type() == "" {
		return fmt.Errorf("expression is missing a '%s'", entities.AttrType)
	}
	return nil
}
