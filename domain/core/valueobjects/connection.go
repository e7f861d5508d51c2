package valueobjects

import (
	"fmt"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
)

// ConnectionArgs selects a page of a connection. Exactly one of First and
// Last is set: First pages forward from After, Last pages backward from Before.
type ConnectionArgs struct {
	First     *int   `json:"first,omitempty"`
	Last      *int   `json:"last,omitempty"`
	After     string `json:"after,omitempty"`
	Before    string `json:"before,omitempty"`
	Order     string `json:"order,omitempty"`
	OrderDesc bool   `json:"orderDesc,omitempty"`
}

// First returns args for a forward page of n items.
func First(n int) ConnectionArgs {
	return ConnectionArgs{First: &n}
}

// Last returns args for a backward page of n items.
func Last(n int) ConnectionArgs {
	return ConnectionArgs{Last: &n}
}

// WithAfter returns a copy starting after the given cursor.
func (a ConnectionArgs) WithAfter(cursor string) ConnectionArgs {
	a.After = cursor
	return a
}

// WithBefore returns a copy ending before the given cursor.
func (a ConnectionArgs) WithBefore(cursor string) ConnectionArgs {
	a.Before = cursor
	return a
}

// OrderBy returns a copy ordered by the given attribute.
func (a ConnectionArgs) OrderBy(attribute string, desc bool) ConnectionArgs {
	a.Order = attribute
	a.OrderDesc = desc
	return a
}

// Validate checks the first/last and after/before pairing rules.
func (a ConnectionArgs) Validate() error {
	switch {
	case a.First == nil && a.Last == nil:
		return fmt.Errorf("one of 'first' or 'last' is required")
	case a.First != nil && a.Last != nil:
		return fmt.Errorf("'first' and 'last' cannot be combined")
	case a.First != nil && *a.First < 0:
		return fmt.Errorf("'first' must not be negative")
	case a.Last != nil && *a.Last < 0:
		return fmt.Errorf("'last' must not be negative")
	case a.After != "" && a.First == nil:
		return fmt.Errorf("'after' is only valid with 'first'")
	case a.Before != "" && a.Last == nil:
		return fmt.Errorf("'before' is only valid with 'last'")
	}
	return nil
}

// IsForward reports whether the page is requested with First.
func (a ConnectionArgs) IsForward() bool {
	return a.First != nil
}

// Limit returns the requested page size.
func (a ConnectionArgs) Limit() int {
	if a.First != nil {
		return *a.First
	}
	if a.Last != nil {
		return *a.Last
	}
	return 0
}

// IsEmpty reports whether the args ask for a page of zero items.
func (a ConnectionArgs) IsEmpty() bool {
	return (a.First != nil && *a.First == 0) || (a.Last != nil && *a.Last == 0)
}

// Cursor returns the cursor the page starts from, if any.
func (a ConnectionArgs) Cursor() string {
	if a.IsForward() {
		return a.After
	}
	return a.Before
}

// ScanForward reports the store scan direction: forward for First, backward
// for Last, flipped when OrderDesc is set.
func (a ConnectionArgs) ScanForward() bool {
	return a.IsForward() != a.OrderDesc
}

// Edge is one connection entry.
type Edge struct {
	Cursor string         `json:"cursor"`
	Node   entities.Model `json:"node"`
}

// PageInfo describes the position of a page within its connection.
type PageInfo struct {
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	HasNextPage     bool    `json:"hasNextPage"`
}

// Connection is a cursor-paginated result set.
type Connection struct {
	Edges    []Edge   `json:"edges"`
	PageInfo PageInfo `json:"pageInfo"`
}

// NewConnection builds a connection, deriving start and end cursors from the
// edges so they are nil exactly when there are no edges.
func NewConnection(edges []Edge, hasPreviousPage, hasNextPage bool) *Connection {
	if edges == nil {
		edges = []Edge{}
	}
	conn := &Connection{
		Edges: edges,
		PageInfo: PageInfo{
			HasPreviousPage: hasPreviousPage,
			HasNextPage:     hasNextPage,
		},
	}
	if len(edges) > 0 {
		start := edges[0].Cursor
		end := edges[len(edges)-1].Cursor
		conn.PageInfo.StartCursor = &start
		conn.PageInfo.EndCursor = &end
	}
	return conn
}

// EmptyConnection returns a connection with no edges and no further pages.
func EmptyConnection() *Connection {
	return NewConnection(nil, false, false)
}

// Nodes returns the node of every edge in order.
func (c *Connection) Nodes() []entities.Model {
	nodes := make([]entities.Model, 0, len(c.Edges))
	for _, edge := range c.Edges {
		nodes = append(nodes, edge.Node)
	}
	return nodes
}
