package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/channl/dynamodb-relay-graph-sub000/application/queries"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/valueobjects"
)

// Step kinds accepted in a query request.
const (
	KindNodes        = "nodes"
	KindEdges        = "edges"
	KindOutEdges     = "outEdges"
	KindInEdges      = "inEdges"
	KindOutNodes     = "outNodes"
	KindInNodes      = "inNodes"
	KindSingle       = "single"
	KindSingleOrNull = "singleOrNull"
)

// QueryRequest is a traversal chain, or a union of chains when Aggregate is
// set.
type QueryRequest struct {
	Steps     []StepRequest  `json:"steps,omitempty" validate:"required_without=Aggregate,excluded_with=Aggregate,max=16,dive"`
	Aggregate []QueryRequest `json:"aggregate,omitempty" validate:"omitempty,max=8,dive"`
}

// StepRequest is one step of a traversal chain. Expression values that are
// objects are read as ranges with "after", "before" and "begins_with" bounds.
type StepRequest struct {
	Kind       string         `json:"kind" validate:"required,oneof=nodes edges outEdges inEdges outNodes inNodes single singleOrNull"`
	Expression map[string]any `json:"expression,omitempty"`
	First      *int           `json:"first,omitempty" validate:"omitempty,gte=0"`
	Last       *int           `json:"last,omitempty" validate:"omitempty,gte=0,excluded_with=First"`
	After      string         `json:"after,omitempty"`
	Before     string         `json:"before,omitempty"`
	Order      string         `json:"order,omitempty"`
	OrderDesc  bool           `json:"orderDesc,omitempty"`
}

// PutItemsRequest is a batch of models to write.
type PutItemsRequest struct {
	Items []map[string]any `json:"items" validate:"required,min=1,max=100"`
}

// PutItemsResponse lists the global ids of the written models in request
// order.
type PutItemsResponse struct {
	IDs []string `json:"ids"`
}

// NodeResponse is a single model with its global id. Both are null when a
// nullable single reduction found nothing.
type NodeResponse struct {
	ID   *string        `json:"id"`
	Node entities.Model `json:"node"`
}

// EdgeResponse is one connection edge.
type EdgeResponse struct {
	Cursor string         `json:"cursor"`
	ID     *string        `json:"id"`
	Node   entities.Model `json:"node"`
}

// ConnectionResponse is a page of a connection.
type ConnectionResponse struct {
	Edges    []EdgeResponse        `json:"edges"`
	PageInfo valueobjects.PageInfo `json:"pageInfo"`
}

// ToBuilder converts the request into a query chain.
func (req QueryRequest) ToBuilder() (queries.Builder, error) {
	if len(req.Aggregate) > 0 {
		items := make([]queries.Builder, 0, len(req.Aggregate))
		for i, member := range req.Aggregate {
			b, err := member.ToBuilder()
			if err != nil {
				return queries.Builder{}, fmt.Errorf("aggregate[%d]: %w", i, err)
			}
			items = append(items, b)
		}
		return queries.Aggregate(items...), nil
	}

	var b queries.Builder
	for i, step := range req.Steps {
		expr, err := toExpression(step.Expression)
		if err != nil {
			return queries.Builder{}, fmt.Errorf("steps[%d]: %w", i, err)
		}
		args := step.args()

		if i == 0 {
			switch step.Kind {
			case KindNodes:
				b = queries.Node(expr, args)
			case KindEdges:
				b = queries.Edge(expr, args)
			default:
				return queries.Builder{}, fmt.Errorf("steps[0]: a chain must start with '%s' or '%s', got '%s'", KindNodes, KindEdges, step.Kind)
			}
			continue
		}

		switch step.Kind {
		case KindOutEdges:
			b = b.OutEdges(expr, args)
		case KindInEdges:
			b = b.InEdges(expr, args)
		case KindOutNodes:
			b = b.OutNodes(expr)
		case KindInNodes:
			b = b.InNodes(expr)
		case KindSingle:
			b = b.Single()
		case KindSingleOrNull:
			b = b.SingleOrNull()
		default:
			return queries.Builder{}, fmt.Errorf("steps[%d]: '%s' is only valid as the first step", i, step.Kind)
		}
	}
	return b, nil
}

func (s StepRequest) args() valueobjects.ConnectionArgs {
	return valueobjects.ConnectionArgs{
		First:     s.First,
		Last:      s.Last,
		After:     s.After,
		Before:    s.Before,
		Order:     s.Order,
		OrderDesc: s.OrderDesc,
	}
}

func toExpression(raw map[string]any) (valueobjects.Expression, error) {
	expr := make(valueobjects.Expression, len(raw))
	for name, v := range raw {
		bounds, ok := v.(map[string]any)
		if !ok {
			expr[name] = normalize(v)
			continue
		}
		var r valueobjects.Range
		for bound, bv := range bounds {
			switch bound {
			case "after":
				r = r.WithAfter(normalize(bv))
			case "before":
				r = r.WithBefore(normalize(bv))
			case "begins_with", "beginsWith":
				r.BeginsWith, r.HasBeginsWith = normalize(bv), true
			default:
				return nil, fmt.Errorf("attribute '%s' has an unknown range bound '%s'", name, bound)
			}
		}
		expr[name] = r
	}
	return expr, nil
}

// toModel converts a decoded JSON object into a model. Arrays are stored as
// sets.
func toModel(raw map[string]any) entities.Model {
	m := make(entities.Model, len(raw))
	for name, v := range raw {
		if list, ok := v.([]any); ok {
			elems := make([]any, len(list))
			for i, e := range list {
				elems[i] = normalize(e)
			}
			m[name] = elems
			continue
		}
		m[name] = normalize(v)
	}
	return m
}

// normalize turns JSON numbers into int64 when they are integral and
// float64 otherwise.
func normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
